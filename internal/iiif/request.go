// Package iiif implements the IIIF Image API request grammar and the
// resolution of a parsed request against concrete source dimensions into a
// TransformPlan that an image engine can execute.
//
// Nothing in this package performs I/O: parsing and resolving are pure
// functions of their inputs, so each request builds and owns its values.
package iiif

import "errors"

// ErrMalformedRequest is returned when a request path does not match the
// grammar or carries an out-of-range numeric token.
var ErrMalformedRequest = errors.New("malformed request")

// ErrUnsupported is returned for well-formed requests asking for something
// this server does not produce (pdf output, percentages above 100, ...).
var ErrUnsupported = errors.New("unsupported operation")

// RequestKind tells an image request apart from an info.json request.
type RequestKind int

const (
	KindImage RequestKind = iota
	KindInfo
)

func (k RequestKind) String() string {
	if k == KindInfo {
		return "info"
	}
	return "image"
}

// RegionKind is the variant tag of a Region.
type RegionKind int

const (
	RegionFull RegionKind = iota
	RegionSquare
	RegionPixel
	RegionPercent
)

// Region is the parsed region segment. X, Y, W and H are only meaningful for
// RegionPixel (whole pixels) and RegionPercent (percent of the source).
type Region struct {
	Kind RegionKind
	X    float64
	Y    float64
	W    float64
	H    float64
}

// SizeKind is the variant tag of a Size.
type SizeKind int

const (
	SizeFull SizeKind = iota
	SizeMax
	SizePercent
	SizeConfined   // !w,h
	SizeUnconfined // w,h
	SizeWidth      // w,
	SizeHeight     // ,h
)

// Size is the parsed size segment.
type Size struct {
	Kind    SizeKind
	W       int
	H       int
	Percent float64
}

// Rotation is the parsed rotation segment. Degrees is one of 0, 90, 180
// or 270; Mirror is set by a leading "!".
type Rotation struct {
	Degrees int
	Mirror  bool
}

// Quality names understood by the parser.
const (
	QualityDefault = "default"
	QualityNative  = "native"
	QualityColor   = "color"
	QualityGray    = "gray"
	QualityBitonal = "bitonal"
)

// Quality is the parsed quality token. A decimal integer token sets Numeric
// and Level instead of Name; it is a non-standard extension carrying an
// encoder quality for lossy formats.
type Quality struct {
	Name    string
	Numeric bool
	Level   int
}

// Format is an output format token such as "jpg".
type Format string

const (
	FormatJPG  Format = "jpg"
	FormatPNG  Format = "png"
	FormatTIF  Format = "tif"
	FormatGIF  Format = "gif"
	FormatJP2  Format = "jp2"
	FormatWebP Format = "webp"
	FormatPDF  Format = "pdf"
)

// Request is a fully typed IIIF request. Only ParseRequest builds one.
type Request struct {
	Identifier string
	Kind       RequestKind
	Region     Region
	Size       Size
	Rotation   Rotation
	Quality    Quality
	Format     Format
}

// Dimensions are the pixel dimensions of a source image.
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Valid reports whether both dimensions are positive.
func (d Dimensions) Valid() bool {
	return d.Width > 0 && d.Height > 0
}
