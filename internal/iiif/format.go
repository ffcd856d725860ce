package iiif

import "fmt"

// DefaultEncoderQuality is used for jpg output when the request did not
// carry a numeric quality.
const DefaultEncoderQuality = 75

// ContentTypes maps format tokens to content types. pdf is listed for
// completeness only; it is never produced.
var ContentTypes = map[Format]string{
	FormatJPG:  "image/jpeg",
	FormatPNG:  "image/png",
	FormatTIF:  "image/tiff",
	FormatGIF:  "image/gif",
	FormatJP2:  "image/jp2",
	FormatWebP: "image/webp",
	FormatPDF:  "application/pdf",
}

// OutputFormats are the formats a request may ask for, in the order the
// info document advertises them.
var OutputFormats = []Format{FormatJPG, FormatPNG, FormatTIF, FormatGIF, FormatJP2, FormatWebP}

// ColourPlan is the colour reduction applied after the geometry.
type ColourPlan int

const (
	ColourPassThrough ColourPlan = iota
	// ColourGrayscale is also used for bitonal: no thresholding is done.
	ColourGrayscale
)

func (c ColourPlan) String() string {
	if c == ColourGrayscale {
		return "grayscale"
	}
	return "pass-through"
}

// MarshalText lets plans print their colour plan by name.
func (c ColourPlan) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// QualityPlan is the resolved quality segment.
type QualityPlan struct {
	Colour ColourPlan `json:"colour"`
}

// FormatPlan is the resolved output encoding. EncoderQuality is only set
// for lossy formats.
type FormatPlan struct {
	Format         Format `json:"format"`
	ContentType    string `json:"content_type"`
	EncoderQuality int    `json:"encoder_quality,omitempty"`
}

// Lossy reports whether the format takes an encoder quality.
func (f Format) Lossy() bool {
	return f == FormatJPG
}

// ResolveQuality maps a quality token to a colour reduction.
func ResolveQuality(q Quality) QualityPlan {
	switch q.Name {
	case QualityGray, QualityBitonal:
		return QualityPlan{Colour: ColourGrayscale}
	default:
		return QualityPlan{Colour: ColourPassThrough}
	}
}

// ResolveFormat maps a format token to its content type and, for lossy
// formats, the encoder quality: the numeric quality clamped to [1,100] when
// given, DefaultEncoderQuality otherwise.
func ResolveFormat(f Format, q Quality) (FormatPlan, error) {
	if f == FormatPDF {
		return FormatPlan{}, fmt.Errorf("%w: %s output", ErrUnsupported, f)
	}
	contentType, ok := ContentTypes[f]
	if !ok {
		return FormatPlan{}, fmt.Errorf("%w: format %q", ErrMalformedRequest, f)
	}

	plan := FormatPlan{Format: f, ContentType: contentType}
	if f.Lossy() {
		plan.EncoderQuality = DefaultEncoderQuality
		if q.Numeric {
			plan.EncoderQuality = max(1, min(100, q.Level))
		}
	}
	return plan, nil
}

// ResolveQualityFormat resolves the quality and format segments together.
func ResolveQualityFormat(q Quality, f Format) (QualityPlan, FormatPlan, error) {
	formatPlan, err := ResolveFormat(f, q)
	if err != nil {
		return QualityPlan{}, FormatPlan{}, err
	}
	return ResolveQuality(q), formatPlan, nil
}
