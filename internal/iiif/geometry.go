package iiif

import (
	"fmt"
	"math"
)

// Rect is a region of the source image in pixels. A resolved Rect always
// lies inside the source and has a positive width and height.
type Rect struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// MaxSide is the largest width or height a size may scale a region to. It
// is the largest side a JPEG can carry.
const MaxSide = 65535

// ScaleKind is the variant tag of a SizePlan.
type ScaleKind int

const (
	// ScaleIdentity leaves the region at its size.
	ScaleIdentity ScaleKind = iota
	// ScaleUniform scales both axes by Factor, enlarging if asked to.
	ScaleUniform
	// ScaleConfined shrinks into a bounding box keeping the aspect ratio.
	// It never enlarges.
	ScaleConfined
)

func (k ScaleKind) String() string {
	switch k {
	case ScaleUniform:
		return "uniform"
	case ScaleConfined:
		return "confined"
	default:
		return "identity"
	}
}

// MarshalText lets plans print their scale kind by name.
func (k ScaleKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// SizePlan says how the cropped region is scaled. Width and Height are the
// resulting pixel dimensions. Uniform plans carry a single Factor; confined
// plans carry per-axis factors that land exactly on Width x Height.
type SizePlan struct {
	Kind    ScaleKind `json:"kind"`
	Factor  float64   `json:"factor,omitempty"`
	XFactor float64   `json:"x_factor,omitempty"`
	YFactor float64   `json:"y_factor,omitempty"`
	Width   int       `json:"width"`
	Height  int       `json:"height"`
}

// Scales returns the horizontal and vertical scale factors of the plan.
func (p SizePlan) Scales() (float64, float64) {
	switch p.Kind {
	case ScaleUniform:
		return p.Factor, p.Factor
	case ScaleConfined:
		return p.XFactor, p.YFactor
	default:
		return 1, 1
	}
}

// ResolveRegion computes the pixel rectangle a region selects in an image
// of the given dimensions. Rectangles running past the right or bottom edge
// are clamped to the image; a rectangle starting outside the image, or with
// an empty extent, is rejected.
func ResolveRegion(r Region, src Dimensions) (Rect, error) {
	if !src.Valid() {
		return Rect{}, fmt.Errorf("%w: invalid source dimensions %dx%d", ErrMalformedRequest, src.Width, src.Height)
	}

	switch r.Kind {
	case RegionFull:
		return Rect{Width: src.Width, Height: src.Height}, nil

	case RegionSquare:
		if src.Width < src.Height {
			return Rect{Top: (src.Height - src.Width) / 2, Width: src.Width, Height: src.Width}, nil
		}
		return Rect{Left: (src.Width - src.Height) / 2, Width: src.Height, Height: src.Height}, nil

	case RegionPixel:
		return clampRect(r.X, r.Y, r.W, r.H, src)

	case RegionPercent:
		if r.W <= 0 || r.H <= 0 {
			return Rect{}, fmt.Errorf("%w: empty region", ErrMalformedRequest)
		}
		w, h := float64(src.Width), float64(src.Height)
		return clampRect(
			math.Floor(r.X*w/100),
			math.Floor(r.Y*h/100),
			math.Max(1, math.Round(r.W*w/100)),
			math.Max(1, math.Round(r.H*h/100)),
			src,
		)
	}

	return Rect{}, fmt.Errorf("%w: unknown region kind %d", ErrMalformedRequest, r.Kind)
}

// clampRect works on floats so that offsets and extents far beyond the image
// are rejected or clamped before they are converted to int.
func clampRect(left, top, width, height float64, src Dimensions) (Rect, error) {
	if !(width > 0) || !(height > 0) {
		return Rect{}, fmt.Errorf("%w: empty region", ErrMalformedRequest)
	}
	w, h := float64(src.Width), float64(src.Height)
	if left < 0 || top < 0 || !(left < w) || !(top < h) {
		return Rect{}, fmt.Errorf("%w: region starts outside the %dx%d image", ErrMalformedRequest, src.Width, src.Height)
	}

	return Rect{
		Left:   int(left),
		Top:    int(top),
		Width:  int(math.Min(width, w-left)),
		Height: int(math.Min(height, h-top)),
	}, nil
}

// ResolveSize computes how a region of the given size is scaled.
func ResolveSize(s Size, base Rect) (SizePlan, error) {
	if base.Width <= 0 || base.Height <= 0 {
		return SizePlan{}, fmt.Errorf("%w: invalid region %dx%d", ErrMalformedRequest, base.Width, base.Height)
	}
	bw, bh := float64(base.Width), float64(base.Height)

	switch s.Kind {
	case SizeFull, SizeMax:
		return SizePlan{Kind: ScaleIdentity, Width: base.Width, Height: base.Height}, nil

	case SizePercent:
		if s.Percent <= 0 || s.Percent > 100 {
			return SizePlan{}, fmt.Errorf("%w: size pct:%g is outside (0,100]", ErrUnsupported, s.Percent)
		}
		return uniform(s.Percent/100, bw, bh)

	case SizeWidth:
		if s.W == 0 {
			return SizePlan{}, fmt.Errorf("%w: zero width", ErrMalformedRequest)
		}
		plan, err := uniform(float64(s.W)/bw, bw, bh)
		if err != nil {
			return SizePlan{}, err
		}
		plan.Width = s.W
		return plan, nil

	case SizeHeight:
		if s.H == 0 {
			return SizePlan{}, fmt.Errorf("%w: zero height", ErrMalformedRequest)
		}
		plan, err := uniform(float64(s.H)/bh, bw, bh)
		if err != nil {
			return SizePlan{}, err
		}
		plan.Height = s.H
		return plan, nil

	case SizeUnconfined:
		if s.W == 0 || s.H == 0 {
			return SizePlan{}, fmt.Errorf("%w: zero size %d,%d", ErrMalformedRequest, s.W, s.H)
		}
		// The tighter of the two constraints governs both axes.
		return uniform(math.Min(float64(s.W)/bw, float64(s.H)/bh), bw, bh)

	case SizeConfined:
		if s.W == 0 || s.H == 0 {
			return SizePlan{}, fmt.Errorf("%w: zero size !%d,%d", ErrMalformedRequest, s.W, s.H)
		}
		wshrink := math.Max(1, bw/float64(s.W))
		hshrink := math.Max(1, bh/float64(s.H))
		shrink := math.Max(wshrink, hshrink)

		width := atLeastOne(math.Round(bw / shrink))
		height := atLeastOne(math.Round(bh / shrink))
		return SizePlan{
			Kind:    ScaleConfined,
			XFactor: float64(width) / bw,
			YFactor: float64(height) / bh,
			Width:   width,
			Height:  height,
		}, nil
	}

	return SizePlan{}, fmt.Errorf("%w: unknown size kind %d", ErrMalformedRequest, s.Kind)
}

func uniform(factor, bw, bh float64) (SizePlan, error) {
	width, height := math.Round(bw*factor), math.Round(bh*factor)
	if width > MaxSide || height > MaxSide {
		return SizePlan{}, fmt.Errorf("%w: scaled size %.0fx%.0f is larger than %d on a side", ErrUnsupported, width, height, MaxSide)
	}
	return SizePlan{
		Kind:   ScaleUniform,
		Factor: factor,
		Width:  atLeastOne(width),
		Height: atLeastOne(height),
	}, nil
}

func atLeastOne(v float64) int {
	if v < 1 {
		return 1
	}
	return int(v)
}
