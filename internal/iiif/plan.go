package iiif

import "fmt"

// Step is one operation of a TransformPlan.
type Step int

// Steps always run in this order.
const (
	StepCrop Step = iota
	StepScale
	StepMirror
	StepRotate
	StepGrayscale
	StepEncode
)

var stepNames = [...]string{"crop", "scale", "mirror", "rotate", "grayscale", "encode"}

func (s Step) String() string {
	if int(s) < len(stepNames) {
		return stepNames[s]
	}
	return fmt.Sprintf("step(%d)", int(s))
}

// MarshalText lets step lists print by name.
func (s Step) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// RotationPlan is the resolved rotation segment. Mirroring happens before
// rotating.
type RotationPlan struct {
	Degrees int  `json:"degrees"`
	Mirror  bool `json:"mirror"`
}

// TransformPlan is everything an engine needs to turn the source bytes
// into the response. It is built once per request by Resolve.
type TransformPlan struct {
	Source   Dimensions   `json:"source"`
	Region   Rect         `json:"region"`
	Size     SizePlan     `json:"size"`
	Rotation RotationPlan `json:"rotation"`
	Quality  QualityPlan  `json:"quality"`
	Format   FormatPlan   `json:"format"`
}

// Resolve turns an image request into a TransformPlan for a source of the
// given dimensions.
func Resolve(req *Request, src Dimensions) (*TransformPlan, error) {
	if req.Kind != KindImage {
		return nil, fmt.Errorf("%w: %s request has no transform", ErrMalformedRequest, req.Kind)
	}

	region, err := ResolveRegion(req.Region, src)
	if err != nil {
		return nil, err
	}
	size, err := ResolveSize(req.Size, region)
	if err != nil {
		return nil, err
	}
	quality, format, err := ResolveQualityFormat(req.Quality, req.Format)
	if err != nil {
		return nil, err
	}

	return &TransformPlan{
		Source:   src,
		Region:   region,
		Size:     size,
		Rotation: RotationPlan{Degrees: req.Rotation.Degrees, Mirror: req.Rotation.Mirror},
		Quality:  quality,
		Format:   format,
	}, nil
}

// Steps lists the operations to apply, skipping the ones that would not
// change the image. Encode is always last.
func (p *TransformPlan) Steps() []Step {
	steps := make([]Step, 0, len(stepNames))

	full := Rect{Width: p.Source.Width, Height: p.Source.Height}
	if p.Region != full {
		steps = append(steps, StepCrop)
	}
	if p.Size.Kind != ScaleIdentity && (p.Size.Width != p.Region.Width || p.Size.Height != p.Region.Height) {
		steps = append(steps, StepScale)
	}
	if p.Rotation.Mirror {
		steps = append(steps, StepMirror)
	}
	if p.Rotation.Degrees%360 != 0 {
		steps = append(steps, StepRotate)
	}
	if p.Quality.Colour == ColourGrayscale {
		steps = append(steps, StepGrayscale)
	}

	return append(steps, StepEncode)
}

// OutputDimensions is the pixel size of the encoded result.
func (p *TransformPlan) OutputDimensions() Dimensions {
	if p.Rotation.Degrees == 90 || p.Rotation.Degrees == 270 {
		return Dimensions{Width: p.Size.Height, Height: p.Size.Width}
	}
	return Dimensions{Width: p.Size.Width, Height: p.Size.Height}
}
