package engine

import (
	"fmt"

	"github.com/h2non/bimg"

	"github.com/greut/aio-iiif/internal/iiif"
)

// VipsEngine runs plans with bimg (Go bindings for libvips). It needs
// libvips installed as a system dependency.
type VipsEngine struct {
	maxPixels int
}

// NewVipsEngine creates a new VipsEngine refusing sources and outputs
// larger than maxPixels (0 means no limit).
func NewVipsEngine(maxPixels int) *VipsEngine {
	return &VipsEngine{maxPixels: maxPixels}
}

func (e *VipsEngine) Name() string {
	return "vips"
}

// Probe reads the image header for its dimensions.
func (e *VipsEngine) Probe(data []byte) (iiif.Dimensions, error) {
	size, err := bimg.NewImage(data).Size()
	if err != nil {
		return iiif.Dimensions{}, fmt.Errorf("%w: reading image size: %v", ErrEngine, err)
	}
	return iiif.Dimensions{Width: size.Width, Height: size.Height}, nil
}

// Apply runs each step as its own bimg.Process call, because a single call
// would apply bimg's fixed internal order (rotate before flip) instead of
// the plan's. Intermediate results are kept as PNG so lossy sources are
// only encoded once, at the end.
func (e *VipsEngine) Apply(data []byte, plan *iiif.TransformPlan) ([]byte, error) {
	if e.maxPixels > 0 {
		dims, err := e.Probe(data)
		if err != nil {
			return nil, err
		}
		if err := checkLimits(e.maxPixels, dims, plan); err != nil {
			return nil, err
		}
	}

	buf := data
	for _, step := range plan.Steps() {
		opts, err := vipsOptions(step, plan)
		if err != nil {
			return nil, err
		}

		buf, err = bimg.NewImage(buf).Process(opts)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrEngine, step, err)
		}
	}
	return buf, nil
}

func vipsOptions(step iiif.Step, plan *iiif.TransformPlan) (bimg.Options, error) {
	opts := bimg.Options{
		Type:         bimg.PNG,
		NoAutoRotate: true,
	}

	switch step {
	case iiif.StepCrop:
		opts.Top = plan.Region.Top
		opts.Left = plan.Region.Left
		opts.AreaWidth = plan.Region.Width
		opts.AreaHeight = plan.Region.Height
		// bimg only extracts when Top or Left is non-zero; -1 is how
		// bimg.Image.Extract asks for an extract anchored at the origin.
		if opts.Top == 0 && opts.Left == 0 {
			opts.Top = -1
		}

	case iiif.StepScale:
		opts.Width = plan.Size.Width
		opts.Height = plan.Size.Height
		opts.Force = true
		// Confined plans never grow the image.
		opts.Enlarge = plan.Size.Kind == iiif.ScaleUniform

	case iiif.StepMirror:
		// Flip mirrors about the vertical axis (left-right).
		opts.Flip = true

	case iiif.StepRotate:
		// libvips rotates clockwise, like IIIF.
		opts.Rotate = bimg.Angle(plan.Rotation.Degrees)

	case iiif.StepGrayscale:
		opts.Interpretation = bimg.InterpretationBW

	case iiif.StepEncode:
		t, err := vipsType(plan.Format.Format)
		if err != nil {
			return bimg.Options{}, err
		}
		opts.Type = t
		opts.Quality = plan.Format.EncoderQuality

	default:
		return bimg.Options{}, fmt.Errorf("%w: unknown step %s", ErrEngine, step)
	}

	return opts, nil
}

// vipsNames are libvips' names for the IIIF output formats.
var vipsNames = map[iiif.Format]string{
	iiif.FormatJPG:  "jpeg",
	iiif.FormatPNG:  "png",
	iiif.FormatTIF:  "tiff",
	iiif.FormatGIF:  "gif",
	iiif.FormatWebP: "webp",
	iiif.FormatJP2:  "jp2k",
}

// vipsType finds the bimg type for a format, checking that the linked
// libvips can actually save it.
func vipsType(f iiif.Format) (bimg.ImageType, error) {
	name, ok := vipsNames[f]
	if ok {
		for t, typeName := range bimg.ImageTypes {
			if typeName == name && bimg.IsTypeSupportedSave(t) {
				return t, nil
			}
		}
	}
	return bimg.UNKNOWN, fmt.Errorf("%w: %s output is not available in this libvips build", iiif.ErrUnsupported, f)
}
