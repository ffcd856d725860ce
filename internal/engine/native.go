package engine

import (
	"bytes"
	"fmt"
	"image"

	_ "image/gif"  // GIF decoder
	_ "image/jpeg" // JPEG decoder
	_ "image/png"  // PNG decoder

	"github.com/anthonynsimon/bild/effect"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"  // BMP decoder
	_ "golang.org/x/image/tiff" // TIFF decoder
	_ "golang.org/x/image/webp" // WEBP decoder

	"github.com/greut/aio-iiif/internal/iiif"
)

// NativeEngine is the Engine implementation using Go native image tools.
// It reads every format registered above and writes jpg, png, gif and tif.
type NativeEngine struct {
	maxPixels int
}

// NewNativeEngine returns a NativeEngine refusing sources and outputs
// larger than maxPixels (0 means no limit).
func NewNativeEngine(maxPixels int) *NativeEngine {
	return &NativeEngine{maxPixels: maxPixels}
}

func (e *NativeEngine) Name() string {
	return "native"
}

// Probe decodes only the image header.
func (e *NativeEngine) Probe(data []byte) (iiif.Dimensions, error) {
	c, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return iiif.Dimensions{}, fmt.Errorf("%w: decoding header: %v", ErrEngine, err)
	}
	return iiif.Dimensions{Width: c.Width, Height: c.Height}, nil
}

// Apply decodes the image and runs the plan.
func (e *NativeEngine) Apply(data []byte, plan *iiif.TransformPlan) ([]byte, error) {
	format, ok := nativeFormats[plan.Format.Format]
	if !ok {
		return nil, fmt.Errorf("%w: %s output with the native engine", iiif.ErrUnsupported, plan.Format.Format)
	}

	dims, err := e.Probe(data)
	if err != nil {
		return nil, err
	}
	if err := checkLimits(e.maxPixels, dims, plan); err != nil {
		return nil, err
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: decoding: %v", ErrEngine, err)
	}

	var out bytes.Buffer
	for _, step := range plan.Steps() {
		switch step {
		case iiif.StepCrop:
			r := plan.Region
			rect := image.Rect(r.Left, r.Top, r.Left+r.Width, r.Top+r.Height)
			img = imaging.Crop(img, rect.Add(img.Bounds().Min))

		case iiif.StepScale:
			img = imaging.Resize(img, plan.Size.Width, plan.Size.Height, imaging.Lanczos)

		case iiif.StepMirror:
			img = imaging.FlipH(img)

		case iiif.StepRotate:
			// imaging rotates counter-clockwise; IIIF is clockwise.
			switch plan.Rotation.Degrees {
			case 90:
				img = imaging.Rotate270(img)
			case 180:
				img = imaging.Rotate180(img)
			case 270:
				img = imaging.Rotate90(img)
			}

		case iiif.StepGrayscale:
			img = effect.Grayscale(img)

		case iiif.StepEncode:
			var opts []imaging.EncodeOption
			if plan.Format.EncoderQuality > 0 {
				opts = append(opts, imaging.JPEGQuality(plan.Format.EncoderQuality))
			}
			if err := imaging.Encode(&out, img, format, opts...); err != nil {
				return nil, fmt.Errorf("%w: encoding %s: %v", ErrEngine, plan.Format.Format, err)
			}

		default:
			return nil, fmt.Errorf("%w: unknown step %s", ErrEngine, step)
		}
	}

	return out.Bytes(), nil
}

var nativeFormats = map[iiif.Format]imaging.Format{
	iiif.FormatJPG: imaging.JPEG,
	iiif.FormatPNG: imaging.PNG,
	iiif.FormatGIF: imaging.GIF,
	iiif.FormatTIF: imaging.TIFF,
}
