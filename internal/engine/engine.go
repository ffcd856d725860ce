// Package engine executes TransformPlans on encoded image bytes.
//
// Two backends exist: VipsEngine wraps libvips through bimg and handles
// every output format libvips was built with; NativeEngine is pure Go and
// needs no system libraries, at the cost of webp and jp2 output.
package engine

import (
	"errors"
	"fmt"

	"github.com/greut/aio-iiif/internal/iiif"
)

// ErrEngine wraps decode, processing and encode failures.
var ErrEngine = errors.New("image engine failure")

// Engine decodes, transforms and re-encodes images. Implementations are
// CPU-bound and are expected to be driven through a Pool.
type Engine interface {
	// Probe returns the pixel dimensions of an encoded image.
	Probe(data []byte) (iiif.Dimensions, error)
	// Apply runs plan.Steps() on the image and returns the encoded result.
	Apply(data []byte, plan *iiif.TransformPlan) ([]byte, error)
	// Name identifies the backend in logs and metrics.
	Name() string
}

// New returns the engine for a configured backend name.
func New(backend string, maxPixels int) (Engine, error) {
	switch backend {
	case "vips", "":
		return NewVipsEngine(maxPixels), nil
	case "native":
		return NewNativeEngine(maxPixels), nil
	}
	return nil, fmt.Errorf("unknown engine backend %q", backend)
}

// checkLimits refuses sources and outputs above maxPixels (0 means no
// limit). An oversized source is an engine failure; an oversized output is
// something the client asked for and is refused as unsupported.
func checkLimits(maxPixels int, src iiif.Dimensions, plan *iiif.TransformPlan) error {
	if maxPixels <= 0 {
		return nil
	}
	if src.Width*src.Height > maxPixels {
		return fmt.Errorf("%w: image is too big (%dx%d)", ErrEngine, src.Width, src.Height)
	}
	if out := plan.OutputDimensions(); out.Width*out.Height > maxPixels {
		return fmt.Errorf("%w: output of %dx%d is above %d pixels", iiif.ErrUnsupported, out.Width, out.Height, maxPixels)
	}
	return nil
}
