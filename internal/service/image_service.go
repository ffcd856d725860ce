// Package service answers parsed IIIF requests: it fetches the source,
// probes it, resolves the plan and has the engine render it.
package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/greut/aio-iiif/internal/engine"
	"github.com/greut/aio-iiif/internal/fetch"
	"github.com/greut/aio-iiif/internal/iiif"
	"github.com/greut/aio-iiif/internal/metrics"
)

// ImageEngine is the context-aware view of an engine. *engine.Pool
// satisfies it.
type ImageEngine interface {
	Probe(ctx context.Context, data []byte) (iiif.Dimensions, error)
	Apply(ctx context.Context, data []byte, plan *iiif.TransformPlan) ([]byte, error)
}

// ImageResult is a fully rendered image. Nothing is written to the client
// until one of these exists.
type ImageResult struct {
	Data        []byte
	ContentType string
	Width       int
	Height      int
	Plan        *iiif.TransformPlan
}

// ImageService orchestrates fetch, probe, resolve and apply.
type ImageService struct {
	fetcher fetch.Fetcher
	engine  ImageEngine
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewImageService creates a new ImageService.
func NewImageService(f fetch.Fetcher, e ImageEngine, m *metrics.Metrics, logger *zap.Logger) *ImageService {
	return &ImageService{
		fetcher: f,
		engine:  e,
		metrics: m,
		logger:  logger,
	}
}

// Image renders an image request.
func (s *ImageService) Image(ctx context.Context, req *iiif.Request) (*ImageResult, error) {
	if req.Kind != iiif.KindImage {
		return nil, fmt.Errorf("%w: not an image request", iiif.ErrMalformedRequest)
	}

	data, dims, err := s.source(ctx, req.Identifier)
	if err != nil {
		return nil, err
	}

	plan, err := iiif.Resolve(req, dims)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	out, err := s.engine.Apply(ctx, data, plan)
	s.metrics.RecordEngine("apply", time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("applying plan: %w", err)
	}

	size := plan.OutputDimensions()
	s.logger.Debug("rendered image",
		zap.String("identifier", req.Identifier),
		zap.Int("width", size.Width),
		zap.Int("height", size.Height),
		zap.Stringers("steps", plan.Steps()),
		zap.Int("bytes", len(out)),
	)

	return &ImageResult{
		Data:        out,
		ContentType: plan.Format.ContentType,
		Width:       size.Width,
		Height:      size.Height,
		Plan:        plan,
	}, nil
}

// Info describes the source image. The @id is built from baseURL.
func (s *ImageService) Info(ctx context.Context, req *iiif.Request, baseURL string) (*iiif.Info, error) {
	if req.Kind != iiif.KindInfo {
		return nil, fmt.Errorf("%w: not an info request", iiif.ErrMalformedRequest)
	}

	_, dims, err := s.source(ctx, req.Identifier)
	if err != nil {
		return nil, err
	}

	return iiif.Describe(req.Identifier, baseURL, dims), nil
}

// source fetches the identifier and reads its dimensions.
func (s *ImageService) source(ctx context.Context, identifier string) ([]byte, iiif.Dimensions, error) {
	data, err := s.fetcher.Fetch(ctx, identifier)
	if err != nil {
		return nil, iiif.Dimensions{}, err
	}
	s.metrics.RecordFetch(len(data))

	start := time.Now()
	dims, err := s.engine.Probe(ctx, data)
	s.metrics.RecordEngine("probe", time.Since(start))
	if err != nil {
		return nil, iiif.Dimensions{}, fmt.Errorf("probing source: %w", err)
	}
	if !dims.Valid() {
		return nil, iiif.Dimensions{}, fmt.Errorf("%w: source has no pixels", engine.ErrEngine)
	}

	return data, dims, nil
}
