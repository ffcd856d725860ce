package engine

import (
	"context"
	"fmt"

	"github.com/gammazero/workerpool"
	"go.uber.org/zap"

	"github.com/greut/aio-iiif/internal/iiif"
)

// Pool runs engine calls on a fixed set of workers so CPU-bound image work
// does not compete with the goroutines serving fetches.
type Pool struct {
	engine Engine
	wp     *workerpool.WorkerPool
	logger *zap.Logger
}

// NewPool starts a pool of the given number of workers.
func NewPool(e Engine, workers int, logger *zap.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{
		engine: e,
		wp:     workerpool.New(workers),
		logger: logger,
	}
}

// Engine returns the wrapped engine.
func (p *Pool) Engine() Engine {
	return p.engine
}

// Probe runs Engine.Probe on a worker.
func (p *Pool) Probe(ctx context.Context, data []byte) (iiif.Dimensions, error) {
	return run(ctx, p, func() (iiif.Dimensions, error) {
		return p.engine.Probe(data)
	})
}

// Apply runs Engine.Apply on a worker.
func (p *Pool) Apply(ctx context.Context, data []byte, plan *iiif.TransformPlan) ([]byte, error) {
	return run(ctx, p, func() ([]byte, error) {
		return p.engine.Apply(data, plan)
	})
}

// Waiting is the number of jobs queued behind busy workers.
func (p *Pool) Waiting() int {
	return p.wp.WaitingQueueSize()
}

// Stop waits for queued jobs and stops the workers.
func (p *Pool) Stop() {
	p.wp.StopWait()
}

type result[T any] struct {
	value T
	err   error
}

// run submits job and waits for it or for ctx. A job still queued when its
// context ends is skipped once a worker picks it up.
func run[T any](ctx context.Context, p *Pool, job func() (T, error)) (T, error) {
	done := make(chan result[T], 1)

	p.wp.Submit(func() {
		if err := ctx.Err(); err != nil {
			done <- result[T]{err: err}
			return
		}
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("engine panic", zap.String("engine", p.engine.Name()), zap.Any("recover", r))
				done <- result[T]{err: fmt.Errorf("%w: panic: %v", ErrEngine, r)}
			}
		}()
		v, err := job()
		done <- result[T]{value: v, err: err}
	})

	select {
	case r := <-done:
		return r.value, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
