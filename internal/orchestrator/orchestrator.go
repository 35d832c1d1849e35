// Package orchestrator starts a set of engines concurrently and reports the
// outcome for each of them.
package orchestrator

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"
)

// Engine is anything that can be warmed up ahead of its first request.
type Engine interface {
	Name() string
	EnsureWarm(ctx context.Context) error
	IsWarm() bool
}

type OrchestratorConfig struct {
	// Timeout bounds each engine's warm-up. Zero means no bound.
	Timeout time.Duration
}

type WarmResult struct {
	Engine  string        `json:"engine"`
	Latency time.Duration `json:"latency"`
	Error   string        `json:"error,omitempty"`
}

type OrchestratorResult struct {
	Results   []WarmResult
	Errors    []error
	Succeeded int
	Failed    int
}

// Err joins every warm-up failure, or returns nil if all engines started.
func (r *OrchestratorResult) Err() error {
	return errors.Join(r.Errors...)
}

type Orchestrator struct {
	engines []Engine
	config  OrchestratorConfig
}

func New(engines []Engine, config OrchestratorConfig) *Orchestrator {
	return &Orchestrator{
		engines: engines,
		config:  config,
	}
}

// Warm starts every engine in parallel. One engine failing does not stop the
// others; results are reported in engine order.
func (o *Orchestrator) Warm(ctx context.Context) *OrchestratorResult {
	results := make([]WarmResult, len(o.engines))
	errs := make([]error, len(o.engines))

	var g errgroup.Group
	for i, eng := range o.engines {
		g.Go(func() error {
			engineCtx := ctx
			if o.config.Timeout > 0 {
				var cancel context.CancelFunc
				engineCtx, cancel = context.WithTimeout(ctx, o.config.Timeout)
				defer cancel()
			}

			start := time.Now()
			err := eng.EnsureWarm(engineCtx)
			results[i] = WarmResult{Engine: eng.Name(), Latency: time.Since(start)}
			if err != nil {
				results[i].Error = err.Error()
				errs[i] = err
			}
			return nil
		})
	}
	_ = g.Wait()

	result := &OrchestratorResult{Results: results}
	for _, err := range errs {
		if err != nil {
			result.Errors = append(result.Errors, err)
			result.Failed++
		} else {
			result.Succeeded++
		}
	}
	return result
}

// AllWarm reports whether every engine currently has a live process.
func (o *Orchestrator) AllWarm() bool {
	for _, eng := range o.engines {
		if !eng.IsWarm() {
			return false
		}
	}
	return true
}
