package pipeline

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"math"
	"time"

	"sigilum/internal/faults"
	"sigilum/internal/logging"
	"sigilum/internal/phase"
	"sigilum/internal/recipe"
	"sigilum/internal/stagecache"
)

// TraceStep records one executed step.
type TraceStep struct {
	Index    int           `json:"idx"`
	Phase    string        `json:"phase"`
	Params   recipe.Params `json:"params"`
	CacheKey string        `json:"cache_key"`
	CacheHit bool          `json:"cache_hit"`
	Ms       float64       `json:"ms"`
}

// Runner executes pipelines against a phase registry and an optional cache.
type Runner struct {
	phases *phase.Registry
	cache  *stagecache.Cache
	logger *slog.Logger
}

// NewRunner builds a runner. cache may be nil, in which case every step is
// computed.
func NewRunner(phases *phase.Registry, cache *stagecache.Cache, logger *slog.Logger) *Runner {
	return &Runner{
		phases: phases,
		cache:  cache,
		logger: logging.NewComponentLogger(logger, "pipeline"),
	}
}

// Run applies steps in order. With useCache set, a cached output replaces the
// phase invocation; otherwise the phase runs and its output is stored under
// the step's key either way.
func (r *Runner) Run(ctx context.Context, input *image.Gray, steps recipe.Definition, useCache bool) (*image.Gray, []TraceStep, error) {
	if input == nil {
		return nil, nil, faults.Configf("pipeline input image is nil")
	}
	logger := logging.WithContext(ctx, r.logger)
	logger.Debug("pipeline start", logging.Int("steps", len(steps)))

	out := input
	trace := make([]TraceStep, 0, len(steps))
	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			return nil, trace, err
		}
		idx := i + 1
		p, err := r.phases.Lookup(step.Phase)
		if err != nil {
			return nil, trace, err
		}
		params := step.Params
		if params == nil {
			params = recipe.Params{}
		}

		start := time.Now()
		key, err := stagecache.ComputeKey(p.Name(), params, out)
		if err != nil {
			return nil, trace, err
		}

		var (
			next *image.Gray
			hit  bool
		)
		apply := func() (*image.Gray, error) {
			img, err := p.Apply(out, params)
			if err != nil {
				return nil, faults.Wrap(faults.ErrComputation, "pipeline", fmt.Sprintf("step %d", idx), p.Name(), err)
			}
			if img == nil {
				return nil, faults.Wrap(faults.ErrComputation, "pipeline", fmt.Sprintf("step %d", idx), p.Name()+" returned no image", nil)
			}
			return img, nil
		}
		if useCache {
			next, hit, err = r.cache.Resolve(ctx, key, apply)
		} else {
			next, err = apply()
			if err == nil {
				err = r.cache.Put(ctx, key, next)
			}
		}
		if err != nil {
			return nil, trace, err
		}
		ms := roundMs(time.Since(start))
		if hit {
			logger.Debug("step cache hit", logging.Int("step", idx), logging.String("phase", p.Name()), logging.Float64("ms", ms))
		} else {
			logger.Debug("step done", logging.Int("step", idx), logging.String("phase", p.Name()), logging.Float64("ms", ms))
		}

		trace = append(trace, TraceStep{
			Index:    idx,
			Phase:    p.Name(),
			Params:   params,
			CacheKey: key.String(),
			CacheHit: hit,
			Ms:       ms,
		})
		out = next
	}
	logger.Debug("pipeline end")
	return out, trace, nil
}

func roundMs(d time.Duration) float64 {
	return math.Round(float64(d.Microseconds())/100) / 10
}
