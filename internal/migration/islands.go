package migration

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/copyleftdev/evogen/internal/optimization"
)

// Options configures an Archipelago.
type Options struct {
	// ID identifies the archipelago run. Defaults to "islands".
	ID string

	// Group ties the islands together in monitoring. A random UUID is used
	// when empty.
	Group string

	// MaxConcurrent bounds the islands running at once; 0 runs all of them.
	MaxConcurrent int

	Logger *zap.Logger
}

// Archipelago runs several algorithms concurrently as one optimization.
// The islands usually share a Hub through their migration hooks.
type Archipelago[T any] struct {
	islands []optimization.Algorithm[T]
	opts    Options
	logger  *zap.Logger
}

// NewArchipelago validates the islands and options.
func NewArchipelago[T any](islands []optimization.Algorithm[T], opts Options) (*Archipelago[T], error) {
	if len(islands) == 0 {
		return nil, optimization.ConfigErrorf("at least one island is required").
			WithComponent("migration").WithOperation("new")
	}
	for i, isl := range islands {
		if isl == nil {
			return nil, optimization.ConfigErrorf("island %d is nil", i).
				WithComponent("migration").WithOperation("new")
		}
	}
	if opts.MaxConcurrent < 0 {
		return nil, optimization.ConfigErrorf("max concurrent islands must not be negative, got %d", opts.MaxConcurrent).
			WithComponent("migration").WithOperation("new")
	}

	if opts.ID == "" {
		opts.ID = "islands"
	}
	if opts.Group == "" {
		opts.Group = uuid.NewString()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Archipelago[T]{
		islands: islands,
		opts:    opts,
		logger: logger.With(
			zap.String("algorithm", "islands"),
			zap.String("run_id", opts.ID),
			zap.String("group", opts.Group)),
	}, nil
}

// ID returns the archipelago run identifier.
func (a *Archipelago[T]) ID() string {
	return a.opts.ID
}

// Group returns the group shared by the islands.
func (a *Archipelago[T]) Group() string {
	return a.opts.Group
}

// Optimize runs all islands and returns the best result. Generations is the
// largest island count, Evaluations the sum, and the result is cancelled if
// any island was.
func (a *Archipelago[T]) Optimize(ctx context.Context) (optimization.Result[T], error) {
	results, err := RunIslands(ctx, a.islands, a.opts.MaxConcurrent)
	if err != nil {
		return optimization.Result[T]{}, err
	}

	best := 0
	var merged optimization.Result[T]
	for i, r := range results {
		if r.Fitness < results[best].Fitness {
			best = i
		}
		merged.Generations = max(merged.Generations, r.Generations)
		merged.Evaluations += r.Evaluations
		merged.Cancelled = merged.Cancelled || r.Cancelled
	}
	merged.Best = results[best].Best
	merged.Fitness = results[best].Fitness

	a.logger.Info("islands finished",
		zap.Int("islands", len(results)),
		zap.String("best_island", a.islands[best].ID()),
		zap.Float64("best", merged.Fitness),
		zap.Int("evaluations", merged.Evaluations),
		zap.Bool("cancelled", merged.Cancelled))
	return merged, nil
}

type islandResult[T any] struct {
	index  int
	result optimization.Result[T]
}

// RunIslands runs the islands concurrently, at most maxConcurrent at a time
// when positive, and returns their results in island order. The first
// failing island cancels the others and its error is returned.
func RunIslands[T any](ctx context.Context, islands []optimization.Algorithm[T], maxConcurrent int) ([]optimization.Result[T], error) {
	p := pool.NewWithResults[islandResult[T]]().
		WithContext(ctx).
		WithCancelOnError().
		WithFirstError()
	if maxConcurrent > 0 {
		p = p.WithMaxGoroutines(maxConcurrent)
	}

	for i, isl := range islands {
		p.Go(func(ctx context.Context) (islandResult[T], error) {
			res, err := isl.Optimize(ctx)
			if err != nil {
				return islandResult[T]{}, fmt.Errorf("island %s: %w", isl.ID(), err)
			}
			return islandResult[T]{index: i, result: res}, nil
		})
	}

	collected, err := p.Wait()
	if err != nil {
		return nil, err
	}

	results := make([]optimization.Result[T], len(islands))
	for _, c := range collected {
		results[c.index] = c.result
	}
	return results, nil
}
