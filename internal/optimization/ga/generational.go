package ga

import (
	"context"
	"math"

	"go.uber.org/zap"

	"github.com/copyleftdev/evogen/internal/optimization"
)

// Generational is an elitist genetic algorithm. It optionally hybridizes
// children with a local search and exchanges candidates with other islands
// through migration hooks.
type Generational[T optimization.Cloner[T]] struct {
	*engine[T]
}

// NewGenerational validates cfg and binds the engine to problem.
func NewGenerational[T optimization.Cloner[T]](problem optimization.Problem[T], cfg optimization.Config, opts Options[T]) (*Generational[T], error) {
	e, err := newEngine("ga", problem, cfg, opts)
	if err != nil {
		return nil, err
	}
	return &Generational[T]{engine: e}, nil
}

// ID returns the run identifier.
func (g *Generational[T]) ID() string {
	return g.opts.ID
}

// Optimize runs the generational loop.
func (g *Generational[T]) Optimize(ctx context.Context) (optimization.Result[T], error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	b, best, bestFit, err := g.initialize()
	if err != nil {
		return optimization.Result[T]{}, err
	}
	evals := g.cfg.PopulationSize

	if g.opts.Migrator != nil {
		g.migrate(ctx, b)
	}

	g.logger.Info("run started",
		zap.Int("population_size", g.cfg.PopulationSize),
		zap.Int("generations", g.cfg.Generations),
		zap.Float64("initial_best", bestFit))

	failures := 0
	gen := 0
	for ; gen < g.cfg.Generations && !g.problem.Terminate(best, bestFit); gen++ {
		if ctx.Err() != nil {
			return g.result(best, bestFit, gen, evals, true), nil
		}

		failures++
		for i := g.cfg.Elites; i < g.cfg.PopulationSize; i++ {
			if ctx.Err() != nil {
				return g.result(best, bestFit, gen, evals, true), nil
			}

			child, f, _, _, err := g.breed(ctx, b, b.next[i])
			if err != nil {
				return optimization.Result[T]{}, err
			}
			evals++

			b.next[i], b.nextFit[i] = child, f
			if f < bestFit {
				best, bestFit = child.Clone(), f
				failures = 0
			}
		}

		if g.opts.Immigrator != nil &&
			float64(failures)/float64(g.cfg.Generations) >= g.cfg.EpochTriggeringFailureRate {
			if g.immigrate(ctx, b, &best, &bestFit) {
				failures = 0
			}
		}

		g.writeElites(b, best, bestFit)
		b.swap()

		g.logger.Debug("generation completed",
			zap.Int("generation", gen),
			zap.Float64("best", bestFit))
		g.opts.Sink.Publish(optimization.FitnessRecord(g.opts.ID, g.opts.Group, bestFit))
		g.observe(gen, b, bestFit, 0, evals)
	}

	return g.result(best, bestFit, gen, evals, false), nil
}

// migrate hands a snapshot of the initial population to the migrator. The
// migrator never sees the live buffers.
func (g *Generational[T]) migrate(ctx context.Context, b *buffers[T]) {
	pop, fit := optimization.Snapshot(b.cur, b.curFit)
	go func() {
		if err := g.opts.Migrator.Migrate(ctx, g.opts.ID, pop, fit); err != nil && ctx.Err() == nil {
			g.logger.Warn("migration failed", zap.Error(err))
		}
	}()
}

// immigrate splices immigrants into random non-elite slots of the next
// buffer. It reports whether an immigrant improved the best known solution.
// Failures of the hook are logged and leave the buffer untouched.
func (g *Generational[T]) immigrate(ctx context.Context, b *buffers[T], best *T, bestFit *float64) bool {
	count := int(float64(g.cfg.PopulationSize) * g.cfg.ImmigrationRate)
	slots := g.cfg.PopulationSize - g.cfg.Elites
	if count <= 0 || slots <= 0 {
		return false
	}

	candidates, fitness, err := g.opts.Immigrator.Immigrate(ctx, g.opts.ID, count)
	if err != nil {
		g.logger.Warn("immigration failed", zap.Error(err), zap.Int("requested", count))
		return false
	}
	n := min(len(candidates), len(fitness))
	if n != count {
		g.logger.Warn("immigration returned unexpected count",
			zap.Int("requested", count),
			zap.Int("candidates", len(candidates)),
			zap.Int("fitness", len(fitness)))
	}

	improved := false
	for k := 0; k < n; k++ {
		if math.IsNaN(fitness[k]) {
			continue
		}
		idx := g.cfg.Elites + g.rng.IntN(slots)
		b.next[idx] = candidates[k].Clone()
		b.nextFit[idx] = fitness[k]
		if fitness[k] < *bestFit {
			*best, *bestFit = candidates[k].Clone(), fitness[k]
			improved = true
		}
	}

	g.logger.Debug("immigrants received", zap.Int("count", n))
	return improved
}
