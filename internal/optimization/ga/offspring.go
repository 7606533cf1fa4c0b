package ga

import (
	"context"
	"math"

	"go.uber.org/zap"

	"github.com/copyleftdev/evogen/internal/optimization"
)

// OffspringSelection is a genetic algorithm with strict offspring selection:
// a child enters the next generation only if it is strictly better than both
// of its parents. The number of evaluations per generation is capped by
// MaximumSelectionPressure.
type OffspringSelection[T optimization.Cloner[T]] struct {
	*engine[T]
	maxPressure float64
}

// NewOffspringSelection validates cfg and binds the engine to problem.
func NewOffspringSelection[T optimization.Cloner[T]](problem optimization.Problem[T], cfg optimization.Config, opts Options[T]) (*OffspringSelection[T], error) {
	e, err := newEngine("osga", problem, cfg, opts)
	if err != nil {
		return nil, err
	}

	maxPressure := cfg.MaximumSelectionPressure
	if maxPressure <= 0 {
		maxPressure = math.Inf(1)
	}
	return &OffspringSelection[T]{engine: e, maxPressure: maxPressure}, nil
}

// ID returns the run identifier.
func (o *OffspringSelection[T]) ID() string {
	return o.opts.ID
}

// accepts is the strict offspring selection criterion.
func accepts(child, f1, f2 float64) bool {
	return child < math.Min(f1, f2)
}

// Optimize runs the offspring selection loop.
func (o *OffspringSelection[T]) Optimize(ctx context.Context) (optimization.Result[T], error) {
	b, best, bestFit, err := o.initialize()
	if err != nil {
		return optimization.Result[T]{}, err
	}
	evals := o.cfg.PopulationSize

	o.logger.Info("run started",
		zap.Int("population_size", o.cfg.PopulationSize),
		zap.Int("generations", o.cfg.Generations),
		zap.Float64("max_selection_pressure", o.maxPressure),
		zap.Float64("initial_best", bestFit))

	// rejected children are bred into scratch so unfilled slots keep their
	// previous candidate and fitness
	scratch := b.next[0].Clone()

	pressure := 0.0
	gen := 0
	for ; gen < o.cfg.Generations && pressure < o.maxPressure && !o.problem.Terminate(best, bestFit); gen++ {
		if ctx.Err() != nil {
			return o.result(best, bestFit, gen, evals, true), nil
		}

		pressure = 0
		candidates := 0
		for i := o.cfg.Elites; i < o.cfg.PopulationSize && pressure < o.maxPressure; {
			if ctx.Err() != nil {
				return o.result(best, bestFit, gen, evals, true), nil
			}

			child, f, f1, f2, err := o.breed(ctx, b, scratch)
			if err != nil {
				return optimization.Result[T]{}, err
			}
			candidates++
			evals++

			if accepts(f, f1, f2) {
				if f < bestFit {
					best, bestFit = child.Clone(), f
				}
				b.next[i], scratch = child, b.next[i]
				b.nextFit[i] = f
				i++
			} else {
				scratch = child
			}

			pressure = float64(candidates) / float64(o.cfg.PopulationSize)
		}

		o.writeElites(b, best, bestFit)
		b.swap()

		o.logger.Debug("generation completed",
			zap.Int("generation", gen),
			zap.Float64("best", bestFit),
			zap.Float64("selection_pressure", pressure))
		o.opts.Sink.Publish(optimization.FitnessRecord(o.opts.ID, o.opts.Group, bestFit))
		o.opts.Sink.Publish(optimization.PressureRecord(o.opts.ID, o.opts.Group, pressure))
		o.observe(gen, b, bestFit, pressure, evals)
	}

	return o.result(best, bestFit, gen, evals, false), nil
}
