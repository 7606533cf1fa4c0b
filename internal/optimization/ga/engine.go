// Package ga implements elitist genetic algorithms over any cloneable
// candidate type: a generational GA with optional local search and island
// migration, and an offspring selection variant.
package ga

import (
	"context"
	"math"
	"math/rand/v2"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/copyleftdev/evogen/internal/optimization"
)

// Options holds the optional collaborators of an engine.
type Options[T any] struct {
	// ID identifies the run towards migration hooks and monitoring.
	ID string

	// Group ties together runs that belong to one experiment.
	Group string

	Logger *zap.Logger

	// Sink receives one record per generation. It must not block.
	Sink optimization.Sink

	// LocalSearch is applied to children with probability LocalSearchRate.
	LocalSearch optimization.LocalSearch[T]

	// Immigrator and Migrator are the island model hooks. The offspring
	// selection engine ignores both.
	Immigrator optimization.Immigrator[T]
	Migrator   optimization.Migrator[T]

	// Observer is called synchronously at every generation boundary.
	Observer func(GenerationStats)
}

// GenerationStats describes the population at a generation boundary.
type GenerationStats struct {
	Generation        int
	Best              float64
	Fitness           []float64
	Mean              float64
	StdDev            float64
	SelectionPressure float64
	Evaluations       int
}

// engine holds what both GA variants share.
type engine[T optimization.Cloner[T]] struct {
	component string
	problem   optimization.Problem[T]
	cfg       optimization.Config
	opts      Options[T]
	rng       *rand.Rand
	logger    *zap.Logger
}

func newEngine[T optimization.Cloner[T]](component string, problem optimization.Problem[T], cfg optimization.Config, opts Options[T]) (*engine[T], error) {
	if err := cfg.Validate(); err != nil {
		return nil, withContext(err, component, "new")
	}
	if problem == nil {
		return nil, optimization.ConfigErrorf("problem is required").
			WithComponent(component).WithOperation("new")
	}
	if opts.ID == "" {
		opts.ID = component
	}
	if opts.Sink == nil {
		opts.Sink = optimization.NopSink{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &engine[T]{
		component: component,
		problem:   problem,
		cfg:       cfg,
		opts:      opts,
		rng:       optimization.NewRand(cfg.Seed),
		logger:    logger.With(zap.String("algorithm", component), zap.String("run_id", opts.ID)),
	}, nil
}

// buffers is the double buffered population. Roles are swapped by reference.
type buffers[T any] struct {
	cur, next       []T
	curFit, nextFit []float64
}

func (b *buffers[T]) swap() {
	b.cur, b.next = b.next, b.cur
	b.curFit, b.nextFit = b.nextFit, b.curFit
}

// initialize creates and evaluates the first population, seeds the next
// buffer with clones and returns the best initial candidate.
func (e *engine[T]) initialize() (*buffers[T], T, float64, error) {
	var zero T
	n := e.cfg.PopulationSize

	b := &buffers[T]{
		cur:     make([]T, n),
		next:    make([]T, n),
		curFit:  make([]float64, n),
		nextFit: make([]float64, n),
	}
	for i := range b.cur {
		b.cur[i] = e.problem.Create()
		f, err := e.evaluate(b.cur[i], "initialize")
		if err != nil {
			return nil, zero, 0, err
		}
		b.curFit[i] = f
	}
	for i := range b.cur {
		b.next[i] = b.cur[i].Clone()
	}
	copy(b.nextFit, b.curFit)

	idx := floats.MinIdx(b.curFit)
	best := b.cur[idx].Clone()
	bestFit := b.curFit[idx]
	e.writeElites(b, best, bestFit)

	return b, best, bestFit, nil
}

// writeElites stores the best known solution in the elite slots of the next
// buffer.
func (e *engine[T]) writeElites(b *buffers[T], best T, bestFit float64) {
	for i := 0; i < e.cfg.Elites; i++ {
		b.next[i] = best.Clone()
		b.nextFit[i] = bestFit
	}
}

// breed selects two parents from the current buffer, crosses them into out,
// optionally mutates and locally improves the child and evaluates it. The
// returned child is out unless local search replaced it.
func (e *engine[T]) breed(ctx context.Context, b *buffers[T], out T) (child T, f, f1, f2 float64, err error) {
	p1, err := e.selectParent(b.curFit)
	if err != nil {
		return child, 0, 0, 0, err
	}
	p2, err := e.selectParent(b.curFit)
	if err != nil {
		return child, 0, 0, 0, err
	}

	size, sized := sizeOf(out)
	e.problem.Crossover(b.cur[p1], b.cur[p2], out)
	if n, _ := sizeOf(out); sized && n != size {
		return child, 0, 0, 0, optimization.ContractErrorf("crossover resized candidate from %d to %d", size, n).
			WithComponent(e.component).WithOperation("crossover")
	}

	if e.rng.Float64() < e.cfg.MutationRate {
		e.problem.Mutate(out)
	}

	f, err = e.evaluate(out, "evaluate")
	if err != nil {
		return child, 0, 0, 0, err
	}
	child = out

	// Lamarckian: an improving local search result replaces the genotype.
	if e.opts.LocalSearch != nil && e.rng.Float64() < e.cfg.LocalSearchRate {
		improved, lf := e.opts.LocalSearch(ctx, child)
		if lf < f {
			child, f = improved, lf
		}
	}

	return child, f, b.curFit[p1], b.curFit[p2], nil
}

func (e *engine[T]) selectParent(fitness []float64) (int, error) {
	idx := e.problem.Select(fitness)
	if idx < 0 || idx >= len(fitness) {
		return 0, optimization.ContractErrorf("selector returned index %d for population of %d", idx, len(fitness)).
			WithComponent(e.component).WithOperation("select")
	}
	return idx, nil
}

func (e *engine[T]) evaluate(c T, op string) (float64, error) {
	f := e.problem.Evaluate(c)
	if math.IsNaN(f) {
		return 0, optimization.ContractErrorf("evaluator returned NaN").
			WithComponent(e.component).WithOperation(op)
	}
	return f, nil
}

func (e *engine[T]) observe(gen int, b *buffers[T], bestFit, pressure float64, evals int) {
	if e.opts.Observer == nil {
		return
	}
	fit := append([]float64(nil), b.curFit...)
	mean, std := stat.MeanStdDev(fit, nil)
	e.opts.Observer(GenerationStats{
		Generation:        gen,
		Best:              bestFit,
		Fitness:           fit,
		Mean:              mean,
		StdDev:            std,
		SelectionPressure: pressure,
		Evaluations:       evals,
	})
}

func (e *engine[T]) result(best T, bestFit float64, gens, evals int, cancelled bool) optimization.Result[T] {
	if cancelled {
		e.logger.Info("run cancelled",
			zap.Int("generations", gens),
			zap.Float64("best", bestFit))
	} else {
		e.logger.Info("run finished",
			zap.Int("generations", gens),
			zap.Int("evaluations", evals),
			zap.Float64("best", bestFit))
	}
	return optimization.Result[T]{
		Best:        best,
		Fitness:     bestFit,
		Generations: gens,
		Evaluations: evals,
		Cancelled:   cancelled,
	}
}

func sizeOf(c any) (int, bool) {
	if s, ok := c.(optimization.Sizer); ok {
		return s.Len(), true
	}
	return 0, false
}

func withContext(err error, component, op string) error {
	if e, ok := optimization.IsOptimizationError(err); ok {
		return e.WithComponent(component).WithOperation(op)
	}
	return err
}
