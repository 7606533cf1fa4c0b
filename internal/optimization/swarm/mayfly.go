// Package swarm adapts swarm metaheuristics to optimization.Algorithm.
package swarm

import (
	"context"
	"math"
	"math/rand"
	"sync"

	"github.com/cwbudde/mayfly"
	"go.uber.org/zap"

	"github.com/copyleftdev/evogen/internal/optimization"
)

// Config contains the hyperparameters of the mayfly optimizer.
type Config struct {
	// Dimensions of the search space
	Dimensions int

	// Box bounds shared by every dimension
	Lower float64
	Upper float64

	// Iterations of the swarm; 0 only evaluates one created candidate
	Iterations int

	// Mayflies per sex
	PopulationSize int

	// Random seed for reproducibility, 0 draws a random seed
	Seed uint64
}

// Options holds the optional collaborators of the optimizer.
type Options struct {
	ID     string
	Group  string
	Logger *zap.Logger
	Sink   optimization.Sink
}

// Mayfly runs the mayfly algorithm over a real-valued problem. The problem
// supplies the objective and the termination test; its variation operators
// are not used.
//
// The swarm cannot be interrupted, so after cancellation or termination the
// remaining evaluations are skipped and reported as +Inf to the swarm.
type Mayfly struct {
	problem optimization.Problem[optimization.Vector]
	cfg     Config
	opts    Options
	logger  *zap.Logger
}

// NewMayfly validates cfg and binds the optimizer to problem.
func NewMayfly(problem optimization.Problem[optimization.Vector], cfg Config, opts Options) (*Mayfly, error) {
	fail := func(format string, args ...interface{}) (*Mayfly, error) {
		return nil, optimization.ConfigErrorf(format, args...).WithComponent("mayfly").WithOperation("new")
	}
	switch {
	case problem == nil:
		return fail("problem is required")
	case cfg.Dimensions < 1:
		return fail("dimensions must be positive, got %d", cfg.Dimensions)
	case !(cfg.Lower < cfg.Upper):
		return fail("lower bound %g must be below upper bound %g", cfg.Lower, cfg.Upper)
	case cfg.Iterations < 0:
		return fail("iterations must not be negative, got %d", cfg.Iterations)
	case cfg.PopulationSize < 1:
		return fail("population size must be positive, got %d", cfg.PopulationSize)
	}

	if opts.ID == "" {
		opts.ID = "mayfly"
	}
	if opts.Sink == nil {
		opts.Sink = optimization.NopSink{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Mayfly{
		problem: problem,
		cfg:     cfg,
		opts:    opts,
		logger: logger.With(
			zap.String("algorithm", "mayfly"),
			zap.String("run_id", opts.ID)),
	}, nil
}

// ID returns the run identifier.
func (m *Mayfly) ID() string {
	return m.opts.ID
}

// Optimize runs the swarm. Generations counts batches of PopulationSize
// evaluations; one fitness record is published per batch.
func (m *Mayfly) Optimize(ctx context.Context) (optimization.Result[optimization.Vector], error) {
	t := &tracker{
		ctx:     ctx,
		problem: m.problem,
		opts:    m.opts,
		dims:    m.cfg.Dimensions,
		batch:   m.cfg.PopulationSize,
		fitness: math.Inf(1),
	}

	if m.cfg.Iterations == 0 || ctx.Err() != nil {
		t.mu.Lock()
		t.observe(m.problem.Create())
		t.cancelled = ctx.Err() != nil
		t.mu.Unlock()
		return t.result()
	}

	config := mayfly.NewDefaultConfig()
	config.ObjectiveFunc = t.evaluate
	config.ProblemSize = m.cfg.Dimensions
	config.MaxIterations = m.cfg.Iterations
	config.NPop = m.cfg.PopulationSize
	config.LowerBound = m.cfg.Lower
	config.UpperBound = m.cfg.Upper
	config.Rand = rand.New(rand.NewSource(seed(m.cfg.Seed)))

	res, err := mayfly.Optimize(config)
	if err != nil {
		return optimization.Result[optimization.Vector]{}, optimization.WrapError(err, "swarm failed").
			WithComponent("mayfly").WithOperation("optimize")
	}

	t.mu.Lock()
	// the swarm's best is one of the evaluated points unless it skipped some
	if t.best == nil && res.GlobalBest.Position != nil {
		t.best = optimization.Vector(res.GlobalBest.Position).Clone()
		t.fitness = res.GlobalBest.Cost
	}
	t.mu.Unlock()

	out, err := t.result()
	if err == nil {
		m.logger.Debug("run finished",
			zap.Int("generations", out.Generations),
			zap.Int("evaluations", out.Evaluations),
			zap.Float64("best", out.Fitness),
			zap.Bool("cancelled", out.Cancelled))
	}
	return out, err
}

func seed(s uint64) int64 {
	if s == 0 {
		return rand.Int63()
	}
	return int64(s & math.MaxInt64)
}

// tracker wraps the objective handed to the swarm. It keeps the best point
// evaluated so far and stops evaluating once the run is over.
type tracker struct {
	ctx     context.Context
	problem optimization.Problem[optimization.Vector]
	opts    Options
	dims    int
	batch   int

	mu          sync.Mutex
	best        optimization.Vector
	fitness     float64
	evaluations int
	batches     int
	cancelled   bool
	terminated  bool
	err         error
}

func (t *tracker) evaluate(x []float64) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.err != nil || t.terminated || t.cancelled {
		return math.Inf(1)
	}
	if t.ctx.Err() != nil {
		t.cancelled = true
		return math.Inf(1)
	}
	return t.observe(x)
}

// observe evaluates x and records it. t.mu must be held.
func (t *tracker) observe(x []float64) float64 {
	if len(x) != t.dims {
		t.err = optimization.ContractErrorf("swarm produced %d dimensions, want %d", len(x), t.dims).
			WithComponent("mayfly").WithOperation("evaluate")
		return math.Inf(1)
	}

	f := t.problem.Evaluate(optimization.Vector(x))
	if math.IsNaN(f) {
		t.err = optimization.ContractErrorf("Evaluate returned NaN").
			WithComponent("mayfly").WithOperation("evaluate")
		return math.Inf(1)
	}
	t.evaluations++

	if f < t.fitness {
		t.best = optimization.Vector(x).Clone()
		t.fitness = f
		t.terminated = t.problem.Terminate(t.best, f)
	}
	if t.evaluations%t.batch == 0 {
		t.batches++
		t.opts.Sink.Publish(optimization.FitnessRecord(t.opts.ID, t.opts.Group, t.fitness))
	}
	return f
}

func (t *tracker) result() (optimization.Result[optimization.Vector], error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.err != nil {
		return optimization.Result[optimization.Vector]{}, t.err
	}
	return optimization.Result[optimization.Vector]{
		Best:        t.best,
		Fitness:     t.fitness,
		Generations: t.batches,
		Evaluations: t.evaluations,
		Cancelled:   t.cancelled,
	}, nil
}
