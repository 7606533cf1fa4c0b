// Package es implements a (1+1) evolution strategy over real vectors with
// self-adaptive, per-dimension multiplicative mutation.
package es

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/copyleftdev/evogen/internal/optimization"
)

const (
	// initialRate is the starting mutation rate of every dimension.
	initialRate = 0.1
	// growth is applied to a rate after a successful mutation.
	growth = 1.5
)

// shrink is applied to a rate after a failed mutation: 1.5^(-1/4).
var shrink = math.Pow(growth, -0.25)

// Strategy selects how mutation rates adapt.
type Strategy int

const (
	// Probe mutates each dimension of the unperturbed candidate separately and
	// combines the improving dimensions into one trial per generation.
	Probe Strategy = iota
	// Incremental greedily accepts improving single-dimension mutations in a
	// shuffled dimension order.
	Incremental
	// Reset mutates the whole vector with normally distributed rates and
	// redraws all rates after a failure.
	Reset
)

func (s Strategy) String() string {
	switch s {
	case Probe:
		return "probe"
	case Incremental:
		return "incremental"
	case Reset:
		return "reset"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// ParseStrategy converts a strategy name.
func ParseStrategy(name string) (Strategy, error) {
	switch strings.ToLower(name) {
	case "probe", "one-hot":
		return Probe, nil
	case "incremental", "":
		return Incremental, nil
	case "reset", "adaptive":
		return Reset, nil
	default:
		return 0, optimization.ConfigErrorf("unknown strategy %q", name).WithComponent("es")
	}
}

// Config contains the hyperparameters of the strategy.
type Config struct {
	// Maximum number of generations
	Generations int

	// Mutation rate adaptation policy
	Strategy Strategy

	// Starting candidate; nil creates one from the problem
	Initial optimization.Vector

	// Random seed for reproducibility, 0 draws a random seed
	Seed uint64
}

// Options holds the optional collaborators of the strategy.
type Options struct {
	ID     string
	Group  string
	Logger *zap.Logger
	Sink   optimization.Sink

	// Observer is called synchronously after every generation.
	Observer func(Step)
}

// Step describes the state after one generation.
type Step struct {
	Generation int
	Candidate  optimization.Vector
	Fitness    float64
	Rates      []float64
}

// ES is a (1+1) evolution strategy. An ES is not safe for concurrent use.
type ES struct {
	problem optimization.Problem[optimization.Vector]
	cfg     Config
	opts    Options
	rng     *rand.Rand
	logger  *zap.Logger

	evaluations int
}

// New validates cfg and binds the strategy to problem.
func New(problem optimization.Problem[optimization.Vector], cfg Config, opts Options) (*ES, error) {
	switch {
	case problem == nil:
		return nil, optimization.ConfigErrorf("problem is required").WithComponent("es").WithOperation("new")
	case cfg.Generations < 0:
		return nil, optimization.ConfigErrorf("generations must not be negative, got %d", cfg.Generations).
			WithComponent("es").WithOperation("new")
	case cfg.Strategy < Probe || cfg.Strategy > Reset:
		return nil, optimization.ConfigErrorf("unknown strategy %v", cfg.Strategy).
			WithComponent("es").WithOperation("new")
	}

	if opts.ID == "" {
		opts.ID = "es"
	}
	if opts.Sink == nil {
		opts.Sink = optimization.NopSink{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ES{
		problem: problem,
		cfg:     cfg,
		opts:    opts,
		rng:     optimization.NewRand(cfg.Seed),
		logger: logger.With(
			zap.String("algorithm", "es"),
			zap.String("run_id", opts.ID),
			zap.Stringer("strategy", cfg.Strategy)),
	}, nil
}

// ID returns the run identifier.
func (e *ES) ID() string {
	return e.opts.ID
}

// Optimize evolves the configured initial candidate, or a created one.
func (e *ES) Optimize(ctx context.Context) (optimization.Result[optimization.Vector], error) {
	var candidate optimization.Vector
	if e.cfg.Initial != nil {
		candidate = e.cfg.Initial.Clone()
	} else {
		candidate = e.problem.Create()
	}
	return e.run(ctx, candidate)
}

// LocalSearch exposes the strategy as a local search for hybrid algorithms.
// The returned function evolves a copy of its argument for the configured
// number of generations. A failed run reports +Inf so it is never accepted.
func (e *ES) LocalSearch() optimization.LocalSearch[optimization.Vector] {
	return func(ctx context.Context, candidate optimization.Vector) (optimization.Vector, float64) {
		res, err := e.run(ctx, candidate.Clone())
		if err != nil {
			e.logger.Warn("local search failed", zap.Error(err))
			return candidate, math.Inf(1)
		}
		return res.Best, res.Fitness
	}
}

func (e *ES) run(ctx context.Context, candidate optimization.Vector) (optimization.Result[optimization.Vector], error) {
	e.evaluations = 0

	var (
		res optimization.Result[optimization.Vector]
		err error
	)
	switch e.cfg.Strategy {
	case Probe:
		res, err = e.probe(ctx, candidate)
	case Incremental:
		res, err = e.incremental(ctx, candidate)
	case Reset:
		res, err = e.reset(ctx, candidate)
	}
	if err != nil {
		return optimization.Result[optimization.Vector]{}, err
	}

	res.Evaluations = e.evaluations
	e.logger.Debug("run finished",
		zap.Int("generations", res.Generations),
		zap.Int("evaluations", res.Evaluations),
		zap.Float64("best", res.Fitness),
		zap.Bool("cancelled", res.Cancelled))
	return res, nil
}

// probe implements the Probe strategy.
func (e *ES) probe(ctx context.Context, candidate optimization.Vector) (optimization.Result[optimization.Vector], error) {
	fit, err := e.evaluate(candidate)
	if err != nil {
		return optimization.Result[optimization.Vector]{}, err
	}
	rates := uniformRates(len(candidate))

	g := 0
	for ; g < e.cfg.Generations && fit != 0; g++ {
		if ctx.Err() != nil {
			return done(candidate, fit, g, true), nil
		}

		combined := candidate.Clone()
		trial := candidate.Clone()
		for i := range trial {
			trial[i] *= rates[i]
			ft, err := e.evaluate(trial)
			if err != nil {
				return optimization.Result[optimization.Vector]{}, err
			}
			if ft < fit {
				combined[i] = trial[i]
				rates[i] *= growth
			} else {
				rates[i] *= shrink
			}
			trial[i] = candidate[i]
		}

		fc, err := e.evaluate(combined)
		if err != nil {
			return optimization.Result[optimization.Vector]{}, err
		}
		if fc < fit {
			candidate, fit = combined, fc
		}
		e.step(g, candidate, fit, rates)
	}

	return done(candidate, fit, g, false), nil
}

// incremental implements the Incremental strategy.
func (e *ES) incremental(ctx context.Context, candidate optimization.Vector) (optimization.Result[optimization.Vector], error) {
	fit, err := e.evaluate(candidate)
	if err != nil {
		return optimization.Result[optimization.Vector]{}, err
	}
	rates := uniformRates(len(candidate))
	order := make([]int, len(candidate))
	for i := range order {
		order[i] = i
	}

	g := 0
	for ; g < e.cfg.Generations && fit != 0; g++ {
		if ctx.Err() != nil {
			return done(candidate, fit, g, true), nil
		}

		e.rng.Shuffle(len(order), func(i, j int) {
			order[i], order[j] = order[j], order[i]
		})
		for _, idx := range order {
			old := candidate[idx]
			candidate[idx] *= rates[idx]
			ft, err := e.evaluate(candidate)
			if err != nil {
				return optimization.Result[optimization.Vector]{}, err
			}
			if ft < fit {
				fit = ft
				rates[idx] *= growth
			} else {
				candidate[idx] = old
				rates[idx] *= shrink
			}
		}
		e.step(g, candidate, fit, rates)
	}

	final, err := e.evaluate(candidate)
	if err != nil {
		return optimization.Result[optimization.Vector]{}, err
	}
	if final != fit {
		e.logger.Warn("running fitness differs from re-evaluation",
			zap.Float64("running", fit),
			zap.Float64("evaluated", final))
		fit = final
	}

	return done(candidate, fit, g, false), nil
}

// reset implements the Reset strategy. Unlike the other strategies it stops
// on the problem terminator instead of on zero fitness.
func (e *ES) reset(ctx context.Context, candidate optimization.Vector) (optimization.Result[optimization.Vector], error) {
	fit, err := e.evaluate(candidate)
	if err != nil {
		return optimization.Result[optimization.Vector]{}, err
	}

	normal := distuv.Normal{Mu: 0, Sigma: 1, Src: e.rng}
	rates := make([]float64, len(candidate))
	redraw := func() {
		for i := range rates {
			rates[i] = normal.Rand()
		}
	}
	redraw()

	g := 0
	for ; g < e.cfg.Generations && !e.problem.Terminate(candidate, fit); g++ {
		if ctx.Err() != nil {
			return done(candidate, fit, g, true), nil
		}

		trial := candidate.Clone()
		for i := range trial {
			trial[i] *= rates[i]
		}
		ft, err := e.evaluate(trial)
		if err != nil {
			return optimization.Result[optimization.Vector]{}, err
		}
		if ft < fit {
			candidate, fit = trial, ft
			for i := range rates {
				rates[i] *= growth
			}
		} else {
			redraw()
		}
		e.step(g, candidate, fit, rates)
	}

	return done(candidate, fit, g, false), nil
}

func (e *ES) evaluate(v optimization.Vector) (float64, error) {
	e.evaluations++
	f := e.problem.Evaluate(v)
	if math.IsNaN(f) {
		return 0, optimization.ContractErrorf("evaluator returned NaN").
			WithComponent("es").WithOperation("evaluate")
	}
	return f, nil
}

func (e *ES) step(g int, candidate optimization.Vector, fit float64, rates []float64) {
	e.opts.Sink.Publish(optimization.FitnessRecord(e.opts.ID, e.opts.Group, fit))
	if e.opts.Observer != nil {
		e.opts.Observer(Step{
			Generation: g,
			Candidate:  candidate.Clone(),
			Fitness:    fit,
			Rates:      append([]float64(nil), rates...),
		})
	}
}

func uniformRates(n int) []float64 {
	rates := make([]float64, n)
	for i := range rates {
		rates[i] = initialRate
	}
	return rates
}

func done(candidate optimization.Vector, fit float64, gens int, cancelled bool) optimization.Result[optimization.Vector] {
	return optimization.Result[optimization.Vector]{
		Best:        candidate,
		Fitness:     fit,
		Generations: gens,
		Cancelled:   cancelled,
	}
}
