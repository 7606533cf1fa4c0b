package es

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"github.com/copyleftdev/evogen/internal/optimization"
	"github.com/copyleftdev/evogen/internal/optimization/problems"
)

// funcProblem is a deterministic vector problem driven by an objective.
type funcProblem struct {
	objective func(optimization.Vector) float64
	target    float64
}

func (p funcProblem) Create() optimization.Vector { return optimization.Vector{1, 1, 1} }
func (p funcProblem) Evaluate(v optimization.Vector) float64 { return p.objective(v) }
func (p funcProblem) Select([]float64) int { return 0 }
func (p funcProblem) Crossover(p1, _, out optimization.Vector) { copy(out, p1) }
func (p funcProblem) Mutate(optimization.Vector) {}
func (p funcProblem) Terminate(_ optimization.Vector, f float64) bool { return f <= p.target }

func sphere() funcProblem {
	return funcProblem{objective: func(v optimization.Vector) float64 { return problems.Sphere(v) }, target: math.Inf(-1)}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		problem optimization.Problem[optimization.Vector]
		config  Config
		wantErr bool
	}{
		{"valid", sphere(), Config{Generations: 10}, false},
		{"nil problem", nil, Config{Generations: 10}, true},
		{"negative generations", sphere(), Config{Generations: -1}, true},
		{"unknown strategy", sphere(), Config{Strategy: Strategy(7)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := New(tt.problem, tt.config, Options{})
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, optimization.ErrConfiguration))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "es", e.ID())
		})
	}
}

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		in      string
		want    Strategy
		wantErr bool
	}{
		{"probe", Probe, false},
		{"one-hot", Probe, false},
		{"Incremental", Incremental, false},
		{"", Incremental, false},
		{"reset", Reset, false},
		{"annealing", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseStrategy(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, mustParse(t, got.String()))
		})
	}
}

func mustParse(t *testing.T, name string) Strategy {
	t.Helper()
	s, err := ParseStrategy(name)
	require.NoError(t, err)
	return s
}

func TestProbe_FirstGeneration(t *testing.T) {
	var steps []Step
	e, err := New(sphere(), Config{Generations: 1, Strategy: Probe, Initial: optimization.Vector{1, 1}}, Options{
		Observer: func(s Step) { steps = append(steps, s) },
	})
	require.NoError(t, err)

	res, err := e.Optimize(context.Background())
	require.NoError(t, err)

	require.Len(t, steps, 1)
	assert.InDeltaSlice(t, []float64{0.15, 0.15}, steps[0].Rates, 1e-12)
	assert.InDeltaSlice(t, []float64{0.1, 0.1}, []float64(res.Best), 1e-12)
	assert.InDelta(t, 0.02, res.Fitness, 1e-12)
	// initial, one probe per dimension, combined
	assert.Equal(t, 4, res.Evaluations)
}

func TestProbe_ShrinksOnFailure(t *testing.T) {
	// shrinking a positive vector only makes this objective worse
	worse := funcProblem{objective: func(v optimization.Vector) float64 { return -floats.Sum(v) }}

	e, err := New(worse, Config{Generations: 2, Strategy: Probe, Initial: optimization.Vector{1, 2}}, Options{})
	require.NoError(t, err)

	var last Step
	e.opts.Observer = func(s Step) { last = s }

	res, err := e.Optimize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, optimization.Vector{1, 2}, res.Best)
	assert.Equal(t, -3.0, res.Fitness)
	want := 0.1 * math.Pow(1.5, -0.5)
	assert.InDeltaSlice(t, []float64{want, want}, last.Rates, 1e-12)
}

func TestProbe_StopsAtZeroFitness(t *testing.T) {
	e, err := New(sphere(), Config{Generations: 100, Strategy: Probe, Initial: optimization.Vector{0, 0}}, Options{})
	require.NoError(t, err)

	res, err := e.Optimize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Generations)
	assert.Equal(t, 0.0, res.Fitness)
}

func TestIncremental_Deterministic(t *testing.T) {
	run := func() []Step {
		var steps []Step
		e, err := New(sphere(), Config{
			Generations: 25,
			Strategy:    Incremental,
			Initial:     optimization.Vector{3, -1, 4, -1, 5},
			Seed:        2024,
		}, Options{Observer: func(s Step) { steps = append(steps, s) }})
		require.NoError(t, err)

		_, err = e.Optimize(context.Background())
		require.NoError(t, err)
		return steps
	}

	first, second := run(), run()
	require.Len(t, first, 25)
	assert.Equal(t, first, second)
}

func TestIncremental_Improves(t *testing.T) {
	initial := optimization.Vector{3, -1, 4, -1, 5}
	e, err := New(sphere(), Config{Generations: 10, Strategy: Incremental, Initial: initial, Seed: 1}, Options{})
	require.NoError(t, err)

	prev := math.Inf(1)
	e.opts.Observer = func(s Step) {
		assert.LessOrEqual(t, s.Fitness, prev)
		prev = s.Fitness
	}

	res, err := e.Optimize(context.Background())
	require.NoError(t, err)
	assert.Less(t, res.Fitness, problems.Sphere(initial))
	assert.Equal(t, problems.Sphere(res.Best), res.Fitness)
	// the configured initial candidate is left untouched
	assert.Equal(t, optimization.Vector{3, -1, 4, -1, 5}, initial)
}

func TestReset_GatedByTerminator(t *testing.T) {
	tests := []struct {
		name     string
		initial  optimization.Vector
		target   float64
		wantGens int
	}{
		{"terminator satisfied at start", optimization.Vector{1, 1}, 5, 0},
		{"zero fitness keeps running", optimization.Vector{0, 0}, math.Inf(-1), 12},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := sphere()
			p.target = tt.target
			e, err := New(p, Config{Generations: 12, Strategy: Reset, Initial: tt.initial, Seed: 9}, Options{})
			require.NoError(t, err)

			res, err := e.Optimize(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.wantGens, res.Generations)
		})
	}
}

func TestReset_AcceptsOnlyImprovements(t *testing.T) {
	initial := optimization.Vector{2, -3, 1}
	e, err := New(sphere(), Config{Generations: 200, Strategy: Reset, Initial: initial, Seed: 11}, Options{})
	require.NoError(t, err)

	prev := problems.Sphere(initial)
	e.opts.Observer = func(s Step) {
		assert.LessOrEqual(t, s.Fitness, prev)
		prev = s.Fitness
	}

	res, err := e.Optimize(context.Background())
	require.NoError(t, err)
	assert.Less(t, res.Fitness, problems.Sphere(initial))
}

func TestOptimize_Cancelled(t *testing.T) {
	for _, s := range []Strategy{Probe, Incremental, Reset} {
		t.Run(s.String(), func(t *testing.T) {
			e, err := New(sphere(), Config{Generations: 10, Strategy: s, Initial: optimization.Vector{1, 2}}, Options{})
			require.NoError(t, err)

			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			res, err := e.Optimize(ctx)
			require.NoError(t, err)
			assert.True(t, res.Cancelled)
			assert.Equal(t, 5.0, res.Fitness)
		})
	}
}

func TestOptimize_NaNIsContractViolation(t *testing.T) {
	p := funcProblem{objective: func(optimization.Vector) float64 { return math.NaN() }}
	e, err := New(p, Config{Generations: 3}, Options{})
	require.NoError(t, err)

	_, err = e.Optimize(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, optimization.ErrContractViolation))
}

func TestLocalSearch(t *testing.T) {
	e, err := New(sphere(), Config{Generations: 5, Strategy: Probe, Seed: 3}, Options{})
	require.NoError(t, err)

	input := optimization.Vector{2, 2}
	improved, f := e.LocalSearch()(context.Background(), input)
	assert.Less(t, f, problems.Sphere(input))
	assert.Equal(t, problems.Sphere(improved), f)
	assert.Equal(t, optimization.Vector{2, 2}, input)
}
