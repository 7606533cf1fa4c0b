package problems

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/evogen/internal/optimization"
)

func TestObjectives(t *testing.T) {
	tests := []struct {
		name string
		fn   func([]float64) float64
		x    []float64
		want float64
	}{
		{"sphere optimum", Sphere, []float64{0, 0, 0}, 0},
		{"sphere", Sphere, []float64{1, 2, 3}, 14},
		{"rastrigin optimum", Rastrigin, []float64{0, 0}, 0},
		{"rastrigin integer point", Rastrigin, []float64{1, 1}, 2},
		{"ackley optimum", Ackley, []float64{0, 0, 0, 0}, 0},
		{"ackley empty", Ackley, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, tt.fn(tt.x), 1e-9)
		})
	}

	assert.Greater(t, Ackley([]float64{1, 1}), 0.0)
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		problem string
		dims    int
		wantErr bool
	}{
		{"rastrigin", "rastrigin", 10, false},
		{"case insensitive", "Ackley", 2, false},
		{"unknown", "rosenbrock", 2, true},
		{"no dimensions", "sphere", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := New(tt.problem, tt.dims, 1)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, optimization.ErrConfiguration))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.dims, b.Dimensions)
		})
	}
}

func TestNames(t *testing.T) {
	assert.Equal(t, []string{"ackley", "rastrigin", "sphere"}, Names())
}

func TestBenchmark_CreateWithinBounds(t *testing.T) {
	b, err := New("ackley", 8, 42)
	require.NoError(t, err)

	for range 100 {
		x := b.Create()
		require.Len(t, x, 8)
		for _, xi := range x {
			assert.GreaterOrEqual(t, xi, b.Lower)
			assert.Less(t, xi, b.Upper)
		}
	}
}

func TestBenchmark_Deterministic(t *testing.T) {
	a, err := New("rastrigin", 5, 7)
	require.NoError(t, err)
	b, err := New("rastrigin", 5, 7)
	require.NoError(t, err)

	assert.Equal(t, a.Create(), b.Create())
}

func TestBenchmark_Crossover(t *testing.T) {
	b, err := New("sphere", 6, 3)
	require.NoError(t, err)

	p1 := optimization.Vector{1, 1, 1, 1, 1, 1}
	p2 := optimization.Vector{2, 2, 2, 2, 2, 2}
	for range 50 {
		out := make(optimization.Vector, 6)
		b.Crossover(p1, p2, out)

		// a prefix from p1 followed by a suffix from p2
		cut := 0
		for cut < len(out) && out[cut] == 1 {
			cut++
		}
		for _, v := range out[cut:] {
			assert.Equal(t, 2.0, v)
		}
	}
}

func TestBenchmark_MutateChangesOneGene(t *testing.T) {
	b, err := New("sphere", 4, 5)
	require.NoError(t, err)

	x := optimization.Vector{10, 10, 10, 10}
	b.Mutate(x)

	changed := 0
	for _, xi := range x {
		if xi != 10 {
			changed++
			assert.GreaterOrEqual(t, xi, b.Lower)
			assert.Less(t, xi, b.Upper)
		}
	}
	assert.Equal(t, 1, changed)
}

func TestBenchmark_Select(t *testing.T) {
	fitness := []float64{5, 1, 3, 9}

	t.Run("uniform", func(t *testing.T) {
		b, err := New("sphere", 2, 11)
		require.NoError(t, err)
		for range 100 {
			i := b.Select(fitness)
			assert.True(t, i >= 0 && i < len(fitness))
		}
	})

	t.Run("tournament", func(t *testing.T) {
		b, err := New("sphere", 2, 11)
		require.NoError(t, err)
		b.Selection = Tournament
		b.TournamentSize = 64

		// with this many draws the best index is found almost surely
		counts := make([]int, len(fitness))
		for range 100 {
			counts[b.Select(fitness)]++
		}
		assert.Greater(t, counts[1], 90)
	})
}

func TestBenchmark_Terminate(t *testing.T) {
	b, err := New("sphere", 2, 1)
	require.NoError(t, err)

	assert.True(t, b.Terminate(nil, 0))
	assert.False(t, b.Terminate(nil, 1e-3))

	b.Target = math.Inf(-1)
	assert.False(t, b.Terminate(nil, 0))
}
