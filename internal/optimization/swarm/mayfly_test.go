package swarm

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/evogen/internal/optimization"
	"github.com/copyleftdev/evogen/internal/optimization/problems"
)

func sphere(t *testing.T, dims int) *problems.Benchmark {
	t.Helper()
	b, err := problems.New("sphere", dims, 7)
	require.NoError(t, err)
	b.Target = math.Inf(-1)
	return b
}

func config(b *problems.Benchmark, iterations int) Config {
	return Config{
		Dimensions:     b.Dimensions,
		Lower:          b.Lower,
		Upper:          b.Upper,
		Iterations:     iterations,
		PopulationSize: 20,
		Seed:           11,
	}
}

func TestNewMayfly(t *testing.T) {
	b := sphere(t, 2)
	valid := config(b, 10)

	tests := []struct {
		name    string
		problem optimization.Problem[optimization.Vector]
		mutate  func(*Config)
	}{
		{"nil problem", nil, func(*Config) {}},
		{"zero dimensions", b, func(c *Config) { c.Dimensions = 0 }},
		{"empty box", b, func(c *Config) { c.Upper = c.Lower }},
		{"negative iterations", b, func(c *Config) { c.Iterations = -1 }},
		{"empty swarm", b, func(c *Config) { c.PopulationSize = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			_, err := NewMayfly(tt.problem, cfg, Options{})
			assert.True(t, errors.Is(err, optimization.ErrConfiguration), "got %v", err)
		})
	}

	m, err := NewMayfly(b, valid, Options{})
	require.NoError(t, err)
	assert.Equal(t, "mayfly", m.ID())
}

func TestMayfly_ZeroIterations(t *testing.T) {
	b := sphere(t, 3)
	m, err := NewMayfly(b, config(b, 0), Options{})
	require.NoError(t, err)

	res, err := m.Optimize(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Best, 3)
	assert.Equal(t, problems.Sphere(res.Best), res.Fitness)
	assert.Equal(t, 1, res.Evaluations)
	assert.False(t, res.Cancelled)
}

func TestMayfly_CancelledBeforeStart(t *testing.T) {
	b := sphere(t, 3)
	m, err := NewMayfly(b, config(b, 50), Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := m.Optimize(ctx)
	require.NoError(t, err)
	assert.True(t, res.Cancelled)
	require.NotNil(t, res.Best)
	assert.False(t, math.IsInf(res.Fitness, 0))
}

func TestMayfly_MinimizesSphere(t *testing.T) {
	b := sphere(t, 2)

	var records []optimization.Record
	m, err := NewMayfly(b, config(b, 50), Options{
		ID:    "swarm-1",
		Group: "g",
		Sink:  optimization.SinkFunc(func(r optimization.Record) { records = append(records, r) }),
	})
	require.NoError(t, err)

	res, err := m.Optimize(context.Background())
	require.NoError(t, err)

	assert.False(t, res.Cancelled)
	assert.Less(t, res.Fitness, 1.0)
	assert.Equal(t, problems.Sphere(res.Best), res.Fitness)
	assert.Equal(t, res.Evaluations/20, res.Generations)
	require.Len(t, records, res.Generations)

	for i, rec := range records {
		assert.Equal(t, "swarm-1", rec.Algorithm)
		assert.Equal(t, "g", rec.Group)
		assert.Equal(t, optimization.RankFitness, rec.Rank)
		if i > 0 {
			assert.LessOrEqual(t, rec.Value, records[i-1].Value)
		}
	}
}

func TestMayfly_StopsEvaluatingOnTerminate(t *testing.T) {
	b := sphere(t, 2)
	b.Target = math.Inf(1)

	m, err := NewMayfly(b, config(b, 20), Options{})
	require.NoError(t, err)

	res, err := m.Optimize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Evaluations)
	assert.Equal(t, problems.Sphere(res.Best), res.Fitness)
}

func TestMayfly_NaNIsContractViolation(t *testing.T) {
	b := sphere(t, 2)
	b.Objective = func([]float64) float64 { return math.NaN() }

	m, err := NewMayfly(b, config(b, 5), Options{})
	require.NoError(t, err)

	_, err = m.Optimize(context.Background())
	assert.True(t, errors.Is(err, optimization.ErrContractViolation), "got %v", err)
}
