package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, 30*time.Second, cfg.HTTP.ShutdownTimeout)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, 1000, cfg.Optimization.PopulationSize)
	assert.Equal(t, 5000, cfg.Optimization.Generations)
	assert.Equal(t, 8, cfg.Optimization.MaxIslands)
	assert.Equal(t, "memory", cfg.Store.Backend)

	run := cfg.RunDefaults()
	assert.NoError(t, run.Validate())
	assert.Equal(t, 0.1, run.MutationRate)
	assert.Equal(t, 1, run.Elites)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("OPT_POPULATION_SIZE", "50")
	t.Setenv("OPT_ELITES", "3")
	t.Setenv("OPT_IMMIGRATION_RATE", "0.25")
	t.Setenv("OPT_EPOCH_FAILURE_RATE", "0.5")
	t.Setenv("OPT_MAX_ISLANDS", "0")
	t.Setenv("STORE_BACKEND", "sqlite")
	t.Setenv("STORE_PATH", "/tmp/runs.db")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, 1, cfg.Optimization.MaxIslands)
	assert.Equal(t, "sqlite", cfg.Store.Backend)
	assert.Equal(t, "/tmp/runs.db", cfg.Store.Path)

	run := cfg.RunDefaults()
	assert.Equal(t, 50, run.PopulationSize)
	assert.Equal(t, 3, run.Elites)
	assert.Equal(t, 0.25, run.ImmigrationRate)
	assert.Equal(t, 0.5, run.EpochTriggeringFailureRate)
}

func TestLoad_InvalidValue(t *testing.T) {
	t.Setenv("OPT_GENERATIONS", "many")

	_, err := Load()
	assert.Error(t, err)
}

func TestGetEnv(t *testing.T) {
	t.Setenv("EVOGEN_TEST_KEY", "value")
	assert.Equal(t, "value", GetEnv("EVOGEN_TEST_KEY", "fallback"))
	assert.Equal(t, "fallback", GetEnv("EVOGEN_TEST_MISSING", "fallback"))
}
