package config

import (
	"os"
	"time"

	"github.com/caarlos0/env/v10"

	"github.com/copyleftdev/evogen/internal/optimization"
)

type Config struct {
	Environment string `env:"ENV" envDefault:"development"`
	HTTP        struct {
		Port            int           `env:"HTTP_PORT" envDefault:"8080"`
		ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`
		WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
		IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
		ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	}
	Logging struct {
		Level  string `env:"LOG_LEVEL" envDefault:"info"`
		Format string `env:"LOG_FORMAT" envDefault:"json"`
		Output string `env:"LOG_OUTPUT" envDefault:"stderr"`
	}
	Metrics struct {
		Enabled   bool   `env:"METRICS_ENABLED" envDefault:"true"`
		Namespace string `env:"METRICS_NAMESPACE" envDefault:"evogen"`
	}
	// Run history of finished runs
	Store struct {
		Backend string `env:"STORE_BACKEND" envDefault:"memory"`
		Path    string `env:"STORE_PATH" envDefault:"evogen.db"`
	}
	Optimization struct {
		PopulationSize           int     `env:"OPT_POPULATION_SIZE" envDefault:"1000"`
		Generations              int     `env:"OPT_GENERATIONS" envDefault:"5000"`
		MutationRate             float64 `env:"OPT_MUTATION_RATE" envDefault:"0.1"`
		Elites                   int     `env:"OPT_ELITES" envDefault:"1"`
		MaximumSelectionPressure float64 `env:"OPT_MAX_SELECTION_PRESSURE" envDefault:"100"`
		LocalSearchRate          float64 `env:"OPT_LOCAL_SEARCH_RATE" envDefault:"0"`
		EpochFailureRate         float64 `env:"OPT_EPOCH_FAILURE_RATE" envDefault:"0.1"`
		ImmigrationRate          float64 `env:"OPT_IMMIGRATION_RATE" envDefault:"0.05"`

		// Upper bound on islands per run and on islands running at once
		MaxIslands int `env:"OPT_MAX_ISLANDS" envDefault:"8"`

		// Records buffered per run before the monitor starts dropping
		MonitorBuffer int `env:"OPT_MONITOR_BUFFER" envDefault:"256"`
	}
}

func Load() (*Config, error) {
	cfg := &Config{}

	// Parse environment variables
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	// Set default logging level based on environment
	if cfg.Environment == "development" && cfg.Logging.Level == "" {
		cfg.Logging.Level = "debug"
	}

	if cfg.Optimization.MaxIslands < 1 {
		cfg.Optimization.MaxIslands = 1
	}

	return cfg, nil
}

// RunDefaults returns the engine hyperparameters used when a run request
// leaves them unset.
func (c *Config) RunDefaults() optimization.Config {
	return optimization.Config{
		PopulationSize:             c.Optimization.PopulationSize,
		Generations:                c.Optimization.Generations,
		MutationRate:               c.Optimization.MutationRate,
		Elites:                     c.Optimization.Elites,
		MaximumSelectionPressure:   c.Optimization.MaximumSelectionPressure,
		LocalSearchRate:            c.Optimization.LocalSearchRate,
		EpochTriggeringFailureRate: c.Optimization.EpochFailureRate,
		ImmigrationRate:            c.Optimization.ImmigrationRate,
	}
}

// GetEnv returns the value of the environment variable or the default value
func GetEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
