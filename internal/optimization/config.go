package optimization

import (
	"math/rand/v2"
)

// Config contains the hyperparameters shared by the population-based engines.
type Config struct {
	// Number of candidates per generation
	PopulationSize int

	// Maximum number of generations
	Generations int

	// Probability of mutating a freshly crossed child
	MutationRate float64

	// Number of leading slots reserved for the best known solution
	Elites int

	// Cap on evaluations per generation relative to PopulationSize.
	// Values <= 0 disable the cap. Only used by offspring selection.
	MaximumSelectionPressure float64

	// Probability of running local search on a child
	LocalSearchRate float64

	// Ratio of generations without improvement to Generations that triggers
	// immigration
	EpochTriggeringFailureRate float64

	// Share of PopulationSize requested as immigrants
	ImmigrationRate float64

	// Random seed for reproducibility, 0 draws a random seed
	Seed uint64
}

// DefaultConfig returns the defaults used when a caller supplies none.
func DefaultConfig() Config {
	return Config{
		PopulationSize: 1000,
		Generations:    5000,
		MutationRate:   0.1,
		Elites:         1,
	}
}

// Validate rejects hyperparameters no engine can run with.
func (c Config) Validate() error {
	switch {
	case c.PopulationSize < 1:
		return ConfigErrorf("population size must be positive, got %d", c.PopulationSize)
	case c.Elites < 1:
		return ConfigErrorf("elites must be at least 1, got %d", c.Elites)
	case c.PopulationSize < c.Elites:
		return ConfigErrorf("population size %d is smaller than elites %d", c.PopulationSize, c.Elites)
	case c.Generations < 0:
		return ConfigErrorf("generations must not be negative, got %d", c.Generations)
	}

	rates := []struct {
		name  string
		value float64
	}{
		{"mutation rate", c.MutationRate},
		{"local search rate", c.LocalSearchRate},
		{"epoch triggering failure rate", c.EpochTriggeringFailureRate},
		{"immigration rate", c.ImmigrationRate},
	}
	for _, r := range rates {
		// negated comparison also catches NaN
		if !(r.value >= 0 && r.value <= 1) {
			return ConfigErrorf("%s must be in [0,1], got %v", r.name, r.value)
		}
	}
	return nil
}

// NewRand returns a PCG-backed generator. A zero seed draws a random one.
func NewRand(seed uint64) *rand.Rand {
	if seed == 0 {
		return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return rand.New(rand.NewPCG(seed, seed))
}
