package server

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/copyleftdev/evogen/internal/migration"
	"github.com/copyleftdev/evogen/internal/optimization"
	"github.com/copyleftdev/evogen/internal/optimization/es"
	"github.com/copyleftdev/evogen/internal/optimization/ga"
	"github.com/copyleftdev/evogen/internal/optimization/problems"
	"github.com/copyleftdev/evogen/internal/optimization/swarm"
)

// Supported algorithms.
const (
	AlgorithmGA      = "ga"
	AlgorithmOSGA    = "osga"
	AlgorithmES      = "es"
	AlgorithmMemetic = "memetic"
	AlgorithmIslands = "islands"
	AlgorithmMayfly  = "mayfly"
)

// Algorithms lists the supported algorithms.
var Algorithms = []string{AlgorithmGA, AlgorithmOSGA, AlgorithmES, AlgorithmMemetic, AlgorithmIslands, AlgorithmMayfly}

const (
	defaultDimensions       = 10
	defaultIslands          = 4
	defaultLocalSearchGens  = 10
	defaultMemeticLocalRate = 0.1
)

// RunRequest describes a run to start.
type RunRequest struct {
	// Algorithm is one of ga, osga, es, memetic, islands, mayfly
	Algorithm string `json:"algorithm"`

	// Problem names a benchmark, see problems.Names
	Problem    string `json:"problem"`
	Dimensions int    `json:"dimensions,omitempty"`

	// Selection is uniform (default) or tournament
	Selection      string   `json:"selection,omitempty"`
	TournamentSize int      `json:"tournament_size,omitempty"`
	Target         *float64 `json:"target,omitempty"`

	// Strategy of the evolution strategy for es and memetic runs
	Strategy               string `json:"strategy,omitempty"`
	LocalSearchGenerations int    `json:"local_search_generations,omitempty"`

	// Islands is the number of islands of an islands run
	Islands int `json:"islands,omitempty"`

	Group string `json:"group,omitempty"`
	Seed  uint64 `json:"seed,omitempty"`

	// Deferred creates the run without starting it; resume starts it.
	Deferred bool `json:"deferred,omitempty"`

	Config *RunConfig `json:"config,omitempty"`
}

// RunConfig overrides the configured engine defaults.
type RunConfig struct {
	PopulationSize             *int     `json:"population_size,omitempty"`
	Generations                *int     `json:"generations,omitempty"`
	MutationRate               *float64 `json:"mutation_rate,omitempty"`
	Elites                     *int     `json:"elites,omitempty"`
	MaximumSelectionPressure   *float64 `json:"max_selection_pressure,omitempty"`
	LocalSearchRate            *float64 `json:"local_search_rate,omitempty"`
	EpochTriggeringFailureRate *float64 `json:"epoch_failure_rate,omitempty"`
	ImmigrationRate            *float64 `json:"immigration_rate,omitempty"`
}

func (c *RunConfig) apply(base optimization.Config) optimization.Config {
	if c == nil {
		return base
	}
	setInt := func(dst *int, v *int) {
		if v != nil {
			*dst = *v
		}
	}
	setFloat := func(dst *float64, v *float64) {
		if v != nil {
			*dst = *v
		}
	}
	setInt(&base.PopulationSize, c.PopulationSize)
	setInt(&base.Generations, c.Generations)
	setFloat(&base.MutationRate, c.MutationRate)
	setInt(&base.Elites, c.Elites)
	setFloat(&base.MaximumSelectionPressure, c.MaximumSelectionPressure)
	setFloat(&base.LocalSearchRate, c.LocalSearchRate)
	setFloat(&base.EpochTriggeringFailureRate, c.EpochTriggeringFailureRate)
	setFloat(&base.ImmigrationRate, c.ImmigrationRate)
	return base
}

// blueprint is a validated run request.
type blueprint struct {
	id        string
	name      string
	group     string
	algorithm optimization.Algorithm[optimization.Vector]

	// expected number of fitness records of a full run
	expected int
}

func (s *Server) build(req RunRequest, sink optimization.Sink) (*blueprint, error) {
	algorithm := strings.ToLower(req.Algorithm)
	if algorithm == "" {
		algorithm = AlgorithmGA
	}
	if req.Dimensions == 0 {
		req.Dimensions = defaultDimensions
	}

	cfg := req.Config.apply(s.cfg.RunDefaults())
	cfg.Seed = req.Seed
	if algorithm == AlgorithmMemetic && (req.Config == nil || req.Config.LocalSearchRate == nil) {
		cfg.LocalSearchRate = defaultMemeticLocalRate
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	bp := &blueprint{
		id:       uuid.NewString(),
		name:     algorithm,
		group:    req.Group,
		expected: cfg.Generations,
	}
	if bp.group == "" {
		bp.group = uuid.NewString()
	}

	// every engine gets its own benchmark, they are not safe for concurrent use
	seedOffset := uint64(0)
	benchmark := func() (*problems.Benchmark, error) {
		seed := req.Seed
		if seed != 0 {
			seed += seedOffset
			seedOffset++
		}
		return s.benchmark(req, seed)
	}

	gaOpts := ga.Options[optimization.Vector]{
		ID:     bp.id,
		Group:  bp.group,
		Logger: s.engineLogger,
		Sink:   sink,
	}

	var err error
	switch algorithm {
	case AlgorithmGA, AlgorithmOSGA:
		b, berr := benchmark()
		if berr != nil {
			return nil, berr
		}
		if algorithm == AlgorithmGA {
			bp.algorithm, err = ga.NewGenerational(b, cfg, gaOpts)
		} else {
			bp.algorithm, err = ga.NewOffspringSelection(b, cfg, gaOpts)
		}

	case AlgorithmES:
		b, berr := benchmark()
		if berr != nil {
			return nil, berr
		}
		strategy, serr := es.ParseStrategy(req.Strategy)
		if serr != nil {
			return nil, serr
		}
		bp.algorithm, err = es.New(b, es.Config{Generations: cfg.Generations, Strategy: strategy, Seed: req.Seed},
			es.Options{ID: bp.id, Group: bp.group, Logger: s.engineLogger, Sink: sink})

	case AlgorithmMemetic:
		b, berr := benchmark()
		if berr != nil {
			return nil, berr
		}
		searcher, lerr := s.localSearch(req, benchmark)
		if lerr != nil {
			return nil, lerr
		}
		gaOpts.LocalSearch = searcher
		bp.algorithm, err = ga.NewGenerational(b, cfg, gaOpts)

	case AlgorithmIslands:
		bp.algorithm, bp.expected, err = s.islands(req, cfg, bp, gaOpts, benchmark)

	case AlgorithmMayfly:
		b, berr := benchmark()
		if berr != nil {
			return nil, berr
		}
		// the swarm evaluates an unknown number of points per iteration
		bp.expected = 0
		bp.algorithm, err = swarm.NewMayfly(b, swarm.Config{
			Dimensions:     b.Dimensions,
			Lower:          b.Lower,
			Upper:          b.Upper,
			Iterations:     cfg.Generations,
			PopulationSize: cfg.PopulationSize,
			Seed:           req.Seed,
		}, swarm.Options{ID: bp.id, Group: bp.group, Logger: s.engineLogger, Sink: sink})

	default:
		return nil, optimization.ConfigErrorf("unknown algorithm %q", req.Algorithm).WithComponent("server")
	}
	if err != nil {
		return nil, err
	}
	return bp, nil
}

func (s *Server) benchmark(req RunRequest, seed uint64) (*problems.Benchmark, error) {
	b, err := problems.New(req.Problem, req.Dimensions, seed)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(req.Selection) {
	case "", "uniform":
	case "tournament":
		b.Selection = problems.Tournament
		if req.TournamentSize > 0 {
			b.TournamentSize = req.TournamentSize
		}
	default:
		return nil, optimization.ConfigErrorf("unknown selection %q", req.Selection).WithComponent("server")
	}
	if req.Target != nil {
		b.Target = *req.Target
	}
	return b, nil
}

func (s *Server) localSearch(req RunRequest, benchmark func() (*problems.Benchmark, error)) (optimization.LocalSearch[optimization.Vector], error) {
	b, err := benchmark()
	if err != nil {
		return nil, err
	}
	strategy, err := es.ParseStrategy(req.Strategy)
	if err != nil {
		return nil, err
	}
	gens := req.LocalSearchGenerations
	if gens == 0 {
		gens = defaultLocalSearchGens
	}

	searcher, err := es.New(b, es.Config{Generations: gens, Strategy: strategy, Seed: req.Seed},
		es.Options{ID: "local-search", Logger: s.engineLogger})
	if err != nil {
		return nil, err
	}
	return searcher.LocalSearch(), nil
}

func (s *Server) islands(req RunRequest, cfg optimization.Config, bp *blueprint, opts ga.Options[optimization.Vector],
	benchmark func() (*problems.Benchmark, error)) (optimization.Algorithm[optimization.Vector], int, error) {
	n := req.Islands
	if n == 0 {
		n = min(defaultIslands, s.cfg.Optimization.MaxIslands)
	}
	if n < 1 || n > s.cfg.Optimization.MaxIslands {
		return nil, 0, optimization.ConfigErrorf("islands must be in [1,%d], got %d", s.cfg.Optimization.MaxIslands, n).
			WithComponent("server")
	}

	hub := migration.NewHub[optimization.Vector](req.Seed)
	islands := make([]optimization.Algorithm[optimization.Vector], n)
	for k := range islands {
		b, err := benchmark()
		if err != nil {
			return nil, 0, err
		}
		islandCfg := cfg
		if cfg.Seed != 0 {
			islandCfg.Seed = cfg.Seed + uint64(k)
		}

		islandOpts := opts
		islandOpts.ID = fmt.Sprintf("%s-%d", bp.id, k)
		islandOpts.Immigrator = hub
		islandOpts.Migrator = hub
		if islands[k], err = ga.NewGenerational(b, islandCfg, islandOpts); err != nil {
			return nil, 0, err
		}
	}

	arch, err := migration.NewArchipelago(islands, migration.Options{
		ID:            bp.id,
		Group:         bp.group,
		MaxConcurrent: s.cfg.Optimization.MaxIslands,
		Logger:        s.engineLogger,
	})
	if err != nil {
		return nil, 0, err
	}
	return arch, cfg.Generations * n, nil
}
