package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/copyleftdev/evogen/internal/logging"
	"github.com/copyleftdev/evogen/internal/monitoring"
	"github.com/copyleftdev/evogen/internal/server"
	"github.com/copyleftdev/evogen/internal/store"
)

func newRunCmd(a *app) *cobra.Command {
	var (
		req     server.RunRequest
		timeout time.Duration

		population, generations, elites int
		mutation, pressure, lsRate      float64
		target                          float64
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one optimization and print its result",
		Long: `Runs an algorithm on a benchmark until it completes, the timeout expires
or the process is interrupted, then prints the final run status as JSON.
Interrupted runs report their best candidate so far with status "stopped".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := &server.RunConfig{}
			flags := cmd.Flags()
			if flags.Changed("population") {
				cfg.PopulationSize = &population
			}
			if flags.Changed("generations") {
				cfg.Generations = &generations
			}
			if flags.Changed("elites") {
				cfg.Elites = &elites
			}
			if flags.Changed("mutation") {
				cfg.MutationRate = &mutation
			}
			if flags.Changed("max-pressure") {
				cfg.MaximumSelectionPressure = &pressure
			}
			if flags.Changed("local-search-rate") {
				cfg.LocalSearchRate = &lsRate
			}
			if flags.Changed("target") {
				req.Target = &target
			}
			req.Config = cfg

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			st, err := a.execute(ctx, req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), st)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&req.Algorithm, "algorithm", "a", server.AlgorithmGA, fmt.Sprintf("Algorithm, one of %v", server.Algorithms))
	f.StringVarP(&req.Problem, "problem", "p", "rastrigin", "Benchmark problem")
	f.IntVarP(&req.Dimensions, "dims", "d", 10, "Number of dimensions")
	f.StringVar(&req.Selection, "selection", "uniform", "Parent selection: uniform or tournament")
	f.IntVar(&req.TournamentSize, "tournament", 2, "Tournament size")
	f.StringVar(&req.Strategy, "strategy", "incremental", "Evolution strategy: probe, incremental or reset")
	f.IntVar(&req.LocalSearchGenerations, "local-search-generations", 10, "Generations of each memetic local search")
	f.IntVar(&req.Islands, "islands", 0, "Islands of an islands run, 0 uses the default")
	f.StringVar(&req.Group, "group", "", "Group shared by the monitoring records")
	f.Uint64Var(&req.Seed, "seed", 0, "Random seed, 0 draws one")
	f.DurationVar(&timeout, "timeout", 0, "Stop the run after this long, 0 runs to completion")

	f.IntVar(&population, "population", 0, "Population size, overrides OPT_POPULATION_SIZE")
	f.IntVar(&generations, "generations", 0, "Generations, overrides OPT_GENERATIONS")
	f.IntVar(&elites, "elites", 0, "Elites, overrides OPT_ELITES")
	f.Float64Var(&mutation, "mutation", 0, "Mutation rate, overrides OPT_MUTATION_RATE")
	f.Float64Var(&pressure, "max-pressure", 0, "Maximum selection pressure, overrides OPT_MAX_SELECTION_PRESSURE")
	f.Float64Var(&lsRate, "local-search-rate", 0, "Local search rate, overrides OPT_LOCAL_SEARCH_RATE")
	f.Float64Var(&target, "target", 0, "Stop once the fitness reaches this value")

	return cmd
}

// execute runs req in an in-process server that records into the configured
// run history.
func (a *app) execute(ctx context.Context, req server.RunRequest) (server.RunStatus, error) {
	history, err := store.New(ctx, a.cfg.Store.Backend, a.cfg.Store.Path)
	if err != nil {
		return server.RunStatus{}, fmt.Errorf("failed to open run history: %w", err)
	}
	defer func() {
		if err := history.Close(); err != nil {
			a.logger.Warn("Failed to close run history", map[string]interface{}{"error": err.Error()})
		}
	}()

	engineLogger := logging.NewZapLogger(a.logger).Named("engine")
	defer func() { _ = engineLogger.Sync() }()

	srv := server.NewServer(a.cfg, a.logger,
		server.WithEngineLogger(engineLogger),
		server.WithSink(monitoring.NewLog(engineLogger)),
		server.WithStore(history))
	defer srv.Close()

	return srv.Execute(ctx, req)
}
