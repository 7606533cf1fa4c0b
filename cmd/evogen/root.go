package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/copyleftdev/evogen/internal/config"
	"github.com/copyleftdev/evogen/internal/logging"
)

// app is the state shared by the subcommands, set up before any of them
// runs.
type app struct {
	cfg    *config.Config
	logger *logging.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	var logLevel, logFormat string

	root := &cobra.Command{
		Use:   "evogen",
		Short: "Population-based metaheuristics on benchmark problems",
		Long: `evogen runs genetic algorithms, offspring selection, evolution strategies,
memetic and island models and a mayfly swarm on real-valued benchmarks.
Engine defaults come from the same OPT_* environment variables as the server.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			if logLevel != "" {
				cfg.Logging.Level = logLevel
			}
			if logFormat != "" {
				cfg.Logging.Format = logFormat
			}

			logger, err := logging.NewLogger(&logging.Config{
				Level:  cfg.Logging.Level,
				Format: cfg.Logging.Format,
				Output: cfg.Logging.Output,
			})
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}

			a.cfg = cfg
			a.logger = logger.WithFields(map[string]interface{}{"service": "evogen-cli"})
			return nil
		},
	}

	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error), overrides LOG_LEVEL")
	root.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format (json, text), overrides LOG_FORMAT")

	root.AddCommand(
		newRunCmd(a),
		newProblemsCmd(),
		newHistoryCmd(a),
	)
	return root
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
