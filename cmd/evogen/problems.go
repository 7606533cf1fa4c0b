package main

import (
	"github.com/spf13/cobra"

	"github.com/copyleftdev/evogen/internal/optimization/problems"
	"github.com/copyleftdev/evogen/internal/server"
)

func newProblemsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "problems",
		Short: "List the benchmark problems and algorithms",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printJSON(cmd.OutOrStdout(), map[string][]string{
				"problems":   problems.Names(),
				"algorithms": server.Algorithms,
			})
		},
	}
}
