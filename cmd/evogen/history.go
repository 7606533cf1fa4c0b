package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/copyleftdev/evogen/internal/store"
)

func newHistoryCmd(a *app) *cobra.Command {
	var f store.Filter

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List finished runs, most recent first",
		Long: `Lists the runs recorded in the run history. Only the sqlite backend
(STORE_BACKEND=sqlite, STORE_PATH) keeps runs between invocations.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.Limit < 0 {
				return fmt.Errorf("limit must not be negative, got %d", f.Limit)
			}

			history, err := store.New(cmd.Context(), a.cfg.Store.Backend, a.cfg.Store.Path)
			if err != nil {
				return fmt.Errorf("failed to open run history: %w", err)
			}
			defer history.Close()

			runs, err := history.List(cmd.Context(), f)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), runs)
		},
	}

	cmd.Flags().StringVarP(&f.Algorithm, "algorithm", "a", "", "Only runs of this algorithm")
	cmd.Flags().StringVarP(&f.Problem, "problem", "p", "", "Only runs on this problem")
	cmd.Flags().IntVarP(&f.Limit, "limit", "n", 20, "Maximum number of runs, 0 lists all")
	return cmd
}
