package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newFetchCmd creates the 'fetch' subcommand. It drains one batch of the
// oldest pending targets through the worker pool.
func newFetchCmd() *cobra.Command {
	var reset bool

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch one batch of pending crawl targets",
		Long: `Selects the oldest targets without a recorded fetch error, up to the
configured batch size, and fetches them concurrently. Every target's
outcome is recorded individually; one bad URL never blocks the rest of
the batch. Targets that previously errored are skipped until reset.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			pool := buildFetchPool(appInstance)

			if reset {
				cleared, err := pool.ResetErrors(cmd.Context())
				if err != nil {
					return fmt.Errorf("reset fetch errors: %w", err)
				}
				appInstance.Logger.Info("fetch errors cleared", zap.Int("targets", cleared))
			}

			if err := pool.Run(cmd.Context()); err != nil {
				return fmt.Errorf("fetch batch: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&reset, "reset", false, "clear recorded fetch errors before selecting the batch")
	return cmd
}
