package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/revloop/revloop/internal/api"
	"github.com/revloop/revloop/internal/runner"
)

// newRunCmd creates the 'run' subcommand: the full engine as one process
// with scheduled passes, the reactive pipeline, and the read API.
func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full engine until interrupted",
		Long: `Starts the read API server and the scheduled discovery, fetch, and
sweep loops, and consumes change notifications to chain fetched pages
into parsing and new facts back into discovery. Runs until SIGINT or
SIGTERM.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			server := api.New(appInstance.Catalog, appInstance.Config.Server, appInstance.Logger.Named("api"))
			r := runner.New(
				appInstance.Config,
				buildDiscovery(appInstance),
				buildFetchPool(appInstance),
				buildDispatcher(appInstance),
				buildSweeper(appInstance),
				server,
				appInstance.Bus,
				appInstance.Logger.Named("runner"),
			)

			if err := r.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("run engine: %w", err)
			}
			return nil
		},
	}
	return cmd
}
