// Package cmd defines and implements the CLI commands for the revloop
// executable.
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/revloop/revloop/internal/app"
	"github.com/revloop/revloop/internal/config"
)

var cfgFile string

// appKeyType is the key for storing the App in the command context.
type appKeyType string

const appKey appKeyType = "app"

// newApp is the application factory. It is a variable so tests can swap in
// a fake factory.
var newApp = func(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return app.New(ctx, cfg)
}

// newRootCmd creates and configures the root command. Application services
// are built once in PersistentPreRunE and torn down in PersistentPostRun so
// every subcommand sees the same initialized App.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revloop",
		Short: "Crawl lifecycle engine for review-site activity",
		Long: `revloop tracks one or more users' review-site activity end to end:
it derives the set of pages worth crawling, fetches them with bounded
concurrency, extracts profile and review facts, and reconciles stored state
against the live site with a mark-and-sweep pass.`,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context())
			if err != nil {
				return fmt.Errorf("initialize application services: %w", err)
			}
			ctx := context.WithValue(cmd.Context(), appKey, appInstance)
			cmd.SetContext(ctx)
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(*app.App); ok && appInstance != nil {
				appInstance.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./revloop.yaml)")

	cmd.AddCommand(newDiscoverCmd())
	cmd.AddCommand(newFetchCmd())
	cmd.AddCommand(newParseCmd())
	cmd.AddCommand(newSweepCmd())
	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newUserCmd())

	return cmd
}

// resolveApp pulls the initialized App out of the command context.
func resolveApp(ctx context.Context) (*app.App, error) {
	appInstance, ok := ctx.Value(appKey).(*app.App)
	if !ok || appInstance == nil {
		return nil, fmt.Errorf("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		zap.L().Fatal("command execution failed", zap.Error(err))
	}
}
