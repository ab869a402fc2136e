package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newDiscoverCmd creates the 'discover' subcommand. It runs one target
// derivation pass over every registered user, or a single user when
// --user is given.
func newDiscoverCmd() *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Derive and upsert crawl targets from stored facts",
		Long: `Runs one discovery pass: for each registered user, upserts the
metadata target, one review listing target per page implied by the known
review count, and one status target per known review. The pass is
idempotent; re-running it never duplicates targets.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			engine := buildDiscovery(appInstance)

			if userID != "" {
				if err := engine.SweepUser(cmd.Context(), userID); err != nil {
					return fmt.Errorf("discover user %s: %w", userID, err)
				}
				return nil
			}
			if err := engine.SweepAll(cmd.Context()); err != nil {
				return fmt.Errorf("discover: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "limit the pass to a single user id")
	return cmd
}
