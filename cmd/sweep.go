package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newSweepCmd creates the 'sweep' subcommand. It runs one mark-and-sweep
// reconciliation pass against the live site.
func newSweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Reconcile stored reviews against the live site",
		Long: `Crawls each user's review listing pages fresh, marks the reviews still
present, and deletes the status targets and review facts for anything
that disappeared. A user whose listing pages cannot all be fetched is
skipped rather than partially swept.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			sw := buildSweeper(appInstance)

			reports, err := sw.SweepAll(cmd.Context())
			for _, report := range reports {
				appInstance.Logger.Info("user swept",
					zap.String("user_id", report.UserID),
					zap.Int("targets_deleted", report.TargetsDeleted),
					zap.Int("facts_deleted", report.FactsDeleted),
				)
			}
			if err != nil {
				return fmt.Errorf("sweep: %w", err)
			}
			return nil
		},
	}
	return cmd
}
