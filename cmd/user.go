package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newUserCmd creates the 'user' command group for managing the set of
// tracked users.
func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage tracked users",
	}
	cmd.AddCommand(newUserRegisterCmd())
	cmd.AddCommand(newUserDeregisterCmd())
	cmd.AddCommand(newUserListCmd())
	return cmd
}

func newUserRegisterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "register <user-id>",
		Short: "Register a user and seed their metadata target",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			userID := args[0]

			if err := appInstance.Catalog.RegisterUser(cmd.Context(), userID); err != nil {
				return fmt.Errorf("register user %s: %w", userID, err)
			}
			// Seed the first target immediately so the next fetch pass has
			// something to do.
			if err := buildDiscovery(appInstance).SweepUser(cmd.Context(), userID); err != nil {
				return fmt.Errorf("seed targets for %s: %w", userID, err)
			}
			appInstance.Logger.Info("user registered", zap.String("user_id", userID))
			return nil
		},
	}
}

func newUserDeregisterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deregister <user-id>",
		Short: "Deregister a user and delete all their catalog rows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			userID := args[0]
			if err := appInstance.Catalog.DeregisterUser(cmd.Context(), userID); err != nil {
				return fmt.Errorf("deregister user %s: %w", userID, err)
			}
			appInstance.Logger.Info("user deregistered", zap.String("user_id", userID))
			return nil
		},
	}
}

func newUserListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List tracked users",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			users, err := appInstance.Catalog.ListUsers(cmd.Context())
			if err != nil {
				return fmt.Errorf("list users: %w", err)
			}
			for _, userID := range users {
				fmt.Fprintln(cmd.OutOrStdout(), userID)
			}
			return nil
		},
	}
}
