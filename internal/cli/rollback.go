package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"pharmacare-backend/internal/migration"
)

func newRollbackCommand() *cobra.Command {
	var confirm bool

	cmd := &cobra.Command{
		Use:   "rollback",
		Short: "Revert subscription ownership back to individual users",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirm {
				color.New(color.FgRed).Println("Rollback deletes workspace subscriptions and recreates user-owned copies.")
				return fmt.Errorf("refusing to run without --confirm")
			}

			app := MustApp()
			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Hour)
			defer cancel()

			result, err := app.Orchestrator.ExecuteRollback(ctx)
			if err != nil {
				if err == migration.ErrLockHeld {
					return fmt.Errorf("another migration run is already in progress")
				}
				return fmt.Errorf("execute rollback: %w", err)
			}

			if result.Success {
				color.New(color.FgGreen).Println("Rollback completed successfully")
			} else {
				color.New(color.FgRed).Println("Rollback finished with problems")
			}
			if result.Rollback != nil {
				fmt.Printf("Subscriptions reverted: %d\n", result.Rollback.SubscriptionsReverted)
				for _, msg := range result.Rollback.Errors {
					fmt.Printf("  - %s\n", msg)
				}
			}

			if !result.Success {
				os.Exit(1)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&confirm, "confirm", false, "acknowledge that rollback rewrites subscription ownership")
	return cmd
}
