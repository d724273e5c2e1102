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

func newMigrateCommand() *cobra.Command {
	var (
		dryRun            bool
		batchSize         int
		noBackup          bool
		noProgress        bool
		noIntegrityChecks bool
		stopOnError       bool
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Move user subscriptions into pharmacy workspaces",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := MustApp()
			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Hour)
			defer cancel()

			if dryRun {
				result, err := app.Orchestrator.DryRun(ctx)
				if err != nil {
					return fmt.Errorf("dry run: %w", err)
				}
				color.New(color.FgCyan).Println("Dry run (no changes were made)")
				fmt.Printf("Workspaces to create:      %d\n", result.WorkspacesToCreate)
				fmt.Printf("Subscriptions to migrate:  %d\n", result.SubscriptionsToMigrate)
				fmt.Printf("Users to update:           %d\n", result.UsersToUpdate)
				if len(result.Issues) > 0 {
					fmt.Println("Existing findings:")
					for _, issue := range result.Issues {
						fmt.Printf("  - %s\n", issue)
					}
				}
				return nil
			}

			opts := migration.DefaultOptions()
			opts.BatchSize = batchSize
			opts.EnableBackup = !noBackup
			opts.EnableProgressTracking = !noProgress
			opts.EnableIntegrityChecks = !noIntegrityChecks
			opts.ContinueOnError = !stopOnError

			result, err := app.Orchestrator.ExecuteMigration(ctx, opts)
			if err != nil {
				if err == migration.ErrLockHeld {
					return fmt.Errorf("another migration run is already in progress")
				}
				return fmt.Errorf("execute migration: %w", err)
			}

			printMigrationResult(result)
			if !result.Success {
				os.Exit(1)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would change without writing")
	cmd.Flags().IntVar(&batchSize, "batch-size", 100, "users processed per batch")
	cmd.Flags().BoolVar(&noBackup, "no-backup", false, "skip backup bookkeeping")
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "skip progress persistence")
	cmd.Flags().BoolVar(&noIntegrityChecks, "no-integrity-checks", false, "skip pre and post integrity scans")
	cmd.Flags().BoolVar(&stopOnError, "stop-on-error", false, "abort the run on the first per-user failure")
	return cmd
}

func printMigrationResult(result *migration.OrchestratorResult) {
	if result.Success {
		color.New(color.FgGreen).Println("Migration completed successfully")
	} else {
		color.New(color.FgRed).Println("Migration finished with problems")
	}

	if result.Migration != nil {
		fmt.Printf("Workspaces created:       %d\n", result.Migration.WorkspacesCreated)
		fmt.Printf("Subscriptions migrated:   %d\n", result.Migration.SubscriptionsMigrated)
		fmt.Printf("Users updated:            %d\n", result.Migration.UsersUpdated)
		if len(result.Migration.Errors) > 0 {
			color.New(color.FgYellow).Printf("Per-item errors:          %d\n", len(result.Migration.Errors))
			for _, msg := range result.Migration.Errors {
				fmt.Printf("  - %s\n", msg)
			}
		}
	}

	if result.Validation != nil {
		if result.Validation.Valid {
			color.New(color.FgGreen).Println("Post-run check: passed")
		} else {
			color.New(color.FgRed).Println("Post-run check: failed")
			for _, issue := range result.Validation.Issues {
				fmt.Printf("  - %s\n", issue)
			}
		}
	}

	if result.BackupStats != nil && result.BackupStats.BackupCount > 0 {
		fmt.Printf("Backups recorded:         %d (%d documents)\n",
			result.BackupStats.BackupCount, result.BackupStats.TotalDocuments)
	}
}
