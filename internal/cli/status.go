package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"pharmacare-backend/internal/migration"
)

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show migration status at a glance",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := MustApp()
			ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
			defer cancel()

			if _, err := app.Monitor.CollectMetrics(ctx); err != nil {
				return fmt.Errorf("collect metrics: %w", err)
			}
			summary := app.Monitor.GetStatusSummary()

			fmt.Println("Workspace Subscription Migration")
			fmt.Println("--------------------------------")
			printStatusLine(summary.Status)
			fmt.Printf("Progress:         %d%%\n", summary.Progress)
			printScoreLine(summary.ValidationScore)
			if summary.CriticalIssues > 0 {
				color.New(color.FgRed).Printf("Critical issues:  %d\n", summary.CriticalIssues)
			} else {
				fmt.Printf("Critical issues:  0\n")
			}
			fmt.Printf("Active alerts:    %d\n", summary.ActiveAlerts)
			fmt.Printf("Trend:            %s\n", summary.Trend)
			if summary.EstimatedCompletion != nil {
				fmt.Printf("Estimated done:   %s (about %.1f hours)\n",
					summary.EstimatedCompletion.Format(time.RFC3339), summary.EstimatedHours)
			}

			progress, err := app.Orchestrator.Progress().LoadProgress(cmd.Context())
			if err == nil && progress != nil {
				runState := "incomplete"
				if progress.CompletedAt != nil {
					runState = "completed " + progress.CompletedAt.Format(time.RFC3339)
				}
				fmt.Println()
				fmt.Printf("Last recorded run: %s (%d/%d items, %d failed)\n",
					runState, progress.ProcessedItems, progress.TotalItems, progress.FailedItems)
			}

			return nil
		},
	}
}

func printStatusLine(status string) {
	label := fmt.Sprintf("Status:           %s\n", status)
	switch status {
	case migration.StatusCompleted:
		color.New(color.FgGreen).Print(label)
	case migration.StatusFailed:
		color.New(color.FgRed).Print(label)
	case migration.StatusInProgress:
		color.New(color.FgYellow).Print(label)
	default:
		fmt.Print(label)
	}
}

func printScoreLine(score int) {
	label := fmt.Sprintf("Validation score: %d/100\n", score)
	switch {
	case score >= 90:
		color.New(color.FgGreen).Print(label)
	case score >= 70:
		color.New(color.FgYellow).Print(label)
	default:
		color.New(color.FgRed).Print(label)
	}
}
