package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"pharmacare-backend/internal/migration"
)

func newValidateCommand() *cobra.Command {
	var detailed bool
	var format string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Run the full data validation battery and print the report",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := MustApp()
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
			defer cancel()

			report, err := app.Orchestrator.Validator().RunCompleteValidation(ctx)
			if err != nil {
				return fmt.Errorf("run validation: %w", err)
			}

			if strings.EqualFold(format, "json") {
				encoder := json.NewEncoder(os.Stdout)
				encoder.SetIndent("", "  ")
				if err := encoder.Encode(report); err != nil {
					return err
				}
			} else {
				printReport(report, detailed)
			}

			if !report.Valid {
				os.Exit(1)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&detailed, "detailed", false, "print every issue and warning")
	cmd.Flags().StringVarP(&format, "format", "f", "text", "output format (text|json)")
	return cmd
}

func printReport(report *migration.Report, detailed bool) {
	fmt.Println("Validation Report")
	fmt.Println("-----------------")
	if report.Valid {
		color.New(color.FgGreen).Println("Result: VALID")
	} else {
		color.New(color.FgRed).Println("Result: INVALID")
	}
	printScoreLine(report.Score)
	fmt.Printf("Consistency score: %d/100\n", report.DataConsistencyScore)
	fmt.Printf("Issues: %d (%d critical, %d errors)   Warnings: %d\n",
		len(report.Issues), report.CriticalCount(), report.ErrorCount(), len(report.Warnings))

	fmt.Println()
	fmt.Printf("Users:         %d total, %d in a workspace, %d with legacy subscriptions\n",
		report.Stats.TotalUsers, report.Stats.UsersWithWorkspace, report.Stats.UsersWithLegacySubs)
	fmt.Printf("Workplaces:    %d total, %d with a subscription\n",
		report.Stats.TotalWorkplaces, report.Stats.WorkplacesWithSubscription)
	fmt.Printf("Subscriptions: %d total, %d workspace-owned, %d user-owned, %d orphaned\n",
		report.Stats.TotalSubscriptions, report.Stats.WorkspaceSubscriptions,
		report.Stats.UserSubscriptions, report.Stats.OrphanedRecords)

	if detailed {
		if len(report.Issues) > 0 {
			fmt.Println()
			fmt.Println("Issues:")
			for _, issue := range report.Issues {
				severityColor := color.New(color.FgYellow)
				if issue.Severity == migration.SeverityCritical {
					severityColor = color.New(color.FgRed)
				}
				severityColor.Printf("  [%s] ", strings.ToUpper(issue.Severity))
				fmt.Printf("%s: %s (count %d)\n", issue.Category, issue.Description, issue.Count)
				if issue.FixSuggestion != "" {
					fmt.Printf("           fix: %s\n", issue.FixSuggestion)
				}
			}
		}
		if len(report.Warnings) > 0 {
			fmt.Println()
			fmt.Println("Warnings:")
			for _, warning := range report.Warnings {
				fmt.Printf("  [%s impact] %s: %s (count %d)\n",
					warning.Impact, warning.Category, warning.Description, warning.Count)
			}
		}
	}

	if len(report.Recommendations) > 0 {
		fmt.Println()
		fmt.Println("Recommendations:")
		for _, rec := range report.Recommendations {
			fmt.Printf("  - %s\n", rec)
		}
	}
}
