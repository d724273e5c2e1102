package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newReportCommand() *cobra.Command {
	var reportType string
	var output string

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Generate a monitoring report",
		RunE: func(cmd *cobra.Command, args []string) error {
			switch reportType {
			case "daily", "weekly", "on_demand":
			default:
				return fmt.Errorf("invalid report type %q (daily|weekly|on_demand)", reportType)
			}

			app := MustApp()
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
			defer cancel()

			report, err := app.Monitor.GenerateReport(ctx, reportType)
			if err != nil {
				return fmt.Errorf("generate report: %w", err)
			}

			out := os.Stdout
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("create output file: %w", err)
				}
				defer f.Close()
				out = f
			}

			encoder := json.NewEncoder(out)
			encoder.SetIndent("", "  ")
			if err := encoder.Encode(report); err != nil {
				return err
			}

			if output != "" {
				color.New(color.FgGreen).Printf("Report written to %s\n", output)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&reportType, "type", "t", "on_demand", "report type (daily|weekly|on_demand)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the report to a file instead of stdout")
	return cmd
}
