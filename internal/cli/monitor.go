package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"pharmacare-backend/internal/migration"
)

func newMonitorCommand() *cobra.Command {
	var interval time.Duration
	var once bool

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Sample migration metrics and surface alerts",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := MustApp()

			if once {
				return sampleOnce(cmd, app)
			}

			fmt.Printf("Monitoring every %s (Ctrl+C to stop)\n", interval)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			if err := sampleOnce(cmd, app); err != nil {
				return err
			}
			for {
				select {
				case <-ctx.Done():
					fmt.Println("\nStopped.")
					return nil
				case <-ticker.C:
					if err := sampleOnce(cmd, app); err != nil {
						color.New(color.FgRed).Printf("sample failed: %v\n", err)
					}
				}
			}
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 5*time.Minute, "sampling interval")
	cmd.Flags().BoolVar(&once, "once", false, "take a single sample and exit")
	return cmd
}

func sampleOnce(cmd *cobra.Command, app *App) error {
	alerts, err := app.Monitor.CheckForAlerts(cmd.Context())
	if err != nil {
		return err
	}

	metrics := app.Monitor.LatestMetrics()
	if metrics == nil {
		return fmt.Errorf("no metrics sample available")
	}

	fmt.Printf("[%s] progress=%d%% score=%d critical=%d errors=%d warnings=%d\n",
		metrics.Timestamp.Format("15:04:05"), metrics.MigrationProgress,
		metrics.ValidationScore, metrics.CriticalIssues, metrics.Errors, metrics.Warnings)

	for _, alert := range alerts {
		if alert.Resolved {
			continue
		}
		alertColor := color.New(color.FgYellow)
		switch alert.Severity {
		case migration.AlertCritical:
			alertColor = color.New(color.FgRed, color.Bold)
		case migration.AlertError:
			alertColor = color.New(color.FgRed)
		case migration.AlertInfo:
			alertColor = color.New(color.FgCyan)
		}
		alertColor.Printf("  ALERT [%s] %s: %s\n", alert.Severity, alert.Title, alert.Message)
	}

	return nil
}
