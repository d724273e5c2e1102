// Package cli implements the pharmctl operations tool. It talks to the
// database directly through the migration services rather than the HTTP
// API, so it works even when the API server is down.
package cli

import (
	"fmt"
	"sync"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"pharmacare-backend/internal/database"
	"pharmacare-backend/internal/migration"
)

var (
	rootCmd = &cobra.Command{
		Use:           "pharmctl",
		Short:         "PharmaCare workspace migration operations CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return initApp(cmd)
		},
	}

	debugEnabled bool

	appOnce sync.Once
	app     *App
)

var version = "dev"

// App carries global CLI state shared across commands.
type App struct {
	Orchestrator *migration.Orchestrator
	Monitor      *migration.Monitor
	Debug        bool
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// MustApp returns the initialized application context.
func MustApp() *App {
	if app == nil {
		panic("cli not initialized")
	}
	return app
}

func init() {
	cobra.OnInitialize(func() {
		color.NoColor = false
	})

	rootCmd.Version = version
	rootCmd.SetVersionTemplate("{{.Name}} version {{.Version}}\n")

	rootCmd.PersistentFlags().BoolVar(&debugEnabled, "debug", false, "enable debug logging")
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))

	rootCmd.AddCommand(
		newStatusCommand(),
		newValidateCommand(),
		newMigrateCommand(),
		newRollbackCommand(),
		newMonitorCommand(),
		newReportCommand(),
	)
}

func initApp(_ *cobra.Command) error {
	var initErr error
	appOnce.Do(func() {
		viper.SetEnvPrefix("PHARMACARE")
		viper.AutomaticEnv()

		if err := database.InitDatabase(); err != nil {
			initErr = fmt.Errorf("connect to database: %w", err)
			return
		}
		if err := database.RunMigrations(migration.Models()...); err != nil {
			initErr = fmt.Errorf("ensure migration tables: %w", err)
			return
		}

		lock := migration.NewRunLock(migration.MigrationName)
		app = &App{
			Orchestrator: migration.NewOrchestrator(database.DB, lock),
			Monitor:      migration.NewMonitor(database.DB),
			Debug:        viper.GetBool("debug"),
		}
	})
	return initErr
}
