package cli

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"pill-reminder/internal/app"
	"pill-reminder/internal/config"
)

// ServeCmd runs the bot, the HTTP API and the scheduled jobs until interrupted.
func ServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the reminder service",
		Long: `Start the Telegram bot, the HTTP API and the cron jobs that
re-sync reminders after midnight and run the daily escalation check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			application, err := app.New(cfg)
			if err != nil {
				return fmt.Errorf("failed to create application: %w", err)
			}

			if err := application.Start(); err != nil {
				application.Stop()
				return fmt.Errorf("failed to start application: %w", err)
			}
			defer application.Stop()

			waitForShutdown()
			log.Println("👋 Shutting down")
			return nil
		},
	}
}

func waitForShutdown() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
}
