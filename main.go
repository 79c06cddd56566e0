package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"pill-reminder/internal/cli"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "pill-reminder",
		Short: "Daily contraceptive pill reminders with missed-dose escalation",
		Long: `pill-reminder schedules daily pill reminders, records confirmations
and alerts reminder recipients when a day's dose is still unconfirmed
at the escalation time.`,
	}

	rootCmd.AddCommand(cli.ServeCmd())
	rootCmd.AddCommand(cli.EscalateCmd())
	rootCmd.AddCommand(cli.ScheduleCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
