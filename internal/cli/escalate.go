package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"pill-reminder/internal/app"
	"pill-reminder/internal/config"
	"pill-reminder/internal/services"
)

// EscalateCmd runs one escalation evaluation for today and exits non-zero on failure.
func EscalateCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "escalate",
		Short: "Run the missed-dose escalation check once",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			application, err := app.New(cfg)
			if err != nil {
				return fmt.Errorf("failed to create application: %w", err)
			}
			defer application.Close()

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			result, runErr := application.Services().Escalation.Run(ctx)
			printEscalation(cmd.OutOrStdout(), result)
			if runErr != nil {
				return fmt.Errorf("escalation failed: %w", runErr)
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "overall deadline for the run")
	return cmd
}

func printEscalation(w io.Writer, result *services.EscalationResult) {
	if result == nil {
		return
	}

	fmt.Fprintf(w, "Run:     %s\n", result.RunID)
	fmt.Fprintf(w, "Day:     %s\n", result.DayKey)
	fmt.Fprintf(w, "Outcome: %s\n", outcomeLabel(result.Outcome))
	if result.Reason != "" {
		fmt.Fprintf(w, "Reason:  %s\n", result.Reason)
	}
	for _, r := range result.Recipients {
		fmt.Fprintf(w, "  %s %s\n", color.New(color.FgGreen).Sprint("✓"), r)
	}
	for _, f := range result.Failures {
		fmt.Fprintf(w, "  %s %s: %s\n", color.New(color.FgRed).Sprint("✗"), f.UserID, f.Error)
	}
}

func outcomeLabel(o services.Outcome) string {
	switch o {
	case services.OutcomeEscalated:
		return color.New(color.FgYellow).Sprint(string(o))
	case services.OutcomeFailed:
		return color.New(color.FgRed).Sprint(string(o))
	default:
		return color.New(color.FgGreen).Sprint(string(o))
	}
}
