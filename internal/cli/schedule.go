package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"pill-reminder/internal/config"
	"pill-reminder/internal/services"
	"pill-reminder/internal/utils"
)

const fromLayout = "2006-01-02 15:04"

// ScheduleCmd previews the reminder window a re-sync would build.
func ScheduleCmd() *cobra.Command {
	var (
		days  int
		at    string
		from  string
		taken bool
	)

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Preview the reminder window",
		Long: `Print the reminders a re-sync would schedule, using the configured
timezone, reminder time and window length unless overridden by flags.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			loc := cfg.Location()

			if !cmd.Flags().Changed("days") {
				days = cfg.Schedule.WindowDays
			}
			cutoff := cfg.ReminderCutoff()
			if at != "" {
				if cutoff, err = utils.ParseHourMinute(at); err != nil {
					return fmt.Errorf("invalid --at: %w", err)
				}
			}
			now := time.Now().In(loc)
			if from != "" {
				if now, err = time.ParseInLocation(fromLayout, from, loc); err != nil {
					return fmt.Errorf("invalid --from, want %q: %w", fromLayout, err)
				}
			}
			if days < 1 {
				return services.ErrInvalidWindow
			}

			printPlan(cmd.OutOrStdout(), now, loc, services.PlanWindow(now, loc, days, cutoff, taken))
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 7, "window length in days")
	cmd.Flags().StringVar(&at, "at", "", "reminder time HH:MM")
	cmd.Flags().StringVar(&from, "from", "", "preview as of this local time (YYYY-MM-DD HH:MM)")
	cmd.Flags().BoolVar(&taken, "taken", false, "treat today's dose as already confirmed")
	return cmd
}

func printPlan(w io.Writer, now time.Time, loc *time.Location, plan []services.ScheduledReminder) {
	fmt.Fprintf(w, "As of %s (%s)\n", now.Format(fromLayout), loc)
	if len(plan) == 0 {
		fmt.Fprintln(w, "No reminders would be scheduled.")
		return
	}
	today := utils.DayKeyOf(now, loc)
	for _, r := range plan {
		marker := ""
		if r.DayKey == today {
			marker = color.New(color.FgHiMagenta).Sprint(" ← today")
		}
		fmt.Fprintf(w, "  %s  %s%s\n", r.DayKey, r.FiringMoment.In(loc).Format(utils.TimeOfDayLayout), marker)
	}
}
