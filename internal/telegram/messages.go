package telegram

import (
	"fmt"
	"html"
	"log"
	"sort"
	"strings"

	"pill-reminder/internal/database"
	"pill-reminder/internal/push"
	"pill-reminder/internal/services"
	"pill-reminder/internal/utils"
)

const helpMessage = `💊 <b>Pill Reminder</b>

Commands:
/taker - I take the pill (reminders come here)
/recipient - Alert me when a dose is missed
/taken [active|placebo] [notes] - Confirm today's dose
/status - Today's state
/history - Last 7 days
/help - This message

Notes: cramps, bleeding, discharge, breast_pain, back_pain, leg_pain, acne, protected_sex, unprotected_sex

Example:
/taken placebo cramps`

func (b *Bot) SendMessageOrLogError(chatID int64, message string) {
	if err := b.SendMessage(chatID, message); err != nil {
		log.Printf("❌ Telegram send to %d failed: %v", chatID, err)
	}
}

func formatPush(msg push.Message) string {
	return fmt.Sprintf("<b>%s</b>\n\n%s", html.EscapeString(msg.Title), html.EscapeString(msg.Body))
}

func formatConfirmation(r database.DailyRecord) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("✅ Dose confirmed for %s at %s", r.DayKey, r.TakenAt))
	if r.Variant != "" {
		sb.WriteString("\n" + utils.GetVariantLabel(string(r.Variant)))
	}
	if len(r.Notes) > 0 {
		sb.WriteString("\n" + noteLabels(r.Notes))
	}
	return sb.String()
}

func formatStatus(r database.DailyRecord, timezoneInfo string) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📅 <b>Today %s</b>\n%s\n\n", r.DayKey, timezoneInfo))

	emoji := utils.GetStatusEmoji(r.Taken, r.AlertSent)
	switch {
	case r.Taken:
		sb.WriteString(fmt.Sprintf("%s Taken at %s", emoji, r.TakenAt))
	case r.AlertSent:
		sb.WriteString(fmt.Sprintf("%s Not taken, recipients were alerted", emoji))
	default:
		sb.WriteString(fmt.Sprintf("%s Not taken yet", emoji))
	}

	if r.Variant != "" {
		sb.WriteString("\n" + utils.GetVariantLabel(string(r.Variant)))
	}
	if len(r.Notes) > 0 {
		sb.WriteString("\n" + noteLabels(r.Notes))
	}
	return sb.String()
}

func formatHistory(s *services.AdherenceSummary, records []database.DailyRecord) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📈 <b>Last %d days</b>\n\n", s.Days))
	sb.WriteString(fmt.Sprintf("✅ Taken: %d\n❌ Missed: %d\n", s.Taken, s.Missed))
	if s.Placebo > 0 {
		sb.WriteString(fmt.Sprintf("🟡 Placebo: %d\n", s.Placebo))
	}
	sb.WriteString(fmt.Sprintf("📊 Adherence: %.0f%%\n", s.Rate))

	if len(records) > 0 {
		sb.WriteString("\n")
		for _, r := range records {
			line := fmt.Sprintf("%s %s", utils.GetStatusEmoji(r.Taken, r.AlertSent), r.DayKey)
			if r.Taken && r.TakenAt != "" {
				line += " " + r.TakenAt
			}
			sb.WriteString(line + "\n")
		}
	}

	if len(s.NoteCounts) > 0 {
		sb.WriteString("\n<b>Notes:</b>\n")
		keys := make([]string, 0, len(s.NoteCounts))
		for k := range s.NoteCounts {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			sb.WriteString(fmt.Sprintf("%s: %d\n", utils.GetNoteLabel(k), s.NoteCounts[k]))
		}
	}

	if s.Insights != "" {
		sb.WriteString("\n💡 <b>Insights:</b>\n" + s.Insights)
	}
	return sb.String()
}

func noteLabels(notes []database.Note) string {
	labels := make([]string, 0, len(notes))
	for _, n := range notes {
		labels = append(labels, utils.GetNoteLabel(string(n)))
	}
	return strings.Join(labels, ", ")
}
