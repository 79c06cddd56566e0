package telegram

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"

	"pill-reminder/internal/database"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const historyDays = 7

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) {
	b.SendMessageOrLogError(msg.Chat.ID, helpMessage)
}

func (b *Bot) handleTaker(ctx context.Context, msg *tgbotapi.Message) {
	b.selectRole(ctx, msg.Chat.ID, database.RolePillTaker)
}

func (b *Bot) handleRecipient(ctx context.Context, msg *tgbotapi.Message) {
	b.selectRole(ctx, msg.Chat.ID, database.RoleReminderRecipient)
}

// selectRole stores the role and registers this chat as the identity's device.
func (b *Bot) selectRole(ctx context.Context, chatID int64, role database.Role) {
	identity := identityFor(chatID)
	if _, err := b.services.Roles.Select(ctx, identity, role); err != nil {
		log.Printf("❌ Role selection for %s failed: %v", identity, err)
		b.SendMessageOrLogError(chatID, "❌ Could not save your role")
		return
	}
	chat := strconv.FormatInt(chatID, 10)
	if _, err := b.services.Roles.RegisterDevice(ctx, identity, database.PlatformTelegram, chat); err != nil {
		log.Printf("❌ Device registration for %s failed: %v", identity, err)
		b.SendMessageOrLogError(chatID, "❌ Could not register this chat for notifications")
		return
	}
	b.SendMessageOrLogError(chatID, roleConfirmation(role))
}

func (b *Bot) handleTaken(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	if !b.requirePillTaker(ctx, chatID) {
		return
	}

	variant, notes, err := parseTakenArgs(msg.Text)
	if err != nil {
		b.SendMessageOrLogError(chatID, fmt.Sprintf("❌ %s\nFormat: /taken [active|placebo] [notes...]", err))
		return
	}

	record, err := b.services.Intake.Confirm(ctx, variant, notes)
	if err != nil {
		log.Printf("❌ Confirmation from %s failed: %v", identityFor(chatID), err)
		b.SendMessageOrLogError(chatID, "❌ Could not save the confirmation")
		return
	}
	b.SendMessageOrLogError(chatID, formatConfirmation(record))
}

// handleTakenCallback confirms the dose from a reminder button. It reports
// whether the confirmation was stored.
func (b *Bot) handleTakenCallback(ctx context.Context, chatID int64, dayKey string) bool {
	if !b.requirePillTaker(ctx, chatID) {
		return false
	}
	if dayKey != b.clock.Today() {
		b.SendMessageOrLogError(chatID, fmt.Sprintf("⌛ The reminder for %s has expired. Fill the day in from the app.", dayKey))
		return false
	}

	record, err := b.services.Intake.Confirm(ctx, "", nil)
	if err != nil {
		log.Printf("❌ Confirmation from %s failed: %v", identityFor(chatID), err)
		b.SendMessageOrLogError(chatID, "❌ Could not save the confirmation")
		return false
	}
	b.SendMessageOrLogError(chatID, formatConfirmation(record))
	return true
}

func (b *Bot) requirePillTaker(ctx context.Context, chatID int64) bool {
	role, err := b.services.Roles.Resolve(ctx, identityFor(chatID))
	if err != nil {
		log.Printf("❌ %v", err)
		b.SendMessageOrLogError(chatID, "❌ Could not load your profile")
		return false
	}
	if role != database.RolePillTaker {
		b.SendMessageOrLogError(chatID, "⛔ Only the pill taker can confirm doses. Use /taker first.")
		return false
	}
	return true
}

func (b *Bot) handleStatus(ctx context.Context, msg *tgbotapi.Message) {
	record, err := b.services.Intake.Today(ctx)
	if err != nil {
		log.Printf("❌ Loading today's record failed: %v", err)
		b.SendMessageOrLogError(msg.Chat.ID, "❌ Could not load today's record")
		return
	}
	b.SendMessageOrLogError(msg.Chat.ID, formatStatus(record, b.clock.TimezoneInfo()))
}

func (b *Bot) handleHistory(ctx context.Context, msg *tgbotapi.Message) {
	summary, err := b.services.Analytics.Summary(ctx, historyDays)
	if err != nil {
		log.Printf("❌ Summary failed: %v", err)
		b.SendMessageOrLogError(msg.Chat.ID, "❌ Could not build the summary")
		return
	}
	records, err := b.services.Intake.History(ctx, historyDays)
	if err != nil {
		log.Printf("❌ History failed: %v", err)
		b.SendMessageOrLogError(msg.Chat.ID, "❌ Could not load the history")
		return
	}
	b.SendMessageOrLogError(msg.Chat.ID, formatHistory(summary, records))
}

// parseTakenArgs reads "/taken [active|placebo] [note ...]".
func parseTakenArgs(text string) (database.Variant, []database.Note, error) {
	args := strings.Fields(text)
	if len(args) > 0 {
		args = args[1:]
	}

	var variant database.Variant
	if len(args) > 0 {
		if v, err := database.ParseVariant(strings.ToLower(args[0])); err == nil {
			variant = v
			args = args[1:]
		}
	}

	raw := make([]string, 0, len(args))
	for _, a := range args {
		raw = append(raw, strings.ToLower(a))
	}
	notes, err := database.ParseNotes(raw)
	if err != nil {
		return "", nil, err
	}
	return variant, notes, nil
}

func roleConfirmation(role database.Role) string {
	switch role {
	case database.RolePillTaker:
		return "💊 You are the <b>pill taker</b>. Daily reminders will arrive in this chat."
	case database.RoleReminderRecipient:
		return "🔔 You are a <b>reminder recipient</b>. You will be alerted here if a dose is missed."
	default:
		return "👤 Role cleared"
	}
}
