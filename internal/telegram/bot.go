package telegram

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"

	"pill-reminder/internal/push"
	"pill-reminder/internal/services"
	"pill-reminder/internal/utils"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const takenCallbackPrefix = "taken_"

type Bot struct {
	bot      *tgbotapi.BotAPI
	services *services.ServiceManager
	clock    utils.Clock
	handlers map[string]func(context.Context, *tgbotapi.Message)
}

func NewBot(token string, serviceManager *services.ServiceManager, clock utils.Clock) (*Bot, error) {
	botAPI, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	bot := &Bot{
		bot:      botAPI,
		services: serviceManager,
		clock:    clock,
		handlers: make(map[string]func(context.Context, *tgbotapi.Message)),
	}

	bot.registerHandlers()
	log.Printf("🤖 Bot initialized: %s", botAPI.Self.UserName)
	return bot, nil
}

func (b *Bot) registerHandlers() {
	b.handlers["/start"] = b.handleStart
	b.handlers["/help"] = b.handleStart
	b.handlers["/taker"] = b.handleTaker
	b.handlers["/recipient"] = b.handleRecipient
	b.handlers["/taken"] = b.handleTaken
	b.handlers["/status"] = b.handleStatus
	b.handlers["/history"] = b.handleHistory
}

func (b *Bot) SendMessage(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	_, err := b.bot.Send(msg)
	return err
}

// Send delivers a push message to the chat named by msg.To. Daily reminders
// carry a button that confirms the dose.
func (b *Bot) Send(ctx context.Context, msg push.Message) (push.Receipt, error) {
	chatID, err := parseChatID(msg.To)
	if err != nil {
		return push.Receipt{}, err
	}

	out := tgbotapi.NewMessage(chatID, formatPush(msg))
	out.ParseMode = tgbotapi.ModeHTML
	if msg.Data["kind"] == services.KindDailyReminder && msg.Data["date"] != "" {
		out.ReplyMarkup = takenKeyboard(msg.Data["date"])
	}

	sent, err := b.bot.Send(out)
	if err != nil {
		return push.Receipt{}, fmt.Errorf("telegram send to %d: %w", chatID, err)
	}
	return push.Receipt{Success: true, ProviderResponse: strconv.Itoa(sent.MessageID)}, nil
}

func takenKeyboard(dayKey string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Taken", takenCallbackPrefix+dayKey),
		),
	)
}

func (b *Bot) GetUsername() string {
	return b.bot.Self.UserName
}

func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.bot.StopReceivingUpdates()
			return
		case update := <-updates:
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.CallbackQuery != nil {
		b.handleCallbackQuery(ctx, update.CallbackQuery)
		return
	}

	if update.Message == nil {
		return
	}

	b.handleMessage(ctx, update.Message)
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	text := msg.Text
	if text == "" || !strings.HasPrefix(text, "/") {
		return
	}

	command := commandOf(text)
	if handler, exists := b.handlers[command]; exists {
		handler(ctx, msg)
		return
	}
	b.SendMessageOrLogError(msg.Chat.ID, "❌ Unknown command. Use /help")
}

func (b *Bot) handleCallbackQuery(ctx context.Context, callback *tgbotapi.CallbackQuery) {
	answer := "✅"
	defer func() {
		if _, err := b.bot.Request(tgbotapi.NewCallback(callback.ID, answer)); err != nil {
			log.Printf("⚠️ Telegram callback answer failed: %v", err)
		}
	}()

	if callback.Message == nil {
		return
	}

	data := callback.Data
	log.Printf("📨 Received callback: %s", data)

	if dayKey, ok := parseTakenCallback(data); ok {
		if !b.handleTakenCallback(ctx, callback.Message.Chat.ID, dayKey) {
			answer = "❌"
			return
		}
		b.clearKeyboard(callback.Message.Chat.ID, callback.Message.MessageID)
	}
}

// clearKeyboard removes the inline buttons so a reminder cannot be confirmed twice.
func (b *Bot) clearKeyboard(chatID int64, messageID int) {
	edit := tgbotapi.NewEditMessageReplyMarkup(chatID, messageID, tgbotapi.InlineKeyboardMarkup{
		InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{},
	})

	if _, err := b.bot.Request(edit); err != nil {
		log.Printf("⚠️ Could not clear keyboard of message %d: %v", messageID, err)
	}
}

func identityFor(chatID int64) string {
	return "tg:" + strconv.FormatInt(chatID, 10)
}

func parseChatID(to string) (int64, error) {
	chatID, err := strconv.ParseInt(strings.TrimSpace(to), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: telegram chat id %q", push.ErrDeliveryRejected, to)
	}
	return chatID, nil
}

func parseTakenCallback(data string) (string, bool) {
	if !strings.HasPrefix(data, takenCallbackPrefix) {
		return "", false
	}
	dayKey := strings.TrimPrefix(data, takenCallbackPrefix)
	if len(dayKey) != len(utils.DayKeyLayout) {
		return "", false
	}
	return dayKey, true
}

// commandOf strips arguments and a trailing @botname.
func commandOf(text string) string {
	parts := strings.Fields(text)
	if len(parts) == 0 {
		return ""
	}
	command, _, _ := strings.Cut(parts[0], "@")
	return command
}
