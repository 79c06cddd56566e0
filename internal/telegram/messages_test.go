package telegram

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"pill-reminder/internal/database"
	"pill-reminder/internal/push"
	"pill-reminder/internal/services"
)

func TestParseTakenArgs(t *testing.T) {
	variant, notes, err := parseTakenArgs("/taken")
	require.NoError(t, err)
	require.Empty(t, variant)
	require.Empty(t, notes)

	variant, notes, err = parseTakenArgs("/taken Placebo cramps acne cramps")
	require.NoError(t, err)
	require.Equal(t, database.VariantPlacebo, variant)
	require.Equal(t, []database.Note{database.NoteCramps, database.NoteAcne}, notes)

	variant, notes, err = parseTakenArgs("/taken bleeding")
	require.NoError(t, err)
	require.Empty(t, variant)
	require.Equal(t, []database.Note{database.NoteBleeding}, notes)

	_, _, err = parseTakenArgs("/taken active headache")
	require.Error(t, err)
}

func TestParseTakenCallback(t *testing.T) {
	dayKey, ok := parseTakenCallback("taken_2024-01-15")
	require.True(t, ok)
	require.Equal(t, "2024-01-15", dayKey)

	_, ok = parseTakenCallback("taken_tomorrow")
	require.False(t, ok)

	_, ok = parseTakenCallback("complete_1")
	require.False(t, ok)
}

func TestChatIdentity(t *testing.T) {
	require.Equal(t, "tg:42", identityFor(42))
	require.Equal(t, "tg:-1001", identityFor(-1001))

	id, err := parseChatID(" 42 ")
	require.NoError(t, err)
	require.EqualValues(t, 42, id)

	_, err = parseChatID("ExponentPushToken[x]")
	require.ErrorIs(t, err, push.ErrDeliveryRejected)
}

func TestCommandOf(t *testing.T) {
	require.Equal(t, "/taken", commandOf("/taken placebo"))
	require.Equal(t, "/status", commandOf("/status@pill_bot"))
	require.Equal(t, "", commandOf("   "))
}

func TestTakenKeyboard(t *testing.T) {
	kb := takenKeyboard("2024-01-15")
	require.Len(t, kb.InlineKeyboard, 1)
	require.Len(t, kb.InlineKeyboard[0], 1)
	require.NotNil(t, kb.InlineKeyboard[0][0].CallbackData)
	require.Equal(t, "taken_2024-01-15", *kb.InlineKeyboard[0][0].CallbackData)
}

func TestFormatPushEscapesHTML(t *testing.T) {
	text := formatPush(push.Message{Title: "🚨 <alert>", Body: "a & b"})
	require.Equal(t, "<b>🚨 &lt;alert&gt;</b>\n\na &amp; b", text)
}

func TestFormatStatus(t *testing.T) {
	text := formatStatus(database.DailyRecord{DayKey: "2024-01-15"}, "🕐 10:00")
	require.Contains(t, text, "⬜ Not taken yet")
	require.Contains(t, text, "2024-01-15")

	text = formatStatus(database.DailyRecord{DayKey: "2024-01-15", AlertSent: true}, "")
	require.Contains(t, text, "🚨")

	text = formatStatus(database.DailyRecord{
		DayKey:  "2024-01-15",
		Taken:   true,
		TakenAt: "08:30",
		Variant: database.VariantPlacebo,
		Notes:   []database.Note{database.NoteCramps},
	}, "")
	require.Contains(t, text, "✅ Taken at 08:30")
	require.Contains(t, text, "🟡 Placebo")
	require.Contains(t, text, "🤕 Cramps")
}

func TestFormatHistory(t *testing.T) {
	summary := &services.AdherenceSummary{
		Days:       7,
		Taken:      5,
		Missed:     1,
		Rate:       83.3,
		NoteCounts: map[string]int{"acne": 1, "cramps": 2},
		Insights:   "📈 Good adherence",
	}
	records := []database.DailyRecord{
		{DayKey: "2024-01-15", Taken: true, TakenAt: "08:00"},
		{DayKey: "2024-01-14", AlertSent: true},
	}

	text := formatHistory(summary, records)
	require.Contains(t, text, "Last 7 days")
	require.Contains(t, text, "📊 Adherence: 83%")
	require.Contains(t, text, "✅ 2024-01-15 08:00")
	require.Contains(t, text, "🚨 2024-01-14")
	require.Less(t, strings.Index(text, "Acne"), strings.Index(text, "Cramps"))
	require.Contains(t, text, "📈 Good adherence")
	require.NotContains(t, text, "Placebo")
}
