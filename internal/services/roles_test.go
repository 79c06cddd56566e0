package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"pill-reminder/internal/database"
)

func TestRoleLifecycle(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t)
	roles := NewRoleService(repo)

	hookCalls := 0
	roles.OnChange(func(ctx context.Context) error {
		hookCalls++
		return nil
	})

	role, err := roles.Resolve(ctx, "tg:42")
	require.NoError(t, err)
	require.Equal(t, database.RoleUnassigned, role)

	_, err = roles.RegisterDevice(ctx, "tg:42", database.PlatformTelegram, "42")
	require.ErrorIs(t, err, ErrRoleNotSelected)

	_, err = roles.Select(ctx, "tg:42", database.RoleReminderRecipient)
	require.NoError(t, err)

	_, err = roles.RegisterDevice(ctx, "tg:42", database.PlatformExpo, "42")
	require.ErrorIs(t, err, ErrInvalidToken)

	cfg, err := roles.RegisterDevice(ctx, "tg:42", database.PlatformTelegram, "42")
	require.NoError(t, err)
	require.Equal(t, database.RoleReminderRecipient, cfg.Role)
	require.Equal(t, "42", cfg.PushToken)

	role, err = roles.Resolve(ctx, "tg:42")
	require.NoError(t, err)
	require.Equal(t, database.RoleReminderRecipient, role)
	require.Equal(t, 2, hookCalls)
}

func TestRegistrationSenderReady(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t)
	sender := &fakeSender{fail: map[string]bool{}}
	reminders := NewRegistrationSender(repo, sender)

	require.ErrorIs(t, reminders.Ready(ctx), ErrPermissionDenied)

	_, err := repo.SaveRole(ctx, "alice", database.RolePillTaker)
	require.NoError(t, err)
	require.ErrorIs(t, reminders.Ready(ctx), ErrPermissionDenied)

	_, err = repo.UpdatePushToken(ctx, "alice", database.PlatformExpo, "ExponentPushToken[alice]")
	require.NoError(t, err)
	require.NoError(t, reminders.Ready(ctx))

	require.NoError(t, reminders.SendReminder(ctx, reminderContent("2024-01-15")))
	require.Equal(t, 1, sender.count())
	require.Equal(t, KindDailyReminder, sender.attempts[0].Data["kind"])
	require.Equal(t, "2024-01-15", sender.attempts[0].Data["date"])
}
