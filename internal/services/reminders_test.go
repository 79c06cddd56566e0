package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pill-reminder/internal/database"
	"pill-reminder/internal/push"
	"pill-reminder/internal/utils"
)

var eightPM = utils.HourMinute{Hour: 20, Minute: 0}

func TestScheduleWindowSkipsSatisfiedToday(t *testing.T) {
	facility := newFakeFacility()
	scheduler := NewReminderScheduler(facility, fixedClock(at(2024, 1, 15, 10, 0)))

	scheduled, err := scheduler.ScheduleWindow(context.Background(), 7, eightPM, true)
	require.NoError(t, err)
	require.Len(t, scheduled, 6)

	pending := facility.Pending(context.Background())
	require.Equal(t, []string{
		"2024-01-16", "2024-01-17", "2024-01-18", "2024-01-19", "2024-01-20", "2024-01-21",
	}, pendingKeys(pending))
	for _, r := range pending {
		require.Equal(t, 20, r.FiringMoment.Hour())
		require.Equal(t, r.DayKey, utils.DayKeyOf(r.FiringMoment, saoPaulo))
	}
}

func TestScheduleWindowIncludesTodayWhenOpen(t *testing.T) {
	facility := newFakeFacility()
	scheduler := NewReminderScheduler(facility, fixedClock(at(2024, 1, 15, 10, 0)))

	_, err := scheduler.ScheduleWindow(context.Background(), 3, eightPM, false)
	require.NoError(t, err)
	require.Equal(t, []string{"2024-01-15", "2024-01-16", "2024-01-17"}, pendingKeys(facility.Pending(context.Background())))
}

func TestScheduleWindowIsIdempotent(t *testing.T) {
	ctx := context.Background()
	facility := newFakeFacility()
	scheduler := NewReminderScheduler(facility, fixedClock(at(2024, 1, 15, 10, 0)))

	_, err := scheduler.ScheduleWindow(ctx, 7, eightPM, false)
	require.NoError(t, err)
	first := facility.Pending(ctx)

	_, err = scheduler.ScheduleWindow(ctx, 7, eightPM, false)
	require.NoError(t, err)
	require.Equal(t, first, facility.Pending(ctx))
	require.Len(t, first, 7)
}

func TestScheduleWindowNeverSchedulesThePast(t *testing.T) {
	moments := []time.Time{
		at(2024, 1, 15, 19, 59),
		at(2024, 1, 15, 20, 0),
		at(2024, 1, 15, 23, 59),
		at(2024, 1, 15, 0, 0),
		time.Date(2024, 1, 15, 23, 30, 0, 0, time.UTC),
	}
	for _, now := range moments {
		plan := PlanWindow(now, saoPaulo, 5, eightPM, false)
		for _, r := range plan {
			require.True(t, r.FiringMoment.After(now), "now=%s reminder=%s", now, r.FiringMoment)
		}
	}

	// at the cutoff itself today is dropped
	plan := PlanWindow(at(2024, 1, 15, 20, 0), saoPaulo, 2, eightPM, false)
	require.Equal(t, []string{"2024-01-16"}, pendingKeys(plan))
}

func TestPlanWindowUsesLocalCalendarDay(t *testing.T) {
	// 01:30 UTC on the 16th is still the 15th in São Paulo
	now := time.Date(2024, 1, 16, 1, 30, 0, 0, time.UTC)
	plan := PlanWindow(now, saoPaulo, 2, utils.HourMinute{Hour: 23, Minute: 0}, false)
	require.Equal(t, []string{"2024-01-15", "2024-01-16"}, pendingKeys(plan))
}

func TestScheduleWindowRejectsEmptyWindow(t *testing.T) {
	scheduler := NewReminderScheduler(newFakeFacility(), fixedClock(at(2024, 1, 15, 10, 0)))
	_, err := scheduler.ScheduleWindow(context.Background(), 0, eightPM, false)
	require.ErrorIs(t, err, ErrInvalidWindow)
}

func TestScheduleWindowPermissionDeniedKeepsPending(t *testing.T) {
	ctx := context.Background()
	facility := newFakeFacility()
	scheduler := NewReminderScheduler(facility, fixedClock(at(2024, 1, 15, 10, 0)))
	_, err := scheduler.ScheduleWindow(ctx, 2, eightPM, false)
	require.NoError(t, err)

	facility.permissionErr = errors.New("revoked")
	_, err = scheduler.ScheduleWindow(ctx, 7, eightPM, false)
	require.ErrorIs(t, err, ErrPermissionDenied)
	require.Len(t, facility.Pending(ctx), 2)
}

func TestScheduleWindowContinuesPastFailures(t *testing.T) {
	ctx := context.Background()
	facility := newFakeFacility()
	facility.scheduleErr["2024-01-17"] = errors.New("platform limit")
	scheduler := NewReminderScheduler(facility, fixedClock(at(2024, 1, 15, 10, 0)))

	scheduled, err := scheduler.ScheduleWindow(ctx, 4, eightPM, false)
	require.Error(t, err)
	require.Contains(t, err.Error(), "2024-01-17")
	require.Len(t, scheduled, 3)
	require.Equal(t, []string{"2024-01-15", "2024-01-16", "2024-01-18"}, pendingKeys(facility.Pending(ctx)))
}

func TestCancel(t *testing.T) {
	ctx := context.Background()
	facility := newFakeFacility()
	scheduler := NewReminderScheduler(facility, fixedClock(at(2024, 1, 15, 10, 0)))
	_, err := scheduler.ScheduleWindow(ctx, 3, eightPM, false)
	require.NoError(t, err)

	require.NoError(t, scheduler.Cancel(ctx, "2024-01-15"))
	require.NoError(t, scheduler.Cancel(ctx, "2030-01-01"))
	require.Equal(t, []string{"2024-01-16", "2024-01-17"}, pendingKeys(scheduler.Pending(ctx)))

	require.NoError(t, scheduler.CancelAll(ctx))
	require.Empty(t, scheduler.Pending(ctx))
}

type channelSender struct {
	ready error
	sent  chan ReminderContent
}

func (s *channelSender) Ready(ctx context.Context) error { return s.ready }

func (s *channelSender) SendReminder(ctx context.Context, content ReminderContent) error {
	s.sent <- content
	return nil
}

func TestTimerFacilityFiresAndConsumes(t *testing.T) {
	ctx := context.Background()
	sender := &channelSender{sent: make(chan ReminderContent, 1)}
	facility := NewTimerFacility(sender, time.Now)

	require.NoError(t, facility.RequestPermission(ctx))
	require.NoError(t, facility.ScheduleAt(ctx, "2024-01-15", time.Now().Add(20*time.Millisecond), ReminderContent{DayKey: "2024-01-15", Title: "💊 Pill", Body: "Time to take your pill"}))
	require.Len(t, facility.Pending(ctx), 1)

	select {
	case content := <-sender.sent:
		require.Equal(t, "2024-01-15", content.DayKey)
	case <-time.After(2 * time.Second):
		t.Fatal("reminder did not fire")
	}
	require.Eventually(t, func() bool { return len(facility.Pending(ctx)) == 0 }, time.Second, 10*time.Millisecond)
}

func TestTimerFacilityCancelledTimerDoesNotFire(t *testing.T) {
	ctx := context.Background()
	sender := &channelSender{sent: make(chan ReminderContent, 1)}
	facility := NewTimerFacility(sender, time.Now)

	require.NoError(t, facility.ScheduleAt(ctx, "2024-01-15", time.Now().Add(50*time.Millisecond), ReminderContent{DayKey: "2024-01-15", Title: "💊 Pill", Body: "Time to take your pill"}))
	require.NoError(t, facility.CancelAll(ctx))

	select {
	case <-sender.sent:
		t.Fatal("cancelled reminder fired")
	case <-time.After(150 * time.Millisecond):
	}
}

func TestTimerFacilityPermission(t *testing.T) {
	sender := &channelSender{ready: ErrPermissionDenied}
	facility := NewTimerFacility(sender, time.Now)
	scheduler := NewReminderScheduler(facility, fixedClock(at(2024, 1, 15, 10, 0)))

	_, err := scheduler.ScheduleWindow(context.Background(), 7, eightPM, false)
	require.ErrorIs(t, err, ErrPermissionDenied)
	require.Empty(t, facility.Pending(context.Background()))
}

func TestRegistrationSenderCountsUnsuccessfulReceiptAsFailure(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t)
	for id, token := range map[string]string{"alice": "ExponentPushToken[alice]", "ana": "ExponentPushToken[ana]"} {
		require.NoError(t, repo.SaveUserConfig(ctx, database.UserConfig{
			UserID:    id,
			Role:      database.RolePillTaker,
			Platform:  database.PlatformExpo,
			PushToken: token,
		}))
	}

	sender := &fakeSender{rejected: map[string]bool{"ExponentPushToken[ana]": true}}
	reminders := NewRegistrationSender(repo, sender)
	require.NoError(t, reminders.Ready(ctx))

	err := reminders.SendReminder(ctx, ReminderContent{DayKey: "2024-01-15", Title: "💊 Pill", Body: "Time to take your pill"})
	require.ErrorIs(t, err, push.ErrDeliveryRejected)
	require.Contains(t, err.Error(), "ana")
	require.Contains(t, err.Error(), "DeviceNotRegistered")
	require.NotContains(t, err.Error(), "alice")
	require.Equal(t, 2, sender.count())

	sender.rejected = nil
	require.NoError(t, reminders.SendReminder(ctx, ReminderContent{DayKey: "2024-01-15", Title: "💊 Pill", Body: "Time to take your pill"}))
}
