package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"pill-reminder/internal/observability"
	"pill-reminder/internal/utils"
)

var (
	ErrInvalidWindow    = errors.New("reminder window must cover at least one day")
	ErrPermissionDenied = errors.New("reminder delivery not permitted")
)

// ScheduledReminder is one pending local reminder; DayKey doubles as its id.
type ScheduledReminder struct {
	DayKey       string    `json:"dayKey"`
	FiringMoment time.Time `json:"firingMoment"`
}

// PlanWindow decides which reminders a re-sync at now should register.
func PlanWindow(now time.Time, loc *time.Location, windowDays int, cutoff utils.HourMinute, todayAlreadySatisfied bool) []ScheduledReminder {
	plan := make([]ScheduledReminder, 0, windowDays)
	for i := 0; i < windowDays; i++ {
		if i == 0 && todayAlreadySatisfied {
			continue
		}
		moment := cutoff.On(now, i, loc)
		if !moment.After(now) {
			continue
		}
		plan = append(plan, ScheduledReminder{
			DayKey:       utils.DayKeyOf(moment, loc),
			FiringMoment: moment,
		})
	}
	return plan
}

func reminderContent(dayKey string) ReminderContent {
	return ReminderContent{
		DayKey: dayKey,
		Title:  "💊 Pill reminder",
		Body:   "Time to take your pill!",
	}
}

// ReminderScheduler keeps the facility's pending set equal to the planned window.
type ReminderScheduler struct {
	mu       sync.Mutex
	facility NotificationFacility
	clock    utils.Clock
}

func NewReminderScheduler(facility NotificationFacility, clock utils.Clock) *ReminderScheduler {
	return &ReminderScheduler{facility: facility, clock: clock}
}

// ScheduleWindow replaces every pending reminder with the window starting today.
func (s *ReminderScheduler) ScheduleWindow(ctx context.Context, windowDays int, cutoff utils.HourMinute, todayAlreadySatisfied bool) ([]ScheduledReminder, error) {
	if windowDays < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidWindow, windowDays)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.facility.RequestPermission(ctx); err != nil {
		if errors.Is(err, ErrPermissionDenied) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrPermissionDenied, err)
	}
	if err := s.facility.CancelAll(ctx); err != nil {
		return nil, fmt.Errorf("clear pending reminders: %w", err)
	}

	now := s.clock.Now()
	plan := PlanWindow(now, s.clock.Location, windowDays, cutoff, todayAlreadySatisfied)

	scheduled := make([]ScheduledReminder, 0, len(plan))
	var errs []error
	for _, r := range plan {
		if err := s.facility.ScheduleAt(ctx, r.DayKey, r.FiringMoment, reminderContent(r.DayKey)); err != nil {
			errs = append(errs, fmt.Errorf("schedule %s: %w", r.DayKey, err))
			continue
		}
		scheduled = append(scheduled, r)
	}

	observability.RecordRemindersScheduled(len(scheduled))
	log.Printf("🔔 Reminders re-synced: %d of %d planned (window=%d, at %s)", len(scheduled), len(plan), windowDays, cutoff)
	return scheduled, errors.Join(errs...)
}

// Cancel drops the reminder for one day; a missing entry is not an error.
func (s *ReminderScheduler) Cancel(ctx context.Context, dayKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.facility.Cancel(ctx, dayKey)
}

func (s *ReminderScheduler) CancelAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.facility.CancelAll(ctx)
}

func (s *ReminderScheduler) Pending(ctx context.Context) []ScheduledReminder {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.facility.Pending(ctx)
}
