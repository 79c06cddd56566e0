package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"pill-reminder/internal/database"
	"pill-reminder/internal/observability"
	"pill-reminder/internal/utils"
)

const (
	DefaultHistoryDays = 30
	maxHistoryDays     = 366
)

var (
	ErrFutureDay      = errors.New("cannot record a future day")
	ErrInvalidDayKey  = errors.New("day key must be YYYY-MM-DD")
	ErrInvalidTakenAt = errors.New("taken-at must be HH:MM")
)

// ReminderWindow is the reminder schedule every re-sync uses.
type ReminderWindow struct {
	Days   int
	Cutoff utils.HourMinute
}

type IntakeService struct {
	repository *database.Repository
	reminders  *ReminderScheduler
	window     ReminderWindow
	clock      utils.Clock
}

func NewIntakeService(repo *database.Repository, reminders *ReminderScheduler, window ReminderWindow, clock utils.Clock) *IntakeService {
	return &IntakeService{
		repository: repo,
		reminders:  reminders,
		window:     window,
		clock:      clock,
	}
}

// Confirm records today's dose at the current local time.
func (s *IntakeService) Confirm(ctx context.Context, variant database.Variant, notes []database.Note) (database.DailyRecord, error) {
	now := s.clock.Now()
	return s.saveTaken(ctx, s.clock.DayKey(now), s.clock.TimeOfDay(now), variant, notes)
}

// RecordRetroactive fills in a past day. An empty takenAt means "now" for today.
func (s *IntakeService) RecordRetroactive(ctx context.Context, dayKey, takenAt string, variant database.Variant, notes []database.Note) (database.DailyRecord, error) {
	if _, err := utils.ParseDayKey(dayKey, s.clock.Location); err != nil {
		return database.DailyRecord{}, fmt.Errorf("%w: %q", ErrInvalidDayKey, dayKey)
	}
	today := s.clock.Today()
	if dayKey > today {
		return database.DailyRecord{}, fmt.Errorf("%w: %s", ErrFutureDay, dayKey)
	}
	if takenAt == "" {
		if dayKey != today {
			return database.DailyRecord{}, fmt.Errorf("%w: required for past days", ErrInvalidTakenAt)
		}
		takenAt = s.clock.TimeOfDay(s.clock.Now())
	}
	hm, err := utils.ParseHourMinute(takenAt)
	if err != nil {
		return database.DailyRecord{}, fmt.Errorf("%w: %q", ErrInvalidTakenAt, takenAt)
	}
	return s.saveTaken(ctx, dayKey, hm.String(), variant, notes)
}

func (s *IntakeService) saveTaken(ctx context.Context, dayKey, takenAt string, variant database.Variant, notes []database.Note) (database.DailyRecord, error) {
	record, err := s.repository.SaveDailyRecord(ctx, database.DailyRecord{
		DayKey:  dayKey,
		Taken:   true,
		TakenAt: takenAt,
		Variant: variant,
		Notes:   notes,
	})
	if err != nil {
		return database.DailyRecord{}, fmt.Errorf("save %s: %w", dayKey, err)
	}
	log.Printf("💊 Intake recorded for %s at %s", dayKey, takenAt)

	if dayKey == s.clock.Today() {
		observability.RecordConfirmation(s.clock.Now())
		if err := s.reminders.Cancel(ctx, dayKey); err != nil {
			log.Printf("⚠️ Could not cancel reminder for %s: %v", dayKey, err)
		}
		if err := s.ResyncReminders(ctx); err != nil {
			log.Printf("⚠️ Reminder re-sync after confirmation failed: %v", err)
		}
	}
	return record, nil
}

// Delete removes a day's entry; deleting today's entry brings its reminder back.
func (s *IntakeService) Delete(ctx context.Context, dayKey string) error {
	if _, err := utils.ParseDayKey(dayKey, s.clock.Location); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidDayKey, dayKey)
	}
	if err := s.repository.DeleteDailyRecord(ctx, dayKey); err != nil {
		return fmt.Errorf("delete %s: %w", dayKey, err)
	}
	if dayKey == s.clock.Today() {
		if err := s.ResyncReminders(ctx); err != nil {
			log.Printf("⚠️ Reminder re-sync after delete failed: %v", err)
		}
	}
	return nil
}

func (s *IntakeService) Today(ctx context.Context) (database.DailyRecord, error) {
	record, _, err := s.repository.GetDailyRecord(ctx, s.clock.Today())
	return record, err
}

func (s *IntakeService) Get(ctx context.Context, dayKey string) (database.DailyRecord, bool, error) {
	if _, err := utils.ParseDayKey(dayKey, s.clock.Location); err != nil {
		return database.DailyRecord{}, false, fmt.Errorf("%w: %q", ErrInvalidDayKey, dayKey)
	}
	return s.repository.GetDailyRecord(ctx, dayKey)
}

// History returns stored records of the last days local days, newest first.
func (s *IntakeService) History(ctx context.Context, days int) ([]database.DailyRecord, error) {
	if days <= 0 {
		days = DefaultHistoryDays
	}
	if days > maxHistoryDays {
		days = maxHistoryDays
	}
	return s.repository.RecentDailyRecords(ctx, s.clock.RecentDayKeys(days))
}

// Watch streams the record of one day until the returned func is called.
func (s *IntakeService) Watch(ctx context.Context, dayKey string, onChange func(database.DailyRecord, bool)) (func(), error) {
	if _, err := utils.ParseDayKey(dayKey, s.clock.Location); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDayKey, dayKey)
	}
	return s.repository.WatchDailyRecord(ctx, dayKey, onChange)
}

// ResyncReminders rebuilds the reminder window from today's state. With nobody to
// remind, pending reminders are dropped.
func (s *IntakeService) ResyncReminders(ctx context.Context) error {
	today, err := s.Today(ctx)
	if err != nil {
		return fmt.Errorf("load today: %w", err)
	}
	_, err = s.reminders.ScheduleWindow(ctx, s.window.Days, s.window.Cutoff, today.Taken)
	if errors.Is(err, ErrPermissionDenied) {
		if cancelErr := s.reminders.CancelAll(ctx); cancelErr != nil {
			return errors.Join(err, cancelErr)
		}
	}
	return err
}

func (s *IntakeService) PendingReminders(ctx context.Context) []ScheduledReminder {
	return s.reminders.Pending(ctx)
}
