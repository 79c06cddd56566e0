package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"pill-reminder/internal/database"
	"pill-reminder/internal/observability"
	"pill-reminder/internal/push"
)

type ReminderContent struct {
	DayKey string
	Title  string
	Body   string
}

// NotificationFacility is the device-side notification primitive the scheduler drives.
type NotificationFacility interface {
	RequestPermission(ctx context.Context) error
	ScheduleAt(ctx context.Context, id string, at time.Time, content ReminderContent) error
	Cancel(ctx context.Context, id string) error
	CancelAll(ctx context.Context) error
	Pending(ctx context.Context) []ScheduledReminder
}

// ReminderSender delivers a fired reminder to the pill taker.
type ReminderSender interface {
	Ready(ctx context.Context) error
	SendReminder(ctx context.Context, content ReminderContent) error
}

type pendingTimer struct {
	at    time.Time
	timer *time.Timer
}

// TimerFacility keeps one in-process timer per reminder id.
type TimerFacility struct {
	mu     sync.Mutex
	timers map[string]*pendingTimer
	sender ReminderSender
	now    func() time.Time
}

// NewTimerFacility measures delays against now, which should be the scheduler's clock.
func NewTimerFacility(sender ReminderSender, now func() time.Time) *TimerFacility {
	if now == nil {
		now = time.Now
	}
	return &TimerFacility{
		timers: make(map[string]*pendingTimer),
		sender: sender,
		now:    now,
	}
}

func (f *TimerFacility) RequestPermission(ctx context.Context) error {
	return f.sender.Ready(ctx)
}

func (f *TimerFacility) ScheduleAt(ctx context.Context, id string, at time.Time, content ReminderContent) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if old, ok := f.timers[id]; ok {
		old.timer.Stop()
	}

	entry := &pendingTimer{at: at}
	entry.timer = time.AfterFunc(at.Sub(f.now()), func() { f.fire(id, entry, content) })
	f.timers[id] = entry
	return nil
}

// fire consumes the entry before delivery; a superseded timer does nothing.
func (f *TimerFacility) fire(id string, entry *pendingTimer, content ReminderContent) {
	f.mu.Lock()
	if f.timers[id] != entry {
		f.mu.Unlock()
		return
	}
	delete(f.timers, id)
	f.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := f.sender.SendReminder(ctx, content); err != nil {
		log.Printf("❌ Reminder for %s not delivered: %v", id, err)
		return
	}
	log.Printf("✅ Reminder for %s delivered", id)
}

func (f *TimerFacility) Cancel(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if entry, ok := f.timers[id]; ok {
		entry.timer.Stop()
		delete(f.timers, id)
	}
	return nil
}

func (f *TimerFacility) CancelAll(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, entry := range f.timers {
		entry.timer.Stop()
		delete(f.timers, id)
	}
	return nil
}

func (f *TimerFacility) Pending(ctx context.Context) []ScheduledReminder {
	f.mu.Lock()
	defer f.mu.Unlock()
	pending := make([]ScheduledReminder, 0, len(f.timers))
	for id, entry := range f.timers {
		pending = append(pending, ScheduledReminder{DayKey: id, FiringMoment: entry.at})
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].DayKey < pending[j].DayKey })
	return pending
}

// RegistrationSender delivers reminders to every pill taker with a usable device.
type RegistrationSender struct {
	recipients RecipientLookup
	sender     PushSender
}

func NewRegistrationSender(recipients RecipientLookup, sender PushSender) *RegistrationSender {
	return &RegistrationSender{recipients: recipients, sender: sender}
}

func (s *RegistrationSender) targets(ctx context.Context) ([]database.UserConfig, error) {
	regs, err := s.recipients.RegistrationsByRole(ctx, database.RolePillTaker)
	if err != nil {
		return nil, err
	}
	var valid []database.UserConfig
	for _, reg := range regs {
		reg.Platform = platformOf(reg)
		if push.ValidToken(reg.Platform, reg.PushToken) {
			valid = append(valid, reg)
		}
	}
	return valid, nil
}

// Ready reports ErrPermissionDenied until some pill taker has registered a device.
func (s *RegistrationSender) Ready(ctx context.Context) error {
	targets, err := s.targets(ctx)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		return fmt.Errorf("%w: no pill taker device registered", ErrPermissionDenied)
	}
	return nil
}

func (s *RegistrationSender) SendReminder(ctx context.Context, content ReminderContent) error {
	targets, err := s.targets(ctx)
	if err != nil {
		return err
	}
	var errs []error
	for _, reg := range targets {
		receipt, err := s.sender.SendTo(ctx, reg.Platform, push.Message{
			To:    reg.PushToken,
			Title: content.Title,
			Body:  content.Body,
			Data:  map[string]string{"date": content.DayKey, "kind": KindDailyReminder},
		})
		if err == nil && !receipt.Success {
			err = fmt.Errorf("%w: %s", push.ErrDeliveryRejected, receipt.ProviderResponse)
		}
		observability.RecordPushDelivery(string(reg.Platform), err == nil)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", reg.UserID, err))
		}
	}
	return errors.Join(errs...)
}

// platformOf treats registrations saved without a platform as Expo devices.
func platformOf(reg database.UserConfig) database.Platform {
	if reg.Platform == "" {
		return database.PlatformExpo
	}
	return reg.Platform
}
