package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pill-reminder/internal/database"
	"pill-reminder/internal/events"
	"pill-reminder/internal/push"
	"pill-reminder/internal/utils"
)

var saoPaulo = utils.LoadLocation(utils.DefaultTimezone)

func fixedClock(t time.Time) utils.Clock {
	return utils.Clock{Location: saoPaulo, NowFunc: func() time.Time { return t }}
}

func at(year int, month time.Month, day, hour, minute int) time.Time {
	return time.Date(year, month, day, hour, minute, 0, 0, saoPaulo)
}

func newTestRepo(t *testing.T) (*database.Repository, database.Store) {
	t.Helper()
	store, err := database.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return database.NewRepository(store), store
}

// fakeFacility records the pending set in memory.
type fakeFacility struct {
	mu            sync.Mutex
	pending       map[string]time.Time
	permissionErr error
	scheduleErr   map[string]error
	cancelled     []string
}

func newFakeFacility() *fakeFacility {
	return &fakeFacility{pending: make(map[string]time.Time), scheduleErr: make(map[string]error)}
}

func (f *fakeFacility) RequestPermission(ctx context.Context) error {
	return f.permissionErr
}

func (f *fakeFacility) ScheduleAt(ctx context.Context, id string, at time.Time, content ReminderContent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.scheduleErr[id]; err != nil {
		return err
	}
	f.pending[id] = at
	return nil
}

func (f *fakeFacility) Cancel(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, id)
	delete(f.pending, id)
	return nil
}

func (f *fakeFacility) CancelAll(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = make(map[string]time.Time)
	return nil
}

func (f *fakeFacility) Pending(ctx context.Context) []ScheduledReminder {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]ScheduledReminder, 0, len(f.pending))
	for id, at := range f.pending {
		out = append(out, ScheduledReminder{DayKey: id, FiringMoment: at})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DayKey < out[j].DayKey })
	return out
}

func pendingKeys(rs []ScheduledReminder) []string {
	keys := make([]string, len(rs))
	for i, r := range rs {
		keys[i] = r.DayKey
	}
	return keys
}

// fakeSender answers per token and records every attempt. Tokens in rejected get an
// unsuccessful receipt without a transport error.
type fakeSender struct {
	mu       sync.Mutex
	attempts []push.Message
	fail     map[string]bool
	rejected map[string]bool
}

func (s *fakeSender) SendTo(ctx context.Context, platform database.Platform, msg push.Message) (push.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts = append(s.attempts, msg)
	if s.fail[msg.To] {
		return push.Receipt{}, errors.New("provider unavailable")
	}
	if s.rejected[msg.To] {
		return push.Receipt{Success: false, ProviderResponse: "DeviceNotRegistered"}, nil
	}
	return push.Receipt{Success: true, ProviderResponse: "ok"}, nil
}

func (s *fakeSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.attempts)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.EscalationEvent
}

func (p *recordingPublisher) PublishEscalation(ctx context.Context, event events.EscalationEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }
