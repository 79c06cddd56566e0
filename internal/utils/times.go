package utils

import (
	"errors"
	"fmt"
	"log"
	"time"
)

const (
	DayKeyLayout    = "2006-01-02"
	TimeOfDayLayout = "15:04"

	// DefaultTimezone is where the pill taker lives; the daily trigger runs in this zone too.
	DefaultTimezone = "America/Sao_Paulo"
)

var ErrInvalidTimeOfDay = errors.New("time of day must be HH:MM")

// LoadLocation loads an IANA zone, falling back to a fixed UTC-3 zone when tzdata is missing.
func LoadLocation(name string) *time.Location {
	if name == "" {
		name = DefaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		log.Printf("⚠️ Timezone %s unavailable (%v), falling back to UTC-3", name, err)
		return time.FixedZone("BRT", -3*60*60)
	}
	return loc
}

// DayKeyOf returns the local calendar date of t in loc as YYYY-MM-DD.
// This is the only day-key derivation used anywhere in the service.
func DayKeyOf(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(DayKeyLayout)
}

// TimeOfDay returns the local wall-clock time of t in loc as HH:MM.
func TimeOfDay(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(TimeOfDayLayout)
}

// ParseDayKey returns local midnight of the given day-key.
func ParseDayKey(key string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(DayKeyLayout, key, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid day key %q: %w", key, err)
	}
	return t, nil
}

// StartOfDay returns local midnight of the day containing t.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// AddDays moves a day-key by n calendar days.
func AddDays(key string, n int, loc *time.Location) (string, error) {
	day, err := ParseDayKey(key, loc)
	if err != nil {
		return "", err
	}
	return time.Date(day.Year(), day.Month(), day.Day()+n, 0, 0, 0, 0, loc).Format(DayKeyLayout), nil
}

// HourMinute is a fixed local wall-clock time such as the 20:00 reminder.
type HourMinute struct {
	Hour   int
	Minute int
}

func ParseHourMinute(s string) (HourMinute, error) {
	t, err := time.Parse(TimeOfDayLayout, s)
	if err != nil {
		return HourMinute{}, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, s)
	}
	return HourMinute{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (hm HourMinute) String() string {
	return fmt.Sprintf("%02d:%02d", hm.Hour, hm.Minute)
}

// On builds the moment hm on the calendar day of `day` shifted by offset days.
// Calendar fields are used so DST transitions never move the reminder to a neighbouring day.
func (hm HourMinute) On(day time.Time, offset int, loc *time.Location) time.Time {
	local := day.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day()+offset, hm.Hour, hm.Minute, 0, 0, loc)
}

// CronSpec renders hm as a daily cron expression.
func (hm HourMinute) CronSpec() string {
	return fmt.Sprintf("%d %d * * *", hm.Minute, hm.Hour)
}

// Clock bundles the service timezone with a source of "now".
type Clock struct {
	Location *time.Location
	NowFunc  func() time.Time
}

func NewClock(loc *time.Location) Clock {
	return Clock{Location: loc, NowFunc: time.Now}
}

func (c Clock) Now() time.Time {
	if c.NowFunc == nil {
		return time.Now().In(c.Location)
	}
	return c.NowFunc().In(c.Location)
}

func (c Clock) Today() string {
	return DayKeyOf(c.Now(), c.Location)
}

func (c Clock) DayKey(t time.Time) string {
	return DayKeyOf(t, c.Location)
}

func (c Clock) TimeOfDay(t time.Time) string {
	return TimeOfDay(t, c.Location)
}

// RecentDayKeys lists the last n day-keys ending today, newest first.
func (c Clock) RecentDayKeys(n int) []string {
	now := c.Now()
	keys := make([]string, 0, n)
	for i := 0; i < n; i++ {
		keys = append(keys, time.Date(now.Year(), now.Month(), now.Day()-i, 12, 0, 0, 0, c.Location).Format(DayKeyLayout))
	}
	return keys
}

// TimezoneInfo is a short human description used in bot messages.
func (c Clock) TimezoneInfo() string {
	now := c.Now()
	name, offset := now.Zone()
	return fmt.Sprintf("🕐 %s %s (UTC%+d)", now.Format(TimeOfDayLayout), name, offset/3600)
}
