package database

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var ErrUnknownUser = errors.New("user config not found")

// Repository is the typed adapter over the document store for daily records and user configs.
type Repository struct {
	store Store
	now   func() time.Time
}

func NewRepository(store Store) *Repository {
	return &Repository{store: store, now: time.Now}
}

// GetDailyRecord loads a record; when absent it returns the implicit untaken/unalerted record.
func (r *Repository) GetDailyRecord(ctx context.Context, dayKey string) (DailyRecord, bool, error) {
	doc, exists, err := r.store.Get(ctx, DailyLogCollection, dayKey)
	if err != nil {
		return DailyRecord{}, false, err
	}
	if !exists {
		return DailyRecord{DayKey: dayKey}, false, nil
	}
	return dailyRecordFromDocument(dayKey, doc), true, nil
}

// SaveDailyRecord writes intake fields. The alert flag is owned by the escalation path and is
// carried over from the stored record, so a save can never reset it.
func (r *Repository) SaveDailyRecord(ctx context.Context, record DailyRecord) (DailyRecord, error) {
	var saved DailyRecord
	_, err := r.store.Update(ctx, DailyLogCollection, record.DayKey, func(current Document, exists bool) (Document, error) {
		next := record
		if !next.Taken {
			next.TakenAt = ""
		}
		next.AlertSent = false
		next.AlertSentAt = nil
		if exists {
			prev := dailyRecordFromDocument(record.DayKey, current)
			next.AlertSent = prev.AlertSent
			next.AlertSentAt = prev.AlertSentAt
		}
		next.UpdatedAt = r.now().UTC()
		saved = next
		return next.toDocument(), nil
	})
	if err != nil {
		return DailyRecord{}, err
	}
	return saved, nil
}

// DeleteDailyRecord clears a day's intake data. A day that was already alerted keeps a stub
// carrying the alert flag.
func (r *Repository) DeleteDailyRecord(ctx context.Context, dayKey string) error {
	_, err := r.store.Update(ctx, DailyLogCollection, dayKey, func(current Document, exists bool) (Document, error) {
		if !exists {
			return nil, ErrNoChange
		}
		prev := dailyRecordFromDocument(dayKey, current)
		if !prev.AlertSent {
			return nil, nil
		}
		stub := DailyRecord{
			DayKey:      dayKey,
			AlertSent:   true,
			AlertSentAt: prev.AlertSentAt,
			UpdatedAt:   r.now().UTC(),
		}
		return stub.toDocument(), nil
	})
	if errors.Is(err, ErrNoChange) {
		return nil
	}
	return err
}

// MarkAlertSent sets alertSent only when the day is still unconfirmed and not yet alerted,
// creating the record if needed. It reports whether this call performed the transition.
func (r *Repository) MarkAlertSent(ctx context.Context, dayKey string, at time.Time) (bool, error) {
	_, err := r.store.Update(ctx, DailyLogCollection, dayKey, func(current Document, exists bool) (Document, error) {
		rec := DailyRecord{DayKey: dayKey}
		if exists {
			rec = dailyRecordFromDocument(dayKey, current)
		}
		if rec.Taken || rec.AlertSent {
			return nil, ErrNoChange
		}
		sentAt := at.UTC()
		rec.AlertSent = true
		rec.AlertSentAt = &sentAt
		rec.UpdatedAt = r.now().UTC()
		return rec.toDocument(), nil
	})
	if errors.Is(err, ErrNoChange) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("mark alert sent for %s: %w", dayKey, err)
	}
	return true, nil
}

// WatchDailyRecord streams the current value of one day's record.
func (r *Repository) WatchDailyRecord(ctx context.Context, dayKey string, onChange func(DailyRecord, bool)) (func(), error) {
	return r.store.Subscribe(ctx, DailyLogCollection, dayKey, func(doc Document, exists bool) {
		if !exists {
			onChange(DailyRecord{DayKey: dayKey}, false)
			return
		}
		onChange(dailyRecordFromDocument(dayKey, doc), true)
	})
}

// RecentDailyRecords returns the stored records among dayKeys, in the given order.
func (r *Repository) RecentDailyRecords(ctx context.Context, dayKeys []string) ([]DailyRecord, error) {
	records := make([]DailyRecord, 0, len(dayKeys))
	for _, key := range dayKeys {
		rec, exists, err := r.GetDailyRecord(ctx, key)
		if err != nil {
			return nil, err
		}
		if exists {
			records = append(records, rec)
		}
	}
	return records, nil
}

func (r *Repository) GetUserConfig(ctx context.Context, userID string) (UserConfig, bool, error) {
	doc, exists, err := r.store.Get(ctx, UsersConfigCollection, userID)
	if err != nil || !exists {
		return UserConfig{UserID: userID}, false, err
	}
	cfg := userConfigFromDocument(doc)
	cfg.UserID = userID
	return cfg, true, nil
}

func (r *Repository) SaveUserConfig(ctx context.Context, cfg UserConfig) error {
	cfg.UpdatedAt = r.now().UTC()
	return r.store.Set(ctx, UsersConfigCollection, cfg.UserID, cfg.toDocument())
}

// SaveRole sets the role for an identity, keeping any registered device.
func (r *Repository) SaveRole(ctx context.Context, userID string, role Role) (UserConfig, error) {
	var saved UserConfig
	_, err := r.store.Update(ctx, UsersConfigCollection, userID, func(current Document, exists bool) (Document, error) {
		cfg := UserConfig{UserID: userID}
		if exists {
			cfg = userConfigFromDocument(current)
			cfg.UserID = userID
		}
		cfg.Role = role
		cfg.UpdatedAt = r.now().UTC()
		saved = cfg
		return cfg.toDocument(), nil
	})
	return saved, err
}

// UpdatePushToken records the device of an identity that already picked a role.
func (r *Repository) UpdatePushToken(ctx context.Context, userID string, platform Platform, token string) (UserConfig, error) {
	var saved UserConfig
	_, err := r.store.Update(ctx, UsersConfigCollection, userID, func(current Document, exists bool) (Document, error) {
		if !exists {
			return nil, ErrUnknownUser
		}
		cfg := userConfigFromDocument(current)
		cfg.UserID = userID
		cfg.Platform = platform
		cfg.PushToken = token
		cfg.UpdatedAt = r.now().UTC()
		saved = cfg
		return cfg.toDocument(), nil
	})
	return saved, err
}

// RegistrationsByRole lists every identity holding role.
func (r *Repository) RegistrationsByRole(ctx context.Context, role Role) ([]UserConfig, error) {
	docs, err := r.store.Query(ctx, UsersConfigCollection, "role", string(role))
	if err != nil {
		return nil, err
	}
	configs := make([]UserConfig, 0, len(docs))
	for _, doc := range docs {
		configs = append(configs, userConfigFromDocument(doc))
	}
	return configs, nil
}
