package database

import (
	"fmt"
	"time"
)

const (
	DailyLogCollection    = "daily_log"
	UsersConfigCollection = "users_config"
)

type Variant string

const (
	VariantActive  Variant = "active"
	VariantPlacebo Variant = "placebo"
)

func ParseVariant(s string) (Variant, error) {
	switch Variant(s) {
	case "":
		return "", nil
	case VariantActive, VariantPlacebo:
		return Variant(s), nil
	default:
		return "", fmt.Errorf("unknown variant %q", s)
	}
}

type Note string

const (
	NoteCramps         Note = "cramps"
	NoteBleeding       Note = "bleeding"
	NoteDischarge      Note = "discharge"
	NoteBreastPain     Note = "breast_pain"
	NoteBackPain       Note = "back_pain"
	NoteLegPain        Note = "leg_pain"
	NoteAcne           Note = "acne"
	NoteProtectedSex   Note = "protected_sex"
	NoteUnprotectedSex Note = "unprotected_sex"
)

var KnownNotes = map[Note]bool{
	NoteCramps:         true,
	NoteBleeding:       true,
	NoteDischarge:      true,
	NoteBreastPain:     true,
	NoteBackPain:       true,
	NoteLegPain:        true,
	NoteAcne:           true,
	NoteProtectedSex:   true,
	NoteUnprotectedSex: true,
}

// ParseNotes validates tags and drops duplicates, keeping first-seen order.
func ParseNotes(raw []string) ([]Note, error) {
	seen := make(map[Note]bool, len(raw))
	notes := make([]Note, 0, len(raw))
	for _, r := range raw {
		n := Note(r)
		if !KnownNotes[n] {
			return nil, fmt.Errorf("unknown note %q", r)
		}
		if seen[n] {
			continue
		}
		seen[n] = true
		notes = append(notes, n)
	}
	return notes, nil
}

// DailyRecord is the per-day confirmation and alert state. A missing record reads as
// taken=false, alertSent=false.
type DailyRecord struct {
	DayKey      string     `json:"dayKey"`
	Taken       bool       `json:"taken"`
	TakenAt     string     `json:"takenAt,omitempty"`
	AlertSent   bool       `json:"alertSent"`
	AlertSentAt *time.Time `json:"alertSentAt,omitempty"`
	Variant     Variant    `json:"variant,omitempty"`
	Notes       []Note     `json:"notes,omitempty"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

type Role string

const (
	RolePillTaker         Role = "pill_taker"
	RoleReminderRecipient Role = "reminder_recipient"
	RoleUnassigned        Role = ""
)

func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RolePillTaker, RoleReminderRecipient:
		return Role(s), nil
	default:
		return RoleUnassigned, fmt.Errorf("unknown role %q", s)
	}
}

type Platform string

const (
	PlatformExpo     Platform = "expo"
	PlatformTelegram Platform = "telegram"
	PlatformSNS      Platform = "sns"
)

func ParsePlatform(s string) (Platform, error) {
	switch Platform(s) {
	case PlatformExpo, PlatformTelegram, PlatformSNS:
		return Platform(s), nil
	default:
		return "", fmt.Errorf("unknown platform %q", s)
	}
}

// UserConfig maps an identity to its role and, optionally, a push-capable device.
type UserConfig struct {
	UserID    string    `json:"userId"`
	Role      Role      `json:"role"`
	PushToken string    `json:"pushToken,omitempty"`
	Platform  Platform  `json:"platform,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (r DailyRecord) toDocument() Document {
	doc := Document{
		"dayKey":    r.DayKey,
		"taken":     r.Taken,
		"alertSent": r.AlertSent,
		"updatedAt": r.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if r.Taken && r.TakenAt != "" {
		doc["takenAt"] = r.TakenAt
	}
	if r.AlertSentAt != nil {
		doc["alertSentAt"] = r.AlertSentAt.UTC().Format(time.RFC3339Nano)
	}
	if r.Variant != "" {
		doc["variant"] = string(r.Variant)
	}
	if len(r.Notes) > 0 {
		notes := make([]any, len(r.Notes))
		for i, n := range r.Notes {
			notes[i] = string(n)
		}
		doc["notes"] = notes
	}
	return doc
}

func dailyRecordFromDocument(key string, doc Document) DailyRecord {
	r := DailyRecord{
		DayKey:    stringField(doc, "dayKey"),
		Taken:     boolField(doc, "taken"),
		TakenAt:   stringField(doc, "takenAt"),
		AlertSent: boolField(doc, "alertSent"),
		Variant:   Variant(stringField(doc, "variant")),
		UpdatedAt: timeField(doc, "updatedAt"),
	}
	if r.DayKey == "" {
		r.DayKey = key
	}
	if at := timeField(doc, "alertSentAt"); !at.IsZero() {
		r.AlertSentAt = &at
	}
	if raw, ok := doc["notes"].([]any); ok {
		for _, v := range raw {
			if s, ok := v.(string); ok {
				r.Notes = append(r.Notes, Note(s))
			}
		}
	}
	return r
}

func (c UserConfig) toDocument() Document {
	doc := Document{
		"userId":    c.UserID,
		"role":      string(c.Role),
		"updatedAt": c.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if c.PushToken != "" {
		doc["pushToken"] = c.PushToken
	}
	if c.Platform != "" {
		doc["platform"] = string(c.Platform)
	}
	return doc
}

func userConfigFromDocument(doc Document) UserConfig {
	return UserConfig{
		UserID:    stringField(doc, "userId"),
		Role:      Role(stringField(doc, "role")),
		PushToken: stringField(doc, "pushToken"),
		Platform:  Platform(stringField(doc, "platform")),
		UpdatedAt: timeField(doc, "updatedAt"),
	}
}

func stringField(doc Document, name string) string {
	s, _ := doc[name].(string)
	return s
}

func boolField(doc Document, name string) bool {
	b, _ := doc[name].(bool)
	return b
}

func timeField(doc Document, name string) time.Time {
	s, ok := doc[name].(string)
	if !ok {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
