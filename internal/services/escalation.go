package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"pill-reminder/internal/database"
	"pill-reminder/internal/events"
	"pill-reminder/internal/observability"
	"pill-reminder/internal/push"
	"pill-reminder/internal/utils"
)

const (
	KindPillReminder  = "pill_reminder"
	KindDailyReminder = "daily_reminder"

	alertTitle = "🚨 ALERT: pill not taken!"
)

var (
	ErrNoRecipientConfigured = errors.New("no reminder recipient configured")
	ErrNoValidRecipientToken = errors.New("no reminder recipient has a usable device token")
	ErrAllDeliveriesFailed   = errors.New("every escalation delivery failed")
)

type Outcome string

const (
	OutcomeNoAction  Outcome = "no_action"
	OutcomeEscalated Outcome = "escalated"
	OutcomeFailed    Outcome = "failed"
)

type DeliveryFailure struct {
	UserID string `json:"userId"`
	Error  string `json:"error"`
}

type EscalationResult struct {
	RunID        string            `json:"runId"`
	DayKey       string            `json:"dayKey"`
	Outcome      Outcome           `json:"outcome"`
	Reason       string            `json:"reason,omitempty"`
	SuccessCount int               `json:"successCount"`
	Recipients   []string          `json:"recipients,omitempty"`
	Failures     []DeliveryFailure `json:"failures,omitempty"`
}

// RecipientLookup resolves device registrations for a role.
type RecipientLookup interface {
	RegistrationsByRole(ctx context.Context, role database.Role) ([]database.UserConfig, error)
}

type PushSender interface {
	SendTo(ctx context.Context, platform database.Platform, msg push.Message) (push.Receipt, error)
}

type DailyRecordStore interface {
	GetDailyRecord(ctx context.Context, dayKey string) (database.DailyRecord, bool, error)
	MarkAlertSent(ctx context.Context, dayKey string, at time.Time) (bool, error)
}

// EscalationEngine alerts reminder recipients at most once per day when the dose is unconfirmed.
type EscalationEngine struct {
	mu         sync.Mutex
	records    DailyRecordStore
	recipients RecipientLookup
	sender     PushSender
	publisher  events.Publisher
	clock      utils.Clock
	newRunID   func() string
}

func NewEscalationEngine(records DailyRecordStore, recipients RecipientLookup, sender PushSender, publisher events.Publisher, clock utils.Clock) *EscalationEngine {
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &EscalationEngine{
		records:    records,
		recipients: recipients,
		sender:     sender,
		publisher:  publisher,
		clock:      clock,
		newRunID:   uuid.NewString,
	}
}

// Run evaluates the current day; it is the entry point for time triggers.
func (e *EscalationEngine) Run(ctx context.Context) (*EscalationResult, error) {
	return e.EvaluateAndEscalate(ctx, e.clock.Now())
}

func (e *EscalationEngine) EvaluateAndEscalate(ctx context.Context, now time.Time) (*EscalationResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	started := time.Now()
	result := &EscalationResult{
		RunID:  e.newRunID(),
		DayKey: e.clock.DayKey(now),
	}

	err := e.evaluate(ctx, now, result)
	if err != nil {
		result.Outcome = OutcomeFailed
		result.Reason = err.Error()
	}

	observability.RecordEscalation(string(result.Outcome), time.Since(started))
	e.publish(ctx, now, result)
	return result, err
}

func (e *EscalationEngine) evaluate(ctx context.Context, now time.Time, result *EscalationResult) error {
	dayKey := result.DayKey
	log.Printf("🔍 Escalation %s: checking %s", result.RunID, dayKey)

	record, _, err := e.records.GetDailyRecord(ctx, dayKey)
	if err != nil {
		return fmt.Errorf("load daily record %s: %w", dayKey, err)
	}
	if record.Taken {
		result.Outcome, result.Reason = OutcomeNoAction, "already taken"
		log.Printf("✅ Pill for %s already taken, nothing to do", dayKey)
		return nil
	}
	if record.AlertSent {
		result.Outcome, result.Reason = OutcomeNoAction, "already alerted"
		log.Printf("✅ Alert for %s already sent, nothing to do", dayKey)
		return nil
	}

	regs, err := e.recipients.RegistrationsByRole(ctx, database.RoleReminderRecipient)
	if err != nil {
		return fmt.Errorf("load recipients: %w", err)
	}
	if len(regs) == 0 {
		return ErrNoRecipientConfigured
	}

	var valid []database.UserConfig
	for _, reg := range regs {
		reg.Platform = platformOf(reg)
		if !push.ValidToken(reg.Platform, reg.PushToken) {
			log.Printf("⚠️ Recipient %s has no usable %s token, skipping", reg.UserID, reg.Platform)
			continue
		}
		valid = append(valid, reg)
	}
	if len(valid) == 0 {
		return ErrNoValidRecipientToken
	}

	delivered, failures := e.fanOut(ctx, dayKey, valid)
	result.Failures = failures
	if len(delivered) == 0 {
		return fmt.Errorf("%w: %d attempted", ErrAllDeliveriesFailed, len(valid))
	}

	marked, err := e.records.MarkAlertSent(ctx, dayKey, now)
	if err != nil {
		// pushes already went out; a retry may alert again
		return fmt.Errorf("record alert for %s after %d deliveries: %w", dayKey, len(delivered), err)
	}
	if !marked {
		log.Printf("⚠️ Alert flag for %s was already set by a concurrent run", dayKey)
	}

	result.Outcome = OutcomeEscalated
	result.SuccessCount = len(delivered)
	result.Recipients = delivered
	log.Printf("🚨 Escalated %s to %d recipient(s)", dayKey, len(delivered))
	return nil
}

type deliveryOutcome struct {
	userID string
	err    error
}

func (e *EscalationEngine) fanOut(ctx context.Context, dayKey string, regs []database.UserConfig) ([]string, []DeliveryFailure) {
	msg := push.Message{
		Title: alertTitle,
		Body:  fmt.Sprintf("The pill was not confirmed today (%s). Please check in!", dayKey),
		Data:  map[string]string{"date": dayKey, "kind": KindPillReminder},
	}

	outcomes := make([]deliveryOutcome, len(regs))
	var wg sync.WaitGroup
	for i, reg := range regs {
		wg.Add(1)
		go func(i int, reg database.UserConfig) {
			defer wg.Done()
			m := msg
			m.To = reg.PushToken
			receipt, err := e.sender.SendTo(ctx, reg.Platform, m)
			if err == nil && !receipt.Success {
				err = fmt.Errorf("%w: %s", push.ErrDeliveryRejected, receipt.ProviderResponse)
			}
			observability.RecordPushDelivery(string(reg.Platform), err == nil)
			outcomes[i] = deliveryOutcome{userID: reg.UserID, err: err}
		}(i, reg)
	}
	wg.Wait()

	var delivered []string
	var failures []DeliveryFailure
	for _, o := range outcomes {
		if o.err != nil {
			log.Printf("❌ Escalation push to %s failed: %v", o.userID, o.err)
			failures = append(failures, DeliveryFailure{UserID: o.userID, Error: o.err.Error()})
			continue
		}
		delivered = append(delivered, o.userID)
	}
	return delivered, failures
}

func (e *EscalationEngine) publish(ctx context.Context, now time.Time, result *EscalationResult) {
	event := events.EscalationEvent{
		RunID:        result.RunID,
		DayKey:       result.DayKey,
		Outcome:      string(result.Outcome),
		Reason:       result.Reason,
		SuccessCount: result.SuccessCount,
		FailureCount: len(result.Failures),
		Recipients:   result.Recipients,
		OccurredAt:   now.UTC(),
	}
	if err := e.publisher.PublishEscalation(ctx, event); err != nil {
		log.Printf("⚠️ Escalation event %s not published: %v", result.RunID, err)
	}
}
