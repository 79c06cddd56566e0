package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

const DefaultTopic = "pill-reminder.escalations"

// EscalationEvent is the audit record of one escalation evaluation.
type EscalationEvent struct {
	RunID        string    `json:"runId"`
	DayKey       string    `json:"dayKey"`
	Outcome      string    `json:"outcome"`
	Reason       string    `json:"reason,omitempty"`
	SuccessCount int       `json:"successCount"`
	FailureCount int       `json:"failureCount"`
	Recipients   []string  `json:"recipients,omitempty"`
	OccurredAt   time.Time `json:"occurredAt"`
}

type Publisher interface {
	PublishEscalation(ctx context.Context, event EscalationEvent) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes escalation events keyed by day so one day's events stay ordered.
type KafkaPublisher struct {
	writer messageWriter
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        false,
		},
	}
}

func (p *KafkaPublisher) PublishEscalation(ctx context.Context, event EscalationEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode escalation event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(event.DayKey),
		Value: value,
		Time:  event.OccurredAt,
		Headers: []kafka.Header{
			{Key: "run_id", Value: []byte(event.RunID)},
			{Key: "outcome", Value: []byte(event.Outcome)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish escalation event: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Noop is used when no brokers are configured.
type Noop struct{}

func (Noop) PublishEscalation(context.Context, EscalationEvent) error { return nil }
func (Noop) Close() error { return nil }
