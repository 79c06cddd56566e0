package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *recordingWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

func TestKafkaPublisherPublishEscalation(t *testing.T) {
	writer := &recordingWriter{}
	publisher := &KafkaPublisher{writer: writer}

	event := EscalationEvent{
		RunID:        "run-1",
		DayKey:       "2024-01-15",
		Outcome:      "escalated",
		SuccessCount: 1,
		Recipients:   []string{"bob"},
		OccurredAt:   time.Date(2024, 1, 15, 22, 0, 0, 0, time.UTC),
	}
	require.NoError(t, publisher.PublishEscalation(context.Background(), event))
	require.Len(t, writer.msgs, 1)

	msg := writer.msgs[0]
	require.Equal(t, "2024-01-15", string(msg.Key))
	require.Equal(t, "run_id", msg.Headers[0].Key)
	require.Equal(t, "run-1", string(msg.Headers[0].Value))

	var decoded EscalationEvent
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	require.Equal(t, event.Recipients, decoded.Recipients)
	require.Equal(t, "escalated", decoded.Outcome)
}

func TestKafkaPublisherWrapsWriteError(t *testing.T) {
	boom := errors.New("broker down")
	publisher := &KafkaPublisher{writer: &recordingWriter{err: boom}}

	err := publisher.PublishEscalation(context.Background(), EscalationEvent{DayKey: "2024-01-15"})
	require.ErrorIs(t, err, boom)
}

func TestNoop(t *testing.T) {
	var p Publisher = Noop{}
	require.NoError(t, p.PublishEscalation(context.Background(), EscalationEvent{}))
	require.NoError(t, p.Close())
}
