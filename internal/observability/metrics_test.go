package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRecordEscalation(t *testing.T) {
	before := testutil.ToFloat64(escalationRuns.WithLabelValues("escalated"))
	RecordEscalation("escalated", 20*time.Millisecond)
	require.Equal(t, before+1, testutil.ToFloat64(escalationRuns.WithLabelValues("escalated")))
}

func TestRecordPushDelivery(t *testing.T) {
	before := testutil.ToFloat64(pushDeliveries.WithLabelValues("expo", "failed"))
	RecordPushDelivery("expo", false)
	require.Equal(t, before+1, testutil.ToFloat64(pushDeliveries.WithLabelValues("expo", "failed")))
}

func TestGauges(t *testing.T) {
	RecordRemindersScheduled(6)
	require.Equal(t, float64(6), testutil.ToFloat64(remindersScheduled))

	ts := time.Unix(1705320000, 0)
	RecordConfirmation(ts)
	RecordConfirmation(time.Time{})
	require.Equal(t, float64(ts.Unix()), testutil.ToFloat64(lastConfirmation))
}
