package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	escalationRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pill_reminder",
		Subsystem: "escalation",
		Name:      "runs_total",
		Help:      "Escalation evaluations, labeled by outcome.",
	}, []string{"outcome"})

	pushDeliveries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pill_reminder",
		Subsystem: "push",
		Name:      "deliveries_total",
		Help:      "Per-recipient push attempts, labeled by platform and result.",
	}, []string{"platform", "result"})

	escalationDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "pill_reminder",
		Subsystem: "escalation",
		Name:      "run_duration_seconds",
		Help:      "Time spent evaluating and fanning out one escalation.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
	})

	remindersScheduled = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "pill_reminder",
		Subsystem: "reminders",
		Name:      "scheduled",
		Help:      "Reminders registered by the most recent window re-sync.",
	})

	lastConfirmation = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "pill_reminder",
		Subsystem: "intake",
		Name:      "last_confirmation_timestamp_seconds",
		Help:      "Unix timestamp of the most recent intake confirmation.",
	})
)

func init() {
	prometheus.MustRegister(escalationRuns, pushDeliveries, escalationDuration, remindersScheduled, lastConfirmation)
}

// RecordEscalation counts one escalation run and its duration.
func RecordEscalation(outcome string, took time.Duration) {
	escalationRuns.WithLabelValues(outcome).Inc()
	escalationDuration.Observe(took.Seconds())
}

func RecordPushDelivery(platform string, ok bool) {
	result := "failed"
	if ok {
		result = "delivered"
	}
	pushDeliveries.WithLabelValues(platform, result).Inc()
}

func RecordRemindersScheduled(n int) {
	remindersScheduled.Set(float64(n))
}

func RecordConfirmation(ts time.Time) {
	if ts.IsZero() {
		return
	}
	lastConfirmation.Set(float64(ts.Unix()))
}
