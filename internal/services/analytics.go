package services

import (
	"context"
	"fmt"
	"strings"

	"pill-reminder/internal/database"
	"pill-reminder/internal/utils"
)

// AdherenceSummary aggregates the last Days local days.
type AdherenceSummary struct {
	Days          int            `json:"days"`
	Taken         int            `json:"taken"`
	Missed        int            `json:"missed"`
	Alerted       int            `json:"alerted"`
	Placebo       int            `json:"placebo"`
	CurrentStreak int            `json:"currentStreak"`
	Rate          float64        `json:"rate"`
	NoteCounts    map[string]int `json:"noteCounts,omitempty"`
	Insights      string         `json:"insights"`
}

type AnalyticsService struct {
	repository *database.Repository
	clock      utils.Clock
}

func NewAnalyticsService(repo *database.Repository, clock utils.Clock) *AnalyticsService {
	return &AnalyticsService{
		repository: repo,
		clock:      clock,
	}
}

func (as *AnalyticsService) Summary(ctx context.Context, days int) (*AdherenceSummary, error) {
	if days <= 0 {
		days = DefaultHistoryDays
	}
	if days > maxHistoryDays {
		days = maxHistoryDays
	}
	keys := as.clock.RecentDayKeys(days)
	records, err := as.repository.RecentDailyRecords(ctx, keys)
	if err != nil {
		return nil, err
	}
	summary := summarize(keys, records)
	summary.Insights = as.generateInsights(summary)
	return summary, nil
}

// summarize expects keys newest first. Today is not counted as missed while still open,
// and days older than the oldest stored record in the window are not counted at all.
func summarize(keys []string, records []database.DailyRecord) *AdherenceSummary {
	byDay := make(map[string]database.DailyRecord, len(records))
	for _, r := range records {
		byDay[r.DayKey] = r
	}

	tracked := 0
	for i, key := range keys {
		if _, ok := byDay[key]; ok {
			tracked = i + 1
		}
	}

	s := &AdherenceSummary{Days: len(keys), NoteCounts: make(map[string]int)}
	streakOpen := true
	for i, key := range keys[:tracked] {
		r := byDay[key]
		if r.AlertSent {
			s.Alerted++
		}
		for _, n := range r.Notes {
			s.NoteCounts[string(n)]++
		}
		if r.Taken {
			s.Taken++
			if r.Variant == database.VariantPlacebo {
				s.Placebo++
			}
			if streakOpen {
				s.CurrentStreak++
			}
			continue
		}
		if i == 0 {
			continue
		}
		s.Missed++
		streakOpen = false
	}

	if counted := s.Taken + s.Missed; counted > 0 {
		s.Rate = float64(s.Taken) / float64(counted) * 100
	}
	if len(s.NoteCounts) == 0 {
		s.NoteCounts = nil
	}
	return s
}

func (as *AnalyticsService) generateInsights(s *AdherenceSummary) string {
	var insights []string

	if s.Taken+s.Missed == 0 {
		return "📊 Not enough data yet. Keep logging!"
	}

	switch {
	case s.Rate >= 95:
		insights = append(insights, "🎯 Excellent adherence, keep it up")
	case s.Rate >= 80:
		insights = append(insights, "📈 Good adherence, a few days slipped")
	default:
		insights = append(insights, "💪 Several doses were missed, consider an earlier reminder")
	}

	if s.CurrentStreak >= 7 {
		insights = append(insights, fmt.Sprintf("🔥 %d day streak", s.CurrentStreak))
	}
	if s.Alerted > 0 {
		insights = append(insights, fmt.Sprintf("🚨 Escalation alerts sent on %d day(s)", s.Alerted))
	}

	return strings.Join(insights, "\n")
}
