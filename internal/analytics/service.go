package analytics

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"callqa/internal/calls"
	"callqa/pkg/metrics"
)

var ErrInvalidRequest = errors.New("analytics: invalid request")

const (
	DefaultTrendDays   = 7
	DefaultWindowLimit = 50
	// MaxTrendDays bounds the scan for a single trends request.
	MaxTrendDays = 366
)

// Service computes dashboard statistics straight from the call store. Nothing
// is cached or materialised; every call rescans the matching records.
type Service struct {
	store calls.Store
	clock func() time.Time
}

func NewService(store calls.Store) *Service {
	return &Service{store: store, clock: time.Now}
}

func (s *Service) scored(ctx context.Context, f calls.Filter) ([]calls.Call, error) {
	f.ScoredOnly = true
	return s.store.List(ctx, f)
}

func (s *Service) Overview(ctx context.Context) (Overview, error) {
	metrics.ObserveAnalytics("overview")

	total, err := s.store.Count(ctx, calls.Filter{})
	if err != nil {
		return Overview{}, err
	}
	rows, err := s.scored(ctx, calls.Filter{})
	if err != nil {
		return Overview{}, err
	}

	out := Overview{TotalCalls: total, ScoredCalls: len(rows)}
	if len(rows) == 0 {
		return out, nil
	}

	var scoreSum, durSum, talkSum float64
	for _, c := range rows {
		scoreSum += c.Scores.OverallScore
		if c.Scores.Flagged() {
			out.FlaggedCalls++
		}
		m := metricsOf(c)
		durSum += m.TotalDuration
		dur := m.TotalDuration
		if dur == 0 {
			dur = 1
		}
		talkSum += m.AgentSeconds / dur * 100
	}
	n := float64(len(rows))
	out.AvgScore = round1(scoreSum / n)
	out.FlaggedPct = round1(float64(out.FlaggedCalls) / n * 100)
	out.AvgDuration = round1(durSum / n)
	out.AvgAgentTalkPct = round1(talkSum / n)
	return out, nil
}

type agentAgg struct {
	calls    int
	score    float64
	flagged  int
	duration float64
}

// Leaderboard ranks agents by mean score. Agents with equal means keep the
// order in which they were first seen, oldest calls first.
func (s *Service) Leaderboard(ctx context.Context) ([]LeaderboardEntry, error) {
	metrics.ObserveAnalytics("leaderboard")

	rows, err := s.scored(ctx, calls.Filter{Order: calls.OldestFirst})
	if err != nil {
		return nil, err
	}

	var order []string
	aggs := map[string]*agentAgg{}
	for _, c := range rows {
		a, ok := aggs[c.AgentID]
		if !ok {
			a = &agentAgg{}
			aggs[c.AgentID] = a
			order = append(order, c.AgentID)
		}
		a.calls++
		a.score += c.Scores.OverallScore
		a.duration += metricsOf(c).TotalDuration
		if c.Scores.Flagged() {
			a.flagged++
		}
	}

	out := make([]LeaderboardEntry, 0, len(order))
	for _, id := range order {
		a := aggs[id]
		n := float64(a.calls)
		out = append(out, LeaderboardEntry{
			AgentID:     id,
			TotalCalls:  a.calls,
			AvgScore:    round1(a.score / n),
			FlaggedPct:  round1(float64(a.flagged) / n * 100),
			AvgDuration: round1(a.duration / n),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].AvgScore > out[j].AvgScore })
	return out, nil
}

// Trends groups scored calls from the last days days by UTC creation date.
// days <= 0 selects DefaultTrendDays.
func (s *Service) Trends(ctx context.Context, days int) ([]TrendPoint, error) {
	metrics.ObserveAnalytics("trends")

	if days <= 0 {
		days = DefaultTrendDays
	}
	if days > MaxTrendDays {
		return nil, ErrInvalidRequest
	}
	since := s.clock().UTC().Add(-time.Duration(days) * 24 * time.Hour)

	rows, err := s.scored(ctx, calls.Filter{CreatedAfter: since, Order: calls.OldestFirst})
	if err != nil {
		return nil, err
	}

	out := []TrendPoint{}
	sums := []float64{}
	idx := map[string]int{}
	for _, c := range rows {
		date := c.CreatedAt.UTC().Format("2006-01-02")
		i, ok := idx[date]
		if !ok {
			i = len(out)
			idx[date] = i
			out = append(out, TrendPoint{Date: date})
			sums = append(sums, 0)
		}
		out[i].CallCount++
		sums[i] += c.Scores.OverallScore
		if c.Scores.Flagged() {
			out[i].FlaggedCount++
		}
	}
	for i := range out {
		out[i].AvgScore = round1(sums[i] / float64(out[i].CallCount))
	}
	return out, nil
}

func (s *Service) Distribution(ctx context.Context) (Distribution, error) {
	metrics.ObserveAnalytics("distribution")

	rows, err := s.scored(ctx, calls.Filter{})
	if err != nil {
		return Distribution{}, err
	}
	var out Distribution
	for _, c := range rows {
		switch score := c.Scores.OverallScore; {
		case score >= 80:
			out.Excellent++
		case score >= 60:
			out.Good++
		case score >= 40:
			out.Average++
		default:
			out.Poor++
		}
	}
	return out, nil
}

// WindowMetrics summarises the limit most recent calls with status scored.
// limit <= 0 selects DefaultWindowLimit.
func (s *Service) WindowMetrics(ctx context.Context, limit int) (WindowMetrics, error) {
	metrics.ObserveAnalytics("window")

	if limit <= 0 {
		limit = DefaultWindowLimit
	}
	rows, err := s.store.List(ctx, calls.Filter{Status: calls.StatusScored, Limit: limit})
	if err != nil {
		return WindowMetrics{}, err
	}
	out := WindowMetrics{TotalCalls: len(rows)}
	if len(rows) == 0 {
		return out, nil
	}

	var sum float64
	var scored, flagged int
	for _, c := range rows {
		if c.Scores == nil {
			continue
		}
		sum += c.Scores.OverallScore
		scored++
		if c.Scores.Flagged() {
			flagged++
		}
	}
	if scored > 0 {
		avg := round1(sum / float64(scored))
		out.AvgOverall = &avg
	}
	out.FlaggedPct = round1(float64(flagged) / float64(len(rows)) * 100)
	return out, nil
}

func metricsOf(c calls.Call) calls.Metrics {
	if c.Metrics == nil {
		return calls.Metrics{}
	}
	return *c.Metrics
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
