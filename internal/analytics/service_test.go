package analytics

import (
	"bytes"
	"context"
	"testing"
	"time"

	"callqa/internal/calls"

	"github.com/xuri/excelize/v2"
)

var now = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func scoredCall(id, agent string, score float64, flagged bool, dur, agentSec float64, created time.Time) calls.Call {
	c := calls.Call{
		CallID:    id,
		AgentID:   agent,
		AudioRef:  id + ".wav",
		Status:    calls.StatusScored,
		Scores:    &calls.Scores{OverallScore: score},
		Metrics:   &calls.Metrics{TotalDuration: dur, AgentSeconds: agentSec},
		CreatedAt: created,
		UpdatedAt: created,
	}
	if flagged {
		c.Scores.Flags = []calls.Flag{{Title: "escalation"}}
	}
	return c
}

func newService(t *testing.T, rows ...calls.Call) *Service {
	t.Helper()
	repo := calls.NewMemoryRepo()
	for _, c := range rows {
		if err := repo.Create(context.Background(), c); err != nil {
			t.Fatalf("seed %s: %v", c.CallID, err)
		}
	}
	svc := NewService(repo)
	svc.clock = func() time.Time { return now }
	return svc
}

func TestOverview_Empty(t *testing.T) {
	out, err := newService(t).Overview(context.Background())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out != (Overview{}) {
		t.Fatalf("expected zero overview, got %+v", out)
	}
}

func TestOverview_Aggregates(t *testing.T) {
	pending := calls.Call{CallID: "p", AgentID: "A", AudioRef: "p.wav", Status: calls.StatusFailed, CreatedAt: now, UpdatedAt: now}
	svc := newService(t,
		scoredCall("c1", "A", 90, true, 100, 40, now.Add(-3*time.Hour)),
		scoredCall("c2", "B", 70, false, 50, 30, now.Add(-2*time.Hour)),
		scoredCall("c3", "B", 61, false, 0, 2, now.Add(-time.Hour)),
		pending,
	)

	out, err := svc.Overview(context.Background())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.TotalCalls != 4 || out.ScoredCalls != 3 || out.FlaggedCalls != 1 {
		t.Fatalf("unexpected counts: %+v", out)
	}
	if out.AvgScore != 73.7 {
		t.Fatalf("expected avg 73.7, got %v", out.AvgScore)
	}
	if out.FlaggedPct != 33.3 {
		t.Fatalf("expected flagged 33.3, got %v", out.FlaggedPct)
	}
	if out.AvgDuration != 50 {
		t.Fatalf("expected duration 50, got %v", out.AvgDuration)
	}
	// (40 + 60 + 200) / 3 with zero duration counted as 1.
	if out.AvgAgentTalkPct != 100 {
		t.Fatalf("expected talk pct 100, got %v", out.AvgAgentTalkPct)
	}
}

func TestLeaderboard_SortedByAverage(t *testing.T) {
	svc := newService(t,
		scoredCall("b1", "B", 50, true, 60, 30, now.Add(-3*time.Hour)),
		scoredCall("a1", "A", 70, false, 120, 60, now.Add(-2*time.Hour)),
		scoredCall("a2", "A", 90, false, 60, 30, now.Add(-time.Hour)),
	)

	out, err := svc.Leaderboard(context.Background())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 agents, got %d", len(out))
	}
	if out[0].AgentID != "A" || out[0].AvgScore != 80 || out[0].TotalCalls != 2 || out[0].AvgDuration != 90 {
		t.Fatalf("unexpected first entry: %+v", out[0])
	}
	if out[1].AgentID != "B" || out[1].AvgScore != 50 || out[1].FlaggedPct != 100 {
		t.Fatalf("unexpected second entry: %+v", out[1])
	}
}

func TestLeaderboard_TiesKeepEncounterOrder(t *testing.T) {
	svc := newService(t,
		scoredCall("z", "Z", 75, false, 10, 5, now.Add(-3*time.Hour)),
		scoredCall("m", "M", 75, false, 10, 5, now.Add(-2*time.Hour)),
		scoredCall("a", "A", 75, false, 10, 5, now.Add(-time.Hour)),
	)
	out, err := svc.Leaderboard(context.Background())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out[0].AgentID != "Z" || out[1].AgentID != "M" || out[2].AgentID != "A" {
		t.Fatalf("expected encounter order Z,M,A got %+v", out)
	}
}

func TestTrends_WindowAndOrder(t *testing.T) {
	svc := newService(t,
		scoredCall("old", "A", 10, false, 10, 5, now.Add(-8*24*time.Hour)),
		scoredCall("d1a", "A", 80, true, 10, 5, now.Add(-2*24*time.Hour)),
		scoredCall("d1b", "B", 61, false, 10, 5, now.Add(-2*24*time.Hour+time.Hour)),
		scoredCall("d2", "A", 70, false, 10, 5, now.Add(-time.Hour)),
	)

	out, err := svc.Trends(context.Background(), 0)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 days, got %+v", out)
	}
	if out[0].Date != "2024-03-08" || out[0].CallCount != 2 || out[0].FlaggedCount != 1 || out[0].AvgScore != 70.5 {
		t.Fatalf("unexpected first day: %+v", out[0])
	}
	if out[1].Date != "2024-03-10" || out[1].CallCount != 1 || out[1].AvgScore != 70 {
		t.Fatalf("unexpected second day: %+v", out[1])
	}

	wide, err := svc.Trends(context.Background(), 30)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(wide) != 3 {
		t.Fatalf("expected old call inside a 30 day window, got %+v", wide)
	}
}

func TestTrends_EmptyAndBounds(t *testing.T) {
	svc := newService(t)
	out, err := svc.Trends(context.Background(), 7)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out == nil || len(out) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", out)
	}
	if _, err := svc.Trends(context.Background(), MaxTrendDays+1); err != ErrInvalidRequest {
		t.Fatalf("expected invalid request, got %v", err)
	}
}

func TestDistribution_Bands(t *testing.T) {
	svc := newService(t,
		scoredCall("c1", "A", 85, false, 1, 1, now),
		scoredCall("c2", "A", 65, false, 1, 1, now),
		scoredCall("c3", "A", 45, false, 1, 1, now),
		scoredCall("c4", "A", 10, false, 1, 1, now),
		scoredCall("c5", "A", 80, false, 1, 1, now),
		scoredCall("c6", "A", 79.9, false, 1, 1, now),
	)
	out, err := svc.Distribution(context.Background())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	want := Distribution{Excellent: 2, Good: 2, Average: 1, Poor: 1}
	if out != want {
		t.Fatalf("expected %+v, got %+v", want, out)
	}
}

func TestWindowMetrics(t *testing.T) {
	svc := newService(t)
	empty, err := svc.WindowMetrics(context.Background(), 0)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if empty.TotalCalls != 0 || empty.AvgOverall != nil || empty.FlaggedPct != 0 {
		t.Fatalf("unexpected empty window: %+v", empty)
	}

	svc = newService(t,
		scoredCall("c1", "A", 20, true, 1, 1, now.Add(-3*time.Hour)),
		scoredCall("c2", "A", 60, true, 1, 1, now.Add(-2*time.Hour)),
		scoredCall("c3", "A", 80, false, 1, 1, now.Add(-time.Hour)),
	)
	out, err := svc.WindowMetrics(context.Background(), 2)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.TotalCalls != 2 || out.AvgOverall == nil || *out.AvgOverall != 70 || out.FlaggedPct != 50 {
		t.Fatalf("unexpected window: %+v", out)
	}
}

func TestWriteLeaderboardXLSX(t *testing.T) {
	var buf bytes.Buffer
	rows := []LeaderboardEntry{
		{AgentID: "A", TotalCalls: 2, AvgScore: 80, FlaggedPct: 0, AvgDuration: 90},
		{AgentID: "B", TotalCalls: 1, AvgScore: 50, FlaggedPct: 100, AvgDuration: 60},
	}
	if err := WriteLeaderboardXLSX(&buf, rows); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	got, err := f.GetRows(leaderboardSheet)
	if err != nil {
		t.Fatalf("read rows: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d", len(got))
	}
	if got[0][1] != "Agent" || got[1][1] != "A" || got[2][0] != "2" || got[2][3] != "50" {
		t.Fatalf("unexpected rows: %v", got)
	}
}
