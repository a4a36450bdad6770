package calls

import (
	"testing"
	"time"
)

func TestWhereClause_BuildsPositionalArgs(t *testing.T) {
	since := time.Unix(1700000000, 0).UTC()
	where, args := whereClause(Filter{Status: StatusScored, AgentID: "a1", CreatedAfter: since, ScoredOnly: true})

	want := " WHERE status = $1 AND agent_id = $2 AND created_at >= $3 AND scores IS NOT NULL"
	if where != want {
		t.Fatalf("expected %q, got %q", want, where)
	}
	if len(args) != 3 {
		t.Fatalf("expected 3 args, got %d", len(args))
	}
}

func TestWhereClause_EmptyFilter(t *testing.T) {
	where, args := whereClause(Filter{})
	if where != "" || args != nil {
		t.Fatalf("expected empty clause, got %q %v", where, args)
	}
}

func TestDecodeJSON_NullKeepsNil(t *testing.T) {
	var s *Scores
	if err := decodeJSON(nil, &s); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if s != nil {
		t.Fatalf("expected nil scores")
	}
	if err := decodeJSON([]byte(`{"overallScore":72.5,"flags":["x"]}`), &s); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if s == nil || s.OverallScore != 72.5 || !s.Flagged() {
		t.Fatalf("unexpected scores: %+v", s)
	}
}
