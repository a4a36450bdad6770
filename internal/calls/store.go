package calls

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("calls: record not found")
	ErrDuplicateCallID = errors.New("calls: duplicate call id")
	ErrPersistence     = errors.New("calls: persistence failure")
	ErrInvalidArgument = errors.New("calls: invalid argument")
	ErrInvalidStatus   = errors.New("calls: invalid status transition")
)

// Store is the durable mapping from call id to call state.
//
// Implementations provide per-record atomic writes with last-write-wins
// semantics. Driver failures are wrapped with ErrPersistence.
type Store interface {
	Create(ctx context.Context, c Call) error
	Update(ctx context.Context, callID string, u Update) (Call, error)
	Find(ctx context.Context, callID string) (Call, error)
	List(ctx context.Context, f Filter) ([]Call, error)
	Count(ctx context.Context, f Filter) (int, error)
	Delete(ctx context.Context, callID string) error
}

// Update is a partial mutation. Nil fields are left untouched.
type Update struct {
	Status     Status
	Transcript *Transcript
	Scores     *Scores
	Metrics    *Metrics
	Error      *string
	UpdatedAt  time.Time
}

// Order controls creation-time ordering for List.
type Order int

const (
	NewestFirst Order = iota
	OldestFirst
)

// Filter narrows List/Count. Zero values mean "no constraint".
type Filter struct {
	Status       Status
	AgentID      string
	CreatedAfter time.Time
	// ScoredOnly keeps records that carry a score, regardless of Status.
	ScoredOnly bool
	Limit      int
	Order      Order
}

func (f Filter) match(c Call) bool {
	if f.Status != "" && c.Status != f.Status {
		return false
	}
	if f.AgentID != "" && c.AgentID != f.AgentID {
		return false
	}
	if !f.CreatedAfter.IsZero() && c.CreatedAt.Before(f.CreatedAfter) {
		return false
	}
	if f.ScoredOnly && c.Scores == nil {
		return false
	}
	return true
}

// apply validates u against the current record and returns the mutated copy.
func apply(cur Call, u Update) (Call, error) {
	if u.Status != "" && u.Status != cur.Status {
		if !u.Status.Valid() || !cur.Status.CanTransition(u.Status) {
			return Call{}, ErrInvalidStatus
		}
		cur.Status = u.Status
	}
	if u.Transcript != nil {
		cur.Transcript = u.Transcript
	}
	if u.Scores != nil {
		cur.Scores = u.Scores
	}
	if u.Metrics != nil {
		cur.Metrics = u.Metrics
	}
	if u.Error != nil {
		cur.Error = *u.Error
	}
	if !u.UpdatedAt.IsZero() {
		cur.UpdatedAt = u.UpdatedAt
	}
	return cur, nil
}

func validateNew(c Call) error {
	if c.CallID == "" || c.AgentID == "" || c.AudioRef == "" {
		return ErrInvalidArgument
	}
	if !c.Status.Valid() {
		return ErrInvalidArgument
	}
	return nil
}
