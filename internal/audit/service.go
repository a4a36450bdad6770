package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for call events. Append-only.
type Repository interface {
	Append(ctx context.Context, e Event) error
	ListByCall(ctx context.Context, callID string) ([]Event, error)
}

// Service records pipeline stage history. Callers treat Append as best-effort.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var (
	ErrInvalidEvent      = errors.New("audit: invalid event")
	errRepoNotConfigured = errors.New("audit: repository not configured")
)

func (s *Service) Append(ctx context.Context, e Event) error {
	if s == nil || s.repo == nil {
		return errRepoNotConfigured
	}
	if e.CallID == "" || e.Type == "" {
		return ErrInvalidEvent
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// Record appends a stage event for callID.
func (s *Service) Record(ctx context.Context, callID string, t EventType, message string) error {
	return s.Append(ctx, Event{CallID: callID, Type: t, Message: message})
}

// History returns the events of callID in the order they were recorded.
func (s *Service) History(ctx context.Context, callID string) ([]Event, error) {
	if s == nil || s.repo == nil {
		return nil, errRepoNotConfigured
	}
	if callID == "" {
		return nil, ErrInvalidEvent
	}
	return s.repo.ListByCall(ctx, callID)
}
