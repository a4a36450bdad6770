package audit

import "time"

// Event is an immutable, append-only record of one pipeline stage transition.
//
// Invariants:
// - Events are never updated or deleted through this package.
// - CallID and Type are required.
// - Recording is best-effort; pipeline progress never waits on a failed append.
//
// Storage (Postgres): table call_events, insert-only.
type Event struct {
	ID     string    `json:"id" db:"id"`
	CallID string    `json:"callId" db:"call_id"`
	Type   EventType `json:"type" db:"type"`

	// Message carries the failure detail for failed events.
	Message string `json:"message,omitempty" db:"message"`

	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

type EventType string

const (
	EventUploaded    EventType = "uploaded"
	EventTranscribed EventType = "transcribed"
	EventScored      EventType = "scored"
	EventFailed      EventType = "failed"
	EventDeleted     EventType = "deleted"
)
