package pipeline

import (
	"errors"
	"fmt"

	"callqa/internal/upstream"
)

var (
	ErrInvalidInput        = errors.New("pipeline: invalid input")
	ErrAtCapacity          = errors.New("pipeline: at capacity")
	ErrTranscriptionFailed = errors.New("pipeline: transcription failed")
	ErrScoringFailed       = errors.New("pipeline: scoring failed")
	ErrPersistFailed       = errors.New("pipeline: stage write failed")
)

// Stage names used in logs, metrics and error responses.
const (
	StageTranscription = "transcription"
	StageScoring       = "scoring"
	StagePersist       = "persist"
)

// StageError is returned when a run fails after its record was created.
// The record is left in status failed with Message as its error.
type StageError struct {
	CallID  string
	Stage   string
	Kind    error
	Message string
	Err     error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed for %s: %s", e.Stage, e.CallID, e.Message)
}

func (e *StageError) Unwrap() []error { return []error{e.Kind, e.Err} }

// Detail is the caller-facing message for the failure.
func (e *StageError) Detail() string { return upstream.Detail(e.Err) }

func stageKind(stage string) error {
	switch stage {
	case StageTranscription:
		return ErrTranscriptionFailed
	case StageScoring:
		return ErrScoringFailed
	default:
		return ErrPersistFailed
	}
}
