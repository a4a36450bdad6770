package pipeline

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"callqa/internal/audit"
	"callqa/internal/calls"
	"callqa/internal/notify"
	"callqa/internal/upstream"
	"callqa/pkg/logger"
	"callqa/pkg/metrics"
)

type Transcriber interface {
	Transcribe(ctx context.Context, audioRef, callID string) (calls.Transcript, error)
}

type Scorer interface {
	Score(ctx context.Context, segments []calls.Segment, m calls.Metrics, callID, agentID string) (calls.Scores, error)
}

// EventRecorder receives stage history. Failures are logged only.
type EventRecorder interface {
	Record(ctx context.Context, callID string, t audit.EventType, message string) error
}

// Service drives one call at a time through upload, transcription and
// scoring. Every stage is written to the store before the next remote call,
// so an interrupted run leaves the record at its last completed stage.
// There are no retries; a failed run must be resubmitted.
type Service struct {
	store     calls.Store
	stt       Transcriber
	qa        Scorer
	limiter   Limiter
	events    EventRecorder
	publisher notify.Publisher
	clock     func() time.Time
}

type Option func(*Service)

func WithLimiter(l Limiter) Option { return func(s *Service) { s.limiter = l } }

func WithEvents(r EventRecorder) Option { return func(s *Service) { s.events = r } }

func WithPublisher(p notify.Publisher) Option { return func(s *Service) { s.publisher = p } }

func WithClock(clock func() time.Time) Option { return func(s *Service) { s.clock = clock } }

func NewService(store calls.Store, stt Transcriber, qa Scorer, opts ...Option) *Service {
	s := &Service{
		store:     store,
		stt:       stt,
		qa:        qa,
		publisher: notify.Noop{},
		clock:     time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// maxIDAttempts bounds the retries when a generated id is already taken.
const maxIDAttempts = 8

// GenerateCallID returns the id used when the caller supplies none. Attempt 0
// is call_<unix-millis>; later attempts append a counter.
func GenerateCallID(now time.Time, attempt int) string {
	id := "call_" + strconv.FormatInt(now.UnixMilli(), 10)
	if attempt > 0 {
		id += "_" + strconv.Itoa(attempt+1)
	}
	return id
}

// ProcessUpload runs the full pipeline synchronously.
//
// Errors:
// - ErrInvalidInput, ErrAtCapacity: nothing was written.
// - calls.ErrDuplicateCallID: the existing record is untouched.
// - *StageError: the record exists with status failed.
func (s *Service) ProcessUpload(ctx context.Context, sub Submission) (Result, error) {
	sub.AudioRef = strings.TrimSpace(sub.AudioRef)
	sub.AgentID = strings.TrimSpace(sub.AgentID)
	sub.CallID = strings.TrimSpace(sub.CallID)
	if sub.AudioRef == "" || sub.AgentID == "" {
		return Result{}, ErrInvalidInput
	}

	// Once started, a run is not cancelled by the caller going away; each
	// remote call ends on its own timeout.
	ctx = context.WithoutCancel(ctx)

	if s.limiter != nil {
		ok, err := s.limiter.Acquire(ctx)
		switch {
		case err != nil:
			logger.From(ctx).Warn("pipeline limiter unavailable; running uncapped", "err", err)
		case !ok:
			return Result{}, ErrAtCapacity
		default:
			defer func() {
				if err := s.limiter.Release(ctx); err != nil {
					logger.From(ctx).Warn("pipeline limiter release failed", "err", err)
				}
			}()
		}
	}
	defer metrics.TrackInFlight()()

	now := s.clock().UTC()
	call, err := s.create(ctx, sub, now)
	if err != nil {
		logger.From(ctx).Warn("call record create failed", "call_id", sub.CallID, "agent_id", sub.AgentID, "err", err)
		return Result{}, err
	}
	sub.CallID = call.CallID
	log := logger.From(ctx).With("call_id", sub.CallID, "agent_id", sub.AgentID)
	ctx = logger.With(ctx, log)
	s.record(ctx, call.CallID, audit.EventUploaded, "")
	log.Info("call uploaded", "audio_ref", call.AudioRef)

	start := s.clock()
	transcript, err := s.stt.Transcribe(ctx, call.AudioRef, call.CallID)
	metrics.ObserveStage(StageTranscription, s.clock().Sub(start))
	if err != nil {
		return Result{}, s.fail(ctx, call, StageTranscription, err)
	}

	m := calls.MetricsFrom(transcript.Metadata)
	call, err = s.store.Update(ctx, call.CallID, calls.Update{
		Status:     calls.StatusTranscribed,
		Transcript: &transcript,
		Metrics:    &m,
		UpdatedAt:  s.clock().UTC(),
	})
	if err != nil {
		return Result{}, s.fail(ctx, calls.Call{CallID: sub.CallID, AgentID: sub.AgentID}, StagePersist, err)
	}
	s.record(ctx, call.CallID, audit.EventTranscribed, "")
	log.Info("call transcribed",
		"segments", len(transcript.Segments),
		"duration_s", m.TotalDuration,
		"method", transcript.Metadata.Method,
		"duration_ms", s.clock().Sub(start).Milliseconds(),
	)

	start = s.clock()
	scores, err := s.qa.Score(ctx, transcript.Segments, m, call.CallID, call.AgentID)
	metrics.ObserveStage(StageScoring, s.clock().Sub(start))
	if err != nil {
		return Result{}, s.fail(ctx, call, StageScoring, err)
	}

	call, err = s.store.Update(ctx, call.CallID, calls.Update{
		Status:    calls.StatusScored,
		Scores:    &scores,
		UpdatedAt: s.clock().UTC(),
	})
	if err != nil {
		return Result{}, s.fail(ctx, calls.Call{CallID: sub.CallID, AgentID: sub.AgentID}, StagePersist, err)
	}
	s.record(ctx, call.CallID, audit.EventScored, "")
	s.publish(ctx, call, "")
	metrics.ObservePipeline(string(calls.StatusScored), "")
	log.Info("call scored",
		"overall_score", scores.OverallScore,
		"flags", len(scores.Flags),
		"duration_ms", s.clock().Sub(start).Milliseconds(),
	)

	return Result{
		CallID:     call.CallID,
		AgentID:    call.AgentID,
		AudioRef:   call.AudioRef,
		Status:     call.Status,
		Method:     transcript.Metadata.Method,
		Transcript: call.Transcript,
		Scores:     call.Scores,
		Metrics:    resultMetrics(m),
	}, nil
}

// create inserts the uploaded record. A caller-supplied id is tried once; a
// generated id is regenerated on collision so id-less submissions never
// conflict with each other.
func (s *Service) create(ctx context.Context, sub Submission, now time.Time) (calls.Call, error) {
	call := calls.Call{
		CallID:    sub.CallID,
		AgentID:   sub.AgentID,
		AudioRef:  sub.AudioRef,
		Status:    calls.StatusUploaded,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if sub.CallID != "" {
		return call, s.store.Create(ctx, call)
	}

	var err error
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		call.CallID = GenerateCallID(now, attempt)
		if err = s.store.Create(ctx, call); !errors.Is(err, calls.ErrDuplicateCallID) {
			return call, err
		}
	}
	return calls.Call{}, err
}

// fail marks the record failed, keeping whatever earlier stages stored, and
// returns the StageError for the caller. A failure to persist the failure is
// logged and does not replace the original error.
func (s *Service) fail(ctx context.Context, call calls.Call, stage string, cause error) error {
	msg := upstream.Message(cause)
	log := logger.From(ctx)

	_, err := s.store.Update(ctx, call.CallID, calls.Update{
		Status:    calls.StatusFailed,
		Error:     &msg,
		UpdatedAt: s.clock().UTC(),
	})
	if err != nil {
		log.Error("failed to persist pipeline failure", "stage", stage, "err", err, "cause", cause)
	}

	s.record(ctx, call.CallID, audit.EventFailed, msg)
	call.Status = calls.StatusFailed
	call.Error = msg
	s.publish(ctx, call, msg)
	metrics.ObservePipeline(string(calls.StatusFailed), stage)
	log.Warn("pipeline failed", "stage", stage, "err", cause, "kind", kindLabel(cause))

	return &StageError{CallID: call.CallID, Stage: stage, Kind: stageKind(stage), Message: msg, Err: cause}
}

func (s *Service) record(ctx context.Context, callID string, t audit.EventType, msg string) {
	if s.events == nil {
		return
	}
	if err := s.events.Record(ctx, callID, t, msg); err != nil {
		logger.From(ctx).Warn("call event not recorded", "event", t, "err", err)
	}
}

func (s *Service) publish(ctx context.Context, call calls.Call, errMsg string) {
	o := notify.Outcome{
		CallID:     call.CallID,
		AgentID:    call.AgentID,
		Status:     string(call.Status),
		Error:      errMsg,
		OccurredAt: s.clock().UTC(),
	}
	if call.Scores != nil {
		score := call.Scores.OverallScore
		o.OverallScore = &score
	}
	if err := s.publisher.Publish(ctx, o); err != nil {
		logger.From(ctx).Warn("pipeline outcome not published", "status", o.Status, "err", err)
	}
}

func kindLabel(err error) string {
	switch {
	case errors.Is(err, upstream.ErrTimeout):
		return "timeout"
	case errors.Is(err, upstream.ErrUnavailable):
		return "unavailable"
	case errors.Is(err, upstream.ErrRejected):
		return "rejected"
	case errors.Is(err, calls.ErrPersistence):
		return "persistence"
	default:
		return "other"
	}
}
