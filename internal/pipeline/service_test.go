package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"callqa/internal/audit"
	"callqa/internal/calls"
	"callqa/internal/notify"
	"callqa/internal/transcription"
	"callqa/internal/upstream"
)

type stubTranscriber struct {
	out    calls.Transcript
	err    error
	ctxErr error
}

func (s *stubTranscriber) Transcribe(ctx context.Context, audioRef, callID string) (calls.Transcript, error) {
	s.ctxErr = ctx.Err()
	return s.out, s.err
}

type stubScorer struct {
	out         calls.Scores
	err         error
	gotMetrics  calls.Metrics
	gotSegments int
}

func (s *stubScorer) Score(ctx context.Context, segments []calls.Segment, m calls.Metrics, callID, agentID string) (calls.Scores, error) {
	s.gotMetrics = m
	s.gotSegments = len(segments)
	return s.out, s.err
}

type capturePublisher struct {
	mu  sync.Mutex
	out []notify.Outcome
}

func (p *capturePublisher) Publish(ctx context.Context, o notify.Outcome) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.out = append(p.out, o)
	return nil
}

// failingStore fails Update calls that set the given status.
type failingStore struct {
	*calls.MemoryRepo
	failOn calls.Status
}

func (f failingStore) Update(ctx context.Context, id string, u calls.Update) (calls.Call, error) {
	if u.Status == f.failOn {
		return calls.Call{}, calls.ErrPersistence
	}
	return f.MemoryRepo.Update(ctx, id, u)
}

func goodTranscript() calls.Transcript {
	return calls.Transcript{
		Segments: []calls.Segment{
			{Speaker: calls.SpeakerAgent, Start: 0, End: 30, Text: "Thanks for calling"},
			{Speaker: calls.SpeakerCustomer, Start: 30, End: 60, Text: "My internet is down"},
		},
		Metadata: calls.TranscriptMetadata{TotalDuration: 80, AgentSeconds: 30, CustomerSeconds: 30, AvgConfidence: 0.93, Method: "ML"},
	}
}

var fixedNow = time.Unix(1700000000, 0).UTC()

func fixedClock() time.Time { return fixedNow }

func TestProcessUpload_Success(t *testing.T) {
	store := calls.NewMemoryRepo()
	events := audit.NewMemoryRepo()
	pub := &capturePublisher{}
	qa := &stubScorer{out: calls.Scores{OverallScore: 82.4, Flags: []calls.Flag{{Title: "long hold"}}}}
	svc := NewService(store, &stubTranscriber{out: goodTranscript()}, qa,
		WithClock(fixedClock),
		WithEvents(audit.NewService(events)),
		WithPublisher(pub),
	)

	res, err := svc.ProcessUpload(context.Background(), Submission{AudioRef: "a.wav", AgentID: "agent-1", CallID: "c1"})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if res.Status != calls.StatusScored || res.Scores == nil || res.Transcript == nil {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Metrics.AgentTalkPct != 37.5 {
		t.Fatalf("expected agentTalkPct 37.5, got %v", res.Metrics.AgentTalkPct)
	}
	if res.Method != "ML" {
		t.Fatalf("expected method ML, got %q", res.Method)
	}
	if qa.gotSegments != 2 || qa.gotMetrics.TotalDuration != 80 {
		t.Fatalf("expected scorer to get transcript segments and metrics, got %d %+v", qa.gotSegments, qa.gotMetrics)
	}

	rec, err := store.Find(context.Background(), "c1")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if rec.Status != calls.StatusScored || rec.Transcript == nil || rec.Scores == nil || rec.Metrics == nil {
		t.Fatalf("expected fully populated scored record, got %+v", rec)
	}
	if rec.Error != "" {
		t.Fatalf("expected no error on scored record, got %q", rec.Error)
	}

	evs := events.Events()
	if len(evs) != 3 || evs[0].Type != audit.EventUploaded || evs[1].Type != audit.EventTranscribed || evs[2].Type != audit.EventScored {
		t.Fatalf("unexpected events: %+v", evs)
	}
	if len(pub.out) != 1 || pub.out[0].Status != "scored" || pub.out[0].OverallScore == nil || *pub.out[0].OverallScore != 82.4 {
		t.Fatalf("unexpected published outcomes: %+v", pub.out)
	}
}

func TestProcessUpload_EmptyTranscriptFails(t *testing.T) {
	store := calls.NewMemoryRepo()
	qa := &stubScorer{}
	svc := NewService(store, &stubTranscriber{err: transcription.ErrEmptyTranscript}, qa, WithClock(fixedClock))

	_, err := svc.ProcessUpload(context.Background(), Submission{AudioRef: "a.wav", AgentID: "agent-1", CallID: "c1"})
	if !errors.Is(err, ErrTranscriptionFailed) || !errors.Is(err, transcription.ErrEmptyTranscript) {
		t.Fatalf("expected transcription failure wrapping empty transcript, got %v", err)
	}
	var se *StageError
	if !errors.As(err, &se) || se.Stage != StageTranscription || se.CallID != "c1" {
		t.Fatalf("expected stage error, got %v", err)
	}

	rec, _ := store.Find(context.Background(), "c1")
	if rec.Status != calls.StatusFailed || rec.Transcript != nil || rec.Error == "" {
		t.Fatalf("expected failed record without transcript, got %+v", rec)
	}
	if qa.gotSegments != 0 {
		t.Fatalf("expected scoring not to run")
	}
}

func TestProcessUpload_ScoringFailureKeepsTranscript(t *testing.T) {
	store := calls.NewMemoryRepo()
	qaErr := &upstream.Error{Service: "qa", Kind: upstream.ErrRejected, StatusCode: 400, Body: `{"detail":"Missing transcript"}`}
	svc := NewService(store, &stubTranscriber{out: goodTranscript()}, &stubScorer{err: qaErr}, WithClock(fixedClock))

	_, err := svc.ProcessUpload(context.Background(), Submission{AudioRef: "a.wav", AgentID: "agent-1", CallID: "c1"})
	if !errors.Is(err, ErrScoringFailed) || !errors.Is(err, upstream.ErrRejected) {
		t.Fatalf("expected scoring failure, got %v", err)
	}
	var se *StageError
	if !errors.As(err, &se) || se.Detail() != "Missing transcript" {
		t.Fatalf("expected detail from upstream body, got %v", err)
	}

	rec, _ := store.Find(context.Background(), "c1")
	if rec.Status != calls.StatusFailed {
		t.Fatalf("expected failed, got %s", rec.Status)
	}
	if rec.Transcript == nil || rec.Metrics == nil {
		t.Fatalf("expected transcript and metrics preserved")
	}
	if rec.Scores != nil {
		t.Fatalf("expected scores unset")
	}
	if rec.Error != `{"detail":"Missing transcript"}` {
		t.Fatalf("expected upstream body as error, got %q", rec.Error)
	}
}

func TestProcessUpload_DuplicateCallID(t *testing.T) {
	store := calls.NewMemoryRepo()
	svc := NewService(store, &stubTranscriber{out: goodTranscript()}, &stubScorer{out: calls.Scores{OverallScore: 70}}, WithClock(fixedClock))

	if _, err := svc.ProcessUpload(context.Background(), Submission{AudioRef: "a.wav", AgentID: "agent-1", CallID: "c1"}); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	_, err := svc.ProcessUpload(context.Background(), Submission{AudioRef: "b.wav", AgentID: "agent-2", CallID: "c1"})
	if !errors.Is(err, calls.ErrDuplicateCallID) {
		t.Fatalf("expected duplicate call id, got %v", err)
	}
	rec, _ := store.Find(context.Background(), "c1")
	if rec.AudioRef != "a.wav" || rec.Status != calls.StatusScored {
		t.Fatalf("expected first record untouched, got %+v", rec)
	}
}

func TestProcessUpload_GeneratesCallID(t *testing.T) {
	store := calls.NewMemoryRepo()
	svc := NewService(store, &stubTranscriber{out: goodTranscript()}, &stubScorer{out: calls.Scores{OverallScore: 70}}, WithClock(fixedClock))

	res, err := svc.ProcessUpload(context.Background(), Submission{AudioRef: "a.wav", AgentID: "agent-1"})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if res.CallID != "call_1700000000000" {
		t.Fatalf("expected generated id, got %q", res.CallID)
	}
	if _, err := store.Find(context.Background(), res.CallID); err != nil {
		t.Fatalf("expected record under generated id, got %v", err)
	}
}

type fixedTranscriber calls.Transcript

func (f fixedTranscriber) Transcribe(context.Context, string, string) (calls.Transcript, error) {
	return calls.Transcript(f), nil
}

type fixedScorer calls.Scores

func (f fixedScorer) Score(context.Context, []calls.Segment, calls.Metrics, string, string) (calls.Scores, error) {
	return calls.Scores(f), nil
}

func TestProcessUpload_GeneratedIDsDoNotCollide(t *testing.T) {
	store := calls.NewMemoryRepo()
	svc := NewService(store, fixedTranscriber(goodTranscript()), fixedScorer{OverallScore: 70}, WithClock(fixedClock))

	const n = 4
	var wg sync.WaitGroup
	ids := make([]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := svc.ProcessUpload(context.Background(), Submission{AudioRef: "a.wav", AgentID: "agent-1"})
			ids[i], errs[i] = res.CallID, err
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("submission %d: unexpected err: %v", i, errs[i])
		}
		if seen[ids[i]] {
			t.Fatalf("id %q issued twice", ids[i])
		}
		seen[ids[i]] = true
	}
	if !seen["call_1700000000000"] || !seen["call_1700000000000_2"] {
		t.Fatalf("unexpected ids: %v", ids)
	}
	count, err := store.Count(context.Background(), calls.Filter{})
	if err != nil || count != n {
		t.Fatalf("expected %d records, got %d (%v)", n, count, err)
	}
}

func TestGenerateCallID(t *testing.T) {
	if got := GenerateCallID(fixedNow, 0); got != "call_1700000000000" {
		t.Fatalf("attempt 0: got %q", got)
	}
	if got := GenerateCallID(fixedNow, 2); got != "call_1700000000000_3" {
		t.Fatalf("attempt 2: got %q", got)
	}
}

func TestProcessUpload_RequiresAgentAndAudio(t *testing.T) {
	store := calls.NewMemoryRepo()
	svc := NewService(store, &stubTranscriber{}, &stubScorer{})

	if _, err := svc.ProcessUpload(context.Background(), Submission{AudioRef: "a.wav"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if _, err := svc.ProcessUpload(context.Background(), Submission{AgentID: "a"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if n, _ := store.Count(context.Background(), calls.Filter{}); n != 0 {
		t.Fatalf("expected no records, got %d", n)
	}
}

func TestProcessUpload_AtCapacity(t *testing.T) {
	store := calls.NewMemoryRepo()
	lim := NewLocalLimiter(1)
	if ok, _ := lim.Acquire(context.Background()); !ok {
		t.Fatalf("expected first slot")
	}
	svc := NewService(store, &stubTranscriber{out: goodTranscript()}, &stubScorer{}, WithLimiter(lim))

	_, err := svc.ProcessUpload(context.Background(), Submission{AudioRef: "a.wav", AgentID: "agent-1", CallID: "c1"})
	if !errors.Is(err, ErrAtCapacity) {
		t.Fatalf("expected at capacity, got %v", err)
	}
	if _, err := store.Find(context.Background(), "c1"); !errors.Is(err, calls.ErrNotFound) {
		t.Fatalf("expected no record, got %v", err)
	}

	_ = lim.Release(context.Background())
	svc = NewService(store, &stubTranscriber{out: goodTranscript()}, &stubScorer{out: calls.Scores{OverallScore: 50}}, WithLimiter(lim))
	if _, err := svc.ProcessUpload(context.Background(), Submission{AudioRef: "a.wav", AgentID: "agent-1", CallID: "c1"}); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if ok, _ := lim.Acquire(context.Background()); !ok {
		t.Fatalf("expected slot released after run")
	}
}

func TestProcessUpload_FailurePersistErrorDoesNotMaskCause(t *testing.T) {
	store := failingStore{MemoryRepo: calls.NewMemoryRepo(), failOn: calls.StatusFailed}
	sttErr := &upstream.Error{Service: "stt", Kind: upstream.ErrTimeout, Err: context.DeadlineExceeded}
	svc := NewService(store, &stubTranscriber{err: sttErr}, &stubScorer{})

	_, err := svc.ProcessUpload(context.Background(), Submission{AudioRef: "a.wav", AgentID: "agent-1", CallID: "c1"})
	if !errors.Is(err, upstream.ErrTimeout) {
		t.Fatalf("expected original timeout error, got %v", err)
	}
	if errors.Is(err, calls.ErrPersistence) {
		t.Fatalf("expected persistence failure not to be surfaced")
	}
}

func TestProcessUpload_StageWriteFailureStopsPipeline(t *testing.T) {
	store := failingStore{MemoryRepo: calls.NewMemoryRepo(), failOn: calls.StatusTranscribed}
	qa := &stubScorer{}
	svc := NewService(store, &stubTranscriber{out: goodTranscript()}, qa)

	_, err := svc.ProcessUpload(context.Background(), Submission{AudioRef: "a.wav", AgentID: "agent-1", CallID: "c1"})
	if !errors.Is(err, ErrPersistFailed) || !errors.Is(err, calls.ErrPersistence) {
		t.Fatalf("expected persist failure, got %v", err)
	}
	if qa.gotSegments != 0 {
		t.Fatalf("expected scoring not attempted after failed stage write")
	}
	rec, _ := store.Find(context.Background(), "c1")
	if rec.Status != calls.StatusFailed {
		t.Fatalf("expected failed, got %s", rec.Status)
	}
}

func TestProcessUpload_IgnoresCallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stt := &stubTranscriber{out: goodTranscript()}
	svc := NewService(calls.NewMemoryRepo(), stt, &stubScorer{out: calls.Scores{OverallScore: 90}})
	if _, err := svc.ProcessUpload(ctx, Submission{AudioRef: "a.wav", AgentID: "agent-1", CallID: "c1"}); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if stt.ctxErr != nil {
		t.Fatalf("expected transcription to run with a live context, got %v", stt.ctxErr)
	}
}

func TestProcessUpload_ZeroDurationTalkPct(t *testing.T) {
	tr := goodTranscript()
	tr.Metadata = calls.TranscriptMetadata{AgentSeconds: 30}
	svc := NewService(calls.NewMemoryRepo(), &stubTranscriber{out: tr}, &stubScorer{out: calls.Scores{OverallScore: 60}})

	res, err := svc.ProcessUpload(context.Background(), Submission{AudioRef: "a.wav", AgentID: "agent-1", CallID: "c1"})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if res.Metrics.AgentTalkPct != 0 {
		t.Fatalf("expected 0, got %v", res.Metrics.AgentTalkPct)
	}
}
