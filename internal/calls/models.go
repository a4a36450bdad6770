package calls

import (
	"encoding/json"
	"time"
)

// Call is the persisted state of one submitted audio file as it moves through
// the QA pipeline.
//
// Invariants:
// - CallID is unique and never changes.
// - AudioRef and CreatedAt are set at creation and never change.
// - Status scored implies Transcript and Scores are set.
// - Status failed implies Error is set; Transcript may be set if transcription succeeded.
type Call struct {
	CallID   string `json:"callId" db:"call_id"`
	AgentID  string `json:"agentId" db:"agent_id"`
	AudioRef string `json:"audioRef" db:"audio_ref"`

	Status Status `json:"status" db:"status"`

	Transcript *Transcript `json:"transcript" db:"transcript"`
	Scores     *Scores     `json:"scores" db:"scores"`
	Metrics    *Metrics    `json:"metrics" db:"metrics"`

	Error string `json:"error,omitempty" db:"error"`

	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

type Status string

const (
	StatusUploaded    Status = "uploaded"
	StatusTranscribed Status = "transcribed"
	StatusScored      Status = "scored"
	StatusFailed      Status = "failed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusUploaded, StatusTranscribed, StatusScored, StatusFailed:
		return true
	default:
		return false
	}
}

func (s Status) rank() int {
	switch s {
	case StatusUploaded:
		return 1
	case StatusTranscribed:
		return 2
	case StatusScored:
		return 3
	default:
		return 0
	}
}

// CanTransition reports whether a record in status s may move to next.
// Progress is forward-only; failed is reachable from any non-terminal status.
func (s Status) CanTransition(next Status) bool {
	if s == StatusFailed || s == StatusScored {
		return false
	}
	if next == StatusFailed {
		return true
	}
	return next.rank() > s.rank()
}

type Speaker string

const (
	SpeakerAgent    Speaker = "AGENT"
	SpeakerCustomer Speaker = "CUSTOMER"
)

// Segment is one diarized utterance. Offsets are seconds from the start of the audio.
type Segment struct {
	Speaker    Speaker  `json:"speaker"`
	Start      float64  `json:"start"`
	End        float64  `json:"end"`
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence,omitempty"`
}

type TranscriptMetadata struct {
	TotalDuration   float64 `json:"totalDuration"`
	AgentSeconds    float64 `json:"agentSeconds"`
	CustomerSeconds float64 `json:"customerSeconds"`
	AvgConfidence   float64 `json:"avgConfidence"`
	Method          string  `json:"method,omitempty"`
}

type Transcript struct {
	Segments []Segment         `json:"segments"`
	Metadata TranscriptMetadata `json:"metadata"`
}

// Flag is a quality finding attached to a score.
type Flag struct {
	Type        string `json:"type,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Severity    string `json:"severity,omitempty"`
}

// UnmarshalJSON accepts both the object form and a bare string, which is
// kept as the title.
func (f *Flag) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = Flag{Title: s}
		return nil
	}
	type plain Flag
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*f = Flag(p)
	return nil
}

// Scores is the QA service verdict. OverallScore is not clamped.
// Fields the QA service returns beyond these are kept in Extra.
type Scores struct {
	OverallScore float64                    `json:"overallScore"`
	Breakdown    map[string]float64         `json:"breakdown,omitempty"`
	Flags        []Flag                     `json:"flags,omitempty"`
	Extra        map[string]json.RawMessage `json:"extra,omitempty"`
}

func (s *Scores) Flagged() bool { return s != nil && len(s.Flags) > 0 }

// Metrics is the talk-time summary derived from transcript metadata.
type Metrics struct {
	TotalDuration   float64 `json:"totalDuration"`
	AgentSeconds    float64 `json:"agentSeconds"`
	CustomerSeconds float64 `json:"customerSeconds"`
	AvgConfidence   float64 `json:"avgConfidence"`
}

func MetricsFrom(md TranscriptMetadata) Metrics {
	return Metrics{
		TotalDuration:   md.TotalDuration,
		AgentSeconds:    md.AgentSeconds,
		CustomerSeconds: md.CustomerSeconds,
		AvgConfidence:   md.AvgConfidence,
	}
}

// AgentTalkPct is agent speaking time as a percentage of the call; 0 when the
// duration is unknown.
func (m Metrics) AgentTalkPct() float64 {
	if m.TotalDuration <= 0 {
		return 0
	}
	return m.AgentSeconds / m.TotalDuration * 100
}
