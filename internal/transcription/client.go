package transcription

import (
	"context"
	"errors"
	"time"

	"callqa/internal/calls"
	"callqa/internal/upstream"
	"callqa/pkg/logger"
)

// ErrEmptyTranscript is returned when the service answers with no segments.
// An all-silence call is a failure, not a valid empty transcript.
var ErrEmptyTranscript = errors.New("transcription: empty transcript")

const (
	DefaultTimeout = 5 * time.Minute
	DefaultMethod  = "Energy"
	transcribePath = "/transcribe"
)

// Poster is the transport used by Client.
type Poster interface {
	PostJSON(ctx context.Context, path string, in, out any) error
}

// Client turns an audio reference into diarized segments and timing metadata.
type Client struct {
	http Poster
}

func NewClient(p Poster) *Client { return &Client{http: p} }

// NewHTTPClient builds a Client for the STT service at baseURL.
func NewHTTPClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return NewClient(upstream.NewClient("stt", baseURL, timeout))
}

type request struct {
	AudioURL string `json:"audio_url"`
	CallID   string `json:"callId"`
}

// response covers both payload shapes the STT service has used: a flat one
// (transcript + duration/agentSeconds/...) and a nested one
// (segments + metadata{total_duration, ...}).
type response struct {
	Transcript      []segment `json:"transcript"`
	Duration        *float64  `json:"duration"`
	AgentSeconds    *float64  `json:"agentSeconds"`
	CustomerSeconds *float64  `json:"customerSeconds"`
	Confidence      *float64  `json:"confidence"`
	Method          string    `json:"method"`

	Segments []segment `json:"segments"`
	Metadata *struct {
		TotalDuration        *float64 `json:"total_duration"`
		AgentSpeakingTime    *float64 `json:"agent_speaking_time"`
		CustomerSpeakingTime *float64 `json:"customer_speaking_time"`
		AvgConfidence        *float64 `json:"avg_confidence"`
		Method               string   `json:"method"`
	} `json:"metadata"`
}

type segment struct {
	Speaker    string   `json:"speaker"`
	Start      float64  `json:"start"`
	End        float64  `json:"end"`
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence"`
}

// Transcribe calls the STT service once. callID is forwarded for the
// service's own logging.
func (c *Client) Transcribe(ctx context.Context, audioRef, callID string) (calls.Transcript, error) {
	var resp response
	if err := c.http.PostJSON(ctx, transcribePath, request{AudioURL: audioRef, CallID: callID}, &resp); err != nil {
		return calls.Transcript{}, err
	}
	t, missingDuration := normalize(resp)
	if len(t.Segments) == 0 {
		return calls.Transcript{}, ErrEmptyTranscript
	}
	if missingDuration {
		logger.From(ctx).Warn("transcription response without duration; defaulting to 0", "call_id", callID)
	}
	return t, nil
}

func normalize(r response) (calls.Transcript, bool) {
	raw := r.Segments
	if len(raw) == 0 {
		raw = r.Transcript
	}

	segs := make([]calls.Segment, 0, len(raw))
	for _, s := range raw {
		end := s.End
		if end < s.Start {
			end = s.Start
		}
		segs = append(segs, calls.Segment{
			Speaker:    normalizeSpeaker(s.Speaker),
			Start:      s.Start,
			End:        end,
			Text:       s.Text,
			Confidence: s.Confidence,
		})
	}

	md := calls.TranscriptMetadata{Method: r.Method}
	duration := r.Duration
	agent, customer, conf := r.AgentSeconds, r.CustomerSeconds, r.Confidence
	if m := r.Metadata; m != nil {
		duration = firstSet(m.TotalDuration, duration)
		agent = firstSet(m.AgentSpeakingTime, agent)
		customer = firstSet(m.CustomerSpeakingTime, customer)
		conf = firstSet(m.AvgConfidence, conf)
		if m.Method != "" {
			md.Method = m.Method
		}
	}
	md.TotalDuration = deref(duration)
	md.AgentSeconds = deref(agent)
	md.CustomerSeconds = deref(customer)
	md.AvgConfidence = deref(conf)
	if md.Method == "" {
		md.Method = DefaultMethod
	}
	return calls.Transcript{Segments: segs, Metadata: md}, duration == nil
}

func normalizeSpeaker(s string) calls.Speaker {
	switch s {
	case "CUSTOMER", "customer", "Customer":
		return calls.SpeakerCustomer
	default:
		return calls.SpeakerAgent
	}
}

func firstSet(a, b *float64) *float64 {
	if a != nil {
		return a
	}
	return b
}

func deref(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
