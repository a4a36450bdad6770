package scoring

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"callqa/internal/calls"
	"callqa/internal/upstream"
)

// ErrMissingScore is returned when the QA service answers without an overall score.
var ErrMissingScore = errors.New("scoring: response has no overall score")

const (
	DefaultTimeout = 30 * time.Second
	scorePath      = "/score"
)

type Poster interface {
	PostJSON(ctx context.Context, path string, in, out any) error
}

// Client asks the QA service to score a transcript.
type Client struct {
	http Poster
}

func NewClient(p Poster) *Client { return &Client{http: p} }

func NewHTTPClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return NewClient(upstream.NewClient("qa", baseURL, timeout))
}

// request mirrors the field names the QA service reads. Do not rename.
type request struct {
	Transcript []calls.Segment `json:"transcript"`
	Metrics    requestMetrics  `json:"metrics"`
	CallID     string          `json:"callId"`
	AgentID    string          `json:"agentId"`
}

type requestMetrics struct {
	TotalDuration   float64 `json:"totalDuration"`
	AgentSeconds    float64 `json:"agentSeconds"`
	CustomerSeconds float64 `json:"customerSeconds"`
	AvgConfidence   float64 `json:"avgConfidence"`
}

// categoryFields are the sub-scores the QA service returns at the top level.
var categoryFields = []string{"clarity", "courtesy", "professionalism", "talkBalance", "efficiency", "resolution"}

// Score calls the QA service once. The overall score is passed through
// unclamped.
func (c *Client) Score(ctx context.Context, segments []calls.Segment, m calls.Metrics, callID, agentID string) (calls.Scores, error) {
	req := request{
		Transcript: segments,
		Metrics: requestMetrics{
			TotalDuration:   m.TotalDuration,
			AgentSeconds:    m.AgentSeconds,
			CustomerSeconds: m.CustomerSeconds,
			AvgConfidence:   m.AvgConfidence,
		},
		CallID:  callID,
		AgentID: agentID,
	}
	if req.Transcript == nil {
		req.Transcript = []calls.Segment{}
	}

	var raw map[string]json.RawMessage
	if err := c.http.PostJSON(ctx, scorePath, req, &raw); err != nil {
		return calls.Scores{}, err
	}
	return parseScores(raw)
}

func parseScores(raw map[string]json.RawMessage) (calls.Scores, error) {
	var out calls.Scores

	overall, ok := raw["overallScore"]
	if !ok {
		overall, ok = raw["overall_score"]
	}
	if !ok || json.Unmarshal(overall, &out.OverallScore) != nil {
		return calls.Scores{}, ErrMissingScore
	}

	if b, ok := raw["breakdown"]; ok {
		if err := json.Unmarshal(b, &out.Breakdown); err != nil {
			return calls.Scores{}, &upstream.Error{Service: "qa", Kind: upstream.ErrBadResponse, Err: err}
		}
	}
	lifted := make(map[string]bool, len(categoryFields))
	for _, k := range categoryFields {
		v, ok := raw[k]
		if !ok {
			continue
		}
		var n float64
		if json.Unmarshal(v, &n) != nil {
			continue
		}
		if out.Breakdown == nil {
			out.Breakdown = make(map[string]float64)
		}
		// An explicit breakdown object wins over the top-level copy.
		if _, dup := out.Breakdown[k]; !dup {
			out.Breakdown[k] = n
		}
		lifted[k] = true
	}

	if f, ok := raw["flags"]; ok && string(f) != "null" {
		if err := json.Unmarshal(f, &out.Flags); err != nil {
			return calls.Scores{}, &upstream.Error{Service: "qa", Kind: upstream.ErrBadResponse, Err: err}
		}
	}

	for k, v := range raw {
		switch k {
		case "overallScore", "overall_score", "breakdown", "flags":
			continue
		}
		if lifted[k] {
			continue
		}
		if out.Extra == nil {
			out.Extra = make(map[string]json.RawMessage)
		}
		out.Extra[k] = v
	}
	return out, nil
}
