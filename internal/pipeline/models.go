package pipeline

import (
	"math"

	"callqa/internal/calls"
)

// Submission is one uploaded call to push through the pipeline.
type Submission struct {
	AudioRef string
	AgentID  string
	// CallID is optional; one is generated when empty.
	CallID string
}

// Result is the consolidated outcome of a successful run.
type Result struct {
	CallID     string            `json:"callId"`
	AgentID    string            `json:"agentId"`
	AudioRef   string            `json:"audioRef"`
	Status     calls.Status      `json:"status"`
	Method     string            `json:"method"`
	Transcript *calls.Transcript `json:"transcript"`
	Scores     *calls.Scores     `json:"scores"`
	Metrics    ResultMetrics     `json:"metrics"`
}

type ResultMetrics struct {
	TotalDuration   float64 `json:"totalDuration"`
	AgentSeconds    float64 `json:"agentSeconds"`
	CustomerSeconds float64 `json:"customerSeconds"`
	AvgConfidence   float64 `json:"avgConfidence"`
	AgentTalkPct    float64 `json:"agentTalkPct"`
}

func resultMetrics(m calls.Metrics) ResultMetrics {
	return ResultMetrics{
		TotalDuration:   m.TotalDuration,
		AgentSeconds:    m.AgentSeconds,
		CustomerSeconds: m.CustomerSeconds,
		AvgConfidence:   m.AvgConfidence,
		AgentTalkPct:    math.Round(m.AgentTalkPct()*10) / 10,
	}
}
