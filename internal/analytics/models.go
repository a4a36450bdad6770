package analytics

// Overview summarises every scored call. TotalCalls counts all records
// regardless of status.
type Overview struct {
	TotalCalls      int     `json:"totalCalls"`
	ScoredCalls     int     `json:"scoredCalls"`
	AvgScore        float64 `json:"avgScore"`
	FlaggedPct      float64 `json:"flaggedPct"`
	AvgDuration     float64 `json:"avgDuration"`
	AvgAgentTalkPct float64 `json:"avgAgentTalkPct"`
	FlaggedCalls    int     `json:"flaggedCalls"`
}

type LeaderboardEntry struct {
	AgentID     string  `json:"agentId"`
	TotalCalls  int     `json:"totalCalls"`
	AvgScore    float64 `json:"avgScore"`
	FlaggedPct  float64 `json:"flaggedPct"`
	AvgDuration float64 `json:"avgDuration"`
}

// TrendPoint is one UTC calendar day. Date is formatted YYYY-MM-DD.
type TrendPoint struct {
	Date         string  `json:"date"`
	AvgScore     float64 `json:"avgScore"`
	CallCount    int     `json:"callCount"`
	FlaggedCount int     `json:"flaggedCount"`
}

// Distribution buckets overall scores:
// excellent >= 80, good >= 60, average >= 40, poor otherwise.
type Distribution struct {
	Excellent int `json:"excellent"`
	Good      int `json:"good"`
	Average   int `json:"average"`
	Poor      int `json:"poor"`
}

// WindowMetrics covers the most recent scored calls only.
type WindowMetrics struct {
	TotalCalls int      `json:"totalCalls"`
	AvgOverall *float64 `json:"avgOverall"`
	FlaggedPct float64  `json:"flaggedPct"`
}
