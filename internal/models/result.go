package models

import "time"

// ProcessingResult aggregates one session's walk down the tier ladder.
// Tier outcome pointers are nil when the tier was never attempted.
type ProcessingResult struct {
	SessionID  string `json:"session_id"`
	ScenarioID string `json:"scenario_id"`

	Tool  *TierOutcome `json:"tool,omitempty"`
	Edge  *TierOutcome `json:"edge,omitempty"`
	Cloud *TierOutcome `json:"cloud,omitempty"`

	FinalTier  Tier    `json:"final_tier"`
	Success    bool    `json:"success"`
	Resolution string  `json:"resolution"`
	Confidence float64 `json:"confidence"`

	TotalLatencyMs    int64   `json:"total_latency_ms"`
	TotalTokensInput  int     `json:"total_tokens_input"`
	TotalTokensOutput int     `json:"total_tokens_output"`
	TotalCostUSD      float64 `json:"total_cost_usd"`

	Events []ActivityEvent `json:"events"`
	Ticket string          `json:"ticket,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Outcomes returns the per-tier outcomes in ladder order, attempted or not.
func (r ProcessingResult) Outcomes() []*TierOutcome {
	return []*TierOutcome{r.Tool, r.Edge, r.Cloud}
}

// Outcome returns the outcome recorded for the given tier, or nil.
func (r ProcessingResult) Outcome(tier Tier) *TierOutcome {
	switch tier {
	case TierTool:
		return r.Tool
	case TierEdge:
		return r.Edge
	case TierCloud:
		return r.Cloud
	}
	return nil
}

// TierMetric is the append-only per-attempt record persisted to the metrics
// store, one per tier with Active=true.
type TierMetric struct {
	SessionID    string
	ScenarioID   string
	Tier         Tier
	LatencyMs    int64
	TokensInput  int
	TokensOutput int
	CostUSD      float64
	RecordedAt   time.Time
}
