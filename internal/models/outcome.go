package models

// Tier identifies one resolver stage in the escalation ladder. TierSystem is
// reserved for engine-level activity events.
type Tier string

const (
	TierTool   Tier = "tool"
	TierEdge   Tier = "edge"
	TierCloud  Tier = "cloud"
	TierSystem Tier = "system"
)

// Decision is the control-flow verdict of a tier attempt.
type Decision string

const (
	DecisionResolve  Decision = "resolve"
	DecisionEscalate Decision = "escalate"
	DecisionError    Decision = "error"
)

// TierOutcome is the result of one tier's attempt at an incident.
type TierOutcome struct {
	Tier Tier `json:"tier"`

	// Active reports whether the tier actually executed, as opposed to being
	// skipped because it was disabled, unconfigured or unreachable.
	Active bool `json:"active"`

	Decision   Decision `json:"decision"`
	Confidence float64  `json:"confidence"`

	LatencyMs    int64   `json:"latency_ms"`
	TokensInput  int     `json:"tokens_input"`
	TokensOutput int     `json:"tokens_output"`
	CostUSD      float64 `json:"cost_usd"`

	Response  string `json:"response,omitempty"`
	Reasoning string `json:"reasoning,omitempty"`

	ToolUsed  string `json:"tool_used,omitempty"`
	ModelUsed string `json:"model_used,omitempty"`

	// Aux carries backend-specific data forward to the next tier.
	Aux map[string]string `json:"aux,omitempty"`
}

// Resolved reports whether this outcome terminates the ladder.
func (o TierOutcome) Resolved() bool {
	return o.Decision == DecisionResolve
}

// PriorAttempt summarises an earlier tier's try for the next tier up the
// ladder, so the costlier backend can build on the local attempt.
type PriorAttempt struct {
	Tier       Tier
	Response   string
	Reasoning  string
	Confidence float64
	Failed     bool
}
