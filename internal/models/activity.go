package models

// ActivityEvent is one entry in a session's append-only activity timeline.
// TimestampMs is relative to session start and non-decreasing within a
// session; events are never mutated after emission.
type ActivityEvent struct {
	TimestampMs int64             `json:"timestamp_ms"`
	Tier        Tier              `json:"tier"`
	EventType   string            `json:"event_type"`
	Description string            `json:"description"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Activity event types emitted by the engine.
const (
	EventSessionStarted   = "session_started"
	EventTierRouting      = "tier_routing"
	EventTierStarted      = "tier_started"
	EventTierResult       = "tier_result"
	EventTierError        = "tier_error"
	EventTierSkipped      = "tier_skipped"
	EventEscalation       = "escalation_triggered"
	EventSessionCompleted = "session_completed"
)
