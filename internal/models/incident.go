package models

import "strings"

// Priority captures incident urgency levels.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Valid reports whether the priority is a known value.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// NormalizePriority lowercases the input and falls back to medium for
// empty or unknown values.
func NormalizePriority(raw string) Priority {
	p := Priority(strings.ToLower(strings.TrimSpace(raw)))
	if !p.Valid() {
		return PriorityMedium
	}
	return p
}

// Incident is the support incident submitted for triage. Immutable once a
// session starts processing it.
type Incident struct {
	ID          string            `json:"id"`
	Summary     string            `json:"summary"`
	Description string            `json:"description"`
	Priority    Priority          `json:"priority"`
	Category    string            `json:"category,omitempty"`
	User        map[string]string `json:"user,omitempty"`
}

// ToolRequest designates a system tool the tool tier should execute for a
// scenario, with free-form arguments.
type ToolRequest struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// Scenario is the unit of work submitted to the decision engine: an incident
// plus routing hints. Read-only to the engine.
type Scenario struct {
	Incident Incident `json:"incident"`
	// Tool is nil when the scenario carries no tool hint; the tool tier is
	// then skipped entirely.
	Tool *ToolRequest `json:"tool,omitempty"`
}
