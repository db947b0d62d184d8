package tiers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/triagestack/triage-engine/internal/models"
	"github.com/triagestack/triage-engine/internal/utils"
)

const defaultEdgeTimeout = 60 * time.Second

// defaultEdgeModel attributes edge token usage for cost accounting. The edge
// service runs an on-device model, so the price book resolves it to zero.
const defaultEdgeModel = "phi-3.5-mini-instruct"

// EdgeClient adapts the local inference agent: GET /health, POST /resolve and
// POST /kb/add for knowledge-base feedback.
type EdgeClient struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewEdgeClient constructs a client for the edge inference service.
func NewEdgeClient(baseURL, model string, timeout time.Duration) *EdgeClient {
	if timeout <= 0 {
		timeout = defaultEdgeTimeout
	}
	if model == "" {
		model = defaultEdgeModel
	}
	return &EdgeClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Name identifies the edge tier.
func (c *EdgeClient) Name() models.Tier { return models.TierEdge }

type edgeHealthResponse struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
	KBEntries   int    `json:"kb_entries"`
}

// HealthCheck probes the edge agent. Never returns an error.
func (c *EdgeClient) HealthCheck(ctx context.Context) Health {
	if c.baseURL == "" {
		return Health{Healthy: false, Detail: "edge agent URL not configured"}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return Health{Healthy: false, Detail: err.Error()}
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Health{Healthy: false, Detail: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Health{Healthy: false, Detail: fmt.Sprintf("edge agent returned %s", resp.Status)}
	}
	var parsed edgeHealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Health{Healthy: false, Detail: fmt.Sprintf("decode health response: %v", err)}
	}
	if parsed.Status != "healthy" {
		return Health{Healthy: false, Detail: fmt.Sprintf("edge agent status %q", parsed.Status)}
	}
	return Health{Healthy: true, Detail: fmt.Sprintf("model_loaded=%t kb_entries=%d", parsed.ModelLoaded, parsed.KBEntries)}
}

type edgeResolveRequest struct {
	ID          string            `json:"id"`
	Summary     string            `json:"summary"`
	Description string            `json:"description"`
	Category    string            `json:"category,omitempty"`
	User        map[string]string `json:"user"`
	Metadata    map[string]string `json:"metadata"`
}

type edgeResolveResponse struct {
	Confidence       float64  `json:"confidence"`
	Resolution       string   `json:"resolution"`
	Reasoning        string   `json:"reasoning"`
	SimilarIncidents []string `json:"similar_incidents"`
	ShouldEscalate   bool     `json:"should_escalate"`
	EscalationReason string   `json:"escalation_reason"`
	TokensInput      int      `json:"tokens_input"`
	TokensOutput     int      `json:"tokens_output"`
}

// Resolve submits the incident to the edge agent. Structured output from a
// prior tool attempt is appended to the incident description as supplementary
// context; the agent sees plain text, not structured fields.
func (c *EdgeClient) Resolve(ctx context.Context, scenario models.Scenario, prior *models.PriorAttempt) (models.TierOutcome, error) {
	const op = "edge.resolve"
	if c.baseURL == "" {
		return models.TierOutcome{}, utils.ConfigurationError(op, "edge agent URL not configured; set tiers.edge.baseURL")
	}

	incident := scenario.Incident
	description := incident.Description
	if prior != nil && !prior.Failed && prior.Response != "" {
		description = description + "\n\nDiagnostic data gathered by system tools:\n" + prior.Response
	}

	user := incident.User
	if user == nil {
		user = map[string]string{}
	}
	payload := edgeResolveRequest{
		ID:          incident.ID,
		Summary:     incident.Summary,
		Description: description,
		Category:    incident.Category,
		User:        user,
		Metadata:    map[string]string{"priority": string(incident.Priority)},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return models.TierOutcome{}, utils.BackendError(op, fmt.Errorf("marshal request: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/resolve", bytes.NewReader(body))
	if err != nil {
		return models.TierOutcome{}, utils.TransportError(op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.TierOutcome{}, utils.TransportError(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.TierOutcome{}, utils.TransportError(op, fmt.Errorf("edge agent returned %s", resp.Status))
	}

	var parsed edgeResolveResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return models.TierOutcome{}, utils.BackendError(op, err)
	}

	decision := models.DecisionResolve
	if parsed.ShouldEscalate {
		decision = models.DecisionEscalate
	}
	aux := map[string]string{}
	if parsed.EscalationReason != "" {
		aux["escalation_reason"] = parsed.EscalationReason
	}
	if len(parsed.SimilarIncidents) > 0 {
		aux["similar_incidents"] = strings.Join(parsed.SimilarIncidents, ",")
	}

	return models.TierOutcome{
		Tier:         models.TierEdge,
		Active:       true,
		Decision:     decision,
		Confidence:   parsed.Confidence,
		TokensInput:  parsed.TokensInput,
		TokensOutput: parsed.TokensOutput,
		Response:     parsed.Resolution,
		Reasoning:    parsed.Reasoning,
		ModelUsed:    c.model,
		Aux:          aux,
	}, nil
}

// KnowledgeEntry is a resolved incident pushed back into the edge agent's
// retrieval knowledge base.
type KnowledgeEntry struct {
	IncidentSummary string  `json:"incident_summary"`
	Resolution      string  `json:"resolution"`
	Category        string  `json:"category"`
	Confidence      float64 `json:"confidence"`
}

// AddKnowledge stores a resolution in the edge knowledge base so future
// similar incidents can be resolved locally.
func (c *EdgeClient) AddKnowledge(ctx context.Context, entry KnowledgeEntry) error {
	const op = "edge.kb_add"
	if c.baseURL == "" {
		return utils.ConfigurationError(op, "edge agent URL not configured")
	}
	body, err := json.Marshal(entry)
	if err != nil {
		return utils.BackendError(op, fmt.Errorf("marshal entry: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/kb/add", bytes.NewReader(body))
	if err != nil {
		return utils.TransportError(op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return utils.TransportError(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return utils.TransportError(op, fmt.Errorf("edge agent returned %s", resp.Status))
	}
	return nil
}
