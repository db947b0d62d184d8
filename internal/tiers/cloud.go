package tiers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/triagestack/triage-engine/internal/models"
	"github.com/triagestack/triage-engine/internal/utils"
)

const defaultCloudEndpoint = "https://api.openai.com/v1/chat/completions"

const defaultCloudTimeout = 120 * time.Second

const escalationSystemPrompt = `You are a senior IT support specialist handling escalated incidents.
Respond with a single JSON object and nothing else, using exactly these keys:
{"resolution": string, "reasoning": string, "confidence": number between 0 and 1,
"category": string, "estimated_time": string, "requires_specialist": boolean,
"specialist_notes": string}`

// CloudConfig holds settings for the cloud inference tier.
type CloudConfig struct {
	APIKey    string
	Endpoint  string
	Model     string
	MaxTokens int
	Timeout   time.Duration
	// Threshold is the confidence floor below which the backend response is
	// forced to requires_specialist, pre-validating the raw response before
	// it reaches the engine.
	Threshold float64
}

// CloudClient adapts an OpenAI-compatible chat completions endpoint as the
// top tier of the escalation ladder.
type CloudClient struct {
	cfg        CloudConfig
	httpClient *http.Client
}

// NewCloudClient constructs a cloud tier client.
func NewCloudClient(cfg CloudConfig) *CloudClient {
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultCloudEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultCloudTimeout
	}
	return &CloudClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// Name identifies the cloud tier.
func (c *CloudClient) Name() models.Tier { return models.TierCloud }

// HealthCheck reports configuration readiness. The cloud API is not probed to
// avoid spending quota on liveness; a missing key is the only local failure.
func (c *CloudClient) HealthCheck(ctx context.Context) Health {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return Health{Healthy: false, Detail: "cloud API key not configured"}
	}
	return Health{Healthy: true, Detail: fmt.Sprintf("model %s", c.cfg.Model)}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

type chatErrorEnvelope struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// escalationAnalysis is the structured verdict expected from the model.
type escalationAnalysis struct {
	Resolution         string  `json:"resolution"`
	Reasoning          string  `json:"reasoning"`
	Confidence         float64 `json:"confidence"`
	Category           string  `json:"category"`
	EstimatedTime      string  `json:"estimated_time"`
	RequiresSpecialist bool    `json:"requires_specialist"`
	SpecialistNotes    string  `json:"specialist_notes"`
}

// Resolve submits the escalated incident, including the edge tier's prior
// attempt when one exists, and parses the model's structured analysis.
func (c *CloudClient) Resolve(ctx context.Context, scenario models.Scenario, prior *models.PriorAttempt) (models.TierOutcome, error) {
	const op = "cloud.resolve"
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return models.TierOutcome{}, utils.ConfigurationError(op,
			"cloud API key not configured; set tiers.cloud.apiKey or TRIAGE_CLOUD_API_KEY")
	}

	payload := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: escalationSystemPrompt},
			{Role: "user", Content: buildEscalationPrompt(scenario.Incident, prior)},
		},
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: 0.2,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return models.TierOutcome{}, utils.BackendError(op, fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return models.TierOutcome{}, utils.TransportError(op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.TierOutcome{}, utils.TransportError(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return models.TierOutcome{}, utils.TransportError(op, parseCloudAPIError(resp))
	}

	var parsed chatResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&parsed); err != nil {
		return models.TierOutcome{}, utils.BackendError(op, fmt.Errorf("decode response: %w", err))
	}
	if len(parsed.Choices) == 0 {
		return models.TierOutcome{}, utils.BackendError(op, fmt.Errorf("response contained no choices"))
	}

	analysis, err := parseEscalationAnalysis(parsed.Choices[0].Message.Content)
	if err != nil {
		return models.TierOutcome{}, utils.BackendError(op, err)
	}

	// Pre-validate the raw backend verdict: below-threshold confidence means
	// a specialist is required regardless of what the model claimed.
	if c.cfg.Threshold > 0 && analysis.Confidence < c.cfg.Threshold {
		analysis.RequiresSpecialist = true
	}

	decision := models.DecisionResolve
	if analysis.RequiresSpecialist {
		decision = models.DecisionEscalate
	}

	modelName := parsed.Model
	if modelName == "" {
		modelName = c.cfg.Model
	}
	aux := map[string]string{
		"requires_specialist": strconv.FormatBool(analysis.RequiresSpecialist),
	}
	if analysis.Category != "" {
		aux["category"] = analysis.Category
	}
	if analysis.EstimatedTime != "" {
		aux["estimated_time"] = analysis.EstimatedTime
	}
	if analysis.SpecialistNotes != "" {
		aux["specialist_notes"] = analysis.SpecialistNotes
	}

	return models.TierOutcome{
		Tier:         models.TierCloud,
		Active:       true,
		Decision:     decision,
		Confidence:   analysis.Confidence,
		TokensInput:  parsed.Usage.PromptTokens,
		TokensOutput: parsed.Usage.CompletionTokens,
		Response:     analysis.Resolution,
		Reasoning:    analysis.Reasoning,
		ModelUsed:    modelName,
		Aux:          aux,
	}, nil
}

func buildEscalationPrompt(incident models.Incident, prior *models.PriorAttempt) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Incident %s (priority %s)\n", incident.ID, incident.Priority)
	fmt.Fprintf(&b, "Summary: %s\n", incident.Summary)
	fmt.Fprintf(&b, "Description: %s\n", incident.Description)
	if incident.Category != "" {
		fmt.Fprintf(&b, "Category: %s\n", incident.Category)
	}
	if prior != nil && !prior.Failed {
		fmt.Fprintf(&b, "\nA local support agent already attempted this incident with confidence %.2f.\n", prior.Confidence)
		fmt.Fprintf(&b, "Its proposed resolution was:\n%s\n", prior.Response)
		if prior.Reasoning != "" {
			fmt.Fprintf(&b, "Its reasoning was:\n%s\n", prior.Reasoning)
		}
		b.WriteString("Acknowledge the local attempt and build on it where it was on the right track.\n")
	}
	return b.String()
}

// parseEscalationAnalysis extracts the JSON verdict from the model output,
// tolerating surrounding prose or markdown fences.
func parseEscalationAnalysis(content string) (escalationAnalysis, error) {
	trimmed := strings.TrimSpace(content)
	if start := strings.Index(trimmed, "{"); start >= 0 {
		if end := strings.LastIndex(trimmed, "}"); end > start {
			trimmed = trimmed[start : end+1]
		}
	}
	var analysis escalationAnalysis
	if err := json.Unmarshal([]byte(trimmed), &analysis); err != nil {
		return escalationAnalysis{}, fmt.Errorf("parse escalation analysis: %w", err)
	}
	if analysis.Resolution == "" {
		return escalationAnalysis{}, fmt.Errorf("escalation analysis missing resolution")
	}
	if analysis.Confidence < 0 {
		analysis.Confidence = 0
	}
	if analysis.Confidence > 1 {
		analysis.Confidence = 1
	}
	return analysis, nil
}

func parseCloudAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	message := strings.TrimSpace(string(body))
	if len(body) > 0 {
		var parsed chatErrorEnvelope
		if err := json.Unmarshal(body, &parsed); err == nil && strings.TrimSpace(parsed.Error.Message) != "" {
			message = parsed.Error.Message
		}
	}
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("cloud api rate limited: %s", message)
	}
	return fmt.Errorf("cloud api status %d: %s", resp.StatusCode, message)
}
