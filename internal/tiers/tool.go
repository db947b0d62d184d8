package tiers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/triagestack/triage-engine/internal/models"
	"github.com/triagestack/triage-engine/internal/utils"
)

// toolConfidence is the fixed confidence assigned to a successful tool run.
// Tool output is deterministic system data, so a completed execution is
// treated as high-confidence.
const toolConfidence = 0.9

const defaultToolTimeout = 30 * time.Second

// ToolClient adapts the system-tools execution service: GET /health,
// GET /tools for discovery and POST /tools/call for execution.
type ToolClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewToolClient constructs a client for the tool execution host. A zero
// timeout falls back to 30 seconds, matching the host's own script timeout.
func NewToolClient(baseURL string, timeout time.Duration) *ToolClient {
	if timeout <= 0 {
		timeout = defaultToolTimeout
	}
	return &ToolClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Name identifies the tool tier.
func (c *ToolClient) Name() models.Tier { return models.TierTool }

type toolHealthResponse struct {
	Status         string   `json:"status"`
	ToolsAvailable []string `json:"tools_available"`
}

// HealthCheck probes the tool host. Never returns an error.
func (c *ToolClient) HealthCheck(ctx context.Context) Health {
	if c.baseURL == "" {
		return Health{Healthy: false, Detail: "tool host URL not configured"}
	}
	var parsed toolHealthResponse
	if err := c.getJSON(ctx, c.baseURL+"/health", &parsed); err != nil {
		return Health{Healthy: false, Detail: err.Error()}
	}
	if parsed.Status != "healthy" {
		return Health{Healthy: false, Detail: fmt.Sprintf("tool host status %q", parsed.Status)}
	}
	detail := fmt.Sprintf("%d tools available", len(parsed.ToolsAvailable))
	return Health{Healthy: true, Detail: detail}
}

// ToolInfo describes one tool exposed by the host.
type ToolInfo struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Parameters  map[string]string `json:"parameters"`
}

// ListTools fetches the host's tool registry.
func (c *ToolClient) ListTools(ctx context.Context) ([]ToolInfo, error) {
	if c.baseURL == "" {
		return nil, utils.ConfigurationError("tool.list", "tool host URL not configured")
	}
	var parsed struct {
		Tools []ToolInfo `json:"tools"`
	}
	if err := c.getJSON(ctx, c.baseURL+"/tools", &parsed); err != nil {
		return nil, utils.TransportError("tool.list", err)
	}
	return parsed.Tools, nil
}

type toolCallRequest struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

type toolCallResponse struct {
	Success         bool           `json:"success"`
	Result          map[string]any `json:"result"`
	Error           string         `json:"error"`
	ExecutionTimeMs int64          `json:"execution_time_ms"`
}

// Resolve executes the scenario's designated tool and renders its structured
// result into human-readable text.
func (c *ToolClient) Resolve(ctx context.Context, scenario models.Scenario, _ *models.PriorAttempt) (models.TierOutcome, error) {
	const op = "tool.resolve"
	if scenario.Tool == nil {
		return models.TierOutcome{}, utils.ValidationError(op, "scenario carries no tool request")
	}
	if c.baseURL == "" {
		return models.TierOutcome{}, utils.ConfigurationError(op, "tool host URL not configured; set tiers.tool.baseURL")
	}

	payload := toolCallRequest{Name: scenario.Tool.Name, Arguments: scenario.Tool.Arguments}
	if payload.Arguments == nil {
		payload.Arguments = map[string]any{}
	}

	var parsed toolCallResponse
	if err := c.postJSON(ctx, c.baseURL+"/tools/call", payload, &parsed); err != nil {
		return models.TierOutcome{}, utils.TransportError(op, err)
	}
	if !parsed.Success {
		msg := parsed.Error
		if msg == "" {
			msg = "tool execution failed"
		}
		return models.TierOutcome{}, utils.BackendError(op, fmt.Errorf("%s: %s", scenario.Tool.Name, msg))
	}

	return models.TierOutcome{
		Tier:       models.TierTool,
		Active:     true,
		Decision:   models.DecisionResolve,
		Confidence: toolConfidence,
		Response:   FormatToolResult(scenario.Tool.Name, parsed.Result),
		ToolUsed:   scenario.Tool.Name,
		Aux: map[string]string{
			"execution_time_ms": strconv.FormatInt(parsed.ExecutionTimeMs, 10),
		},
	}, nil
}

// FormatToolResult flattens a tool's key/value result into sorted lines of
// text. No schema is assumed beyond key/value pairs; nested structures are
// rendered as compact JSON.
func FormatToolResult(tool string, result map[string]any) string {
	if len(result) == 0 {
		return fmt.Sprintf("Tool %s completed with no output.", tool)
	}

	keys := make([]string, 0, len(result))
	for k := range result {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	fmt.Fprintf(&b, "Tool %s results:\n", tool)
	for _, k := range keys {
		fmt.Fprintf(&b, "  %s: %s\n", k, renderToolValue(result[k]))
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderToolValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(data)
	}
}

func (c *ToolClient) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *ToolClient) postJSON(ctx context.Context, endpoint string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *ToolClient) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("tool host returned %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
