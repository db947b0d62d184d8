package tiers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/triagestack/triage-engine/internal/models"
	"github.com/triagestack/triage-engine/internal/utils"
)

func toolScenario(name string, args map[string]any) models.Scenario {
	return models.Scenario{
		Incident: models.Incident{ID: "INC-1", Summary: "disk alert", Priority: models.PriorityHigh},
		Tool:     &models.ToolRequest{Name: name, Arguments: args},
	}
}

func TestToolClientResolveSuccess(t *testing.T) {
	var gotPath string
	var gotBody toolCallRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(toolCallResponse{
			Success:         true,
			Result:          map[string]any{"disk_usage_percent": 93.5, "mount": "/var"},
			ExecutionTimeMs: 42,
		})
	}))
	defer srv.Close()

	client := NewToolClient(srv.URL, 0)
	outcome, err := client.Resolve(context.Background(), toolScenario("check_disk_space", map[string]any{"host": "web-01"}), nil)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if gotPath != "/tools/call" {
		t.Errorf("request path = %q, want /tools/call", gotPath)
	}
	if gotBody.Name != "check_disk_space" {
		t.Errorf("tool name sent = %q", gotBody.Name)
	}
	if outcome.Decision != models.DecisionResolve {
		t.Errorf("decision = %s, want resolve", outcome.Decision)
	}
	if outcome.Confidence != toolConfidence {
		t.Errorf("confidence = %v, want %v", outcome.Confidence, toolConfidence)
	}
	if !outcome.Active {
		t.Error("outcome should be marked active")
	}
	if !strings.Contains(outcome.Response, "disk_usage_percent: 93.5") {
		t.Errorf("response missing result line: %q", outcome.Response)
	}
	if outcome.Aux["execution_time_ms"] != "42" {
		t.Errorf("execution_time_ms aux = %q", outcome.Aux["execution_time_ms"])
	}
}

func TestToolClientResolveFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(toolCallResponse{Success: false, Error: "unknown tool"})
	}))
	defer srv.Close()

	client := NewToolClient(srv.URL, 0)
	_, err := client.Resolve(context.Background(), toolScenario("bogus", nil), nil)
	if err == nil {
		t.Fatal("expected error for failed tool execution")
	}
	if !utils.IsKind(err, utils.KindBackend) {
		t.Errorf("error kind = %v, want backend", utils.KindOf(err))
	}
	if !strings.Contains(err.Error(), "unknown tool") {
		t.Errorf("error should carry backend message: %v", err)
	}
}

func TestToolClientResolveUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	client := NewToolClient(srv.URL, 0)
	_, err := client.Resolve(context.Background(), toolScenario("check_disk_space", nil), nil)
	if err == nil {
		t.Fatal("expected error for unreachable host")
	}
	if !utils.IsKind(err, utils.KindTransport) {
		t.Errorf("error kind = %v, want transport", utils.KindOf(err))
	}
}

func TestToolClientResolveNoToolHint(t *testing.T) {
	client := NewToolClient("http://localhost:1", 0)
	_, err := client.Resolve(context.Background(), models.Scenario{Incident: models.Incident{ID: "INC-2"}}, nil)
	if !utils.IsKind(err, utils.KindValidation) {
		t.Errorf("error kind = %v, want validation", utils.KindOf(err))
	}
}

func TestToolClientHealthCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("path = %q, want /health", r.URL.Path)
		}
		json.NewEncoder(w).Encode(toolHealthResponse{Status: "healthy", ToolsAvailable: []string{"check_disk_space", "restart_service"}})
	}))
	defer srv.Close()

	health := NewToolClient(srv.URL, 0).HealthCheck(context.Background())
	if !health.Healthy {
		t.Fatalf("expected healthy, got detail %q", health.Detail)
	}
	if !strings.Contains(health.Detail, "2 tools") {
		t.Errorf("detail = %q", health.Detail)
	}

	down := NewToolClient("", 0).HealthCheck(context.Background())
	if down.Healthy {
		t.Error("unconfigured client should report unhealthy")
	}
}

func TestToolClientListTools(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tools" {
			t.Errorf("path = %q, want /tools", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{"tools": []ToolInfo{
			{Name: "check_disk_space", Description: "report disk usage"},
		}})
	}))
	defer srv.Close()

	tools, err := NewToolClient(srv.URL, 0).ListTools(context.Background())
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	if len(tools) != 1 || tools[0].Name != "check_disk_space" {
		t.Errorf("tools = %+v", tools)
	}
}

func TestFormatToolResult(t *testing.T) {
	got := FormatToolResult("check_disk_space", map[string]any{
		"usage":  91.2,
		"ok":     false,
		"mounts": []any{"/", "/var"},
	})
	for _, want := range []string{"Tool check_disk_space results:", "usage: 91.2", "ok: false", `mounts: ["/","/var"]`} {
		if !strings.Contains(got, want) {
			t.Errorf("formatted result missing %q:\n%s", want, got)
		}
	}

	empty := FormatToolResult("noop", nil)
	if !strings.Contains(empty, "no output") {
		t.Errorf("empty result rendering = %q", empty)
	}
}
