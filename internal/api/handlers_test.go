package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/triagestack/triage-engine/internal/engine"
	"github.com/triagestack/triage-engine/internal/models"
	"github.com/triagestack/triage-engine/internal/pricing"
	"github.com/triagestack/triage-engine/internal/services"
	"github.com/triagestack/triage-engine/internal/store"
	"github.com/triagestack/triage-engine/internal/tiers"
	"github.com/triagestack/triage-engine/internal/utils"
)

type stubTier struct {
	tier        models.Tier
	healthy     bool
	outcome     models.TierOutcome
	healthCalls int
}

func (s *stubTier) Name() models.Tier { return s.tier }

func (s *stubTier) HealthCheck(context.Context) tiers.Health {
	s.healthCalls++
	return tiers.Health{Healthy: s.healthy, Detail: "stub"}
}

func (s *stubTier) Resolve(context.Context, models.Scenario, *models.PriorAttempt) (models.TierOutcome, error) {
	return s.outcome, nil
}

type fixture struct {
	handler *Handler
	edge    *stubTier
	cloud   *stubTier
	store   *store.MemoryStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	edge := &stubTier{tier: models.TierEdge, healthy: true, outcome: models.TierOutcome{
		Decision:   models.DecisionResolve,
		Confidence: 0.85,
		Response:   "restart the print spooler",
		ModelUsed:  "phi-3.5-mini-instruct",
	}}
	cloud := &stubTier{tier: models.TierCloud, healthy: true, outcome: models.TierOutcome{
		Decision:   models.DecisionResolve,
		Confidence: 0.9,
		Response:   "cloud resolution",
		ModelUsed:  "gpt-4o",
	}}
	sessions := store.NewMemoryStore()
	logger := utils.NewLogger("error", false)
	eng := engine.New(logger, nil, edge, cloud, pricing.NewBook(), sessions, engine.Config{})
	svc := services.NewTriageService(logger, eng, sessions, nil, nil)
	handler := NewHandler(logger, svc, []tiers.Client{edge, cloud}, time.Minute)
	return &fixture{handler: handler, edge: edge, cloud: cloud, store: sessions}
}

func triageBody(t *testing.T) *bytes.Reader {
	t.Helper()
	body, err := json.Marshal(triageRequest{Incident: models.Incident{
		ID:      "INC-1",
		Summary: "printer offline",
	}})
	if err != nil {
		t.Fatal(err)
	}
	return bytes.NewReader(body)
}

func TestHandleTriage(t *testing.T) {
	f := newFixture(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/triage", triageBody(t))

	f.handler.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var result models.ProcessingResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.FinalTier != models.TierEdge || !result.Success {
		t.Errorf("result = %+v", result)
	}
	if len(result.Events) == 0 || result.Ticket == "" {
		t.Error("result missing events or ticket")
	}
}

func TestHandleTriageBadRequests(t *testing.T) {
	f := newFixture(t)
	router := f.handler.Router()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/triage", strings.NewReader("{not json")))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed json status = %d", rec.Code)
	}

	body, _ := json.Marshal(triageRequest{Incident: models.Incident{ID: "INC-2"}})
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/triage", bytes.NewReader(body)))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing summary status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "summary") {
		t.Errorf("error body = %s", rec.Body.String())
	}
}

func TestHandleSessions(t *testing.T) {
	f := newFixture(t)
	router := f.handler.Router()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/triage", triageBody(t)))
	var created models.ProcessingResult
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var listed struct {
		Sessions []models.ProcessingResult `json:"sessions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil {
		t.Fatal(err)
	}
	if len(listed.Sessions) != 1 || listed.Sessions[0].SessionID != created.SessionID {
		t.Errorf("sessions = %+v", listed.Sessions)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+created.SessionID, nil))
	if rec.Code != http.StatusOK {
		t.Errorf("get status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing session status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/sessions?limit=zero", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d", rec.Code)
	}
}

func TestHandleHealth(t *testing.T) {
	f := newFixture(t)
	router := f.handler.Router()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var payload struct {
		Status string                `json:"status"`
		Tiers  map[string]tierHealth `json:"tiers"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatal(err)
	}
	if payload.Status != "healthy" || !payload.Tiers["edge"].Healthy {
		t.Errorf("payload = %+v", payload)
	}

	// Second request inside the TTL must use the memoized probe.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if f.edge.healthCalls != 1 {
		t.Errorf("edge probed %d times, want 1", f.edge.healthCalls)
	}
}

func TestHandleHealthDegraded(t *testing.T) {
	f := newFixture(t)
	f.cloud.healthy = false

	rec := httptest.NewRecorder()
	f.handler.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "degraded") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestTriageStream(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.handler.Router())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/triage/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	req := triageRequest{Incident: models.Incident{ID: "INC-9", Summary: "vpn flapping"}}
	if err := conn.WriteJSON(req); err != nil {
		t.Fatalf("write request: %v", err)
	}

	var activityCount int
	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read message: %v", err)
		}
		switch msg.Type {
		case wsTypeActivity:
			activityCount++
			if msg.Event == nil || msg.SessionID == "" {
				t.Fatalf("activity message = %+v", msg)
			}
		case wsTypeResult:
			if activityCount < 2 {
				t.Errorf("only %d activity events before result", activityCount)
			}
			if msg.Result == nil || !msg.Result.Success {
				t.Fatalf("result message = %+v", msg)
			}
			if len(msg.Result.Events) != activityCount {
				t.Errorf("streamed %d events, result retained %d", activityCount, len(msg.Result.Events))
			}
			return
		case wsTypeError:
			t.Fatalf("stream error: %s", msg.Error)
		}
	}
}

func TestTriageStreamValidation(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.handler.Router())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/triage/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(triageRequest{}); err != nil {
		t.Fatalf("write request: %v", err)
	}
	var msg wsMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read message: %v", err)
	}
	if msg.Type != wsTypeError || !strings.Contains(msg.Error, "required") {
		t.Errorf("message = %+v", msg)
	}
}
