package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/triagestack/triage-engine/internal/models"
)

func sampleResult(sessionID string, createdAt time.Time) models.ProcessingResult {
	return models.ProcessingResult{
		SessionID:  sessionID,
		ScenarioID: "INC-100",
		Edge: &models.TierOutcome{
			Tier:       models.TierEdge,
			Active:     true,
			Decision:   models.DecisionResolve,
			Confidence: 0.84,
			LatencyMs:  1200,
		},
		FinalTier:      models.TierEdge,
		Success:        true,
		Resolution:     "Restart the VPN adapter.",
		Confidence:     0.84,
		TotalLatencyMs: 1250,
		TotalCostUSD:   0,
		Events: []models.ActivityEvent{
			{TimestampMs: 0, Tier: models.TierSystem, EventType: models.EventSessionStarted, Description: "session started"},
		},
		Ticket:    "TICKET",
		CreatedAt: createdAt,
	}
}

func testStores(t *testing.T) map[string]Store {
	t.Helper()
	gormStore, err := NewGormStore("sqlite", filepath.Join(t.TempDir(), "triage.db"))
	if err != nil {
		t.Fatalf("open gorm store: %v", err)
	}
	t.Cleanup(func() { gormStore.Close() })
	return map[string]Store{
		"gorm":   gormStore,
		"memory": NewMemoryStore(),
	}
}

func TestStoreSessionRoundTrip(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			want := sampleResult("sess-1", time.Now().UTC().Truncate(time.Second))
			if err := s.SaveSession(ctx, want); err != nil {
				t.Fatalf("SaveSession: %v", err)
			}

			got, err := s.GetSession(ctx, "sess-1")
			if err != nil {
				t.Fatalf("GetSession: %v", err)
			}
			if got.SessionID != want.SessionID || got.Resolution != want.Resolution {
				t.Errorf("got %+v", got)
			}
			if got.Edge == nil || got.Edge.Confidence != 0.84 {
				t.Errorf("edge outcome not preserved: %+v", got.Edge)
			}
			if len(got.Events) != 1 || got.Events[0].EventType != models.EventSessionStarted {
				t.Errorf("events not preserved: %+v", got.Events)
			}

			if _, err := s.GetSession(ctx, "missing"); !errors.Is(err, ErrNotFound) {
				t.Errorf("missing session error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestStoreListSessionsNewestFirst(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Now().UTC().Truncate(time.Second)
			for i, id := range []string{"sess-a", "sess-b", "sess-c"} {
				r := sampleResult(id, base.Add(time.Duration(i)*time.Minute))
				if err := s.SaveSession(ctx, r); err != nil {
					t.Fatalf("SaveSession %s: %v", id, err)
				}
			}

			results, err := s.ListSessions(ctx, 2)
			if err != nil {
				t.Fatalf("ListSessions: %v", err)
			}
			if len(results) != 2 {
				t.Fatalf("len = %d, want 2", len(results))
			}
			if results[0].SessionID != "sess-c" || results[1].SessionID != "sess-b" {
				t.Errorf("order = %s, %s", results[0].SessionID, results[1].SessionID)
			}
		})
	}
}

func TestStoreRecordTierMetric(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			metric := models.TierMetric{
				SessionID:    "sess-1",
				ScenarioID:   "INC-100",
				Tier:         models.TierCloud,
				LatencyMs:    3400,
				TokensInput:  820,
				TokensOutput: 140,
				CostUSD:      0.00345,
				RecordedAt:   time.Now().UTC(),
			}
			if err := s.RecordTierMetric(ctx, metric); err != nil {
				t.Fatalf("RecordTierMetric: %v", err)
			}
			if err := s.Ping(ctx); err != nil {
				t.Errorf("Ping: %v", err)
			}
		})
	}
}

func TestOpenGormRejectsUnknownDriver(t *testing.T) {
	if _, err := OpenGorm("oracle", "dsn"); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
	if _, err := OpenGorm("postgres", ""); err == nil {
		t.Fatal("expected error for postgres without dsn")
	}
}
