package activity

import (
	"testing"
	"time"

	"github.com/triagestack/triage-engine/internal/models"
)

func TestRecorderOrderingAndDelivery(t *testing.T) {
	var delivered []models.ActivityEvent
	sink := SinkFunc(func(sessionID string, event models.ActivityEvent) {
		if sessionID != "sess-1" {
			t.Fatalf("unexpected session id: %s", sessionID)
		}
		delivered = append(delivered, event)
	})

	rec := NewRecorder("sess-1", time.Now(), sink)
	rec.Emit(models.TierSystem, models.EventSessionStarted, "session started", nil)
	rec.Emit(models.TierEdge, models.EventTierStarted, "edge tier attempt", nil)
	rec.Emit(models.TierSystem, models.EventSessionCompleted, "session completed", nil)

	events := rec.Events()
	if len(events) != 3 {
		t.Fatalf("expected 3 retained events, got %d", len(events))
	}
	if len(delivered) != 3 {
		t.Fatalf("expected 3 delivered events, got %d", len(delivered))
	}
	for i := 1; i < len(events); i++ {
		if events[i].TimestampMs < events[i-1].TimestampMs {
			t.Fatalf("timestamps decreased at index %d", i)
		}
	}
	if events[len(events)-1].Tier != models.TierSystem {
		t.Fatalf("expected final event tier system, got %s", events[len(events)-1].Tier)
	}
}

func TestRecorderClampsBackwardClock(t *testing.T) {
	rec := NewRecorder("sess-2", time.Now())
	times := []time.Time{
		time.Now().Add(50 * time.Millisecond),
		time.Now().Add(10 * time.Millisecond), // clock stepped back
	}
	idx := 0
	rec.now = func() time.Time {
		ts := times[idx]
		idx++
		return ts
	}

	rec.Emit(models.TierSystem, models.EventSessionStarted, "start", nil)
	rec.Emit(models.TierTool, models.EventTierStarted, "tool", nil)

	events := rec.Events()
	if events[1].TimestampMs < events[0].TimestampMs {
		t.Fatalf("recorder must clamp non-monotonic timestamps")
	}
}

func TestRecorderEventsCopy(t *testing.T) {
	rec := NewRecorder("sess-3", time.Now())
	rec.Emit(models.TierSystem, models.EventSessionStarted, "start", nil)

	events := rec.Events()
	events[0].Description = "mutated"
	if rec.Events()[0].Description != "start" {
		t.Fatalf("Events must return a copy of the retained list")
	}
}
