package utils

import (
	"testing"
	"time"
)

func TestLatencyTrackerPercentile(t *testing.T) {
	tracker := NewLatencyTracker(10)
	durations := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 30 * time.Millisecond, 40 * time.Millisecond, 50 * time.Millisecond}
	for _, d := range durations {
		tracker.Observe(d)
	}

	if tracker.Count() != len(durations) {
		t.Fatalf("expected count %d, got %d", len(durations), tracker.Count())
	}

	p95 := tracker.Percentile(95)
	if p95 < 40*time.Millisecond {
		t.Fatalf("expected percentile >= 40ms, got %v", p95)
	}
}

func TestLatencyTrackerBoundedSize(t *testing.T) {
	tracker := NewLatencyTracker(3)
	for i := 0; i < 10; i++ {
		tracker.Observe(time.Duration(i) * time.Millisecond)
	}
	if tracker.Count() != 3 {
		t.Fatalf("expected tracker size 3, got %d", tracker.Count())
	}
}

func TestErrorKinds(t *testing.T) {
	err := ConfigurationError("cloud.resolve", "cloud API key not configured")
	if !IsKind(err, KindConfiguration) {
		t.Fatalf("expected configuration kind, got %s", KindOf(err))
	}
	if IsKind(err, KindTransport) {
		t.Fatalf("configuration error misclassified as transport")
	}

	wrapped := TransportError("edge.resolve", err)
	if KindOf(wrapped) != KindTransport {
		t.Fatalf("expected transport kind, got %s", KindOf(wrapped))
	}
}

func TestFormatMillis(t *testing.T) {
	if got := FormatMillis(340); got != "340ms" {
		t.Fatalf("unexpected format: %s", got)
	}
	if got := FormatMillis(2340); got != "2.3s" {
		t.Fatalf("unexpected format: %s", got)
	}
}
