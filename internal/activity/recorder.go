package activity

import (
	"time"

	"github.com/triagestack/triage-engine/internal/models"
)

// Sink receives activity events synchronously at emission time. Sinks must
// not block for long; slow delivery belongs in an asynchronous wrapper.
type Sink interface {
	Publish(sessionID string, event models.ActivityEvent)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(sessionID string, event models.ActivityEvent)

// Publish calls the wrapped function.
func (f SinkFunc) Publish(sessionID string, event models.ActivityEvent) {
	f(sessionID, event)
}

// Recorder owns one session's append-only activity timeline. Timestamps are
// relative to the session start and non-decreasing because a session is
// processed by a single goroutine.
type Recorder struct {
	sessionID string
	start     time.Time
	now       func() time.Time
	events    []models.ActivityEvent
	sinks     []Sink
}

// NewRecorder creates a recorder for a fresh session.
func NewRecorder(sessionID string, start time.Time, sinks ...Sink) *Recorder {
	return &Recorder{
		sessionID: sessionID,
		start:     start,
		now:       time.Now,
		events:    make([]models.ActivityEvent, 0, 16),
		sinks:     sinks,
	}
}

// Emit appends an event to the timeline and publishes it to every sink.
func (r *Recorder) Emit(tier models.Tier, eventType, description string, metadata map[string]string) {
	elapsed := r.now().Sub(r.start)
	if elapsed < 0 {
		elapsed = 0
	}
	event := models.ActivityEvent{
		TimestampMs: elapsed.Milliseconds(),
		Tier:        tier,
		EventType:   eventType,
		Description: description,
		Metadata:    metadata,
	}
	if n := len(r.events); n > 0 && event.TimestampMs < r.events[n-1].TimestampMs {
		// Guard against clock adjustments; ordering is creation order.
		event.TimestampMs = r.events[n-1].TimestampMs
	}
	r.events = append(r.events, event)
	for _, sink := range r.sinks {
		sink.Publish(r.sessionID, event)
	}
}

// Events returns the retained timeline in emission order.
func (r *Recorder) Events() []models.ActivityEvent {
	out := make([]models.ActivityEvent, len(r.events))
	copy(out, r.events)
	return out
}

// SessionID returns the owning session's identifier.
func (r *Recorder) SessionID() string {
	return r.sessionID
}
