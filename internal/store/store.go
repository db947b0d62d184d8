package store

import (
	"context"
	"errors"

	"github.com/triagestack/triage-engine/internal/models"
)

// ErrNotFound is returned when a session id has no stored result.
var ErrNotFound = errors.New("not found")

// Store persists completed triage sessions and per-tier metric rows. Both
// tables are append-only; results are never mutated after a session completes.
type Store interface {
	SaveSession(ctx context.Context, result models.ProcessingResult) error
	GetSession(ctx context.Context, sessionID string) (models.ProcessingResult, error)
	ListSessions(ctx context.Context, limit int) ([]models.ProcessingResult, error)
	RecordTierMetric(ctx context.Context, metric models.TierMetric) error
	Ping(ctx context.Context) error
	Close() error
}
