package store

import (
	"context"
	"sort"
	"sync"

	"github.com/triagestack/triage-engine/internal/models"
)

// MemoryStore is an in-process Store for tests and storage-less deployments.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]models.ProcessingResult
	order    []string
	metrics  []models.TierMetric
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]models.ProcessingResult)}
}

func (s *MemoryStore) SaveSession(_ context.Context, result models.ProcessingResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[result.SessionID]; !exists {
		s.order = append(s.order, result.SessionID)
	}
	s.sessions[result.SessionID] = result
	return nil
}

func (s *MemoryStore) GetSession(_ context.Context, sessionID string) (models.ProcessingResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result, ok := s.sessions[sessionID]
	if !ok {
		return models.ProcessingResult{}, ErrNotFound
	}
	return result, nil
}

func (s *MemoryStore) ListSessions(_ context.Context, limit int) ([]models.ProcessingResult, error) {
	if limit <= 0 {
		limit = 50
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]models.ProcessingResult, 0, len(s.order))
	for _, id := range s.order {
		results = append(results, s.sessions[id])
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].CreatedAt.After(results[j].CreatedAt)
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (s *MemoryStore) RecordTierMetric(_ context.Context, metric models.TierMetric) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = append(s.metrics, metric)
	return nil
}

// TierMetrics returns a copy of the recorded metric rows.
func (s *MemoryStore) TierMetrics() []models.TierMetric {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.TierMetric, len(s.metrics))
	copy(out, s.metrics)
	return out
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
