package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/triagestack/triage-engine/internal/activity"
	"github.com/triagestack/triage-engine/internal/archive"
	"github.com/triagestack/triage-engine/internal/engine"
	"github.com/triagestack/triage-engine/internal/metrics"
	"github.com/triagestack/triage-engine/internal/models"
	"github.com/triagestack/triage-engine/internal/store"
	"github.com/triagestack/triage-engine/internal/tiers"
	"github.com/triagestack/triage-engine/internal/utils"
)

// KnowledgeWriter feeds accepted resolutions back into the edge tier's
// knowledge base. The edge client satisfies it.
type KnowledgeWriter interface {
	AddKnowledge(ctx context.Context, entry tiers.KnowledgeEntry) error
}

// TriageService wraps the decision engine with persistence, metrics and the
// post-session side effects: knowledge-base feedback and ticket archiving.
type TriageService struct {
	logger    *slog.Logger
	engine    *engine.Engine
	sessions  store.Store
	knowledge KnowledgeWriter
	archiver  archive.Archiver
	latencies *utils.LatencyTracker
}

// NewTriageService constructs the service facade. Knowledge writer and
// archiver are optional.
func NewTriageService(
	logger *slog.Logger,
	eng *engine.Engine,
	sessions store.Store,
	knowledge KnowledgeWriter,
	archiver archive.Archiver,
) *TriageService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TriageService{
		logger:    logger,
		engine:    eng,
		sessions:  sessions,
		knowledge: knowledge,
		archiver:  archiver,
		latencies: utils.NewLatencyTracker(1024),
	}
}

// Triage processes one scenario end to end. Extra sinks stream the session's
// activity events to the caller. Side effects after engine completion are
// best effort and never fail the session.
func (s *TriageService) Triage(ctx context.Context, scenario models.Scenario, sinks ...activity.Sink) (models.ProcessingResult, error) {
	start := time.Now()
	result, err := s.engine.Process(ctx, scenario, sinks...)
	duration := time.Since(start)
	if err != nil {
		return models.ProcessingResult{}, err
	}

	s.latencies.Observe(duration)
	metrics.ObserveSession(result, duration)
	if count := s.latencies.Count(); count >= 20 && count%20 == 0 {
		s.logger.Info("triage latency",
			slog.Duration("p95", s.latencies.Percentile(95)),
			slog.Int("samples", count))
	}

	if s.sessions != nil {
		if err := s.sessions.SaveSession(ctx, result); err != nil {
			s.logger.Error("persist session", slog.String("session_id", result.SessionID), slog.Any("error", err))
		}
	}

	s.feedKnowledge(ctx, scenario, result)
	s.archiveTicket(ctx, result)

	return result, nil
}

// feedKnowledge stores a cloud-accepted resolution in the edge knowledge base
// so a future similar incident can be resolved locally.
func (s *TriageService) feedKnowledge(ctx context.Context, scenario models.Scenario, result models.ProcessingResult) {
	if s.knowledge == nil || !result.Success || result.FinalTier != models.TierCloud {
		return
	}
	entry := tiers.KnowledgeEntry{
		IncidentSummary: scenario.Incident.Summary,
		Resolution:      result.Resolution,
		Category:        scenario.Incident.Category,
		Confidence:      result.Confidence,
	}
	if err := s.knowledge.AddKnowledge(ctx, entry); err != nil {
		s.logger.Warn("knowledge base feedback failed",
			slog.String("session_id", result.SessionID), slog.Any("error", err))
	}
}

func (s *TriageService) archiveTicket(ctx context.Context, result models.ProcessingResult) {
	if s.archiver == nil || result.Ticket == "" {
		return
	}
	if err := s.archiver.ArchiveTicket(ctx, result); err != nil {
		s.logger.Warn("ticket archive failed",
			slog.String("session_id", result.SessionID), slog.Any("error", err))
	}
}

// Session returns one stored session by id.
func (s *TriageService) Session(ctx context.Context, sessionID string) (models.ProcessingResult, error) {
	if s.sessions == nil {
		return models.ProcessingResult{}, store.ErrNotFound
	}
	return s.sessions.GetSession(ctx, sessionID)
}

// Sessions returns the most recent stored sessions, newest first.
func (s *TriageService) Sessions(ctx context.Context, limit int) ([]models.ProcessingResult, error) {
	if s.sessions == nil {
		return nil, nil
	}
	return s.sessions.ListSessions(ctx, limit)
}

// LatencyP95 returns the current p95 session latency.
func (s *TriageService) LatencyP95() time.Duration {
	return s.latencies.Percentile(95)
}
