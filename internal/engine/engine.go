package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/triagestack/triage-engine/internal/activity"
	"github.com/triagestack/triage-engine/internal/models"
	"github.com/triagestack/triage-engine/internal/pricing"
	"github.com/triagestack/triage-engine/internal/tiers"
	"github.com/triagestack/triage-engine/internal/utils"
)

// DefaultThreshold is the confidence floor an edge or cloud resolution must
// meet to be accepted without escalation.
const DefaultThreshold = 0.70

// fallbackResolution is returned when the ladder is exhausted without an
// accepted resolution and the last tier produced no usable text.
const fallbackResolution = "This incident requires human specialist intervention. Please assign it to the appropriate support team."

// MetricSink receives one record per attempted tier. The store satisfies it.
type MetricSink interface {
	RecordTierMetric(ctx context.Context, metric models.TierMetric) error
}

// Config carries the engine's policy knobs.
type Config struct {
	// Threshold is the confidence floor for accepting a resolve decision.
	// Zero falls back to DefaultThreshold.
	Threshold float64
	// ToolEnabled gates the tool tier administratively. When false, scenarios
	// with a tool hint skip straight to the edge tier without calling the
	// tool backend.
	ToolEnabled bool
}

// Engine walks an incident down the tier ladder: tool, then edge, then cloud.
// The cheapest tier that resolves with acceptable confidence wins; anything
// else escalates upward. Tier failures are absorbed at the tier boundary and
// never abort the session.
type Engine struct {
	logger    *slog.Logger
	tool      tiers.Client
	edge      tiers.Client
	cloud     tiers.Client
	prices    *pricing.Book
	metrics   MetricSink
	sinks     []activity.Sink
	threshold float64
	toolOn    bool

	now   func() time.Time
	newID func() string
}

// New constructs an engine with its three tier clients, price book and
// optional metric sink. Sinks receive every activity event from every session.
func New(
	logger *slog.Logger,
	tool tiers.Client,
	edge tiers.Client,
	cloud tiers.Client,
	prices *pricing.Book,
	metrics MetricSink,
	cfg Config,
	sinks ...activity.Sink,
) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if prices == nil {
		prices = pricing.NewBook()
	}
	threshold := cfg.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Engine{
		logger:    logger,
		tool:      tool,
		edge:      edge,
		cloud:     cloud,
		prices:    prices,
		metrics:   metrics,
		sinks:     sinks,
		threshold: threshold,
		toolOn:    cfg.ToolEnabled,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// Threshold returns the configured confidence floor.
func (e *Engine) Threshold() float64 { return e.threshold }

func validateScenario(scenario models.Scenario) error {
	const op = "engine.process"
	if strings.TrimSpace(scenario.Incident.ID) == "" {
		return utils.ValidationError(op, "incident id is required")
	}
	if strings.TrimSpace(scenario.Incident.Summary) == "" {
		return utils.ValidationError(op, "incident summary is required")
	}
	if scenario.Tool != nil && strings.TrimSpace(scenario.Tool.Name) == "" {
		return utils.ValidationError(op, "tool request carries no tool name")
	}
	return nil
}

// Process runs one triage session for the scenario. Extra sinks receive this
// session's activity events in addition to the engine-wide ones, which lets a
// caller stream the timeline live. The only error ever returned for a valid
// context is a validation failure; tier failures surface inside the result.
func (e *Engine) Process(ctx context.Context, scenario models.Scenario, extra ...activity.Sink) (models.ProcessingResult, error) {
	if err := validateScenario(scenario); err != nil {
		return models.ProcessingResult{}, err
	}
	scenario.Incident.Priority = models.NormalizePriority(string(scenario.Incident.Priority))

	start := e.now()
	sessionID := e.newID()
	rec := activity.NewRecorder(sessionID, start, append(append([]activity.Sink{}, e.sinks...), extra...)...)

	result := models.ProcessingResult{
		SessionID:  sessionID,
		ScenarioID: scenario.Incident.ID,
		CreatedAt:  start.UTC(),
	}

	rec.Emit(models.TierSystem, models.EventSessionStarted,
		fmt.Sprintf("triage session started for incident %s", scenario.Incident.ID),
		map[string]string{
			"scenario_id": scenario.Incident.ID,
			"priority":    string(scenario.Incident.Priority),
		})

	e.logger.Info("triage session started",
		slog.String("session_id", sessionID),
		slog.String("scenario_id", scenario.Incident.ID),
		slog.String("priority", string(scenario.Incident.Priority)))

	var last *models.TierOutcome
	var prior *models.PriorAttempt
	accepted := false

	// Tool tier. Entered only when the scenario designates a tool.
	switch {
	case scenario.Tool == nil:
		rec.Emit(models.TierTool, models.EventTierSkipped, "no tool requested; starting at edge tier", nil)
	case !e.toolOn || e.tool == nil:
		out := models.TierOutcome{Tier: models.TierTool, Decision: models.DecisionEscalate}
		result.Tool = &out
		last = &out
		rec.Emit(models.TierTool, models.EventTierSkipped,
			"tool tier disabled; escalating to edge tier", nil)
	default:
		rec.Emit(models.TierSystem, models.EventTierRouting,
			fmt.Sprintf("routing to tool tier for %s", scenario.Tool.Name), nil)
		out := e.attempt(ctx, rec, e.tool, scenario, nil)
		result.Tool = &out
		last = &out
		e.record(ctx, rec, sessionID, scenario, out)
		if accepted = e.accept(rec, &out); accepted {
			break
		}
		prior = priorFrom(out)
	}

	// Edge tier. A failed health probe skips dispatch entirely.
	if !accepted {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		rec.Emit(models.TierSystem, models.EventTierRouting, "routing to edge tier", nil)
		if health := e.edge.HealthCheck(ctx); !health.Healthy {
			out := models.TierOutcome{Tier: models.TierEdge, Decision: models.DecisionEscalate}
			result.Edge = &out
			last = &out
			prior = nil
			rec.Emit(models.TierEdge, models.EventTierError,
				fmt.Sprintf("edge tier unavailable: %s; escalating to cloud tier", health.Detail), nil)
		} else {
			out := e.attempt(ctx, rec, e.edge, scenario, prior)
			result.Edge = &out
			last = &out
			e.record(ctx, rec, sessionID, scenario, out)
			if accepted = e.accept(rec, &out); !accepted {
				prior = priorFrom(out)
			}
		}
	}

	// Cloud tier. Last rung; its outcome is final whatever it says.
	if !accepted {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		rec.Emit(models.TierSystem, models.EventTierRouting, "routing to cloud tier", nil)
		out := e.attempt(ctx, rec, e.cloud, scenario, prior)
		result.Cloud = &out
		last = &out
		e.record(ctx, rec, sessionID, scenario, out)
		accepted = e.accept(rec, &out)
	}

	e.finalize(&result, scenario, last, accepted, start)

	rec.Emit(models.TierSystem, models.EventSessionCompleted,
		completionMessage(result),
		map[string]string{
			"final_tier": string(result.FinalTier),
			"success":    fmt.Sprintf("%t", result.Success),
			"total_cost": fmt.Sprintf("%.6f", result.TotalCostUSD),
		})

	result.Events = rec.Events()
	result.Ticket = FormatTicket(result, scenario)

	e.logger.Info("triage session completed",
		slog.String("session_id", sessionID),
		slog.String("final_tier", string(result.FinalTier)),
		slog.Bool("success", result.Success),
		slog.Int64("total_latency_ms", result.TotalLatencyMs),
		slog.Float64("total_cost_usd", result.TotalCostUSD))

	return result, nil
}

// attempt dispatches one tier and converts any failure into an error-decision
// outcome at the boundary.
func (e *Engine) attempt(ctx context.Context, rec *activity.Recorder, client tiers.Client, scenario models.Scenario, prior *models.PriorAttempt) models.TierOutcome {
	tier := client.Name()
	rec.Emit(tier, models.EventTierStarted, fmt.Sprintf("%s tier processing incident", tier), nil)

	begin := e.now()
	out, err := client.Resolve(ctx, scenario, prior)
	latency := utils.Millis(e.now().Sub(begin))

	if err != nil {
		// Configuration failures never reached the backend; everything else
		// counts as a real attempt.
		out = models.TierOutcome{
			Tier:       tier,
			Active:     !utils.IsKind(err, utils.KindConfiguration),
			Decision:   models.DecisionError,
			Confidence: 0,
			LatencyMs:  latency,
			Response:   err.Error(),
		}
		rec.Emit(tier, models.EventTierError, fmt.Sprintf("%s tier failed: %v", tier, err), nil)
		e.logger.Warn("tier attempt failed", slog.String("tier", string(tier)), slog.Any("error", err))
		return out
	}

	out.Tier = tier
	out.Active = true
	out.LatencyMs = latency
	out.CostUSD = e.prices.Cost(out.ModelUsed, out.TokensInput, out.TokensOutput)

	rec.Emit(tier, models.EventTierResult,
		fmt.Sprintf("%s tier returned %s with confidence %.2f", tier, out.Decision, out.Confidence),
		map[string]string{
			"decision":   string(out.Decision),
			"confidence": fmt.Sprintf("%.2f", out.Confidence),
			"latency_ms": fmt.Sprintf("%d", out.LatencyMs),
		})
	return out
}

// accept applies the escalation policy to one outcome. A resolve decision
// below the threshold is downgraded to escalate, so a stored resolve always
// carries acceptable confidence.
func (e *Engine) accept(rec *activity.Recorder, out *models.TierOutcome) bool {
	switch out.Decision {
	case models.DecisionResolve:
		if out.Confidence >= e.threshold {
			return true
		}
		out.Decision = models.DecisionEscalate
		rec.Emit(out.Tier, models.EventEscalation,
			fmt.Sprintf("confidence %.2f below threshold %.2f; escalating", out.Confidence, e.threshold),
			map[string]string{
				"confidence": fmt.Sprintf("%.2f", out.Confidence),
				"threshold":  fmt.Sprintf("%.2f", e.threshold),
			})
	case models.DecisionEscalate:
		reason := out.Aux["escalation_reason"]
		if reason == "" {
			reason = "backend requested escalation"
		}
		rec.Emit(out.Tier, models.EventEscalation,
			fmt.Sprintf("%s tier escalated: %s (confidence %.2f, threshold %.2f)", out.Tier, reason, out.Confidence, e.threshold),
			map[string]string{
				"confidence": fmt.Sprintf("%.2f", out.Confidence),
				"threshold":  fmt.Sprintf("%.2f", e.threshold),
			})
	}
	return false
}

// record persists one metric row for an attempted tier. Best effort.
func (e *Engine) record(ctx context.Context, rec *activity.Recorder, sessionID string, scenario models.Scenario, out models.TierOutcome) {
	if e.metrics == nil || !out.Active {
		return
	}
	metric := models.TierMetric{
		SessionID:    sessionID,
		ScenarioID:   scenario.Incident.ID,
		Tier:         out.Tier,
		LatencyMs:    out.LatencyMs,
		TokensInput:  out.TokensInput,
		TokensOutput: out.TokensOutput,
		CostUSD:      out.CostUSD,
		RecordedAt:   e.now().UTC(),
	}
	if err := e.metrics.RecordTierMetric(ctx, metric); err != nil {
		e.logger.Warn("record tier metric", slog.String("session_id", sessionID), slog.Any("error", err))
	}
}

func (e *Engine) finalize(result *models.ProcessingResult, scenario models.Scenario, last *models.TierOutcome, accepted bool, start time.Time) {
	result.TotalLatencyMs = utils.Millis(e.now().Sub(start))
	for _, out := range result.Outcomes() {
		if out == nil {
			continue
		}
		result.TotalTokensInput += out.TokensInput
		result.TotalTokensOutput += out.TokensOutput
		result.TotalCostUSD += out.CostUSD
	}

	if last == nil {
		result.FinalTier = models.TierSystem
		result.Resolution = fallbackResolution
		return
	}

	result.FinalTier = last.Tier
	result.Confidence = last.Confidence
	if accepted {
		result.Success = true
		result.Resolution = last.Response
		return
	}
	result.Resolution = last.Response
	if strings.TrimSpace(result.Resolution) == "" {
		result.Resolution = fallbackResolution
	}
}

func completionMessage(result models.ProcessingResult) string {
	if result.Success {
		return fmt.Sprintf("session resolved at %s tier with confidence %.2f", result.FinalTier, result.Confidence)
	}
	return "session completed without accepted resolution; specialist follow-up required"
}

func priorFrom(out models.TierOutcome) *models.PriorAttempt {
	if out.Decision == models.DecisionError {
		return &models.PriorAttempt{Tier: out.Tier, Failed: true}
	}
	return &models.PriorAttempt{
		Tier:       out.Tier,
		Response:   out.Response,
		Reasoning:  out.Reasoning,
		Confidence: out.Confidence,
	}
}
