package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/triagestack/triage-engine/internal/models"
)

const (
	// OutcomeResolved labels sessions that ended with an accepted resolution.
	OutcomeResolved = "resolved"
	// OutcomeEscalated labels sessions handed off to a human specialist.
	OutcomeEscalated = "escalated"
)

var (
	sessionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "triage",
			Name:      "sessions_total",
			Help:      "Total number of triage sessions handled, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	sessionDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "triage",
			Name:      "session_seconds",
			Help:      "End-to-end triage session latency in seconds.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
	)

	tierAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "triage",
			Name:      "tier_attempts_total",
			Help:      "Tier attempts partitioned by tier and decision.",
		},
		[]string{"tier", "decision"},
	)

	tierTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "triage",
			Name:      "tier_tokens_total",
			Help:      "Tokens consumed per tier, partitioned by direction.",
		},
		[]string{"tier", "direction"},
	)

	tierCostUSDTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "triage",
			Name:      "tier_cost_usd_total",
			Help:      "Accumulated inference cost in USD per tier.",
		},
		[]string{"tier"},
	)
)

// Register attaches the triage collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		sessionsTotal,
		sessionDurationSeconds,
		tierAttemptsTotal,
		tierTokensTotal,
		tierCostUSDTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveSession records one completed session's duration, outcome and
// per-tier counters.
func ObserveSession(result models.ProcessingResult, duration time.Duration) {
	outcome := OutcomeEscalated
	if result.Success {
		outcome = OutcomeResolved
	}
	sessionsTotal.WithLabelValues(outcome).Inc()
	if duration < 0 {
		duration = 0
	}
	sessionDurationSeconds.Observe(duration.Seconds())

	for _, out := range result.Outcomes() {
		if out == nil || !out.Active {
			continue
		}
		tier := string(out.Tier)
		tierAttemptsTotal.WithLabelValues(tier, string(out.Decision)).Inc()
		tierTokensTotal.WithLabelValues(tier, "input").Add(float64(out.TokensInput))
		tierTokensTotal.WithLabelValues(tier, "output").Add(float64(out.TokensOutput))
		tierCostUSDTotal.WithLabelValues(tier).Add(out.CostUSD)
	}
}
