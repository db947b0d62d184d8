package tiers

import (
	"context"

	"github.com/triagestack/triage-engine/internal/models"
)

// Health is the result of probing a tier backend. Probes never return an
// error; unreachable backends report Healthy=false with a detail message.
type Health struct {
	Healthy bool
	Detail  string
}

// Client is the uniform contract every resolver tier adapts to. Resolve may
// return an error on transport or backend failure; the engine converts those
// into error-decision outcomes at the tier boundary. Each client owns its own
// bounded timeout so a tier call can never hang a session.
type Client interface {
	Name() models.Tier
	HealthCheck(ctx context.Context) Health
	Resolve(ctx context.Context, scenario models.Scenario, prior *models.PriorAttempt) (models.TierOutcome, error)
}
