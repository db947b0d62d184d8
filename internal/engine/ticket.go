package engine

import (
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"

	"github.com/triagestack/triage-engine/internal/models"
	"github.com/triagestack/triage-engine/internal/utils"
)

// FormatTicket renders a completed session as a fixed-layout text ticket.
// Pure except for ticket id generation, which affects no other field.
func FormatTicket(result models.ProcessingResult, scenario models.Scenario) string {
	status := "ESCALATED"
	if result.Success {
		status = "RESOLVED"
	}
	category := scenario.Incident.Category
	if category == "" {
		category = "general"
	}

	var b strings.Builder
	line := strings.Repeat("=", 60)
	b.WriteString(line + "\n")
	fmt.Fprintf(&b, " SUPPORT TICKET %s\n", newTicketID())
	b.WriteString(line + "\n")
	fmt.Fprintf(&b, "Status:      %s\n", status)
	fmt.Fprintf(&b, "Priority:    %s\n", strings.ToUpper(string(scenario.Incident.Priority)))
	fmt.Fprintf(&b, "Category:    %s\n", category)
	fmt.Fprintf(&b, "Session:     %s\n", result.SessionID)
	b.WriteString("\n")
	fmt.Fprintf(&b, "Summary:     %s\n", scenario.Incident.Summary)
	if scenario.Incident.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", scenario.Incident.Description)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Handled by:  %s tier\n", result.FinalTier)
	fmt.Fprintf(&b, "Confidence:  %d%%\n", int(math.Round(result.Confidence*100)))
	fmt.Fprintf(&b, "Total time:  %s\n", utils.FormatMillis(result.TotalLatencyMs))
	b.WriteString("\n")
	b.WriteString("Tier breakdown:\n")
	for _, tier := range []models.Tier{models.TierTool, models.TierEdge, models.TierCloud} {
		fmt.Fprintf(&b, "  %-6s %s\n", string(tier)+":", tierSummary(result.Outcome(tier)))
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Totals:      %d in / %d out tokens, $%.4f\n",
		result.TotalTokensInput, result.TotalTokensOutput, result.TotalCostUSD)
	b.WriteString("\n")
	b.WriteString("Resolution:\n")
	b.WriteString(result.Resolution + "\n")
	b.WriteString(line + "\n")
	return b.String()
}

func tierSummary(out *models.TierOutcome) string {
	if out == nil {
		return "Skipped"
	}
	if !out.Active {
		return fmt.Sprintf("Skipped (%s)", out.Decision)
	}
	parts := []string{utils.FormatMillis(out.LatencyMs)}
	if out.TokensInput > 0 || out.TokensOutput > 0 {
		parts = append(parts, fmt.Sprintf("%d in / %d out tokens", out.TokensInput, out.TokensOutput))
	}
	if out.CostUSD > 0 {
		parts = append(parts, fmt.Sprintf("$%.4f", out.CostUSD))
	}
	parts = append(parts, string(out.Decision))
	return strings.Join(parts, ", ")
}

func newTicketID() string {
	id := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return "TKT-" + id[:8]
}
