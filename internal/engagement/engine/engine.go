// Package engine implements the lead engagement decision engine: a pure,
// deterministic function from evaluation contexts to the single
// highest-priority next action. It performs no I/O and never mutates its
// inputs, so callers may invoke it concurrently and memoize its output.
package engine

import (
	"fmt"
	"time"

	"engagement_backend/internal/engagement/domain"
)

// Version tags the decision model. Bump when rule semantics change so
// memoization caches keyed on inputs + version invalidate themselves.
const Version = "2026-v1"

// Thresholds holds the tunable boundaries of the precedence rules.
type Thresholds struct {
	// ReplySLA is the allowed response window for inbound messages.
	ReplySLA time.Duration
	// ExpiryWindowDays is the near-term window for renewal/expiry actions.
	ExpiryWindowDays int
	// HighProbability is the deal probability (0-100) above which the
	// engine recommends active progression.
	HighProbability int
	// RevenueValueCapCents normalizes estimated deal value to [0,100].
	RevenueValueCapCents int64
}

// DefaultThresholds returns the production defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		ReplySLA:             24 * time.Hour,
		ExpiryWindowDays:     14,
		HighProbability:      70,
		RevenueValueCapCents: 5_000_000,
	}
}

// Engine evaluates leads against the fixed precedence rules.
type Engine struct {
	t Thresholds
}

// New creates an engine. Zero-value threshold fields fall back to defaults.
func New(t Thresholds) *Engine {
	d := DefaultThresholds()
	if t.ReplySLA <= 0 {
		t.ReplySLA = d.ReplySLA
	}
	if t.ExpiryWindowDays <= 0 {
		t.ExpiryWindowDays = d.ExpiryWindowDays
	}
	if t.HighProbability <= 0 {
		t.HighProbability = d.HighProbability
	}
	if t.RevenueValueCapCents <= 0 {
		t.RevenueValueCapCents = d.RevenueValueCapCents
	}
	return &Engine{t: t}
}

// Evaluate computes the next best action for a lead. The precedence is total
// and explicit: the first matching rule wins, never a score comparison.
// Absent optional fields mean "rule does not apply"; a lead with no signals
// always receives the default action.
func (e *Engine) Evaluate(now time.Time, lead domain.LeadContext, conv domain.ConversationContext, tasks domain.TasksContext, expiry domain.ExpirySummary) domain.NextBestAction {
	impact := e.computeImpact(now, lead, conv, tasks, expiry)
	badges := e.computeBadges(now, lead, conv, tasks, expiry)

	// Rule 1: pending reply. The SLA-breach case dominates everything else.
	if conv.NeedsReplySince != nil {
		elapsed := now.Sub(*conv.NeedsReplySince)
		action := domain.NextBestAction{
			Key:       domain.ActionReplyNow,
			Title:     "Reply now",
			Rationale: fmt.Sprintf("Customer is waiting for a reply for %s.", formatElapsed(elapsed)),
			Badges:    badges,
			Impact:    impact,
			Verb:      domain.VerbOpenComposer,
			CTALabel:  "Reply",
		}
		return action
	}

	// Rule 2: overdue follow-up tasks.
	if tasks.OverdueCount > 0 {
		route := leadRoute(lead, "tasks")
		return domain.NextBestAction{
			Key:       domain.ActionResolveOverdueTask,
			Title:     "Resolve overdue task",
			Rationale: fmt.Sprintf("%d follow-up task(s) are past due.", tasks.OverdueCount),
			Badges:    badges,
			Impact:    impact,
			Verb:      domain.VerbNavigate,
			Route:     &route,
			CTALabel:  "View tasks",
		}
	}

	// Rule 3: near-term expiry on an attached document, permit or contract.
	if expiry.DaysRemaining != nil && *expiry.DaysRemaining <= e.t.ExpiryWindowDays {
		return domain.NextBestAction{
			Key:       domain.ActionRenewalExpiry,
			Title:     "Start renewal",
			Rationale: expiryRationale(*expiry.DaysRemaining, expiry.Category),
			Badges:    badges,
			Impact:    impact,
			Verb:      domain.VerbOpenComposer,
			CTALabel:  "Send renewal reminder",
		}
	}

	// Rule 4: quote sent and a pricing task still open.
	if domain.IsProposalStage(lead.Stage) && tasks.QuoteTaskOutstanding {
		route := leadRoute(lead, "quotes")
		return domain.NextBestAction{
			Key:       domain.ActionFollowUpQuote,
			Title:     "Follow up on quote",
			Rationale: "A proposal went out and the pricing task is still open.",
			Badges:    badges,
			Impact:    impact,
			Verb:      domain.VerbOpenQuote,
			Route:     &route,
			CTALabel:  "Open quote",
		}
	}

	// Rule 5: high-probability deal worth progressing.
	if lead.DealProbability != nil && *lead.DealProbability >= e.t.HighProbability {
		return domain.NextBestAction{
			Key:       domain.ActionAdvanceQualification,
			Title:     "Advance qualification",
			Rationale: fmt.Sprintf("Deal probability is %d%%; schedule the next step.", *lead.DealProbability),
			Badges:    badges,
			Impact:    impact,
			Verb:      domain.VerbCreateTask,
			CTALabel:  "Plan next step",
		}
	}

	// Rule 6: default. Never an empty result.
	return domain.NextBestAction{
		Key:       domain.ActionContinueConversation,
		Title:     "Continue the conversation",
		Rationale: "No urgent signals; keep the lead warm.",
		Badges:    badges,
		Impact:    impact,
		Verb:      domain.VerbOpenComposer,
		CTALabel:  "Send a message",
	}
}

// computeImpact derives the (urgency, revenue, risk) triple from the raw
// signals. Each axis is computed from its own inputs independently of which
// precedence rule wins, so the triple stays stable and explainable.
func (e *Engine) computeImpact(now time.Time, lead domain.LeadContext, conv domain.ConversationContext, tasks domain.TasksContext, expiry domain.ExpirySummary) domain.Impact {
	urgency := 0
	if conv.NeedsReplySince != nil {
		urgency = e.replyUrgency(now.Sub(*conv.NeedsReplySince))
	}
	if tasks.OverdueCount > 0 {
		if taskUrgency := overdueUrgency(tasks.OverdueCount); taskUrgency > urgency {
			urgency = taskUrgency
		}
	}

	revenue := 0
	if lead.DealProbability != nil {
		prob := clamp(*lead.DealProbability, 0, 100)
		if lead.EstimatedValueCents != nil {
			valueNorm := int(*lead.EstimatedValueCents * 100 / e.t.RevenueValueCapCents)
			revenue = prob * clamp(valueNorm, 0, 100) / 100
		}
		if prob >= e.t.HighProbability && prob > revenue {
			revenue = prob
		}
	}

	risk := 0
	if expiry.DaysRemaining != nil {
		risk = e.expiryRisk(*expiry.DaysRemaining)
	}

	if urgency == 0 && revenue == 0 && risk == 0 {
		// Default action carries a low, flat profile instead of zeroes so
		// sorted work queues still surface the lead eventually.
		return domain.Impact{Urgency: 10, Revenue: 10, Risk: 5}
	}

	return domain.Impact{Urgency: urgency, Revenue: revenue, Risk: risk}
}

// replyUrgency buckets elapsed waiting time. Past the SLA the score starts at
// 90 and climbs to 100 at twice the SLA; inside the SLA it degrades through
// fixed bands down to near zero for fresh messages.
func (e *Engine) replyUrgency(elapsed time.Duration) int {
	sla := e.t.ReplySLA
	switch {
	case elapsed >= sla:
		over := elapsed - sla
		return 90 + clamp(int(over*10/sla), 0, 10)
	case elapsed >= 10*time.Hour:
		span := sla - 10*time.Hour
		if span <= 0 {
			return 60
		}
		return 60 + clamp(int((elapsed-10*time.Hour)*29/span), 0, 29)
	case elapsed >= 4*time.Hour:
		return 30 + clamp(int((elapsed-4*time.Hour)*29/(6*time.Hour)), 0, 29)
	case elapsed > 0:
		return clamp(int(elapsed*29/(4*time.Hour)), 0, 29)
	default:
		return 0
	}
}

// overdueUrgency scales with the overdue count, capped at 80 so it can never
// outrank an SLA breach on the urgency axis.
func overdueUrgency(count int) int {
	return clamp(30+10*count, 0, 80)
}

// expiryRisk is inversely proportional to days remaining: 0 days (or already
// expired) scores 100, the window edge scores 20.
func (e *Engine) expiryRisk(days int) int {
	if days <= 0 {
		return 100
	}
	if days > e.t.ExpiryWindowDays {
		return 0
	}
	return clamp(100-days*80/e.t.ExpiryWindowDays, 20, 100)
}

func expiryRationale(days int, category string) string {
	label := category
	if label == "" {
		label = "an attached document"
	}
	if days < 0 {
		return fmt.Sprintf("%s expired %d day(s) ago.", label, -days)
	}
	if days == 0 {
		return fmt.Sprintf("%s expires today.", label)
	}
	return fmt.Sprintf("%s expires in %d day(s).", label, days)
}

func leadRoute(lead domain.LeadContext, section string) string {
	return fmt.Sprintf("/leads/%s/%s", lead.ID, section)
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		// Clock skew can put the inbound timestamp in the future.
		d = 0
	}
	if d < time.Hour {
		return fmt.Sprintf("%d minute(s)", int(d.Minutes()))
	}
	return fmt.Sprintf("%d hour(s)", int(d.Hours()))
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
