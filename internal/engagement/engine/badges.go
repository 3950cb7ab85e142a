package engine

import (
	"fmt"
	"time"

	"engagement_backend/internal/engagement/domain"
)

// Badge keys, stable for UI memoization.
const (
	BadgeSLABreach        = "sla_breach"
	BadgeAwaitingReply    = "awaiting_reply"
	BadgeOverdueTasks     = "overdue_tasks"
	BadgeExpirySoon       = "expiry_soon"
	BadgeQuoteOutstanding = "quote_outstanding"
	BadgeHighProbability  = "high_probability"
	BadgeRenewal          = "renewal"
)

// computeBadges appends every badge whose condition holds, independent of
// which precedence rule won. Order is fixed so equal inputs always yield a
// bit-identical badge list.
func (e *Engine) computeBadges(now time.Time, lead domain.LeadContext, conv domain.ConversationContext, tasks domain.TasksContext, expiry domain.ExpirySummary) []domain.Badge {
	badges := make([]domain.Badge, 0, 4)

	if conv.NeedsReplySince != nil {
		if now.Sub(*conv.NeedsReplySince) > e.t.ReplySLA {
			badges = append(badges, domain.Badge{Key: BadgeSLABreach, Label: "SLA risk"})
		} else {
			badges = append(badges, domain.Badge{Key: BadgeAwaitingReply, Label: "Awaiting reply"})
		}
	}

	if tasks.OverdueCount > 0 {
		badges = append(badges, domain.Badge{
			Key:   BadgeOverdueTasks,
			Label: fmt.Sprintf("Overdue tasks (%d)", tasks.OverdueCount),
		})
	}

	if expiry.DaysRemaining != nil && *expiry.DaysRemaining <= e.t.ExpiryWindowDays {
		badges = append(badges, domain.Badge{
			Key:   BadgeExpirySoon,
			Label: fmt.Sprintf("Expiry ≤%dd", e.t.ExpiryWindowDays),
		})
	}

	if tasks.QuoteTaskOutstanding {
		badges = append(badges, domain.Badge{Key: BadgeQuoteOutstanding, Label: "Quote outstanding"})
	}

	if lead.DealProbability != nil && *lead.DealProbability >= e.t.HighProbability {
		badges = append(badges, domain.Badge{Key: BadgeHighProbability, Label: "High probability"})
	}

	if lead.IsRenewal {
		badges = append(badges, domain.Badge{Key: BadgeRenewal, Label: "Renewal"})
	}

	return badges
}
