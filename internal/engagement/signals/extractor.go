// Package signals normalizes raw lead, conversation and task rows into the
// typed contexts the rules engine evaluates.
package signals

import (
	"engagement_backend/internal/engagement/domain"
	"engagement_backend/internal/engagement/repository"
)

// LeadContext builds the engine's lead view. Contact timestamps live on the
// conversation, so the extractor folds them in here.
func LeadContext(lead repository.Lead, conv *repository.Conversation) domain.LeadContext {
	ctx := domain.LeadContext{
		ID:                  lead.ID,
		Stage:               normalizeStage(lead.Stage),
		ServiceCategory:     lead.ServiceCategory,
		OwnerID:             lead.OwnerID,
		DealProbability:     clampScore(lead.DealProbability),
		LeadScore:           clampScore(lead.LeadScore),
		IsRenewal:           lead.IsRenewal,
		EstimatedValueCents: lead.EstimatedValueCents,
	}
	if conv != nil {
		ctx.LastInboundAt = conv.LastInboundAt
		ctx.LastOutboundAt = conv.LastOutboundAt
	}
	return ctx
}

// ConversationContext derives the reply-pressure view. NeedsReplySince is set
// only when the last inbound message is strictly newer than the last outbound.
func ConversationContext(conv *repository.Conversation) domain.ConversationContext {
	if conv == nil {
		return domain.ConversationContext{}
	}
	ctx := domain.ConversationContext{
		UnreadCount:     conv.UnreadCount,
		LastInboundText: conv.LastInboundText,
	}
	if conv.LastInboundAt != nil {
		if conv.LastOutboundAt == nil || conv.LastInboundAt.After(*conv.LastOutboundAt) {
			ctx.NeedsReplySince = conv.LastInboundAt
		}
	}
	return ctx
}

func TasksContext(stats repository.TaskStats) domain.TasksContext {
	return domain.TasksContext{
		DueNowCount:          stats.DueNowCount,
		OverdueCount:         stats.OverdueCount,
		QuoteTaskOutstanding: stats.QuoteTaskOutstanding,
	}
}

func normalizeStage(raw string) string {
	if !domain.IsKnownStage(raw) {
		return domain.StageUnknown
	}
	return raw
}

func clampScore(v *int) *int {
	if v == nil {
		return nil
	}
	score := *v
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return &score
}
