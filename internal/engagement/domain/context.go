// Package domain holds the typed evaluation contexts and the engine output
// shared by the interactive API and the batch follow-up runner.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// LeadContext is a read-only snapshot of a sales lead at evaluation time.
type LeadContext struct {
	ID                  uuid.UUID
	Stage               string
	ServiceCategory     string
	OwnerID             *uuid.UUID
	DealProbability     *int // 0-100
	LeadScore           *int // 0-100
	LastInboundAt       *time.Time
	LastOutboundAt      *time.Time
	IsRenewal           bool
	EstimatedValueCents *int64
}

// ConversationContext is derived, never stored. NeedsReplySince is set when
// the last inbound message is strictly newer than the last outbound one.
type ConversationContext struct {
	NeedsReplySince *time.Time
	UnreadCount     int
	LastInboundText string
}

// TasksContext aggregates a lead's open follow-up tasks.
type TasksContext struct {
	DueNowCount          int
	OverdueCount         int
	QuoteTaskOutstanding bool
}

// ExpirySummary is the nearest qualifying deadline among a lead's
// expiry-bearing attachments. DaysRemaining is nil when the lead has no
// expiry items; negative means already expired.
type ExpirySummary struct {
	DaysRemaining *int
	Category      string
}
