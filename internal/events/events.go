// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"time"

	"engagement_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Outbound Domain Events
// =============================================================================

// MessageDispatched is published after every dispatch attempt, successful or
// not, once its outcome is durably recorded.
type MessageDispatched struct {
	BaseEvent
	IdempotencyKey string    `json:"idempotencyKey"`
	ConversationID uuid.UUID `json:"conversationId"`
	LeadID         uuid.UUID `json:"leadId"`
	Channel        string    `json:"channel"`
	Outcome        string    `json:"outcome"`
	ExternalID     string    `json:"externalId,omitempty"`
	ErrorReason    string    `json:"errorReason,omitempty"`
	DispatchedAt   time.Time `json:"dispatchedAt"`
}

func (e MessageDispatched) EventName() string { return "outbound.message.dispatched" }

// =============================================================================
// Engagement Domain Events
// =============================================================================

// LeadSignalsChanged is published when a lead's evaluation inputs change,
// so cached recommendations can be invalidated.
type LeadSignalsChanged struct {
	BaseEvent
	LeadID uuid.UUID `json:"leadId"`
	Source string    `json:"source"` // what changed, e.g. "task"
}

func (e LeadSignalsChanged) EventName() string { return "engagement.lead.signals_changed" }

// =============================================================================
// Follow-up Domain Events
// =============================================================================

// FollowUpRunCompleted is published when a batch run finishes, dry-run or not.
type FollowUpRunCompleted struct {
	BaseEvent
	RunID      string    `json:"runId"`
	WindowID   string    `json:"windowId"`
	DryRun     bool      `json:"dryRun"`
	Candidates int       `json:"candidates"`
	Sent       int       `json:"sent"`
	Failed     int       `json:"failed"`
	Skipped    int       `json:"skipped"`
	FinishedAt time.Time `json:"finishedAt"`
}

func (e FollowUpRunCompleted) EventName() string { return "followup.run.completed" }
