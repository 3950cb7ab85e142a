package transport

import (
	"time"

	"engagement_backend/internal/engagement/domain"
)

// ExecuteActionRequest is the request body for executing a recommended action.
type ExecuteActionRequest struct {
	ActionKey string `json:"actionKey" validate:"required,oneof=reply_now resolve_overdue_task renewal_expiry follow_up_quote advance_qualification continue_conversation"`
	// Message is the outbound body for composer actions.
	Message string `json:"message,omitempty" validate:"max=4096"`
	// TriggerRef ties the send to its provoking event, usually the inbound
	// message id. Falls back to the conversation's latest inbound message.
	TriggerRef string `json:"triggerRef,omitempty" validate:"max=200"`
	// TaskTitle overrides the default title for task-creating actions.
	TaskTitle string     `json:"taskTitle,omitempty" validate:"max=200"`
	TaskDueAt *time.Time `json:"taskDueAt,omitempty"`
}

// ExecuteActionStatus enumerates the outcomes of an executed action.
type ExecuteActionStatus string

const (
	StatusSent        ExecuteActionStatus = "sent"
	StatusAlreadySent ExecuteActionStatus = "already_sent"
	StatusTaskCreated ExecuteActionStatus = "task_created"
	StatusNavigate    ExecuteActionStatus = "navigate"
)

// ExecuteActionResponse reports what the action did.
type ExecuteActionResponse struct {
	Status     ExecuteActionStatus `json:"status"`
	ExternalID string              `json:"externalId,omitempty"`
	TaskID     string              `json:"taskId,omitempty"`
	Route      string              `json:"route,omitempty"`
}

// NextBestActionResponse wraps the recommendation with evaluation metadata.
type NextBestActionResponse struct {
	LeadID        string                `json:"leadId"`
	Action        domain.NextBestAction `json:"action"`
	EngineVersion string                `json:"engineVersion"`
	EvaluatedAt   time.Time             `json:"evaluatedAt"`
	FromCache     bool                  `json:"fromCache"`
}
