// Package outbound guarantees at most one delivered message per logical
// send-intent. The guard arbitrates admission through a unique ledger key,
// the dispatcher performs the channel send and records the outcome.
package outbound

import (
	"fmt"

	"github.com/google/uuid"
)

const (
	ChannelWhatsApp = "whatsapp"
	ChannelEmail    = "email"
)

type Outcome string

const (
	OutcomeInFlight         Outcome = "in_flight"
	OutcomeSent             Outcome = "sent"
	OutcomeFailed           Outcome = "failed"
	OutcomeDuplicateBlocked Outcome = "duplicate_blocked"
)

// SendIntent is one logical request to message a conversation. The
// idempotency key ties it to whatever triggered it, so retries and
// concurrent triggers collapse onto the same ledger row.
type SendIntent struct {
	IdempotencyKey string
	ConversationID uuid.UUID
	LeadID         uuid.UUID
	Channel        string
	Destination    string
	Body           string
}

// IntentKey derives the stable key for an interactive send provoked by a
// specific inbound message or other trigger reference.
func IntentKey(conversationID uuid.UUID, triggerRef string) string {
	return fmt.Sprintf("conv:%s:trigger:%s", conversationID, triggerRef)
}

// RunIntentKey derives the key for a scheduled follow-up send, so every run
// inside the same window shares one key per conversation.
func RunIntentKey(conversationID uuid.UUID, windowID string) string {
	return fmt.Sprintf("conv:%s:run:%s", conversationID, windowID)
}

func (i SendIntent) Validate() error {
	if i.IdempotencyKey == "" {
		return fmt.Errorf("idempotency key is required")
	}
	if i.ConversationID == uuid.Nil {
		return fmt.Errorf("conversation id is required")
	}
	if i.Channel != ChannelWhatsApp && i.Channel != ChannelEmail {
		return fmt.Errorf("unsupported channel %q", i.Channel)
	}
	if i.Destination == "" {
		return fmt.Errorf("destination is required")
	}
	if i.Body == "" {
		return fmt.Errorf("body is required")
	}
	return nil
}
