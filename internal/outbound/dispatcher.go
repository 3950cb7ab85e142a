package outbound

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"engagement_backend/internal/events"
	"engagement_backend/platform/logger"
)

// ConversationToucher updates conversation bookkeeping after a dispatch
// attempt. Implemented by the engagement repository. Outbound advances the
// reply state and is reserved for delivered sends; Activity only moves the
// activity timestamp so a failed attempt never clears a pending reply.
type ConversationToucher interface {
	TouchConversationOutbound(ctx context.Context, conversationID uuid.UUID, at time.Time) error
	TouchConversationActivity(ctx context.Context, conversationID uuid.UUID, at time.Time) error
}

// Result is the dispatcher's answer for one intent.
type Result struct {
	Outcome    Outcome
	ExternalID string
	// Duplicate is true when the guard found a prior record and no send
	// happened on this call.
	Duplicate bool
}

// Dispatcher runs the guard -> gateway -> ledger pipeline for one intent at
// a time. Sends are rate limited globally and bounded by a per-send timeout.
type Dispatcher struct {
	guard    *Guard
	ledger   ledgerStore
	gateways map[string]Gateway
	toucher  ConversationToucher
	bus      events.Bus
	limiter  *rate.Limiter
	timeout  time.Duration
	log      *logger.Logger
	now      func() time.Time
}

type DispatcherParams struct {
	Guard         *Guard
	Ledger        ledgerStore
	Gateways      []Gateway
	Toucher       ConversationToucher
	Bus           events.Bus
	SendTimeout   time.Duration
	RatePerSecond float64
}

func NewDispatcher(params DispatcherParams, log *logger.Logger) *Dispatcher {
	timeout := params.SendTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	perSecond := params.RatePerSecond
	if perSecond <= 0 {
		perSecond = 5
	}
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}

	gateways := make(map[string]Gateway, len(params.Gateways))
	for _, gw := range params.Gateways {
		gateways[gw.Channel()] = gw
	}

	return &Dispatcher{
		guard:    params.Guard,
		ledger:   params.Ledger,
		gateways: gateways,
		toucher:  params.Toucher,
		bus:      params.Bus,
		limiter:  rate.NewLimiter(rate.Limit(perSecond), burst),
		timeout:  timeout,
		log:      log,
		now:      time.Now,
	}
}

// Dispatch sends the intent if the guard admits it. A duplicate is not an
// error: the prior outcome comes back with Duplicate set. A failed channel
// send is recorded in the ledger and returned as OutcomeFailed together with
// the send error.
func (d *Dispatcher) Dispatch(ctx context.Context, intent SendIntent) (Result, error) {
	decision, err := d.guard.Admit(ctx, intent)
	if err != nil {
		return Result{}, err
	}

	if !decision.Proceed {
		d.log.DispatchEvent(intent.IdempotencyKey, intent.Channel, string(OutcomeDuplicateBlocked), deref(decision.Record.ExternalID))
		return Result{
			Outcome:    decision.Record.Outcome,
			ExternalID: deref(decision.Record.ExternalID),
			Duplicate:  true,
		}, nil
	}

	gw, ok := d.gateways[intent.Channel]
	if !ok {
		reason := fmt.Sprintf("no gateway for channel %q", intent.Channel)
		d.recordFailure(ctx, decision.Record, intent, reason)
		return Result{Outcome: OutcomeFailed}, fmt.Errorf("dispatch: %s", reason)
	}

	if err := d.limiter.Wait(ctx); err != nil {
		d.recordFailure(ctx, decision.Record, intent, fmt.Sprintf("rate limiter: %v", err))
		return Result{Outcome: OutcomeFailed}, fmt.Errorf("dispatch: %w", err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	externalID, sendErr := gw.Send(sendCtx, intent.Destination, intent.Body)
	cancel()

	if sendErr != nil {
		d.recordFailure(ctx, decision.Record, intent, sendErr.Error())
		return Result{Outcome: OutcomeFailed}, fmt.Errorf("channel send: %w", sendErr)
	}

	now := d.now().UTC()
	d.touchOutbound(ctx, intent, now)

	if err := d.ledger.MarkSent(ctx, decision.Record.ID, externalID, now); err != nil {
		// The message left the building; surface the bookkeeping failure
		// but report the send as done.
		d.log.DatabaseError("mark outbound sent", err)
	}

	d.log.DispatchEvent(intent.IdempotencyKey, intent.Channel, string(OutcomeSent), externalID)
	d.publishDispatched(ctx, intent, OutcomeSent, externalID, "")

	return Result{Outcome: OutcomeSent, ExternalID: externalID}, nil
}

// recordFailure makes the failed attempt durable. It bumps only the
// conversation's activity timestamp: a failed send must never advance the
// outbound timestamp or clear the unread count, or the pending-reply signal
// would vanish for a message the customer never received.
func (d *Dispatcher) recordFailure(ctx context.Context, rec Record, intent SendIntent, reason string) {
	now := d.now().UTC()
	d.touchActivity(ctx, intent, now)
	if err := d.ledger.MarkFailed(ctx, rec.ID, reason, now); err != nil {
		d.log.DatabaseError("mark outbound failed", err)
	}
	d.log.DispatchError(intent.IdempotencyKey, intent.Channel, fmt.Errorf("%s", reason))
	d.publishDispatched(ctx, intent, OutcomeFailed, "", reason)
}

func (d *Dispatcher) touchOutbound(ctx context.Context, intent SendIntent, at time.Time) {
	if d.toucher == nil {
		return
	}
	if err := d.toucher.TouchConversationOutbound(ctx, intent.ConversationID, at); err != nil {
		d.log.DatabaseError("touch conversation", err)
	}
}

func (d *Dispatcher) touchActivity(ctx context.Context, intent SendIntent, at time.Time) {
	if d.toucher == nil {
		return
	}
	if err := d.toucher.TouchConversationActivity(ctx, intent.ConversationID, at); err != nil {
		d.log.DatabaseError("touch conversation activity", err)
	}
}

func (d *Dispatcher) publishDispatched(ctx context.Context, intent SendIntent, outcome Outcome, externalID, reason string) {
	if d.bus == nil {
		return
	}
	d.bus.Publish(ctx, events.MessageDispatched{
		BaseEvent:      events.NewBaseEvent(),
		IdempotencyKey: intent.IdempotencyKey,
		ConversationID: intent.ConversationID,
		LeadID:         intent.LeadID,
		Channel:        intent.Channel,
		Outcome:        string(outcome),
		ExternalID:     externalID,
		ErrorReason:    reason,
		DispatchedAt:   d.now().UTC(),
	})
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
