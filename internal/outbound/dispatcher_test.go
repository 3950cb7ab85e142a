package outbound

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"engagement_backend/platform/logger"
)

type fakeGateway struct {
	channel string
	sends   atomic.Int32
	err     error
	id      string
}

func (g *fakeGateway) Channel() string { return g.channel }

func (g *fakeGateway) Send(_ context.Context, _, _ string) (string, error) {
	g.sends.Add(1)
	if g.err != nil {
		return "", g.err
	}
	return g.id, nil
}

type fakeToucher struct {
	mu       sync.Mutex
	outbound []uuid.UUID
	activity []uuid.UUID
}

func (f *fakeToucher) TouchConversationOutbound(_ context.Context, conversationID uuid.UUID, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outbound = append(f.outbound, conversationID)
	return nil
}

func (f *fakeToucher) TouchConversationActivity(_ context.Context, conversationID uuid.UUID, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activity = append(f.activity, conversationID)
	return nil
}

func newTestDispatcher(ledger *fakeLedger, gw Gateway, toucher ConversationToucher) *Dispatcher {
	log := logger.New("development")
	d := NewDispatcher(DispatcherParams{
		Guard:         newTestGuard(ledger),
		Ledger:        ledger,
		Gateways:      []Gateway{gw},
		Toucher:       toucher,
		SendTimeout:   time.Second,
		RatePerSecond: 1000,
	}, log)
	d.now = func() time.Time { return guardNow }
	return d
}

func TestDispatchSendsAndRecords(t *testing.T) {
	ledger := newFakeLedger()
	gw := &fakeGateway{channel: ChannelWhatsApp, id: "wamid.001"}
	toucher := &fakeToucher{}
	d := newTestDispatcher(ledger, gw, toucher)
	intent := testIntent()

	result, err := d.Dispatch(context.Background(), intent)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if result.Outcome != OutcomeSent {
		t.Fatalf("expected sent, got %q", result.Outcome)
	}
	if result.ExternalID != "wamid.001" {
		t.Fatalf("expected external id, got %q", result.ExternalID)
	}

	rec, err := ledger.GetByKey(context.Background(), intent.IdempotencyKey)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if rec.Outcome != OutcomeSent {
		t.Fatalf("ledger outcome = %q, want sent", rec.Outcome)
	}
	if len(toucher.outbound) != 1 || toucher.outbound[0] != intent.ConversationID {
		t.Fatalf("expected outbound touch, got %v", toucher.outbound)
	}
}

func TestDispatchPipelineTwiceSendsOnce(t *testing.T) {
	ledger := newFakeLedger()
	gw := &fakeGateway{channel: ChannelWhatsApp, id: "wamid.002"}
	d := newTestDispatcher(ledger, gw, &fakeToucher{})
	intent := testIntent()

	first, err := d.Dispatch(context.Background(), intent)
	if err != nil {
		t.Fatalf("first dispatch: %v", err)
	}
	second, err := d.Dispatch(context.Background(), intent)
	if err != nil {
		t.Fatalf("second dispatch: %v", err)
	}

	if first.Duplicate {
		t.Fatal("first dispatch must not be a duplicate")
	}
	if !second.Duplicate {
		t.Fatal("second dispatch must report a duplicate")
	}
	if second.Outcome != OutcomeSent {
		t.Fatalf("duplicate must carry prior outcome, got %q", second.Outcome)
	}
	if second.ExternalID != "wamid.002" {
		t.Fatalf("duplicate must carry prior external id, got %q", second.ExternalID)
	}
	if got := gw.sends.Load(); got != 1 {
		t.Fatalf("expected exactly one channel send, got %d", got)
	}
	if ledger.count() != 1 {
		t.Fatalf("expected one ledger row, got %d", ledger.count())
	}
}

func TestDispatchFailureIsDurable(t *testing.T) {
	ledger := newFakeLedger()
	gw := &fakeGateway{channel: ChannelWhatsApp, err: errors.New("provider 500")}
	toucher := &fakeToucher{}
	d := newTestDispatcher(ledger, gw, toucher)
	intent := testIntent()

	result, err := d.Dispatch(context.Background(), intent)
	if err == nil {
		t.Fatal("expected send error")
	}
	if result.Outcome != OutcomeFailed {
		t.Fatalf("expected failed outcome, got %q", result.Outcome)
	}

	rec, err := ledger.GetByKey(context.Background(), intent.IdempotencyKey)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if rec.Outcome != OutcomeFailed {
		t.Fatalf("ledger outcome = %q, want failed", rec.Outcome)
	}
	if rec.ErrorReason == nil || *rec.ErrorReason != "provider 500" {
		t.Fatalf("expected error reason recorded, got %v", rec.ErrorReason)
	}
	if len(toucher.activity) != 1 {
		t.Fatal("failed send must still bump the activity timestamp")
	}
	if len(toucher.outbound) != 0 {
		t.Fatal("failed send must not advance the outbound timestamp")
	}
}

func TestDispatchFailedKeyStaysBlocked(t *testing.T) {
	ledger := newFakeLedger()
	gw := &fakeGateway{channel: ChannelWhatsApp, err: errors.New("provider 500")}
	d := newTestDispatcher(ledger, gw, &fakeToucher{})
	intent := testIntent()

	if _, err := d.Dispatch(context.Background(), intent); err == nil {
		t.Fatal("expected send error")
	}

	gw.err = nil
	gw.id = "wamid.003"
	second, err := d.Dispatch(context.Background(), intent)
	if err != nil {
		t.Fatalf("second dispatch: %v", err)
	}
	if !second.Duplicate {
		t.Fatal("failed key must not be retried under the same key")
	}
	if second.Outcome != OutcomeFailed {
		t.Fatalf("expected prior failed outcome, got %q", second.Outcome)
	}
	if got := gw.sends.Load(); got != 1 {
		t.Fatalf("expected no second channel send, got %d", got)
	}
}

// replyStateToucher mirrors the conversation columns the two touch paths
// write, so tests can observe the resulting reply state.
type replyStateToucher struct {
	mu             sync.Mutex
	lastOutboundAt *time.Time
	lastActivityAt *time.Time
	unreadCount    int
}

func (f *replyStateToucher) TouchConversationOutbound(_ context.Context, _ uuid.UUID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastOutboundAt = &at
	f.lastActivityAt = &at
	f.unreadCount = 0
	return nil
}

func (f *replyStateToucher) TouchConversationActivity(_ context.Context, _ uuid.UUID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastActivityAt = &at
	return nil
}

func TestDispatchFailedSendKeepsReplyPending(t *testing.T) {
	ledger := newFakeLedger()
	gw := &fakeGateway{channel: ChannelWhatsApp, err: errors.New("provider 500")}
	conv := &replyStateToucher{unreadCount: 2}
	log := logger.New("development")
	d := NewDispatcher(DispatcherParams{
		Guard:         newTestGuard(ledger),
		Ledger:        ledger,
		Gateways:      []Gateway{gw},
		Toucher:       conv,
		SendTimeout:   time.Second,
		RatePerSecond: 1000,
	}, log)
	d.now = func() time.Time { return guardNow }

	if _, err := d.Dispatch(context.Background(), testIntent()); err == nil {
		t.Fatal("expected send error")
	}

	// The customer never received a message: the last inbound must still
	// read newer than any outbound so the pending-reply signal survives.
	if conv.lastOutboundAt != nil {
		t.Fatalf("failed send advanced last_outbound_at to %v", conv.lastOutboundAt)
	}
	if conv.unreadCount != 2 {
		t.Fatalf("failed send changed unread count to %d", conv.unreadCount)
	}
	if conv.lastActivityAt == nil || !conv.lastActivityAt.Equal(guardNow) {
		t.Fatal("failed send must still record activity")
	}
}

// blockingGateway never answers; only context expiry releases the send.
type blockingGateway struct {
	channel string
	sends   atomic.Int32
}

func (g *blockingGateway) Channel() string { return g.channel }

func (g *blockingGateway) Send(ctx context.Context, _, _ string) (string, error) {
	g.sends.Add(1)
	<-ctx.Done()
	return "", ctx.Err()
}

func TestDispatchTimeoutRecordedAsFailed(t *testing.T) {
	ledger := newFakeLedger()
	gw := &blockingGateway{channel: ChannelWhatsApp}
	log := logger.New("development")
	d := NewDispatcher(DispatcherParams{
		Guard:         newTestGuard(ledger),
		Ledger:        ledger,
		Gateways:      []Gateway{gw},
		Toucher:       &fakeToucher{},
		SendTimeout:   50 * time.Millisecond,
		RatePerSecond: 1000,
	}, log)
	d.now = func() time.Time { return guardNow }
	intent := testIntent()

	result, err := d.Dispatch(context.Background(), intent)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if result.Outcome != OutcomeFailed {
		t.Fatalf("expected failed outcome, got %q", result.Outcome)
	}

	rec, err := ledger.GetByKey(context.Background(), intent.IdempotencyKey)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if rec.Outcome != OutcomeFailed {
		t.Fatalf("ledger outcome = %q, want failed", rec.Outcome)
	}
	if rec.ErrorReason == nil || *rec.ErrorReason != context.DeadlineExceeded.Error() {
		t.Fatalf("expected deadline reason recorded, got %v", rec.ErrorReason)
	}
	if got := gw.sends.Load(); got != 1 {
		t.Fatalf("expected one send attempt, got %d", got)
	}
}

func TestDispatchUnknownChannel(t *testing.T) {
	ledger := newFakeLedger()
	d := newTestDispatcher(ledger, &fakeGateway{channel: ChannelEmail}, &fakeToucher{})
	intent := testIntent() // whatsapp intent, email-only dispatcher

	result, err := d.Dispatch(context.Background(), intent)
	if err == nil {
		t.Fatal("expected error for unknown channel")
	}
	if result.Outcome != OutcomeFailed {
		t.Fatalf("expected failed outcome, got %q", result.Outcome)
	}

	rec, err := ledger.GetByKey(context.Background(), intent.IdempotencyKey)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if rec.Outcome != OutcomeFailed {
		t.Fatalf("ledger outcome = %q, want failed", rec.Outcome)
	}
}
