package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"engagement_backend/internal/engagement/domain"
	"engagement_backend/internal/engagement/engine"
	"engagement_backend/internal/engagement/repository"
	"engagement_backend/internal/engagement/transport"
	"engagement_backend/internal/events"
	"engagement_backend/internal/outbound"
	"engagement_backend/platform/apperr"
	"engagement_backend/platform/logger"
)

var svcNow = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

type fakeRepo struct {
	lead      repository.Lead
	leadErr   error
	conv      *repository.Conversation
	stats     repository.TaskStats
	items     []repository.ExpiryItem
	taskID    uuid.UUID
	taskCalls []repository.CreateTaskParams
}

func (f *fakeRepo) GetLead(_ context.Context, id uuid.UUID) (repository.Lead, error) {
	if f.leadErr != nil {
		return repository.Lead{}, f.leadErr
	}
	return f.lead, nil
}

func (f *fakeRepo) GetConversationByLead(_ context.Context, _ uuid.UUID) (*repository.Conversation, error) {
	return f.conv, nil
}

func (f *fakeRepo) GetTaskStats(_ context.Context, _ uuid.UUID, _ time.Time) (repository.TaskStats, error) {
	return f.stats, nil
}

func (f *fakeRepo) ListExpiryItems(_ context.Context, _ uuid.UUID) ([]repository.ExpiryItem, error) {
	return f.items, nil
}

func (f *fakeRepo) CreateTask(_ context.Context, params repository.CreateTaskParams) (uuid.UUID, error) {
	f.taskCalls = append(f.taskCalls, params)
	return f.taskID, nil
}

type fakeDispatcher struct {
	intents []outbound.SendIntent
	result  outbound.Result
	err     error
}

func (f *fakeDispatcher) Dispatch(_ context.Context, intent outbound.SendIntent) (outbound.Result, error) {
	f.intents = append(f.intents, intent)
	return f.result, f.err
}

type fakeCache struct {
	entries     map[string]domain.NextBestAction
	invalidated []uuid.UUID
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]domain.NextBestAction)}
}

func (f *fakeCache) Get(_ context.Context, leadID uuid.UUID, hash string) (*domain.NextBestAction, error) {
	if action, ok := f.entries[leadID.String()+hash]; ok {
		return &action, nil
	}
	return nil, nil
}

func (f *fakeCache) Set(_ context.Context, leadID uuid.UUID, hash string, action domain.NextBestAction) error {
	f.entries[leadID.String()+hash] = action
	return nil
}

func (f *fakeCache) Invalidate(_ context.Context, leadID uuid.UUID) error {
	f.invalidated = append(f.invalidated, leadID)
	for k := range f.entries {
		delete(f.entries, k)
	}
	return nil
}

var svcLeadID = uuid.MustParse("7f9b74f3-27ae-4a3a-9f51-3fb1c22a3d02")
var svcConvID = uuid.MustParse("4c3a1dd2-97f0-4b8e-a2cf-6a1f1de23a51")

func replyRepo() *fakeRepo {
	inbound := svcNow.Add(-30 * time.Hour)
	msgID := "wamid.inbound.001"
	return &fakeRepo{
		lead: repository.Lead{ID: svcLeadID, Stage: domain.StageContacted},
		conv: &repository.Conversation{
			ID:                   svcConvID,
			LeadID:               svcLeadID,
			Channel:              outbound.ChannelWhatsApp,
			Destination:          "+31612345678",
			LastInboundAt:        &inbound,
			LastInboundMessageID: &msgID,
		},
		taskID: uuid.New(),
	}
}

type fakeBus struct {
	published []events.Event
}

func (f *fakeBus) Publish(_ context.Context, e events.Event) {
	f.published = append(f.published, e)
}

func (f *fakeBus) PublishSync(ctx context.Context, e events.Event) error {
	f.Publish(ctx, e)
	return nil
}

func (f *fakeBus) Subscribe(string, events.Handler) {}

func newTestService(repo Repository, cache RecommendationCache, disp Dispatcher) *Service {
	s := New(repo, engine.New(engine.Thresholds{}), cache, disp, nil, logger.New("development"))
	s.now = func() time.Time { return svcNow }
	return s
}

func TestComputeNextBestActionNotFound(t *testing.T) {
	repo := &fakeRepo{leadErr: repository.ErrNotFound}
	s := newTestService(repo, nil, nil)

	_, err := s.ComputeNextBestAction(context.Background(), svcLeadID)
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestComputeNextBestActionCaches(t *testing.T) {
	repo := replyRepo()
	cache := newFakeCache()
	s := newTestService(repo, cache, nil)

	first, err := s.ComputeNextBestAction(context.Background(), svcLeadID)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if first.FromCache {
		t.Fatal("first evaluation must miss the cache")
	}
	if first.Action.Key != domain.ActionReplyNow {
		t.Fatalf("expected reply_now, got %q", first.Action.Key)
	}

	second, err := s.ComputeNextBestAction(context.Background(), svcLeadID)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if !second.FromCache {
		t.Fatal("second evaluation must hit the cache")
	}
	if second.Action.Key != first.Action.Key || second.Action.Impact != first.Action.Impact {
		t.Fatal("cached action must match the computed one")
	}
}

func TestComputeNextBestActionWorksWithoutCache(t *testing.T) {
	s := newTestService(replyRepo(), nil, nil)

	resp, err := s.ComputeNextBestAction(context.Background(), svcLeadID)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if resp.Action.Key != domain.ActionReplyNow {
		t.Fatalf("expected reply_now, got %q", resp.Action.Key)
	}
}

func TestExecutePrimaryActionSends(t *testing.T) {
	repo := replyRepo()
	cache := newFakeCache()
	disp := &fakeDispatcher{result: outbound.Result{Outcome: outbound.OutcomeSent, ExternalID: "wamid.out.001"}}
	s := newTestService(repo, cache, disp)

	resp, err := s.ExecutePrimaryAction(context.Background(), svcLeadID, transport.ExecuteActionRequest{
		ActionKey: domain.ActionReplyNow,
		Message:   "We komen er zo op terug.",
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if resp.Status != transport.StatusSent {
		t.Fatalf("expected sent, got %q", resp.Status)
	}
	if resp.ExternalID != "wamid.out.001" {
		t.Fatalf("expected external id, got %q", resp.ExternalID)
	}

	if len(disp.intents) != 1 {
		t.Fatalf("expected one dispatch, got %d", len(disp.intents))
	}
	intent := disp.intents[0]
	wantKey := outbound.IntentKey(svcConvID, "wamid.inbound.001")
	if intent.IdempotencyKey != wantKey {
		t.Fatalf("intent key = %q, want %q", intent.IdempotencyKey, wantKey)
	}
	if len(cache.invalidated) != 1 {
		t.Fatal("send must invalidate the cached recommendation")
	}
}

func TestExecutePrimaryActionDuplicateIsInformational(t *testing.T) {
	disp := &fakeDispatcher{result: outbound.Result{Outcome: outbound.OutcomeSent, ExternalID: "wamid.out.001", Duplicate: true}}
	s := newTestService(replyRepo(), newFakeCache(), disp)

	resp, err := s.ExecutePrimaryAction(context.Background(), svcLeadID, transport.ExecuteActionRequest{
		ActionKey: domain.ActionReplyNow,
		Message:   "Nogmaals gestuurd.",
	})
	if err != nil {
		t.Fatalf("duplicate must not be an error: %v", err)
	}
	if resp.Status != transport.StatusAlreadySent {
		t.Fatalf("expected already_sent, got %q", resp.Status)
	}
}

func TestExecutePrimaryActionChannelFailure(t *testing.T) {
	disp := &fakeDispatcher{
		result: outbound.Result{Outcome: outbound.OutcomeFailed},
		err:    errors.New("provider 500"),
	}
	s := newTestService(replyRepo(), newFakeCache(), disp)

	_, err := s.ExecutePrimaryAction(context.Background(), svcLeadID, transport.ExecuteActionRequest{
		ActionKey: domain.ActionReplyNow,
		Message:   "Hallo",
	})
	if !apperr.Is(err, apperr.KindUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}

func TestExecutePrimaryActionStaleKeyConflicts(t *testing.T) {
	s := newTestService(replyRepo(), nil, &fakeDispatcher{})

	_, err := s.ExecutePrimaryAction(context.Background(), svcLeadID, transport.ExecuteActionRequest{
		ActionKey: domain.ActionContinueConversation,
		Message:   "Hallo",
	})
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict for stale action key, got %v", err)
	}
}

func TestExecutePrimaryActionValidatesSendInputs(t *testing.T) {
	repo := replyRepo()
	repo.conv.LastInboundMessageID = nil
	s := newTestService(repo, nil, &fakeDispatcher{})

	// No message body.
	_, err := s.ExecutePrimaryAction(context.Background(), svcLeadID, transport.ExecuteActionRequest{
		ActionKey: domain.ActionReplyNow,
	})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error for missing message, got %v", err)
	}

	// No trigger reference anywhere.
	_, err = s.ExecutePrimaryAction(context.Background(), svcLeadID, transport.ExecuteActionRequest{
		ActionKey: domain.ActionReplyNow,
		Message:   "Hallo",
	})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error for missing trigger ref, got %v", err)
	}
}

func TestExecutePrimaryActionCreatesTask(t *testing.T) {
	prob := 85
	repo := &fakeRepo{
		lead:   repository.Lead{ID: svcLeadID, Stage: domain.StageQualified, DealProbability: &prob},
		taskID: uuid.New(),
	}
	bus := &fakeBus{}
	s := newTestService(repo, newFakeCache(), &fakeDispatcher{})
	s.bus = bus

	resp, err := s.ExecutePrimaryAction(context.Background(), svcLeadID, transport.ExecuteActionRequest{
		ActionKey: domain.ActionAdvanceQualification,
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if resp.Status != transport.StatusTaskCreated {
		t.Fatalf("expected task_created, got %q", resp.Status)
	}
	if resp.TaskID != repo.taskID.String() {
		t.Fatalf("expected task id %s, got %s", repo.taskID, resp.TaskID)
	}
	if len(repo.taskCalls) != 1 {
		t.Fatalf("expected one task, got %d", len(repo.taskCalls))
	}

	if len(bus.published) != 1 {
		t.Fatalf("expected one event, got %d", len(bus.published))
	}
	ev, ok := bus.published[0].(events.LeadSignalsChanged)
	if !ok {
		t.Fatalf("expected LeadSignalsChanged, got %T", bus.published[0])
	}
	if ev.LeadID != svcLeadID || ev.Source != "task" {
		t.Fatalf("unexpected event payload: %+v", ev)
	}
}

func TestExecutePrimaryActionNavigates(t *testing.T) {
	overdueRepo := replyRepo()
	overdueRepo.conv.LastInboundAt = nil
	overdueRepo.stats = repository.TaskStats{OverdueCount: 2}
	s := newTestService(overdueRepo, nil, &fakeDispatcher{})

	resp, err := s.ExecutePrimaryAction(context.Background(), svcLeadID, transport.ExecuteActionRequest{
		ActionKey: domain.ActionResolveOverdueTask,
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if resp.Status != transport.StatusNavigate {
		t.Fatalf("expected navigate, got %q", resp.Status)
	}
	if resp.Route == "" {
		t.Fatal("expected a target route")
	}
}
