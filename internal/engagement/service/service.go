// Package service orchestrates lead evaluation and action execution: it
// loads snapshots, runs the rules engine, memoizes results and hands send
// actions to the outbound pipeline.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"engagement_backend/internal/engagement/cache"
	"engagement_backend/internal/engagement/domain"
	"engagement_backend/internal/engagement/engine"
	"engagement_backend/internal/engagement/expiry"
	"engagement_backend/internal/engagement/repository"
	"engagement_backend/internal/engagement/signals"
	"engagement_backend/internal/engagement/transport"
	"engagement_backend/internal/events"
	"engagement_backend/internal/outbound"
	"engagement_backend/platform/apperr"
	"engagement_backend/platform/logger"
)

// Repository is the data access the service needs.
type Repository interface {
	GetLead(ctx context.Context, id uuid.UUID) (repository.Lead, error)
	GetConversationByLead(ctx context.Context, leadID uuid.UUID) (*repository.Conversation, error)
	GetTaskStats(ctx context.Context, leadID uuid.UUID, now time.Time) (repository.TaskStats, error)
	ListExpiryItems(ctx context.Context, leadID uuid.UUID) ([]repository.ExpiryItem, error)
	CreateTask(ctx context.Context, params repository.CreateTaskParams) (uuid.UUID, error)
}

// Dispatcher executes admitted send-intents.
type Dispatcher interface {
	Dispatch(ctx context.Context, intent outbound.SendIntent) (outbound.Result, error)
}

// RecommendationCache memoizes engine output keyed by an input hash.
type RecommendationCache interface {
	Get(ctx context.Context, leadID uuid.UUID, hash string) (*domain.NextBestAction, error)
	Set(ctx context.Context, leadID uuid.UUID, hash string, action domain.NextBestAction) error
	Invalidate(ctx context.Context, leadID uuid.UUID) error
}

type Service struct {
	repo       Repository
	engine     *engine.Engine
	cache      RecommendationCache
	dispatcher Dispatcher
	bus        events.Bus
	log        *logger.Logger
	now        func() time.Time
}

func New(repo Repository, eng *engine.Engine, cache RecommendationCache, dispatcher Dispatcher, bus events.Bus, log *logger.Logger) *Service {
	return &Service{
		repo:       repo,
		engine:     eng,
		cache:      cache,
		dispatcher: dispatcher,
		bus:        bus,
		log:        log,
		now:        time.Now,
	}
}

// Snapshot is the full evaluation input for one lead at one instant.
type Snapshot struct {
	Lead         domain.LeadContext
	Conversation domain.ConversationContext
	Tasks        domain.TasksContext
	Expiry       domain.ExpirySummary
	// Conv is the raw conversation row, needed for dispatch routing.
	Conv *repository.Conversation
}

// LoadSnapshot reads the lead's current state as read-only evaluation input.
func (s *Service) LoadSnapshot(ctx context.Context, leadID uuid.UUID, now time.Time) (Snapshot, error) {
	lead, err := s.repo.GetLead(ctx, leadID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Snapshot{}, apperr.NotFound("lead not found")
		}
		return Snapshot{}, err
	}

	conv, err := s.repo.GetConversationByLead(ctx, leadID)
	if err != nil {
		return Snapshot{}, err
	}

	stats, err := s.repo.GetTaskStats(ctx, leadID, now)
	if err != nil {
		return Snapshot{}, err
	}

	items, err := s.repo.ListExpiryItems(ctx, leadID)
	if err != nil {
		return Snapshot{}, err
	}

	return Snapshot{
		Lead:         signals.LeadContext(lead, conv),
		Conversation: signals.ConversationContext(conv),
		Tasks:        signals.TasksContext(stats),
		Expiry:       expiry.Summarize(now, items),
		Conv:         conv,
	}, nil
}

// Evaluate runs the engine over a snapshot without touching the cache.
// Used by the batch runner, which evaluates many leads per run.
func (s *Service) Evaluate(now time.Time, snap Snapshot) domain.NextBestAction {
	return s.engine.Evaluate(now, snap.Lead, snap.Conversation, snap.Tasks, snap.Expiry)
}

// ComputeNextBestAction evaluates the lead, serving from cache when the
// input hash matches a prior evaluation. Safe to call on every UI refresh.
func (s *Service) ComputeNextBestAction(ctx context.Context, leadID uuid.UUID) (transport.NextBestActionResponse, error) {
	now := s.now().UTC()
	snap, err := s.LoadSnapshot(ctx, leadID, now)
	if err != nil {
		return transport.NextBestActionResponse{}, err
	}

	resp := transport.NextBestActionResponse{
		LeadID:        leadID.String(),
		EngineVersion: engine.Version,
		EvaluatedAt:   now,
	}

	hash := ""
	if s.cache != nil {
		hash, err = cache.InputHash(engine.Version, struct {
			Lead  domain.LeadContext
			Conv  domain.ConversationContext
			Tasks domain.TasksContext
			Exp   domain.ExpirySummary
		}{snap.Lead, snap.Conversation, snap.Tasks, snap.Expiry})
		if err == nil {
			cached, cacheErr := s.cache.Get(ctx, leadID, hash)
			if cacheErr != nil {
				s.log.Warn("recommendation cache read failed", "error", cacheErr)
			} else if cached != nil {
				resp.Action = *cached
				resp.FromCache = true
				return resp, nil
			}
		}
	}

	resp.Action = s.Evaluate(now, snap)

	if s.cache != nil && hash != "" {
		if err := s.cache.Set(ctx, leadID, hash, resp.Action); err != nil {
			s.log.Warn("recommendation cache write failed", "error", err)
		}
	}
	return resp, nil
}

// InvalidateRecommendation drops the lead's cached recommendation. Wired to
// dispatch and task events so stale recommendations disappear promptly.
func (s *Service) InvalidateRecommendation(ctx context.Context, leadID uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, leadID); err != nil {
		s.log.Warn("recommendation cache invalidation failed", "leadId", leadID, "error", err)
	}
}

// ExecutePrimaryAction performs the recommended action's verb: composer
// actions dispatch an outbound message, task actions create a follow-up
// task, navigation actions return their target route.
func (s *Service) ExecutePrimaryAction(ctx context.Context, leadID uuid.UUID, req transport.ExecuteActionRequest) (transport.ExecuteActionResponse, error) {
	now := s.now().UTC()
	snap, err := s.LoadSnapshot(ctx, leadID, now)
	if err != nil {
		return transport.ExecuteActionResponse{}, err
	}

	action := s.Evaluate(now, snap)
	if action.Key != req.ActionKey {
		// The lead's state moved on since the client rendered the action.
		return transport.ExecuteActionResponse{}, apperr.Conflict("recommended action changed, refresh and retry").
			WithDetails(map[string]string{"currentAction": action.Key})
	}

	switch action.Verb {
	case domain.VerbOpenComposer:
		return s.executeSend(ctx, leadID, snap, req)
	case domain.VerbCreateTask:
		return s.executeCreateTask(ctx, leadID, req)
	case domain.VerbOpenQuote, domain.VerbNavigate:
		resp := transport.ExecuteActionResponse{Status: transport.StatusNavigate}
		if action.Route != nil {
			resp.Route = *action.Route
		}
		return resp, nil
	default:
		return transport.ExecuteActionResponse{}, apperr.Internal(fmt.Sprintf("unhandled action verb %q", action.Verb))
	}
}

func (s *Service) executeSend(ctx context.Context, leadID uuid.UUID, snap Snapshot, req transport.ExecuteActionRequest) (transport.ExecuteActionResponse, error) {
	if snap.Conv == nil {
		return transport.ExecuteActionResponse{}, apperr.Validation("lead has no conversation to send on")
	}
	if req.Message == "" {
		return transport.ExecuteActionResponse{}, apperr.Validation("message is required for composer actions")
	}

	triggerRef := req.TriggerRef
	if triggerRef == "" && snap.Conv.LastInboundMessageID != nil {
		triggerRef = *snap.Conv.LastInboundMessageID
	}
	if triggerRef == "" {
		return transport.ExecuteActionResponse{}, apperr.Validation("no trigger reference available for this send")
	}

	intent := outbound.SendIntent{
		IdempotencyKey: outbound.IntentKey(snap.Conv.ID, triggerRef),
		ConversationID: snap.Conv.ID,
		LeadID:         leadID,
		Channel:        snap.Conv.Channel,
		Destination:    snap.Conv.Destination,
		Body:           req.Message,
	}

	result, err := s.dispatcher.Dispatch(ctx, intent)
	if err != nil {
		if result.Outcome == outbound.OutcomeFailed {
			return transport.ExecuteActionResponse{}, apperr.Wrap(apperr.KindUnavailable, "channel send failed", err)
		}
		return transport.ExecuteActionResponse{}, err
	}

	s.InvalidateRecommendation(ctx, leadID)

	if result.Duplicate {
		return transport.ExecuteActionResponse{
			Status:     transport.StatusAlreadySent,
			ExternalID: result.ExternalID,
		}, nil
	}
	return transport.ExecuteActionResponse{
		Status:     transport.StatusSent,
		ExternalID: result.ExternalID,
	}, nil
}

func (s *Service) executeCreateTask(ctx context.Context, leadID uuid.UUID, req transport.ExecuteActionRequest) (transport.ExecuteActionResponse, error) {
	title := req.TaskTitle
	if title == "" {
		title = "Qualify and progress this lead"
	}

	taskID, err := s.repo.CreateTask(ctx, repository.CreateTaskParams{
		LeadID: leadID,
		Title:  title,
		Kind:   "QUALIFICATION",
		DueAt:  req.TaskDueAt,
	})
	if err != nil {
		return transport.ExecuteActionResponse{}, err
	}

	s.InvalidateRecommendation(ctx, leadID)
	s.publishSignalsChanged(ctx, leadID, "task")

	return transport.ExecuteActionResponse{
		Status: transport.StatusTaskCreated,
		TaskID: taskID.String(),
	}, nil
}

// publishSignalsChanged tells other modules the lead's evaluation inputs
// moved, so their cached views of the lead can refresh.
func (s *Service) publishSignalsChanged(ctx context.Context, leadID uuid.UUID, source string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(ctx, events.LeadSignalsChanged{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    leadID,
		Source:    source,
	})
}
