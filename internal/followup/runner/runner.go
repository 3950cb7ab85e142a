// Package runner implements the batch engine runner: it selects candidate
// leads inside a time window, evaluates each through the rules engine and
// pushes implied sends through the guarded dispatch pipeline.
package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"engagement_backend/internal/engagement/domain"
	"engagement_backend/internal/engagement/repository"
	"engagement_backend/internal/engagement/service"
	"engagement_backend/internal/events"
	"engagement_backend/internal/outbound"
	"engagement_backend/platform/logger"
)

// CandidateState tracks a single candidate through a run.
type CandidateState string

const (
	StatePending        CandidateState = "pending"
	StateEvaluated      CandidateState = "evaluated"
	StateSkipped        CandidateState = "skipped"
	StateSent           CandidateState = "sent"
	StateFailed         CandidateState = "failed"
	StateAlreadyHandled CandidateState = "already_handled"
)

// Detail is the per-candidate line of a run report.
type Detail struct {
	LeadID         uuid.UUID      `json:"leadId"`
	ConversationID *uuid.UUID     `json:"conversationId,omitempty"`
	State          CandidateState `json:"state"`
	ActionKey      string         `json:"actionKey,omitempty"`
	Reason         string         `json:"reason,omitempty"`
	ExternalID     string         `json:"externalId,omitempty"`
}

// Summary reports a finished run. AlreadyHandled candidates count as
// skipped, so Sent + Failed + Skipped always equals Candidates.
type Summary struct {
	RunID          string   `json:"runId"`
	WindowID       string   `json:"windowId"`
	DryRun         bool     `json:"dryRun"`
	Candidates     int      `json:"candidates"`
	Sent           int      `json:"sent"`
	Failed         int      `json:"failed"`
	Skipped        int      `json:"skipped"`
	AlreadyHandled int      `json:"alreadyHandled"`
	Details        []Detail `json:"details"`
}

// CandidateSource lists leads eligible for evaluation.
type CandidateSource interface {
	ListFollowUpCandidates(ctx context.Context, params repository.CandidateParams) ([]repository.FollowUpCandidate, error)
}

// Evaluator loads a lead snapshot and runs the rules engine over it.
type Evaluator interface {
	LoadSnapshot(ctx context.Context, leadID uuid.UUID, now time.Time) (service.Snapshot, error)
	Evaluate(now time.Time, snap service.Snapshot) domain.NextBestAction
}

// Dispatcher executes admitted send-intents.
type Dispatcher interface {
	Dispatch(ctx context.Context, intent outbound.SendIntent) (outbound.Result, error)
}

// Config bounds a run.
type Config struct {
	// CandidateTimeout caps each candidate's evaluate-and-send path so one
	// slow channel call cannot stall the run.
	CandidateTimeout time.Duration
	// Concurrency is the number of candidates processed in parallel.
	Concurrency int
	// CandidateLimit caps how many leads a single run picks up.
	CandidateLimit int
}

// Runner drives follow-up engine runs.
type Runner struct {
	source     CandidateSource
	evaluator  Evaluator
	dispatcher Dispatcher
	bus        events.Bus
	cfg        Config
	log        *logger.Logger
	now        func() time.Time
}

func NewRunner(source CandidateSource, evaluator Evaluator, dispatcher Dispatcher, bus events.Bus, cfg Config, log *logger.Logger) *Runner {
	if cfg.CandidateTimeout <= 0 {
		cfg.CandidateTimeout = 30 * time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &Runner{
		source:     source,
		evaluator:  evaluator,
		dispatcher: dispatcher,
		bus:        bus,
		cfg:        cfg,
		log:        log,
		now:        time.Now,
	}
}

// RunParams selects and scopes one run.
type RunParams struct {
	WindowDays       int
	DryRun           bool
	OnlyNotContacted bool
}

// WindowID buckets runs into UTC hours, so repeated runs within the same
// hour share idempotency keys and cannot double-send.
func WindowID(now time.Time) string {
	return now.UTC().Format("2006-01-02T15")
}

// Run evaluates all candidates in the window. Candidates are independent:
// one failure never aborts the batch, it is recorded and counted.
func (r *Runner) Run(ctx context.Context, params RunParams) (Summary, error) {
	now := r.now().UTC()
	summary := Summary{
		RunID:    uuid.New().String(),
		WindowID: WindowID(now),
		DryRun:   params.DryRun,
	}
	if params.WindowDays <= 0 {
		params.WindowDays = 14
	}

	candidates, err := r.source.ListFollowUpCandidates(ctx, repository.CandidateParams{
		WindowDays:       params.WindowDays,
		OnlyNotContacted: params.OnlyNotContacted,
		Now:              now,
		Limit:            r.cfg.CandidateLimit,
	})
	if err != nil {
		return Summary{}, fmt.Errorf("list candidates: %w", err)
	}

	summary.Candidates = len(candidates)
	details := make([]Detail, len(candidates))

	g, runCtx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)
	for i, candidate := range candidates {
		g.Go(func() error {
			details[i] = r.processCandidate(runCtx, candidate, params, summary.WindowID, now)
			return nil
		})
	}
	_ = g.Wait()

	for _, d := range details {
		switch d.State {
		case StateSent:
			summary.Sent++
		case StateFailed:
			summary.Failed++
		case StateAlreadyHandled:
			summary.AlreadyHandled++
			summary.Skipped++
		default:
			summary.Skipped++
		}
	}
	summary.Details = details

	r.log.FollowUpRun(summary.RunID, summary.DryRun, summary.Candidates, summary.Sent, summary.Failed, summary.Skipped)
	r.publishCompleted(ctx, summary, now)

	return summary, nil
}

func (r *Runner) processCandidate(ctx context.Context, candidate repository.FollowUpCandidate, params RunParams, windowID string, now time.Time) Detail {
	detail := Detail{LeadID: candidate.Lead.ID, State: StatePending}
	if candidate.Conversation != nil {
		detail.ConversationID = &candidate.Conversation.ID
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.CandidateTimeout)
	defer cancel()

	snap, err := r.evaluator.LoadSnapshot(ctx, candidate.Lead.ID, now)
	if err != nil {
		detail.State = StateFailed
		detail.Reason = fmt.Sprintf("load snapshot: %v", err)
		return detail
	}

	action := r.evaluator.Evaluate(now, snap)
	detail.State = StateEvaluated
	detail.ActionKey = action.Key

	if action.Verb != domain.VerbOpenComposer {
		detail.State = StateSkipped
		detail.Reason = "recommended action implies no send"
		return detail
	}
	if snap.Conv == nil || snap.Conv.Destination == "" {
		detail.State = StateSkipped
		detail.Reason = "no conversation to send on"
		return detail
	}

	if params.DryRun {
		detail.State = StateSkipped
		detail.Reason = "dry run, send withheld"
		return detail
	}

	intent := outbound.SendIntent{
		IdempotencyKey: outbound.RunIntentKey(snap.Conv.ID, windowID),
		ConversationID: snap.Conv.ID,
		LeadID:         candidate.Lead.ID,
		Channel:        snap.Conv.Channel,
		Destination:    snap.Conv.Destination,
		Body:           followUpBody(action, snap),
	}

	result, err := r.dispatcher.Dispatch(ctx, intent)
	if err != nil {
		detail.State = StateFailed
		detail.Reason = err.Error()
		return detail
	}
	if result.Duplicate {
		detail.State = StateAlreadyHandled
		detail.ExternalID = result.ExternalID
		return detail
	}

	detail.State = StateSent
	detail.ExternalID = result.ExternalID
	return detail
}

// followUpBody renders a plain follow-up line for the recommended action.
// Message content generation is deliberately minimal here.
func followUpBody(action domain.NextBestAction, snap service.Snapshot) string {
	switch action.Key {
	case domain.ActionRenewalExpiry:
		if snap.Expiry.DaysRemaining != nil && *snap.Expiry.DaysRemaining >= 0 {
			return fmt.Sprintf("Heads-up: your %s expires in %d days. Shall we arrange the renewal together?", snap.Expiry.Category, *snap.Expiry.DaysRemaining)
		}
		return fmt.Sprintf("Heads-up: your %s has expired. Shall we arrange the renewal together?", snap.Expiry.Category)
	case domain.ActionReplyNow:
		return "Thanks for your message, we are on it and will get back to you shortly."
	default:
		return "Just checking in on your request. Is there anything we can help you with?"
	}
}

func (r *Runner) publishCompleted(ctx context.Context, summary Summary, now time.Time) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(ctx, events.FollowUpRunCompleted{
		BaseEvent:  events.NewBaseEvent(),
		RunID:      summary.RunID,
		WindowID:   summary.WindowID,
		DryRun:     summary.DryRun,
		Candidates: summary.Candidates,
		Sent:       summary.Sent,
		Failed:     summary.Failed,
		Skipped:    summary.Skipped,
		FinishedAt: now,
	})
}
