package scheduler

import (
	"context"
	"time"

	"engagement_backend/internal/followup/runner"
	"engagement_backend/platform/config"
	"engagement_backend/platform/logger"
)

// FollowUpEnqueuer periodically queues a follow-up run for the current
// send window. The task ID carries the window bucket, so re-enqueueing
// within the same window is a no-op.
type FollowUpEnqueuer struct {
	client     *Client
	interval   time.Duration
	windowDays int
	log        *logger.Logger
}

func NewFollowUpEnqueuer(cfg config.SchedulerConfig, fuCfg config.FollowUpConfig, client *Client, log *logger.Logger) *FollowUpEnqueuer {
	interval := cfg.GetFollowUpRunInterval()
	if interval <= 0 {
		interval = time.Hour
	}

	return &FollowUpEnqueuer{
		client:     client,
		interval:   interval,
		windowDays: fuCfg.GetFollowUpWindowDays(),
		log:        log,
	}
}

func (e *FollowUpEnqueuer) Run(ctx context.Context) {
	if e == nil || e.client == nil {
		return
	}

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	e.enqueue(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		e.enqueue(ctx)
	}
}

func (e *FollowUpEnqueuer) enqueue(ctx context.Context) {
	windowID := runner.WindowID(time.Now())

	queued, err := e.client.EnqueueFollowUpRun(ctx, FollowUpRunPayload{
		WindowID:   windowID,
		WindowDays: e.windowDays,
	})
	if err != nil {
		e.log.Warn("follow-up run enqueue failed", "window_id", windowID, "error", err)
		return
	}
	if !queued {
		return
	}

	e.log.Info("follow-up run queued", "window_id", windowID)
}
