package scheduler

import (
	"context"
	"fmt"

	"engagement_backend/internal/followup/runner"
	"engagement_backend/platform/config"
	"engagement_backend/platform/logger"

	"github.com/hibiken/asynq"
)

type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	runner *runner.Runner
	log    *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, r *runner.Runner, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server: server,
		mux:    mux,
		runner: r,
		log:    log,
	}

	mux.HandleFunc(TaskFollowUpRun, w.handleFollowUpRun)

	return w, nil
}

// handleFollowUpRun executes one queued engine run. Per-candidate failures
// live inside the summary; only infrastructure errors bubble up so asynq
// retries the task.
func (w *Worker) handleFollowUpRun(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseFollowUpRunPayload(task)
	if err != nil {
		return err
	}

	summary, err := w.runner.Run(ctx, runner.RunParams{
		WindowDays:       payload.WindowDays,
		DryRun:           payload.DryRun,
		OnlyNotContacted: payload.OnlyNotContacted,
	})
	if err != nil {
		return err
	}

	w.log.Info("scheduled follow-up run finished",
		"run_id", summary.RunID,
		"window_id", summary.WindowID,
		"queued_window", payload.WindowID,
		"candidates", summary.Candidates,
		"sent", summary.Sent,
		"failed", summary.Failed,
		"skipped", summary.Skipped,
	)
	return nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}
