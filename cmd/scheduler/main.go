package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"engagement_backend/internal/email"
	"engagement_backend/internal/engagement"
	engrepo "engagement_backend/internal/engagement/repository"
	"engagement_backend/internal/events"
	"engagement_backend/internal/followup/runner"
	"engagement_backend/internal/outbound"
	"engagement_backend/internal/scheduler"
	"engagement_backend/internal/whatsapp"
	"engagement_backend/platform/config"
	"engagement_backend/platform/db"
	"engagement_backend/platform/logger"
	"engagement_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	eventBus := events.NewInMemoryBus(log)
	val := validator.New()

	// Worker-side engine wiring (no HTTP handlers required). The scheduler
	// process never serves recommendations, so it runs without the cache.
	var gateways []outbound.Gateway
	if wa := whatsapp.NewClient(cfg, log); wa != nil {
		gateways = append(gateways, wa)
	}
	if mail := email.NewGateway(cfg); mail != nil {
		gateways = append(gateways, mail)
	}

	conversationToucher := engrepo.New(pool)
	outboundModule := outbound.NewModule(pool, cfg, gateways, conversationToucher, eventBus, log)
	engagementModule := engagement.NewModule(pool, nil, cfg, cfg, outboundModule.Dispatcher, eventBus, val, log)

	followUpRunner := runner.NewRunner(
		engagementModule.Repository,
		engagementModule.Service,
		outboundModule.Dispatcher,
		eventBus,
		runner.Config{
			CandidateTimeout: cfg.GetCandidateTimeout(),
			Concurrency:      cfg.GetRunnerConcurrency(),
		},
		log,
	)

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize scheduler client", "error", err)
		panic("failed to initialize scheduler client: " + err.Error())
	}
	defer func() { _ = client.Close() }()

	enqueuer := scheduler.NewFollowUpEnqueuer(cfg, cfg, client, log)
	go enqueuer.Run(ctx)

	worker, err := scheduler.NewWorker(cfg, followUpRunner, log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	worker.Run(ctx)
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
