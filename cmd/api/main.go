package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"engagement_backend/internal/email"
	"engagement_backend/internal/engagement"
	engrepo "engagement_backend/internal/engagement/repository"
	"engagement_backend/internal/events"
	"engagement_backend/internal/followup"
	"engagement_backend/internal/followup/runner"
	apphttp "engagement_backend/internal/http"
	"engagement_backend/internal/http/router"
	"engagement_backend/internal/outbound"
	"engagement_backend/internal/whatsapp"
	"engagement_backend/platform/config"
	"engagement_backend/platform/db"
	"engagement_backend/platform/logger"
	"engagement_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg, "migrations")
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

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
	log.Info("database connection established")

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)

	redisClient := initRedis(cfg, log)
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Shared validator instance for dependency injection
	val := validator.New()

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	gateways := initGateways(cfg, log)

	// The dispatcher touches conversations after every send attempt; it
	// gets its own repository instance over the shared pool.
	conversationToucher := engrepo.New(pool)

	outboundModule := outbound.NewModule(pool, cfg, gateways, conversationToucher, eventBus, log)
	engagementModule := engagement.NewModule(pool, redisClient, cfg, cfg, outboundModule.Dispatcher, eventBus, val, log)

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
	followUpModule := followup.NewModule(followUpRunner, val)

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   db.NewPoolAdapter(pool),
		EventBus: eventBus,
		Modules: []apphttp.Module{
			engagementModule,
			outboundModule,
			followUpModule,
		},
	}

	engine := router.New(app)

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- engine.Run(cfg.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = shutdownCtx
	case err := <-srvErr:
		if err != nil {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

// initGateways collects the enabled send channels. A missing channel config
// disables that channel rather than failing startup.
func initGateways(cfg *config.Config, log *logger.Logger) []outbound.Gateway {
	var gateways []outbound.Gateway

	if wa := whatsapp.NewClient(cfg, log); wa != nil {
		gateways = append(gateways, wa)
		log.Info("whatsapp channel enabled")
	} else {
		log.Warn("WHATSAPP_URL not configured; whatsapp channel disabled")
	}

	if mail := email.NewGateway(cfg); mail != nil {
		gateways = append(gateways, mail)
		log.Info("email channel enabled")
	} else {
		log.Warn("SMTP not configured; email channel disabled")
	}

	return gateways
}

func initRedis(cfg *config.Config, log *logger.Logger) *redis.Client {
	if cfg.RedisURL == "" {
		log.Warn("REDIS_URL not configured; recommendation cache disabled")
		return nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Error("invalid REDIS_URL; recommendation cache disabled", "error", err)
		return nil
	}
	if cfg.RedisTLSInsecure && opt.TLSConfig != nil {
		opt.TLSConfig.InsecureSkipVerify = true
	}

	return redis.NewClient(opt)
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
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
