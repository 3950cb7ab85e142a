// Package engagement provides the lead engagement domain module: the rules
// engine, its evaluation service and the interactive HTTP surface.
package engagement

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"engagement_backend/internal/engagement/cache"
	"engagement_backend/internal/engagement/engine"
	"engagement_backend/internal/engagement/handler"
	"engagement_backend/internal/engagement/repository"
	"engagement_backend/internal/engagement/service"
	"engagement_backend/internal/events"
	apphttp "engagement_backend/internal/http"
	"engagement_backend/platform/config"
	"engagement_backend/platform/logger"
	"engagement_backend/platform/validator"
)

// Module represents the engagement domain module.
type Module struct {
	handler *handler.Handler
	Service *service.Service
	// Repository is exported so the composition root can wire it as the
	// dispatcher's conversation toucher.
	Repository *repository.Repository
}

// NewModule creates the engagement module with all dependencies wired.
// The redis client is optional; without it recommendations are recomputed
// on every call.
func NewModule(pool *pgxpool.Pool, redisClient *redis.Client, cfg config.EngineConfig, cacheCfg config.CacheConfig, dispatcher service.Dispatcher, bus events.Bus, val *validator.Validator, log *logger.Logger) *Module {
	repo := repository.New(pool)
	eng := engine.New(engine.Thresholds{
		ReplySLA:             cfg.GetReplySLA(),
		ExpiryWindowDays:     cfg.GetExpiryWindowDays(),
		HighProbability:      cfg.GetHighProbabilityThreshold(),
		RevenueValueCapCents: cfg.GetRevenueValueCapCents(),
	})

	var rc service.RecommendationCache
	if redisClient != nil {
		rc = cache.New(redisClient, cacheCfg.GetRecommendationTTL())
	}

	svc := service.New(repo, eng, rc, dispatcher, bus, log)
	h := handler.New(svc, val)

	m := &Module{handler: h, Service: svc, Repository: repo}
	m.subscribe(bus)
	return m
}

// Name returns the module name for logging.
func (m *Module) Name() string {
	return "engagement"
}

// RegisterRoutes registers the module's routes under /api/v1/leads.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	leads := ctx.Protected.Group("/leads")
	m.handler.RegisterRoutes(leads)
}

// subscribe invalidates cached recommendations when evaluation inputs
// change elsewhere in the system.
func (m *Module) subscribe(bus events.Bus) {
	if bus == nil {
		return
	}
	bus.Subscribe(events.MessageDispatched{}.EventName(), events.HandlerFunc(func(ctx context.Context, e events.Event) error {
		if ev, ok := e.(events.MessageDispatched); ok {
			invalidateCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			m.Service.InvalidateRecommendation(invalidateCtx, ev.LeadID)
		}
		return nil
	}))
	bus.Subscribe(events.LeadSignalsChanged{}.EventName(), events.HandlerFunc(func(ctx context.Context, e events.Event) error {
		if ev, ok := e.(events.LeadSignalsChanged); ok {
			m.Service.InvalidateRecommendation(ctx, ev.LeadID)
		}
		return nil
	}))
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
