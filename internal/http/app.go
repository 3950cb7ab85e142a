// Package http provides HTTP server infrastructure including module registration.
package http

import (
	"context"

	"engagement_backend/internal/events"
	"engagement_backend/platform/config"
	"engagement_backend/platform/logger"
)

// RouterConfig combines the config interfaces needed by the HTTP router.
type RouterConfig interface {
	config.HTTPConfig
	config.JWTConfig
}

// HealthChecker exposes minimal functionality for readiness checks.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// App bundles the shared dependencies the router needs to assemble the
// server: configuration, logging, health checks, the event bus, and the
// domain modules whose routes get mounted.
type App struct {
	Config   RouterConfig
	Logger   *logger.Logger
	Health   HealthChecker
	EventBus events.Bus
	Modules  []Module
}
