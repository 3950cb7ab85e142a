// Package followup provides the follow-up batch domain module.
package followup

import (
	"engagement_backend/internal/followup/handler"
	"engagement_backend/internal/followup/runner"
	apphttp "engagement_backend/internal/http"
	"engagement_backend/platform/validator"
)

// Module represents the follow-up batch domain module.
type Module struct {
	handler *handler.Handler
	Runner  *runner.Runner
}

// NewModule creates the follow-up module around an already-wired runner.
// The runner's dependencies (candidate source, evaluator, dispatcher) come
// from the composition root because they span other modules.
func NewModule(r *runner.Runner, val *validator.Validator) *Module {
	return &Module{
		handler: handler.New(r, val),
		Runner:  r,
	}
}

// Name returns the module name for logging.
func (m *Module) Name() string {
	return "followup"
}

// RegisterRoutes registers the module's routes under /api/v1/follow-up.
// Runs mutate external state, so they sit behind the admin group.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.Admin.Group("/follow-up")
	m.handler.RegisterRoutes(group)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
