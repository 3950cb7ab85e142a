package outbound

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"engagement_backend/internal/events"
	apphttp "engagement_backend/internal/http"
	"engagement_backend/platform/config"
	"engagement_backend/platform/logger"
)

// Module represents the outbound dispatch domain module.
type Module struct {
	handler *Handler
	// Ledger and Dispatcher are exported for wiring by other modules.
	Ledger     *Ledger
	Guard      *Guard
	Dispatcher *Dispatcher
}

// NewModule creates the outbound module with all dependencies wired.
func NewModule(pool *pgxpool.Pool, cfg config.DispatchConfig, gateways []Gateway, toucher ConversationToucher, bus events.Bus, log *logger.Logger) *Module {
	ledger := NewLedger(pool)
	guard := NewGuard(ledger, cfg.GetStaleLockTimeout(), log)
	dispatcher := NewDispatcher(DispatcherParams{
		Guard:         guard,
		Ledger:        ledger,
		Gateways:      gateways,
		Toucher:       toucher,
		Bus:           bus,
		SendTimeout:   cfg.GetSendTimeout(),
		RatePerSecond: cfg.GetSendRatePerSecond(),
	}, log)

	return &Module{
		handler:    NewHandler(ledger),
		Ledger:     ledger,
		Guard:      guard,
		Dispatcher: dispatcher,
	}
}

// Name returns the module name for logging.
func (m *Module) Name() string {
	return "outbound"
}

// RegisterRoutes registers the module's routes under /api/v1/outbound.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.Protected.Group("/outbound")
	m.handler.RegisterRoutes(group)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
