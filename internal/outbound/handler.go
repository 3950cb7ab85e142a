package outbound

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"engagement_backend/platform/httpkit"
)

// LogQuery is the query surface of the outbound log endpoint.
type LogQuery struct {
	ConversationID *uuid.UUID `form:"conversationId"`
	Outcome        *string    `form:"outcome"`
	Limit          int        `form:"limit"`
	Offset         int        `form:"offset"`
}

// LogEntry is the wire representation of a ledger row. The body is omitted
// to keep message content out of audit listings.
type LogEntry struct {
	ID             uuid.UUID `json:"id"`
	IdempotencyKey string    `json:"idempotencyKey"`
	ConversationID uuid.UUID `json:"conversationId"`
	LeadID         uuid.UUID `json:"leadId"`
	Channel        string    `json:"channel"`
	Outcome        string    `json:"outcome"`
	ExternalID     *string   `json:"externalId,omitempty"`
	ErrorReason    *string   `json:"errorReason,omitempty"`
	Attempts       int       `json:"attempts"`
	CreatedAt      time.Time `json:"createdAt"`
	LastAttemptAt  time.Time `json:"lastAttemptAt"`
}

// LogResponse pages through the ledger.
type LogResponse struct {
	Items []LogEntry `json:"items"`
	Total int        `json:"total"`
}

// Handler exposes the dispatch ledger over HTTP.
type Handler struct {
	ledger *Ledger
}

func NewHandler(ledger *Ledger) *Handler {
	return &Handler{ledger: ledger}
}

// RegisterRoutes registers the outbound routes.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/log", h.ListLog)
}

// ListLog handles GET /api/v1/outbound/log
func (h *Handler) ListLog(c *gin.Context) {
	var query LogQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request", nil)
		return
	}

	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	params := ListParams{
		ConversationID: query.ConversationID,
		Limit:          query.Limit,
		Offset:         query.Offset,
	}
	if query.Outcome != nil {
		outcome := Outcome(*query.Outcome)
		switch outcome {
		case OutcomeInFlight, OutcomeSent, OutcomeFailed:
			params.Outcome = &outcome
		default:
			httpkit.Error(c, http.StatusBadRequest, "invalid outcome filter", nil)
			return
		}
	}

	records, total, err := h.ledger.List(c.Request.Context(), params)
	if httpkit.HandleError(c, err) {
		return
	}

	items := make([]LogEntry, 0, len(records))
	for _, rec := range records {
		items = append(items, LogEntry{
			ID:             rec.ID,
			IdempotencyKey: rec.IdempotencyKey,
			ConversationID: rec.ConversationID,
			LeadID:         rec.LeadID,
			Channel:        rec.Channel,
			Outcome:        string(rec.Outcome),
			ExternalID:     rec.ExternalID,
			ErrorReason:    rec.ErrorReason,
			Attempts:       rec.Attempts,
			CreatedAt:      rec.CreatedAt,
			LastAttemptAt:  rec.LastAttemptAt,
		})
	}

	httpkit.OK(c, LogResponse{Items: items, Total: total})
}
