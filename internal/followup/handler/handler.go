package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"engagement_backend/internal/followup/runner"
	"engagement_backend/internal/followup/transport"
	"engagement_backend/platform/httpkit"
	"engagement_backend/platform/validator"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

// Handler exposes the batch runner over HTTP.
type Handler struct {
	runner *runner.Runner
	val    *validator.Validator
}

func New(r *runner.Runner, val *validator.Validator) *Handler {
	return &Handler{runner: r, val: val}
}

// RegisterRoutes registers the follow-up routes.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/runs", h.Run)
}

// Run handles POST /api/v1/follow-up/runs
func (h *Handler) Run(c *gin.Context) {
	// All fields are optional; an empty body runs with defaults.
	var req transport.RunRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	summary, err := h.runner.Run(c.Request.Context(), runner.RunParams{
		WindowDays:       req.WindowDays,
		DryRun:           req.DryRun,
		OnlyNotContacted: req.OnlyNotContacted,
	})
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, summary)
}
