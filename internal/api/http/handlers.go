package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/vitawell/companion/internal/chat/coordinator"
	"github.com/vitawell/companion/internal/infrastructure/monitoring"
	"github.com/vitawell/companion/internal/infrastructure/resilience"
	"github.com/vitawell/companion/internal/shared/errs"
	"github.com/vitawell/companion/internal/shared/types"
	"github.com/vitawell/companion/internal/wellness"
)

// BackendHealth reports the circuit position of the AI backend client.
type BackendHealth interface {
	BreakerState() resilience.State
}

// Handlers contains all HTTP handlers.
type Handlers struct {
	coord   *coordinator.Coordinator
	planner *wellness.Planner
	backend BackendHealth
	metrics *monitoring.Metrics
	logger  *zap.Logger
}

// NewHandlers creates the handler set.
func NewHandlers(coord *coordinator.Coordinator, planner *wellness.Planner, backend BackendHealth, metrics *monitoring.Metrics, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		coord:   coord,
		planner: planner,
		backend: backend,
		metrics: metrics,
		logger:  logger,
	}
}

// Root handles the basic liveness check.
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "companion",
		"version": "0.1.0",
	})
}

// Health handles the detailed health check.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "healthy",
		"sessions":       h.coord.Sessions().Len(),
		"active_streams": h.coord.ActiveStreams(),
		"queue_depth":    h.coord.QueueDepth(),
		"backend":        gin.H{"circuit": h.backend.BreakerState().String()},
	})
}

// StartChat opens a new conversation.
func (h *Handlers) StartChat(c *gin.Context) {
	var req types.StartChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.coord.StartChat(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// AddFeedback forwards a rating for one assistant message.
func (h *Handlers) AddFeedback(c *gin.Context) {
	var req types.FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.coord.AddFeedback(c.Request.Context(), c.Param("id"), req); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ListSessions summarizes all live sessions.
func (h *Handlers) ListSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"sessions": h.coord.Sessions().List(),
	})
}

// GetSession returns one session's summary and transcript.
func (h *Handlers) GetSession(c *gin.Context) {
	sess, ok := h.coord.Sessions().Get(c.Param("id"))
	if !ok {
		h.fail(c, errs.ErrSessionNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session":  sess.Info(),
		"messages": sess.Messages(),
	})
}

// DeleteSession discards a session ("new chat").
func (h *Handlers) DeleteSession(c *gin.Context) {
	if err := h.coord.NewChat(c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ResetSession clears a session's transcript in place.
func (h *Handlers) ResetSession(c *gin.Context) {
	if err := h.coord.Reset(c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// CancelStream tears down the session's active stream.
func (h *Handlers) CancelStream(c *gin.Context) {
	found := h.coord.Cancel(c.Param("id"))
	c.JSON(http.StatusOK, gin.H{
		"cancelled": found,
	})
}

// GenerateMealPlan requests a meal plan from the backend.
func (h *Handlers) GenerateMealPlan(c *gin.Context) {
	h.generatePlan(c, wellness.KindMeal, h.planner.GenerateMealPlan)
}

// GenerateWorkoutPlan requests a workout plan from the backend.
func (h *Handlers) GenerateWorkoutPlan(c *gin.Context) {
	h.generatePlan(c, wellness.KindWorkout, h.planner.GenerateWorkoutPlan)
}

func (h *Handlers) generatePlan(c *gin.Context, kind string, generate func(ctx context.Context, req types.PlanRequest) (types.PlanResponse, error)) {
	var req types.PlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := generate(c.Request.Context(), req)
	if err != nil {
		h.metrics.RecordPlan(kind, "error")
		h.fail(c, err)
		return
	}
	h.metrics.RecordPlan(kind, "success")
	c.JSON(http.StatusOK, resp)
}

// fail translates a classified error into an HTTP response.
func (h *Handlers) fail(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

// statusFor maps the error taxonomy onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errs.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, errs.ErrStreamActive):
		return http.StatusConflict
	}
	switch errs.KindOf(err) {
	case errs.KindValidation:
		return http.StatusBadRequest
	case errs.KindCancelled:
		return http.StatusConflict
	case errs.KindNetwork:
		return http.StatusServiceUnavailable
	case errs.KindServer, errs.KindProtocol:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
