package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/vitawell/companion/internal/chat/coordinator"
	"github.com/vitawell/companion/internal/infrastructure/monitoring"
	"github.com/vitawell/companion/internal/shared/errs"
)

// streamRequest is the POST body for an SSE exchange.
type streamRequest struct {
	Message string            `json:"message"`
	Context map[string]string `json:"context,omitempty"`
}

// StreamMessage runs one streamed exchange over server-sent events, for
// clients without a WebSocket. Each progress update becomes one SSE
// event; the response ends when the exchange resolves. Disconnecting
// cancels the exchange.
func (h *Handlers) StreamMessage(c *gin.Context) {
	sessionID := c.Param("id")
	var req streamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Buffered so a slow client never blocks the exchange worker.
	updates := make(chan coordinator.Progress, 64)
	started := time.Now()
	ex, err := h.coord.StreamExchange(c.Request.Context(), sessionID, req.Message, req.Context, func(p coordinator.Progress) {
		select {
		case updates <- p:
		default:
			h.logger.Warn("dropping progress update, client too slow",
				zap.String("session_id", sessionID))
		}
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Flush()

	clientGone := c.Request.Context().Done()
	for {
		select {
		case <-clientGone:
			h.coord.Cancel(sessionID)
			h.metrics.RecordExchange(monitoring.OutcomeCancelled, time.Since(started))
			return

		case p := <-updates:
			if done := h.writeProgress(c, p, started); done {
				return
			}

		case <-ex.Done():
			// Drain updates emitted before resolution.
			for {
				select {
				case p := <-updates:
					if done := h.writeProgress(c, p, started); done {
						return
					}
				default:
					// Resolved with no terminal update: cancelled.
					c.SSEvent("cancelled", gin.H{"stream_id": ex.StreamID})
					c.Writer.Flush()
					h.metrics.RecordExchange(monitoring.OutcomeCancelled, time.Since(started))
					return
				}
			}
		}
	}
}

// writeProgress emits one SSE event; reports whether it was terminal.
func (h *Handlers) writeProgress(c *gin.Context, p coordinator.Progress, started time.Time) bool {
	switch p := p.(type) {
	case coordinator.ChunkProgress:
		h.metrics.RecordChunk()
		c.SSEvent("chunk", gin.H{
			"message_id": p.MessageID,
			"content":    p.Content,
		})
		c.Writer.Flush()
		return false
	case coordinator.CompleteProgress:
		c.SSEvent("complete", p.Message)
		c.Writer.Flush()
		h.metrics.RecordExchange(monitoring.OutcomeComplete, time.Since(started))
		return true
	case coordinator.ErrorProgress:
		c.SSEvent("error", gin.H{
			"error": p.Err.Error(),
			"kind":  errs.KindOf(p.Err).String(),
		})
		c.Writer.Flush()
		h.metrics.RecordExchange(monitoring.OutcomeFailed, time.Since(started))
		return true
	default:
		return false
	}
}
