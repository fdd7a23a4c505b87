package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/vitawell/companion/internal/chat/coordinator"
	"github.com/vitawell/companion/internal/infrastructure/monitoring"
	"github.com/vitawell/companion/internal/shared/errs"
	"github.com/vitawell/companion/internal/shared/types"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Origin policy is enforced by the CORS layer in front.
		return true
	},
}

// maxContextEntries bounds the per-message context map.
const maxContextEntries = 32

// frame is one inbound client message.
type frame struct {
	Type      string            `json:"type"`
	SessionID string            `json:"session_id,omitempty"`
	Message   string            `json:"message,omitempty"`
	ChatType  types.ChatType    `json:"chat_type,omitempty"`
	Context   map[string]string `json:"context,omitempty"`
}

// conn serializes writes: progress updates arrive from the queue worker
// while the read loop answers pings, and gorilla connections allow only
// one concurrent writer.
type conn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (c *conn) send(data any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(data)
}

// Handler bridges WebSocket clients to the chat coordinator.
type Handler struct {
	coord   *coordinator.Coordinator
	metrics *monitoring.Metrics
	logger  *zap.Logger
}

// NewHandler creates a WebSocket handler.
func NewHandler(coord *coordinator.Coordinator, metrics *monitoring.Metrics, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{coord: coord, metrics: metrics, logger: logger}
}

// HandleConnection upgrades the request and runs the message loop.
func (h *Handler) HandleConnection(c *gin.Context) {
	raw, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer raw.Close()

	h.metrics.WSConnections.Inc()
	defer h.metrics.WSConnections.Dec()

	wc := &conn{ws: raw}
	wc.send(gin.H{
		"type":    "system",
		"message": "connected to companion",
	})

	reqCtx := c.Request.Context()
	for {
		var msg frame
		if err := raw.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("websocket read error", zap.Error(err))
			}
			return
		}
		h.metrics.RecordWSMessage("in", msg.Type)

		switch msg.Type {
		case "start":
			h.handleStart(reqCtx, wc, msg)
		case "chat":
			h.handleChat(reqCtx, wc, msg)
		case "cancel":
			h.handleCancel(wc, msg)
		case "ping":
			h.reply(wc, gin.H{"type": "pong"})
		default:
			h.sendError(wc, "unknown message type")
		}
	}
}

// handleStart opens a new session with the first message.
func (h *Handler) handleStart(ctx context.Context, wc *conn, msg frame) {
	resp, err := h.coord.StartChat(ctx, types.StartChatRequest{
		Message:  msg.Message,
		ChatType: msg.ChatType,
		Context:  msg.Context,
	})
	if err != nil {
		h.sendError(wc, err.Error())
		return
	}
	h.reply(wc, gin.H{
		"type":             "session_started",
		"session_id":       resp.SessionID,
		"session_title":    resp.SessionTitle,
		"initial_response": resp.InitialResponse,
		"timestamp":        time.Now().Unix(),
	})
}

// handleChat starts a streamed exchange and returns to the read loop;
// chunks flow to the client from the exchange worker so cancel frames
// stay deliverable mid-stream.
func (h *Handler) handleChat(ctx context.Context, wc *conn, msg frame) {
	if len(msg.Context) > maxContextEntries {
		h.sendError(wc, "context too large")
		return
	}

	started := time.Now()
	ex, err := h.coord.StreamExchange(ctx, msg.SessionID, msg.Message, msg.Context, func(p coordinator.Progress) {
		switch p := p.(type) {
		case coordinator.ChunkProgress:
			h.metrics.RecordChunk()
			h.reply(wc, gin.H{
				"type":       "chunk",
				"message_id": p.MessageID,
				"content":    p.Content,
				"timestamp":  time.Now().Unix(),
			})
		case coordinator.CompleteProgress:
			h.reply(wc, gin.H{
				"type":      "complete",
				"message":   p.Message,
				"timestamp": time.Now().Unix(),
			})
		case coordinator.ErrorProgress:
			h.sendError(wc, p.Err.Error())
		}
	})
	if err != nil {
		h.sendError(wc, err.Error())
		return
	}

	h.reply(wc, gin.H{
		"type":       "stream_started",
		"stream_id":  ex.StreamID,
		"session_id": msg.SessionID,
	})

	go func() {
		<-ex.Done()
		_, err := ex.Wait(context.Background())
		outcome := monitoring.OutcomeComplete
		switch {
		case errs.IsCancelled(err):
			outcome = monitoring.OutcomeCancelled
		case err != nil:
			outcome = monitoring.OutcomeFailed
		}
		h.metrics.RecordExchange(outcome, time.Since(started))
	}()
}

func (h *Handler) handleCancel(wc *conn, msg frame) {
	cancelled := h.coord.Cancel(msg.SessionID)
	h.reply(wc, gin.H{
		"type":       "cancelled",
		"session_id": msg.SessionID,
		"found":      cancelled,
		"timestamp":  time.Now().Unix(),
	})
}

func (h *Handler) reply(wc *conn, data gin.H) {
	if err := wc.send(data); err != nil {
		h.logger.Debug("websocket write failed", zap.Error(err))
		return
	}
	if t, ok := data["type"].(string); ok {
		h.metrics.RecordWSMessage("out", t)
	}
}

func (h *Handler) sendError(wc *conn, msg string) {
	h.reply(wc, gin.H{
		"type":      "error",
		"message":   msg,
		"timestamp": time.Now().Unix(),
	})
}
