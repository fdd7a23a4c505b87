package coordinator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vitawell/companion/internal/chat/event"
	"github.com/vitawell/companion/internal/chat/queue"
	"github.com/vitawell/companion/internal/chat/registry"
	"github.com/vitawell/companion/internal/chat/session"
	"github.com/vitawell/companion/internal/shared/errs"
	"github.com/vitawell/companion/internal/shared/types"
)

// Transport is the slice of the backend client the coordinator needs.
type Transport interface {
	Send(ctx context.Context, endpoint string, payload any) ([]byte, error)
	SendInto(ctx context.Context, endpoint string, payload, out any) error
	OpenStream(ctx context.Context, endpoint string, payload any, onEvent func(event.Event)) error
}

// Coordinator drives streamed chat exchanges end to end: it validates
// input, opens the session's stream slot, registers the stream, runs
// the transport call through the request queue, accumulates chunks,
// and resolves the exchange into exactly one finalized message or one
// error. Cancellation is cooperative: cancelling removes the stream
// from the registry and the in-flight transport call winds down on its
// own with its callbacks reduced to no-ops.
type Coordinator struct {
	transport Transport
	sessions  *session.Manager
	registry  *registry.Registry
	queue     *queue.Queue
	logger    *zap.Logger
}

// New wires a coordinator.
func New(transport Transport, sessions *session.Manager, reg *registry.Registry, q *queue.Queue, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		transport: transport,
		sessions:  sessions,
		registry:  reg,
		queue:     q,
		logger:    logger,
	}
}

// Sessions exposes the session manager for read-side handlers.
func (c *Coordinator) Sessions() *session.Manager { return c.sessions }

// ActiveStreams counts streams currently registered for delivery.
func (c *Coordinator) ActiveStreams() int { return c.registry.Len() }

// QueueDepth counts requests waiting behind the running one.
func (c *Coordinator) QueueDepth() int { return c.queue.Len() }

// StartChat opens a new conversation: one non-streamed round trip that
// returns the session id, a generated title, and the first assistant
// response. The session is registered locally before returning.
func (c *Coordinator) StartChat(ctx context.Context, req types.StartChatRequest) (types.StartChatResponse, error) {
	if req.Message == "" {
		return types.StartChatResponse{}, errs.ErrEmptyMessage
	}
	if req.ChatType == "" {
		req.ChatType = types.ChatGeneral
	}

	fut := c.queue.Enqueue(ctx, func(taskCtx context.Context) (any, error) {
		var resp types.StartChatResponse
		if err := c.transport.SendInto(taskCtx, "/chat/start", req, &resp); err != nil {
			return nil, err
		}
		return resp, nil
	}, queue.High)

	val, err := fut.Wait(ctx)
	if err != nil {
		return types.StartChatResponse{}, err
	}
	resp := val.(types.StartChatResponse)
	if resp.SessionID == "" {
		return types.StartChatResponse{}, errs.New(errs.KindProtocol, "chat start response carries no session id")
	}

	sess := c.sessions.Create(resp.SessionID, req.ChatType, resp.SessionTitle)
	sess.AppendUserMessage(req.Message)
	sess.AppendAssistant(resp.InitialResponse)

	c.logger.Info("chat session started",
		zap.String("session_id", resp.SessionID),
		zap.String("chat_type", string(req.ChatType)),
	)
	return resp, nil
}

// StreamExchange sends one user message on an existing session and
// streams the assistant's reply. It returns as soon as the exchange is
// admitted; progress arrives through onProgress and the final result
// through the returned handle's Wait.
//
// Exactly one terminal signal is produced per exchange: a
// CompleteProgress, an ErrorProgress, or neither when the exchange was
// cancelled. Chunks for a cancelled exchange stop immediately even if
// the transport call is still draining.
func (c *Coordinator) StreamExchange(ctx context.Context, sessionID, message string, msgCtx map[string]string, onProgress ProgressFunc) (*Exchange, error) {
	if message == "" {
		return nil, errs.ErrEmptyMessage
	}
	sess, ok := c.sessions.Get(sessionID)
	if !ok {
		return nil, errs.ErrSessionNotFound
	}
	if onProgress == nil {
		onProgress = func(Progress) {}
	}

	tok, err := sess.BeginAssistantStream()
	if err != nil {
		return nil, err
	}
	sess.AppendUserMessage(message)
	c.registry.Register(tok.StreamID)

	payload := types.StreamChatRequest{
		SessionID: sessionID,
		Message:   message,
		Context:   msgCtx,
	}

	fut := c.queue.Enqueue(ctx, func(taskCtx context.Context) (any, error) {
		msg, err := c.runExchange(taskCtx, sess, tok, payload, onProgress)
		return msg, err
	}, queue.High)

	return &Exchange{
		StreamID: tok.StreamID,
		future:   fut,
		cancel: func() bool {
			return c.cancelToken(sess, tok)
		},
	}, nil
}

// runExchange executes one streamed exchange on the queue worker.
func (c *Coordinator) runExchange(ctx context.Context, sess *session.Session, tok *session.StreamToken, payload types.StreamChatRequest, onProgress ProgressFunc) (types.Message, error) {
	// Cancelled while waiting in the queue: nothing was sent.
	if !c.registry.IsActive(tok.StreamID) {
		sess.DiscardAssistantStream(tok)
		return types.Message{}, errs.ErrCancelled
	}

	started := time.Now()
	var (
		buf       strings.Builder
		messageID string
		final     *event.Complete
		failed    *event.Failure
	)

	streamErr := c.transport.OpenStream(ctx, "/chat/stream", payload, func(ev event.Event) {
		// Registry membership gates delivery: once the stream is gone
		// the rest of the transport call is a silent drain.
		if !c.registry.IsActive(tok.StreamID) {
			return
		}
		switch ev := ev.(type) {
		case event.Chunk:
			buf.WriteString(ev.Content)
			if ev.MessageID != "" {
				messageID = ev.MessageID
			}
			onProgress(ChunkProgress{
				MessageID:   messageID,
				Content:     ev.Content,
				FullContent: buf.String(),
			})
		case event.Complete:
			buf.WriteString(ev.Content)
			if ev.MessageID != "" {
				messageID = ev.MessageID
			}
			ev := ev
			final = &ev
		case event.Failure:
			ev := ev
			failed = &ev
		}
	})

	// Claim the stream atomically. Losing the claim means a cancel
	// arrived first; the exchange resolves cancelled no matter what
	// the transport brought back.
	if !c.registry.Cancel(tok.StreamID) {
		sess.DiscardAssistantStream(tok)
		return types.Message{}, errs.ErrCancelled
	}

	fail := func(err error) (types.Message, error) {
		sess.DiscardAssistantStream(tok)
		c.logger.Warn("exchange failed",
			zap.String("stream_id", tok.StreamID),
			zap.Error(err),
		)
		onProgress(ErrorProgress{Err: err})
		return types.Message{}, err
	}

	switch {
	case streamErr != nil && errs.IsCancelled(streamErr):
		// Context cancellation is cooperative teardown, not a failure.
		sess.DiscardAssistantStream(tok)
		return types.Message{}, errs.ErrCancelled
	case streamErr != nil:
		return fail(streamErr)
	case failed != nil:
		return fail(errs.New(errs.KindServer, failed.Reason))
	case final == nil:
		return fail(errs.New(errs.KindProtocol, "stream ended without a completion marker"))
	}

	meta := final.Metadata
	if meta.ResponseTimeMs == nil {
		elapsed := time.Since(started).Milliseconds()
		meta.ResponseTimeMs = &elapsed
	}
	msg, err := sess.FinalizeAssistantMessage(tok, messageID, buf.String(), meta)
	if err != nil {
		// The slot was torn down underneath us, e.g. by a reset.
		return fail(err)
	}

	c.logger.Debug("exchange completed",
		zap.String("stream_id", tok.StreamID),
		zap.Int("content_len", len(msg.Content)),
	)
	onProgress(CompleteProgress{Message: msg})
	return msg, nil
}

// Cancel tears down the session's active stream, if any. Reports
// whether there was one to cancel. The in-flight transport call is not
// aborted; its callbacks become no-ops and the partial content is
// discarded.
func (c *Coordinator) Cancel(sessionID string) bool {
	sess, ok := c.sessions.Get(sessionID)
	if !ok {
		return false
	}
	tok := sess.StreamingToken()
	if tok == nil {
		return false
	}
	return c.cancelToken(sess, tok)
}

func (c *Coordinator) cancelToken(sess *session.Session, tok *session.StreamToken) bool {
	if !c.registry.Cancel(tok.StreamID) {
		return false
	}
	sess.DiscardAssistantStream(tok)
	c.logger.Info("stream cancelled", zap.String("stream_id", tok.StreamID))
	return true
}

// Reset clears a session's history, cancelling any active stream first.
func (c *Coordinator) Reset(sessionID string) error {
	sess, ok := c.sessions.Get(sessionID)
	if !ok {
		return errs.ErrSessionNotFound
	}
	if tok := sess.StreamingToken(); tok != nil {
		c.cancelToken(sess, tok)
	}
	sess.Reset()
	return nil
}

// NewChat discards a session entirely, cancelling any active stream.
func (c *Coordinator) NewChat(sessionID string) error {
	sess, ok := c.sessions.Get(sessionID)
	if !ok {
		return errs.ErrSessionNotFound
	}
	if tok := sess.StreamingToken(); tok != nil {
		c.cancelToken(sess, tok)
	}
	c.sessions.Delete(sessionID)
	return nil
}

// AddFeedback forwards a user rating for one assistant message.
func (c *Coordinator) AddFeedback(ctx context.Context, messageID string, req types.FeedbackRequest) error {
	if messageID == "" {
		return errs.New(errs.KindValidation, "message id required")
	}
	if req.Rating < 1 || req.Rating > 5 {
		return errs.Newf(errs.KindValidation, "rating must be between 1 and 5, got %d", req.Rating)
	}
	endpoint := fmt.Sprintf("/chat/messages/%s/add-feedback", messageID)
	_, err := c.transport.Send(ctx, endpoint, req)
	return err
}
