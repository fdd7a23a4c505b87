package session

import (
	"sync"
	"time"

	"github.com/vitawell/companion/internal/chat/event"
	"github.com/vitawell/companion/internal/shared/errs"
	"github.com/vitawell/companion/internal/shared/id"
	"github.com/vitawell/companion/internal/shared/types"
)

// StreamToken proves ownership of the session's single open assistant
// stream. Only the holder may finalize or discard.
type StreamToken struct {
	StreamID string
	Seq      uint64
}

// Session is one conversation: an ordered message history plus at most
// one open assistant stream. All mutation goes through its methods;
// the coordinator is the only caller of the finalize/discard mutators.
type Session struct {
	mu           sync.Mutex
	id           string
	chatType     types.ChatType
	title        string
	createdAt    time.Time
	lastActivity time.Time
	messages     []types.Message
	open         *StreamToken
	streamSeq    uint64

	responseCount   int
	totalResponseMs int64
}

func newSession(sessionID string, chatType types.ChatType, title string) *Session {
	now := time.Now()
	return &Session{
		id:           sessionID,
		chatType:     chatType,
		title:        title,
		createdAt:    now,
		lastActivity: now,
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// AppendUserMessage records user input as a finalized message.
func (s *Session) AppendUserMessage(content string) (types.Message, error) {
	if content == "" {
		return types.Message{}, errs.ErrEmptyMessage
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	msg := types.Message{
		ID:        id.NewMessage(),
		Role:      types.RoleUser,
		Content:   content,
		CreatedAt: time.Now(),
	}
	s.messages = append(s.messages, msg)
	s.lastActivity = msg.CreatedAt
	return msg, nil
}

// AppendAssistant records a finalized, non-streamed assistant response,
// e.g. the initial response from /chat/start.
func (s *Session) AppendAssistant(payload types.AssistantPayload) types.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgID := payload.MessageID
	if msgID == "" {
		msgID = id.NewMessage()
	}
	msg := types.Message{
		ID:             msgID,
		Role:           types.RoleAssistant,
		Content:        payload.Content,
		CreatedAt:      time.Now(),
		Confidence:     payload.Confidence,
		ResponseTimeMs: payload.ResponseTimeMs,
	}
	s.appendAssistantLocked(msg)
	return msg
}

// BeginAssistantStream opens the session's streaming slot and returns
// the token for it. At most one stream may be open; a second Begin
// while one is open returns ErrStreamActive.
func (s *Session) BeginAssistantStream() (*StreamToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.open != nil {
		return nil, errs.ErrStreamActive
	}
	s.streamSeq++
	tok := &StreamToken{
		StreamID: id.NewStream(s.id, s.streamSeq),
		Seq:      s.streamSeq,
	}
	s.open = tok
	return tok, nil
}

// FinalizeAssistantMessage closes the stream held by tok and appends
// the accumulated content as a finalized assistant message. A stale or
// foreign token is a precondition violation.
func (s *Session) FinalizeAssistantMessage(tok *StreamToken, messageID, content string, meta event.Metadata) (types.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.open == nil || s.open.StreamID != tok.StreamID {
		return types.Message{}, errs.Newf(errs.KindValidation, "finalize with stale stream token %s", tok.StreamID)
	}

	if messageID == "" {
		messageID = id.NewMessage()
	}
	msg := types.Message{
		ID:             messageID,
		Role:           types.RoleAssistant,
		Content:        content,
		CreatedAt:      time.Now(),
		Confidence:     meta.Confidence,
		ResponseTimeMs: meta.ResponseTimeMs,
	}
	s.appendAssistantLocked(msg)
	s.open = nil
	return msg, nil
}

// DiscardAssistantStream closes the stream held by tok without
// touching the history. Partial content is dropped.
func (s *Session) DiscardAssistantStream(tok *StreamToken) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.open != nil && s.open.StreamID == tok.StreamID {
		s.open = nil
	}
}

// StreamingToken returns the open stream's token, or nil.
func (s *Session) StreamingToken() *StreamToken {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

// Reset clears the history and any open stream slot. The transcript is
// gone; the session id and type survive.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
	s.open = nil
	s.responseCount = 0
	s.totalResponseMs = 0
	s.lastActivity = time.Now()
}

// Messages returns a copy of the finalized history in insertion order.
func (s *Session) Messages() []types.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Info summarizes the session.
func (s *Session) Info() types.SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	info := types.SessionInfo{
		ID:           s.id,
		ChatType:     s.chatType,
		Title:        s.title,
		CreatedAt:    s.createdAt,
		LastActivity: s.lastActivity,
		MessageCount: len(s.messages),
		Streaming:    s.open != nil,
	}
	if s.responseCount > 0 {
		info.AvgResponseMs = float64(s.totalResponseMs) / float64(s.responseCount)
	}
	return info
}

func (s *Session) appendAssistantLocked(msg types.Message) {
	s.messages = append(s.messages, msg)
	s.lastActivity = msg.CreatedAt
	if msg.ResponseTimeMs != nil {
		s.responseCount++
		s.totalResponseMs += *msg.ResponseTimeMs
	}
}
