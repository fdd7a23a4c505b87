package types

import "time"

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatType categorizes a conversation for backend prompt selection.
type ChatType string

const (
	ChatGeneral   ChatType = "general"
	ChatNutrition ChatType = "nutrition"
	ChatFitness   ChatType = "fitness"
	ChatWellness  ChatType = "wellness"
)

// Message is one finalized entry in a session's history.
// Instances are immutable once appended; in-progress assistant output
// lives in the stream handle buffer, never here.
type Message struct {
	ID             string    `json:"id"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
	Confidence     *float64  `json:"confidence_score,omitempty"`
	ResponseTimeMs *int64    `json:"response_time_ms,omitempty"`
	IsError        bool      `json:"is_error,omitempty"`
}

// SessionInfo is the externally visible summary of a chat session.
type SessionInfo struct {
	ID            string    `json:"id"`
	ChatType      ChatType  `json:"chat_type"`
	Title         string    `json:"title"`
	CreatedAt     time.Time `json:"created_at"`
	LastActivity  time.Time `json:"last_activity"`
	MessageCount  int       `json:"message_count"`
	AvgResponseMs float64   `json:"avg_response_time"`
	Streaming     bool      `json:"streaming"`
}

// StartChatRequest is the POST /chat/start payload.
type StartChatRequest struct {
	Message  string            `json:"message"`
	ChatType ChatType          `json:"chat_type"`
	Context  map[string]string `json:"context,omitempty"`
}

// AssistantPayload is a non-streamed assistant response as the backend
// returns it.
type AssistantPayload struct {
	MessageID      string   `json:"message_id"`
	Content        string   `json:"content"`
	Confidence     *float64 `json:"confidence_score,omitempty"`
	ResponseTimeMs *int64   `json:"response_time_ms,omitempty"`
}

// StartChatResponse is the POST /chat/start result.
type StartChatResponse struct {
	SessionID       string           `json:"session_id"`
	InitialResponse AssistantPayload `json:"initial_response"`
	SessionTitle    string           `json:"session_title"`
}

// StreamChatRequest is the POST /chat/stream payload.
type StreamChatRequest struct {
	SessionID string            `json:"session_id"`
	Message   string            `json:"message"`
	Context   map[string]string `json:"context,omitempty"`
}

// FeedbackRequest is the POST /chat/messages/{id}/add-feedback payload.
type FeedbackRequest struct {
	Rating   int    `json:"rating"`
	Feedback string `json:"feedback,omitempty"`
}

// PlanRequest asks the backend to generate a meal or workout plan.
type PlanRequest struct {
	Goals        []string          `json:"goals,omitempty"`
	Preferences  map[string]string `json:"preferences,omitempty"`
	DurationDays int               `json:"duration_days,omitempty"`
}

// PlanResponse is a generated plan, passed through opaque: plan
// structure belongs to the backend, not this service.
type PlanResponse struct {
	PlanID     string         `json:"plan_id"`
	Name       string         `json:"name"`
	Plan       map[string]any `json:"plan"`
	Confidence *float64       `json:"confidence_score,omitempty"`
}
