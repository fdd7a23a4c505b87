// Package event defines the closed set of stream events the wellness
// backend can emit during one chat exchange, decoded into a tagged
// union so consumers switch exhaustively over concrete types instead
// of matching type strings.
package event

import (
	"strings"

	"github.com/bytedance/sonic"

	"github.com/vitawell/companion/internal/shared/errs"
)

// Event is one decoded stream frame: Chunk, Complete, or Failure.
type Event interface {
	isEvent()
}

// Chunk carries an incremental fragment of assistant text.
type Chunk struct {
	MessageID string
	Content   string
}

// Complete is the terminal marker for a successful stream. It may
// carry a trailing content fragment alongside the final metadata.
type Complete struct {
	MessageID string
	Content   string
	Metadata  Metadata
}

// Failure is a backend-reported error frame. It terminates the stream.
type Failure struct {
	Reason string
}

func (Chunk) isEvent()    {}
func (Complete) isEvent() {}
func (Failure) isEvent()  {}

// Metadata is the assistant-response metadata attached to the final
// event of a stream.
type Metadata struct {
	Confidence     *float64 `json:"confidence_score,omitempty"`
	ResponseTimeMs *int64   `json:"response_time_ms,omitempty"`
	Model          string   `json:"model,omitempty"`
}

// wire mirrors the backend's event shape: one JSON object per frame.
type wire struct {
	MessageID    string    `json:"message_id,omitempty"`
	ContentChunk *string   `json:"content_chunk,omitempty"`
	IsComplete   bool      `json:"is_complete"`
	Metadata     *Metadata `json:"metadata,omitempty"`
	Error        string    `json:"error,omitempty"`
}

// Decode parses one raw frame into an Event. A frame must be valid
// JSON and carry at least one of content_chunk, is_complete, or error;
// anything else is a protocol error.
func Decode(data []byte) (Event, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil, errs.New(errs.KindProtocol, "empty stream event")
	}

	var w wire
	if err := sonic.UnmarshalString(trimmed, &w); err != nil {
		return nil, errs.Wrap(errs.KindProtocol, err, "unparseable stream event")
	}

	switch {
	case w.Error != "":
		return Failure{Reason: w.Error}, nil
	case w.IsComplete:
		c := Complete{MessageID: w.MessageID}
		if w.ContentChunk != nil {
			c.Content = *w.ContentChunk
		}
		if w.Metadata != nil {
			c.Metadata = *w.Metadata
		}
		return c, nil
	case w.ContentChunk != nil:
		return Chunk{MessageID: w.MessageID, Content: *w.ContentChunk}, nil
	default:
		return nil, errs.New(errs.KindProtocol, "stream event carries no chunk, completion, or error")
	}
}
