package event

import (
	"testing"

	"github.com/vitawell/companion/internal/shared/errs"
)

func TestDecodeChunk(t *testing.T) {
	ev, err := Decode([]byte(`{"message_id":"m1","content_chunk":"Once ","is_complete":false}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	chunk, ok := ev.(Chunk)
	if !ok {
		t.Fatalf("expected Chunk, got %T", ev)
	}
	if chunk.MessageID != "m1" || chunk.Content != "Once " {
		t.Errorf("unexpected chunk: %+v", chunk)
	}
}

func TestDecodeEmptyChunkIsStillChunk(t *testing.T) {
	// A present-but-empty content_chunk is a valid zero-length fragment.
	ev, err := Decode([]byte(`{"content_chunk":"","is_complete":false}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if _, ok := ev.(Chunk); !ok {
		t.Fatalf("expected Chunk, got %T", ev)
	}
}

func TestDecodeComplete(t *testing.T) {
	raw := `{"message_id":"m1","content_chunk":"a time","is_complete":true,` +
		`"metadata":{"confidence_score":0.92,"response_time_ms":340}}`
	ev, err := Decode([]byte(raw))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	done, ok := ev.(Complete)
	if !ok {
		t.Fatalf("expected Complete, got %T", ev)
	}
	if done.Content != "a time" {
		t.Errorf("trailing content lost: %+v", done)
	}
	if done.Metadata.Confidence == nil || *done.Metadata.Confidence != 0.92 {
		t.Errorf("confidence lost: %+v", done.Metadata)
	}
	if done.Metadata.ResponseTimeMs == nil || *done.Metadata.ResponseTimeMs != 340 {
		t.Errorf("response time lost: %+v", done.Metadata)
	}
}

func TestDecodeFailureWinsOverComplete(t *testing.T) {
	// The backend sets is_complete on its error frames too.
	ev, err := Decode([]byte(`{"error":"model overloaded","is_complete":true}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	fail, ok := ev.(Failure)
	if !ok {
		t.Fatalf("expected Failure, got %T", ev)
	}
	if fail.Reason != "model overloaded" {
		t.Errorf("unexpected reason: %q", fail.Reason)
	}
}

func TestDecodeMalformed(t *testing.T) {
	for _, raw := range []string{"", "   ", "{not json", `{"message_id":"m1"}`} {
		_, err := Decode([]byte(raw))
		if err == nil {
			t.Errorf("Decode(%q) should fail", raw)
			continue
		}
		if errs.KindOf(err) != errs.KindProtocol {
			t.Errorf("Decode(%q) should be a protocol error, got %v", raw, err)
		}
	}
}
