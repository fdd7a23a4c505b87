package coordinator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/vitawell/companion/internal/chat/event"
	"github.com/vitawell/companion/internal/chat/queue"
	"github.com/vitawell/companion/internal/chat/registry"
	"github.com/vitawell/companion/internal/chat/session"
	"github.com/vitawell/companion/internal/shared/errs"
	"github.com/vitawell/companion/internal/shared/types"
)

// fakeTransport scripts backend behavior per test.
type fakeTransport struct {
	mu     sync.Mutex
	start  func() (types.StartChatResponse, error)
	stream func(onEvent func(event.Event)) error
	sent   []string
}

func (f *fakeTransport) Send(_ context.Context, endpoint string, _ any) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, endpoint)
	return []byte(`{}`), nil
}

func (f *fakeTransport) SendInto(_ context.Context, _ string, _, out any) error {
	resp, err := f.start()
	if err != nil {
		return err
	}
	*(out.(*types.StartChatResponse)) = resp
	return nil
}

func (f *fakeTransport) OpenStream(_ context.Context, _ string, _ any, onEvent func(event.Event)) error {
	return f.stream(onEvent)
}

func (f *fakeTransport) sentEndpoints() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func newTestCoordinator(t *testing.T, ft *fakeTransport) *Coordinator {
	t.Helper()
	return New(ft, session.NewManager(), registry.New(), queue.New(nil), nil)
}

// seedSession registers a session directly, skipping the start round trip.
func seedSession(c *Coordinator, id string) *session.Session {
	return c.Sessions().Create(id, types.ChatGeneral, "")
}

// recorder collects progress updates and signals each arrival.
type recorder struct {
	mu      sync.Mutex
	updates []Progress
	arrived chan Progress
}

func newRecorder() *recorder {
	return &recorder{arrived: make(chan Progress, 16)}
}

func (r *recorder) record(p Progress) {
	r.mu.Lock()
	r.updates = append(r.updates, p)
	r.mu.Unlock()
	r.arrived <- p
}

func (r *recorder) all() []Progress {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Progress(nil), r.updates...)
}

func waitMsg(t *testing.T, ex *Exchange) (types.Message, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return ex.Wait(ctx)
}

func chunk(s string) event.Event { return event.Chunk{MessageID: "m1", Content: s} }

func TestStartChatCreatesSession(t *testing.T) {
	conf := 0.92
	ft := &fakeTransport{
		start: func() (types.StartChatResponse, error) {
			return types.StartChatResponse{
				SessionID:    "sess_x",
				SessionTitle: "Saying hello",
				InitialResponse: types.AssistantPayload{
					MessageID:  "m0",
					Content:    "Hi there!",
					Confidence: &conf,
				},
			}, nil
		},
	}
	c := newTestCoordinator(t, ft)

	resp, err := c.StartChat(context.Background(), types.StartChatRequest{Message: "Hello"})
	if err != nil {
		t.Fatalf("StartChat failed: %v", err)
	}
	if resp.SessionID != "sess_x" || resp.InitialResponse.Content != "Hi there!" {
		t.Errorf("unexpected response: %+v", resp)
	}

	sess, ok := c.Sessions().Get("sess_x")
	if !ok {
		t.Fatal("session was not registered")
	}
	history := sess.Messages()
	if len(history) != 2 {
		t.Fatalf("expected user + assistant history, got %d messages", len(history))
	}
	if history[0].Role != types.RoleUser || history[0].Content != "Hello" {
		t.Errorf("unexpected user message: %+v", history[0])
	}
	if history[1].Role != types.RoleAssistant || history[1].Content != "Hi there!" {
		t.Errorf("unexpected assistant message: %+v", history[1])
	}
	if sess.Info().Title != "Saying hello" {
		t.Errorf("title lost: %+v", sess.Info())
	}
}

func TestStartChatBackendErrorCreatesNoSession(t *testing.T) {
	ft := &fakeTransport{
		start: func() (types.StartChatResponse, error) {
			return types.StartChatResponse{}, errs.New(errs.KindNetwork, "backend down")
		},
	}
	c := newTestCoordinator(t, ft)

	if _, err := c.StartChat(context.Background(), types.StartChatRequest{Message: "hi"}); errs.KindOf(err) != errs.KindNetwork {
		t.Fatalf("expected network error, got %v", err)
	}
	if c.Sessions().Len() != 0 {
		t.Error("failed start must not create a session")
	}
}

func TestStartChatEmptyMessage(t *testing.T) {
	c := newTestCoordinator(t, &fakeTransport{})
	if _, err := c.StartChat(context.Background(), types.StartChatRequest{}); err != errs.ErrEmptyMessage {
		t.Errorf("expected ErrEmptyMessage, got %v", err)
	}
}

func TestStreamExchangeConcatenatesChunks(t *testing.T) {
	ft := &fakeTransport{
		stream: func(onEvent func(event.Event)) error {
			onEvent(chunk("Once "))
			onEvent(chunk("upon "))
			onEvent(chunk("a time"))
			onEvent(event.Complete{MessageID: "m1"})
			return nil
		},
	}
	c := newTestCoordinator(t, ft)
	seedSession(c, "sess_1")
	rec := newRecorder()

	ex, err := c.StreamExchange(context.Background(), "sess_1", "Tell me a story", nil, rec.record)
	if err != nil {
		t.Fatalf("StreamExchange failed: %v", err)
	}
	msg, err := waitMsg(t, ex)
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if msg.Content != "Once upon a time" {
		t.Errorf("content: got %q", msg.Content)
	}
	if msg.ID != "m1" || msg.Role != types.RoleAssistant {
		t.Errorf("unexpected message: %+v", msg)
	}
	if msg.ResponseTimeMs == nil {
		t.Error("response time should be measured when the backend omits it")
	}

	updates := rec.all()
	if len(updates) != 4 {
		t.Fatalf("expected 3 chunks + completion, got %d: %+v", len(updates), updates)
	}
	wantFull := []string{"Once ", "Once upon ", "Once upon a time"}
	for i, want := range wantFull {
		cp, ok := updates[i].(ChunkProgress)
		if !ok || cp.FullContent != want {
			t.Errorf("update %d: got %+v, want accumulated %q", i, updates[i], want)
		}
	}
	done, ok := updates[3].(CompleteProgress)
	if !ok || done.Message.Content != "Once upon a time" {
		t.Errorf("last update should be completion, got %+v", updates[3])
	}

	sess, _ := c.Sessions().Get("sess_1")
	history := sess.Messages()
	if len(history) != 2 || history[1].Content != "Once upon a time" {
		t.Errorf("history not finalized: %+v", history)
	}
	if c.ActiveStreams() != 0 {
		t.Error("stream should be unregistered after completion")
	}
}

func TestCompletionCarriesTrailingContent(t *testing.T) {
	conf := 0.8
	ft := &fakeTransport{
		stream: func(onEvent func(event.Event)) error {
			onEvent(chunk("hi"))
			onEvent(event.Complete{MessageID: "m1", Content: "!", Metadata: event.Metadata{Confidence: &conf}})
			return nil
		},
	}
	c := newTestCoordinator(t, ft)
	seedSession(c, "sess_1")

	ex, _ := c.StreamExchange(context.Background(), "sess_1", "hey", nil, nil)
	msg, err := waitMsg(t, ex)
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if msg.Content != "hi!" {
		t.Errorf("trailing completion content lost: %q", msg.Content)
	}
	if msg.Confidence == nil || *msg.Confidence != 0.8 {
		t.Errorf("metadata lost: %+v", msg)
	}
}

func TestCancelMidStream(t *testing.T) {
	release := make(chan struct{})
	ft := &fakeTransport{
		stream: func(onEvent func(event.Event)) error {
			onEvent(chunk("par"))
			<-release
			onEvent(chunk("tial"))
			onEvent(event.Complete{MessageID: "m1"})
			return nil
		},
	}
	c := newTestCoordinator(t, ft)
	seedSession(c, "sess_1")
	rec := newRecorder()

	ex, err := c.StreamExchange(context.Background(), "sess_1", "hi", nil, rec.record)
	if err != nil {
		t.Fatalf("StreamExchange failed: %v", err)
	}

	<-rec.arrived // first chunk is out
	if !ex.Cancel() {
		t.Fatal("cancel should succeed while streaming")
	}
	if ex.Cancel() {
		t.Error("second cancel should report false")
	}
	close(release)

	if _, err := waitMsg(t, ex); !errs.IsCancelled(err) {
		t.Fatalf("expected cancelled exchange, got %v", err)
	}

	// Only the pre-cancel chunk was delivered; no terminal update.
	for _, p := range rec.all() {
		switch p.(type) {
		case CompleteProgress, ErrorProgress:
			t.Errorf("cancelled exchange must not emit terminal updates, got %+v", p)
		}
	}
	if n := len(rec.all()); n != 1 {
		t.Errorf("expected 1 delivered chunk, got %d", n)
	}

	sess, _ := c.Sessions().Get("sess_1")
	if got := len(sess.Messages()); got != 1 {
		t.Errorf("partial content must be discarded, history has %d messages", got)
	}
	if sess.Info().Streaming {
		t.Error("stream slot should be free after cancel")
	}
	if c.ActiveStreams() != 0 {
		t.Error("registry should be empty after cancel")
	}
}

func TestTransportErrorEmitsOneErrorUpdate(t *testing.T) {
	ft := &fakeTransport{
		stream: func(onEvent func(event.Event)) error {
			onEvent(chunk("par"))
			return errs.New(errs.KindNetwork, "connection reset")
		},
	}
	c := newTestCoordinator(t, ft)
	seedSession(c, "sess_1")
	rec := newRecorder()

	ex, _ := c.StreamExchange(context.Background(), "sess_1", "hi", nil, rec.record)
	if _, err := waitMsg(t, ex); errs.KindOf(err) != errs.KindNetwork {
		t.Fatalf("expected network error, got %v", err)
	}

	var errorUpdates int
	for _, p := range rec.all() {
		if _, ok := p.(ErrorProgress); ok {
			errorUpdates++
		}
	}
	if errorUpdates != 1 {
		t.Errorf("expected exactly one error update, got %d", errorUpdates)
	}

	sess, _ := c.Sessions().Get("sess_1")
	if len(sess.Messages()) != 1 {
		t.Error("failed exchange must not append assistant content")
	}
	if sess.Info().Streaming {
		t.Error("stream slot should be free after failure")
	}
}

func TestBackendFailureFrame(t *testing.T) {
	ft := &fakeTransport{
		stream: func(onEvent func(event.Event)) error {
			onEvent(event.Failure{Reason: "model timed out"})
			return nil
		},
	}
	c := newTestCoordinator(t, ft)
	seedSession(c, "sess_1")
	rec := newRecorder()

	ex, _ := c.StreamExchange(context.Background(), "sess_1", "hi", nil, rec.record)
	_, err := waitMsg(t, ex)
	if errs.KindOf(err) != errs.KindServer {
		t.Fatalf("expected server error, got %v", err)
	}
	if len(rec.all()) != 1 {
		t.Errorf("expected the single error update, got %+v", rec.all())
	}
}

func TestMissingCompletionMarkerIsProtocolError(t *testing.T) {
	ft := &fakeTransport{
		stream: func(onEvent func(event.Event)) error {
			onEvent(chunk("trunc"))
			return nil
		},
	}
	c := newTestCoordinator(t, ft)
	seedSession(c, "sess_1")

	ex, _ := c.StreamExchange(context.Background(), "sess_1", "hi", nil, nil)
	if _, err := waitMsg(t, ex); errs.KindOf(err) != errs.KindProtocol {
		t.Errorf("expected protocol error, got %v", err)
	}
}

func TestSecondExchangeRejectedWhileActive(t *testing.T) {
	release := make(chan struct{})
	ft := &fakeTransport{
		stream: func(onEvent func(event.Event)) error {
			<-release
			onEvent(event.Complete{MessageID: "m1"})
			return nil
		},
	}
	c := newTestCoordinator(t, ft)
	seedSession(c, "sess_1")

	ex1, err := c.StreamExchange(context.Background(), "sess_1", "first", nil, nil)
	if err != nil {
		t.Fatalf("first exchange rejected: %v", err)
	}
	if _, err := c.StreamExchange(context.Background(), "sess_1", "second", nil, nil); err != errs.ErrStreamActive {
		t.Fatalf("expected ErrStreamActive, got %v", err)
	}

	close(release)
	if _, err := waitMsg(t, ex1); err != nil {
		t.Fatalf("first exchange failed: %v", err)
	}
	if _, err := c.StreamExchange(context.Background(), "sess_1", "third", nil, nil); err != nil {
		t.Errorf("exchange after completion should be admitted, got %v", err)
	}
}

func TestExchangeAfterCancelAdmitted(t *testing.T) {
	release := make(chan struct{})
	ft := &fakeTransport{
		stream: func(onEvent func(event.Event)) error {
			<-release
			return nil
		},
	}
	c := newTestCoordinator(t, ft)
	seedSession(c, "sess_1")
	defer close(release)

	ex, _ := c.StreamExchange(context.Background(), "sess_1", "first", nil, nil)
	if !c.Cancel("sess_1") {
		t.Fatal("cancel by session id should find the stream")
	}
	if _, err := c.StreamExchange(context.Background(), "sess_1", "retry", nil, nil); err != nil {
		t.Errorf("cancelled slot should admit a new exchange, got %v", err)
	}
	_ = ex
}

func TestStreamExchangeValidation(t *testing.T) {
	c := newTestCoordinator(t, &fakeTransport{})
	seedSession(c, "sess_1")

	if _, err := c.StreamExchange(context.Background(), "sess_1", "", nil, nil); err != errs.ErrEmptyMessage {
		t.Errorf("expected ErrEmptyMessage, got %v", err)
	}
	if _, err := c.StreamExchange(context.Background(), "nope", "hi", nil, nil); err != errs.ErrSessionNotFound {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestAddFeedback(t *testing.T) {
	ft := &fakeTransport{}
	c := newTestCoordinator(t, ft)

	if err := c.AddFeedback(context.Background(), "m1", types.FeedbackRequest{Rating: 0}); errs.KindOf(err) != errs.KindValidation {
		t.Errorf("rating 0 should be rejected, got %v", err)
	}
	if err := c.AddFeedback(context.Background(), "m1", types.FeedbackRequest{Rating: 6}); errs.KindOf(err) != errs.KindValidation {
		t.Errorf("rating 6 should be rejected, got %v", err)
	}
	if err := c.AddFeedback(context.Background(), "", types.FeedbackRequest{Rating: 3}); errs.KindOf(err) != errs.KindValidation {
		t.Errorf("missing message id should be rejected, got %v", err)
	}

	if err := c.AddFeedback(context.Background(), "m1", types.FeedbackRequest{Rating: 5, Feedback: "great"}); err != nil {
		t.Fatalf("AddFeedback failed: %v", err)
	}
	sent := ft.sentEndpoints()
	if len(sent) != 1 || sent[0] != "/chat/messages/m1/add-feedback" {
		t.Errorf("unexpected endpoints: %v", sent)
	}
}

func TestResetCancelsAndClears(t *testing.T) {
	release := make(chan struct{})
	ft := &fakeTransport{
		stream: func(onEvent func(event.Event)) error {
			<-release
			return nil
		},
	}
	c := newTestCoordinator(t, ft)
	seedSession(c, "sess_1")
	defer close(release)

	c.StreamExchange(context.Background(), "sess_1", "hi", nil, nil)
	if err := c.Reset("sess_1"); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}

	sess, _ := c.Sessions().Get("sess_1")
	if len(sess.Messages()) != 0 || sess.Info().Streaming {
		t.Errorf("reset should clear history and stream slot: %+v", sess.Info())
	}
	if c.ActiveStreams() != 0 {
		t.Error("reset should cancel the registered stream")
	}
}

func TestNewChatDropsSession(t *testing.T) {
	c := newTestCoordinator(t, &fakeTransport{})
	seedSession(c, "sess_1")

	if err := c.NewChat("sess_1"); err != nil {
		t.Fatalf("NewChat failed: %v", err)
	}
	if _, ok := c.Sessions().Get("sess_1"); ok {
		t.Error("session should be gone")
	}
	if err := c.NewChat("sess_1"); err != errs.ErrSessionNotFound {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}
