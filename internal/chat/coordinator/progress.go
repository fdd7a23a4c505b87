package coordinator

import (
	"context"
	"errors"

	"github.com/vitawell/companion/internal/chat/queue"
	"github.com/vitawell/companion/internal/shared/errs"
	"github.com/vitawell/companion/internal/shared/types"
)

// Progress is one update on a streamed exchange: ChunkProgress,
// CompleteProgress, or ErrorProgress.
type Progress interface {
	isProgress()
}

// ChunkProgress carries one incremental fragment plus the text
// accumulated so far, concatenated in arrival order.
type ChunkProgress struct {
	MessageID   string
	Content     string
	FullContent string
}

// CompleteProgress carries the finalized assistant message. It is the
// last update for its exchange.
type CompleteProgress struct {
	Message types.Message
}

// ErrorProgress reports a failed exchange. Cancelled exchanges produce
// no ErrorProgress; silence is the cancellation signal.
type ErrorProgress struct {
	Err error
}

func (ChunkProgress) isProgress()    {}
func (CompleteProgress) isProgress() {}
func (ErrorProgress) isProgress()    {}

// ProgressFunc receives updates for one exchange. It is called from
// the queue worker goroutine, never concurrently, and never after the
// exchange resolves.
type ProgressFunc func(Progress)

// Exchange is the handle for one in-flight streamed exchange.
type Exchange struct {
	StreamID string
	future   *queue.Future
	cancel   func() bool
}

// Cancel tears the exchange down. Reports whether it was still
// cancellable; false means it had already resolved or been cancelled.
func (e *Exchange) Cancel() bool { return e.cancel() }

// Done returns a channel closed when the exchange resolves.
func (e *Exchange) Done() <-chan struct{} { return e.future.Done() }

// Wait blocks until the exchange resolves and returns the finalized
// assistant message. A cancelled exchange returns ErrCancelled.
func (e *Exchange) Wait(ctx context.Context) (types.Message, error) {
	val, err := e.future.Wait(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return types.Message{}, errs.ErrCancelled
		}
		return types.Message{}, err
	}
	return val.(types.Message), nil
}
