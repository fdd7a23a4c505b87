package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vitawell/companion/internal/shared/id"
)

// Priority orders queued work. Higher values run first; requests with
// equal priority run in enqueue order.
type Priority int

const (
	Low Priority = iota
	Normal
	High
)

// String returns the priority name.
func (p Priority) String() string {
	switch p {
	case High:
		return "high"
	case Normal:
		return "normal"
	case Low:
		return "low"
	default:
		return "unknown"
	}
}

// Task is one unit of queued work. It runs with the context captured
// at enqueue time.
type Task func(ctx context.Context) (any, error)

// Future resolves exactly once with the task's result.
type Future struct {
	done chan struct{}
	val  any
	err  error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) resolve(val any, err error) {
	f.val = val
	f.err = err
	close(f.done)
}

// Done returns a channel closed when the result is available.
func (f *Future) Done() <-chan struct{} { return f.done }

// Wait blocks for the result or for ctx.
func (f *Future) Wait(ctx context.Context) (any, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-f.done:
		return f.val, f.err
	}
}

// item is one queued request with its enqueue ordering key.
type item struct {
	id       string
	task     Task
	ctx      context.Context
	future   *Future
	enqueued time.Time
}

// Queue serializes requests against a single logical worker. One task
// runs at a time; the draining flag acts as a single-permit lock around
// the drain loop, so an Enqueue that lands mid-drain appends and
// returns without starting a second loop.
type Queue struct {
	mu         sync.Mutex
	items      [High + 1][]*item
	draining   bool
	closed     bool
	maxPending int
	logger     *zap.Logger
}

// New creates an empty, unbounded queue.
func New(logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{logger: logger}
}

// NewBounded creates a queue that rejects enqueues once maxPending
// requests are waiting. maxPending <= 0 means unbounded.
func NewBounded(logger *zap.Logger, maxPending int) *Queue {
	q := New(logger)
	q.maxPending = maxPending
	return q
}

// Enqueue adds a task and returns its future. The drain loop is started
// only if no drain is in progress.
func (q *Queue) Enqueue(ctx context.Context, task Task, p Priority) *Future {
	if p < Low || p > High {
		p = Normal
	}

	it := &item{
		id:       id.NewRequest(),
		task:     task,
		ctx:      ctx,
		future:   newFuture(),
		enqueued: time.Now(),
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		it.future.resolve(nil, fmt.Errorf("queue closed"))
		return it.future
	}
	if q.maxPending > 0 && q.waitingLocked() >= q.maxPending {
		q.mu.Unlock()
		it.future.resolve(nil, fmt.Errorf("queue full: %d requests waiting", q.maxPending))
		return it.future
	}
	q.items[p] = append(q.items[p], it)
	start := !q.draining
	if start {
		q.draining = true
	}
	q.mu.Unlock()

	if start {
		go q.drain()
	}
	return it.future
}

// Len reports the number of waiting requests (the running one excluded).
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.waitingLocked()
}

func (q *Queue) waitingLocked() int {
	n := 0
	for _, bucket := range q.items {
		n += len(bucket)
	}
	return n
}

// Close rejects all future enqueues. Waiting items still drain.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
}

// drain pops and runs items until the queue is empty, then releases
// the permit. Exactly one drain runs at a time.
func (q *Queue) drain() {
	for {
		it := q.pop()
		if it == nil {
			return
		}
		q.run(it)
	}
}

// pop removes the highest-priority oldest item, or releases the drain
// permit and returns nil when nothing is waiting.
func (q *Queue) pop() *item {
	q.mu.Lock()
	defer q.mu.Unlock()
	for p := High; p >= Low; p-- {
		if len(q.items[p]) > 0 {
			it := q.items[p][0]
			q.items[p] = q.items[p][1:]
			return it
		}
	}
	q.draining = false
	return nil
}

// run executes one item, containing panics so a failing request never
// poisons the queue.
func (q *Queue) run(it *item) {
	if err := it.ctx.Err(); err != nil {
		it.future.resolve(nil, err)
		return
	}

	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("queued request panicked",
				zap.String("request_id", it.id),
				zap.Any("panic", r),
			)
			it.future.resolve(nil, fmt.Errorf("request panicked: %v", r))
		}
	}()

	val, err := it.task(it.ctx)
	it.future.resolve(val, err)
}
