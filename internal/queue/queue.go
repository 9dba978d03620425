// Package queue provides a FIFO, rate-limited, single-concurrency dispatcher
// for provider calls. All LLM traffic funnels through one Queue so no two
// provider calls ever execute concurrently.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultRateLimit is the fallback maximum number of calls per minute.
const DefaultRateLimit = 20

// ExecuteFunc is a unit of work dispatched by the queue.
type ExecuteFunc func(ctx context.Context) (any, error)

// Result carries the outcome of a queued execution.
type Result struct {
	Value any
	Err   error
}

type item struct {
	ctx     context.Context
	execute ExecuteFunc
	result  chan Result
}

// Queue executes submitted work strictly in submission order, one item at a
// time, spacing dispatches so throughput stays at or below the rate limit.
// The spacing interval is measured from completion of the previous item, not
// from enqueue. Failures are isolated per item and never stop the queue.
// Retries are the caller's responsibility.
type Queue struct {
	mu          sync.Mutex
	items       []*item
	dispatching bool
	interval    time.Duration
	logger      zerolog.Logger
	closed      bool
}

// New creates a queue capped at rateLimit calls per minute.
func New(rateLimit int, logger zerolog.Logger) *Queue {
	if rateLimit <= 0 {
		rateLimit = DefaultRateLimit
	}
	return &Queue{
		interval: time.Minute / time.Duration(rateLimit),
		logger:   logger.With().Str("component", "request-queue").Logger(),
	}
}

// Enqueue appends fn to the queue and blocks until it has executed,
// returning its result. The context cancels waiting, not execution of
// items already in flight.
func (q *Queue) Enqueue(ctx context.Context, fn ExecuteFunc) (any, error) {
	select {
	case res := <-q.EnqueueAsync(ctx, fn):
		return res.Value, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// EnqueueAsync appends fn to the queue and returns a channel that receives
// exactly one Result when the item completes.
func (q *Queue) EnqueueAsync(ctx context.Context, fn ExecuteFunc) <-chan Result {
	it := &item{
		ctx:     ctx,
		execute: fn,
		result:  make(chan Result, 1),
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		it.result <- Result{Err: context.Canceled}
		return it.result
	}
	q.items = append(q.items, it)
	pending := len(q.items)
	shouldDispatch := !q.dispatching
	if shouldDispatch {
		q.dispatching = true
	}
	q.mu.Unlock()

	q.logger.Debug().Int("pending", pending).Msg("Request queued")

	if shouldDispatch {
		go q.dispatchLoop()
	}

	return it.result
}

// Len returns the number of items waiting for dispatch.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close rejects all pending items and stops accepting new ones.
func (q *Queue) Close() {
	q.mu.Lock()
	pending := q.items
	q.items = nil
	q.closed = true
	q.mu.Unlock()

	for _, it := range pending {
		it.result <- Result{Err: context.Canceled}
	}
}

func (q *Queue) dispatchLoop() {
	for {
		q.mu.Lock()
		if len(q.items) == 0 || q.closed {
			q.dispatching = false
			q.mu.Unlock()
			return
		}
		it := q.items[0]
		q.items = q.items[1:]
		q.mu.Unlock()

		q.run(it)

		// Space the next dispatch from completion of this one so
		// throughput never exceeds the per-minute cap.
		time.Sleep(q.interval)
	}
}

func (q *Queue) run(it *item) {
	// Skip work whose caller already gave up.
	if err := it.ctx.Err(); err != nil {
		it.result <- Result{Err: err}
		return
	}

	start := time.Now()
	value, err := it.execute(it.ctx)
	if err != nil {
		q.logger.Warn().Err(err).Dur("took", time.Since(start)).Msg("Queued request failed")
	} else {
		q.logger.Debug().Dur("took", time.Since(start)).Msg("Queued request completed")
	}

	it.result <- Result{Value: value, Err: err}
}
