package dispatch

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// DefaultQueueSize is the number of pending updates a queue holds before dropping.
const DefaultQueueSize = 100

// Queue is a bounded FIFO between a latency-sensitive producer and one consumer
// goroutine. Offer never blocks: when the buffer is full the event is dropped.
type Queue[E any] struct {
	name    string
	logger  *slog.Logger
	ch      chan E
	dropped atomic.Uint64
}

// NewQueue creates a queue holding up to size events.
func NewQueue[E any](name string, size int, logger *slog.Logger) *Queue[E] {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue[E]{
		name:   name,
		logger: logger,
		ch:     make(chan E, size),
	}
}

// Offer enqueues an event, returning false if it was dropped.
func (q *Queue[E]) Offer(event E) bool {
	select {
	case q.ch <- event:
		return true
	default:
		n := q.dropped.Add(1)
		q.logger.Warn("update queue full, dropping update",
			"queue", q.name,
			"dropped", n)
		return false
	}
}

// C exposes the receive side for consumers that need to select on other channels too.
func (q *Queue[E]) C() <-chan E {
	return q.ch
}

// Run drains the queue, calling handle for each event in order, until ctx is done.
func (q *Queue[E]) Run(ctx context.Context, handle func(E)) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-q.ch:
			handle(e)
		}
	}
}

// Discard empties any pending events without handling them.
func (q *Queue[E]) Discard() {
	for {
		select {
		case <-q.ch:
		default:
			return
		}
	}
}

// Len returns the number of pending events.
func (q *Queue[E]) Len() int {
	return len(q.ch)
}

// Dropped returns how many events have been dropped since creation.
func (q *Queue[E]) Dropped() uint64 {
	return q.dropped.Load()
}
