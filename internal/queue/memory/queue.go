// Package memory provides the bounded in-process unit queue.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/jadwal-sholat-crawler/internal/crawler"
)

// ErrClosed is returned once the queue is closed and drained.
var ErrClosed = crawler.ErrQueueClosed

// Queue is a bounded in-memory queue with context-aware operations.
// Only the producer may call Close, after its last Enqueue.
type Queue struct {
	ch      chan crawler.Unit
	closeMu sync.Mutex
	closed  bool
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue{
		ch: make(chan crawler.Unit, capacity),
	}
}

// Enqueue pushes a unit into the queue or returns if the context ends.
func (q *Queue) Enqueue(ctx context.Context, unit crawler.Unit) error {
	q.closeMu.Lock()
	closed := q.closed
	q.closeMu.Unlock()
	if closed {
		return ErrClosed
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- unit:
		return nil
	}
}

// Dequeue pops the next unit. A canceled context wins over pending units.
func (q *Queue) Dequeue(ctx context.Context) (crawler.Unit, error) {
	if err := ctx.Err(); err != nil {
		return crawler.Unit{}, fmt.Errorf("dequeue canceled: %w", err)
	}
	select {
	case <-ctx.Done():
		return crawler.Unit{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case unit, ok := <-q.ch:
		if !ok {
			return crawler.Unit{}, ErrClosed
		}
		return unit, nil
	}
}

// Len reports the number of buffered units.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close closes the underlying channel. Buffered units can still be dequeued.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
