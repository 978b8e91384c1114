// Package memory provides an in-process event queue for single-binary runs.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/assignment-webapp/internal/queue"
)

// Queue is a bounded in-memory queue with context-aware operations.
type Queue struct {
	ch      chan []byte
	closeMu sync.RWMutex
	closed  bool
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	return &Queue{
		ch: make(chan []byte, capacity),
	}
}

// Enqueue pushes a payload into the queue or returns if the context ends.
func (q *Queue) Enqueue(ctx context.Context, data []byte) error {
	q.closeMu.RLock()
	defer q.closeMu.RUnlock()
	if q.closed {
		return queue.ErrClosed
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- append([]byte(nil), data...):
		return nil
	}
}

// Dequeue pops the next payload, respecting context cancellation.
func (q *Queue) Dequeue(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case data, ok := <-q.ch:
		if !ok {
			return nil, queue.ErrClosed
		}
		return data, nil
	}
}

// Len reports the number of buffered payloads.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close closes the underlying channel for shutdown. Dequeue keeps returning
// buffered payloads and reports ErrClosed once the buffer is empty.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
