// Package queue defines how encoded submission events reach the consumer.
// Events arrive either from an in-process channel or from a Pub/Sub
// subscription; both hand raw payloads to a Handler.
package queue

import (
	"context"
	"errors"
)

// ErrClosed is returned by Dequeue after the source shut down.
var ErrClosed = errors.New("queue closed")

// Handler processes one encoded event.
type Handler interface {
	Handle(ctx context.Context, data []byte) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, data []byte) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, data []byte) error {
	return f(ctx, data)
}

// Source yields queued payloads one at a time.
type Source interface {
	Dequeue(ctx context.Context) ([]byte, error)
}
