// Package worker drains queued submission events into the consumer.
package worker

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/assignment-webapp/internal/event"
	"github.com/JakeFAU/assignment-webapp/internal/metrics"
	"github.com/JakeFAU/assignment-webapp/internal/queue"
)

// Worker consumes queue items and hands them to a handler.
type Worker struct {
	id      int
	source  queue.Source
	handler queue.Handler
	logger  *zap.Logger
}

// New constructs a Worker.
func New(id int, source queue.Source, handler queue.Handler, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		id:      id,
		source:  source,
		handler: handler,
		logger:  logger.Named("worker").With(zap.Int("worker_id", id)),
	}
}

// Run blocks, consuming queue items until the context finishes or the
// source closes.
func (w *Worker) Run(ctx context.Context) {
	for {
		data, err := w.source.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, queue.ErrClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.process(ctx, data)
	}
}

func (w *Worker) process(ctx context.Context, data []byte) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("event handler panicked", zap.Any("panic", r))
		}
	}()

	if err := w.handler.Handle(ctx, data); err != nil {
		if errors.Is(err, event.ErrMalformed) {
			w.logger.Warn("dropped malformed event", zap.Error(err), zap.Int("bytes", len(data)))
			return
		}
		w.logger.Error("event handling failed", zap.Error(fmt.Errorf("worker %d: %w", w.id, err)))
	}
}
