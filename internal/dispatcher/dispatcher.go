// Package dispatcher manages worker fan-out over the event queue.
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/assignment-webapp/internal/queue"
	"github.com/JakeFAU/assignment-webapp/internal/worker"
)

// Queue is the buffer workers drain and publishers fill.
type Queue interface {
	queue.Source
	Enqueue(ctx context.Context, data []byte) error
}

// Dispatcher fans out queue work to a pool of workers.
type Dispatcher struct {
	queue   Queue
	workers []*worker.Worker
}

// New creates a Dispatcher.
func New(q Queue, workers []*worker.Worker) *Dispatcher {
	return &Dispatcher{
		queue:   q,
		workers: workers,
	}
}

// NewPool creates a Dispatcher with size workers all feeding handler.
func NewPool(q Queue, handler queue.Handler, size int, logger *zap.Logger) *Dispatcher {
	if size < 1 {
		size = 1
	}
	workers := make([]*worker.Worker, 0, size)
	for i := 1; i <= size; i++ {
		workers = append(workers, worker.New(i, q, handler, logger))
	}
	return New(q, workers)
}

// Run starts all workers and blocks until they have all returned.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	wg.Wait()
}

// Enqueue proxies to the underlying queue.
func (d *Dispatcher) Enqueue(ctx context.Context, data []byte) error {
	if err := d.queue.Enqueue(ctx, data); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}
