// Package memory contains an in-memory submission event publisher for tests
// and single-process runs.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/assignment-webapp/internal/event"
)

// Sink receives every event after it is recorded.
type Sink interface {
	Enqueue(ctx context.Context, data []byte) error
}

// Publisher stores published events for inspection and optionally forwards
// the encoded payload to a Sink.
type Publisher struct {
	mu     sync.RWMutex
	events []event.SubmissionEvent
	sink   Sink
	err    error
}

// New returns a memory Publisher. sink may be nil.
func New(sink Sink) *Publisher {
	return &Publisher{sink: sink}
}

// FailWith makes subsequent Publish calls return err. Pass nil to reset.
func (p *Publisher) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// Publish records the event and returns a pseudo ID.
func (p *Publisher) Publish(ctx context.Context, ev event.SubmissionEvent) (string, error) {
	data, err := ev.Encode()
	if err != nil {
		return "", err
	}
	p.mu.Lock()
	if p.err != nil {
		err := p.err
		p.mu.Unlock()
		return "", fmt.Errorf("publish message: %w", err)
	}
	p.events = append(p.events, ev)
	id := fmt.Sprintf("memory-%d", len(p.events))
	sink := p.sink
	p.mu.Unlock()

	if sink != nil {
		if err := sink.Enqueue(ctx, data); err != nil {
			return "", fmt.Errorf("forward event: %w", err)
		}
	}
	return id, nil
}

// Events returns the recorded publishes.
func (p *Publisher) Events() []event.SubmissionEvent {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]event.SubmissionEvent, len(p.events))
	copy(out, p.events)
	return out
}
