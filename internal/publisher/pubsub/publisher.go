// Package pubsub implements a Google Cloud Pub/Sub submission event publisher.
package pubsub

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
	"go.opentelemetry.io/otel"

	"github.com/JakeFAU/assignment-webapp/internal/event"
	"github.com/JakeFAU/assignment-webapp/internal/telemetry"
)

// SubjectAttribute names the message attribute carrying event.Subject.
const SubjectAttribute = "subject"

// Publisher wraps a Pub/Sub topic handle.
type Publisher struct {
	topic *pubsub.Topic
}

// New creates a Publisher for the provided topic.
func New(topic *pubsub.Topic) *Publisher {
	return &Publisher{topic: topic}
}

// Publish encodes the event, attaches the subject and trace context, and
// blocks until the server acknowledges it.
func (p *Publisher) Publish(ctx context.Context, ev event.SubmissionEvent) (string, error) {
	if p.topic == nil {
		return "", fmt.Errorf("pubsub topic is not configured")
	}
	data, err := ev.Encode()
	if err != nil {
		return "", err
	}

	msg := &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{SubjectAttribute: event.Subject},
	}
	otel.GetTextMapPropagator().Inject(ctx, telemetry.AttributeCarrier(msg.Attributes))

	id, err := p.topic.Publish(ctx, msg).Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish message: %w", err)
	}
	return id, nil
}

// Stop flushes pending messages.
func (p *Publisher) Stop() {
	if p.topic != nil {
		p.topic.Stop()
	}
}
