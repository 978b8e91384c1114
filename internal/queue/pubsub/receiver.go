// Package pubsub feeds submission events from a Pub/Sub subscription to a
// queue.Handler.
package pubsub

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/JakeFAU/assignment-webapp/internal/event"
	"github.com/JakeFAU/assignment-webapp/internal/queue"
	"github.com/JakeFAU/assignment-webapp/internal/telemetry"
)

// SubjectAttribute names the message attribute carrying event.Subject.
const SubjectAttribute = "subject"

// Receiver pulls messages from a subscription.
type Receiver struct {
	sub     *pubsub.Subscription
	handler queue.Handler
	logger  *zap.Logger
}

// New creates a Receiver. maxOutstanding bounds concurrent invocations;
// zero keeps the client default.
func New(sub *pubsub.Subscription, handler queue.Handler, maxOutstanding int, logger *zap.Logger) *Receiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxOutstanding > 0 {
		sub.ReceiveSettings.MaxOutstandingMessages = maxOutstanding
	}
	return &Receiver{sub: sub, handler: handler, logger: logger.Named("receiver")}
}

// Run blocks until ctx is canceled or the subscription fails. Every message
// is acked after handling; there is no redelivery on failure.
func (r *Receiver) Run(ctx context.Context) error {
	err := r.sub.Receive(ctx, func(ctx context.Context, m *pubsub.Message) {
		defer m.Ack()
		r.handle(ctx, m)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("receive from %s: %w", r.sub.ID(), err)
	}
	return nil
}

func (r *Receiver) handle(ctx context.Context, m *pubsub.Message) {
	logger := r.logger.With(zap.String("message_id", m.ID))
	if subject, ok := m.Attributes[SubjectAttribute]; ok && subject != event.Subject {
		logger.Info("ignoring message with foreign subject", zap.String("subject", subject))
		return
	}
	if m.Attributes != nil {
		ctx = otel.GetTextMapPropagator().Extract(ctx, telemetry.AttributeCarrier(m.Attributes))
	}
	if err := r.handler.Handle(ctx, m.Data); err != nil {
		if errors.Is(err, event.ErrMalformed) {
			logger.Warn("dropped malformed message", zap.Error(err))
			return
		}
		logger.Error("message handling failed", zap.Error(err))
	}
}
