package events

import (
	"context"

	"github.com/malistore/api/internal/services"
)

// LogPublisher writes events to the structured log. It is the default for local runs.
type LogPublisher struct {
	logger func(ctx context.Context, event string, fields map[string]any)
}

var _ services.EventPublisher = LogPublisher{}

func NewLogPublisher(logger func(ctx context.Context, event string, fields map[string]any)) LogPublisher {
	return LogPublisher{logger: logger}
}

func (p LogPublisher) PublishEvent(ctx context.Context, event services.DomainEvent) error {
	if p.logger == nil {
		return nil
	}
	env := newEnvelope(event)
	p.logger(ctx, "event.published", map[string]any{
		"type":       env.Type,
		"orderId":    env.OrderID,
		"paymentId":  env.PaymentID,
		"actorId":    env.ActorID,
		"occurredAt": env.OccurredAt,
		"data":       env.Data,
	})
	return nil
}
