// Package events publishes domain events to the configured bus.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/malistore/api/internal/platform/textutil"
	"github.com/malistore/api/internal/services"
)

// Envelope is the JSON body shared by every publisher.
type Envelope struct {
	Type       string         `json:"type"`
	OrderID    string         `json:"orderId,omitempty"`
	PaymentID  string         `json:"paymentId,omitempty"`
	ActorID    string         `json:"actorId,omitempty"`
	OccurredAt time.Time      `json:"occurredAt"`
	Data       map[string]any `json:"data,omitempty"`
}

func newEnvelope(event services.DomainEvent) Envelope {
	occurred := event.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now()
	}
	return Envelope{
		Type:       event.Type,
		OrderID:    event.OrderID,
		PaymentID:  event.PaymentID,
		ActorID:    event.ActorID,
		OccurredAt: occurred.UTC(),
		Data:       event.Data,
	}
}

func encode(event services.DomainEvent) ([]byte, error) {
	data, err := json.Marshal(newEnvelope(event))
	if err != nil {
		return nil, fmt.Errorf("marshal %s event: %w", event.Type, err)
	}
	return data, nil
}

// attributes are the routing headers consumers filter on without decoding the body.
func attributes(event services.DomainEvent) map[string]string {
	return textutil.Attributes(map[string]string{
		"type":      event.Type,
		"orderId":   event.OrderID,
		"paymentId": event.PaymentID,
	})
}
