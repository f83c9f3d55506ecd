package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	"rideshare/internal/domain"
)

// Sender publishes raw message bodies under a routing key.
type Sender interface {
	Publish(ctx context.Context, routingKey string, body []byte) error
}

// EventPublisher sends reservation events to the topic exchange so other
// services (mailers, dashboards) can follow reservation lifecycles.
type EventPublisher struct {
	sender Sender
}

// NewEventPublisher creates a new EventPublisher.
func NewEventPublisher(sender Sender) *EventPublisher {
	return &EventPublisher{sender: sender}
}

// RoutingKey returns the topic under which an event is published, e.g.
// "reservation.status.accepted".
func RoutingKey(event domain.ReservationEvent) string {
	return "reservation.status." + string(event.To)
}

// Publish sends one event.
func (p *EventPublisher) Publish(ctx context.Context, event domain.ReservationEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal reservation event: %w", err)
	}

	if err := p.sender.Publish(ctx, RoutingKey(event), body); err != nil {
		return fmt.Errorf("publish %s: %w", event.ReservationID, err)
	}
	return nil
}
