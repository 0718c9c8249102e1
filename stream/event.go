package stream

import (
	"context"

	"github.com/google/uuid"
)

// Event is one unit of traffic on the bus. Immutable once received: the
// producer owns it until enqueued, exactly one consumer owns it after.
type Event struct {
	ID            string `json:"id"`
	Type          string `json:"type"`
	CorrelationID string `json:"correlation_id,omitempty"`
	EntityID      string `json:"entity_id,omitempty"`
	Payload       []byte `json:"payload,omitempty"`
}

// NewEvent creates an event with a generated ID.
func NewEvent(eventType, entityID string, payload []byte) Event {
	return Event{
		ID:       uuid.NewString(),
		Type:     eventType,
		EntityID: entityID,
		Payload:  payload,
	}
}

// Ack is the bus response to a publish.
type Ack struct {
	EventID string `json:"event_id"`
	Message string `json:"message,omitempty"`
}

// Filter selects which events a subscription receives.
// An empty EventTypes list matches everything.
type Filter struct {
	EventTypes []string `json:"event_types,omitempty"`
}

// Subscription is a live event stream from the bus.
type Subscription interface {
	// Next blocks until an event arrives, the stream fails, or ctx is done.
	Next(ctx context.Context) (Event, error)

	// Close terminates the subscription.
	Close() error
}

// Bus is the narrow interface the client needs from the event bus
// collaborator.
type Bus interface {
	// Subscribe opens a long-lived event stream matching the filter.
	Subscribe(ctx context.Context, filter Filter) (Subscription, error)

	// Publish sends one event and returns the bus acknowledgement.
	Publish(ctx context.Context, event Event) (Ack, error)
}

// Handler processes one dequeued event. A handler error is logged and does
// not terminate the consumer that invoked it.
type Handler func(ctx context.Context, event Event) error
