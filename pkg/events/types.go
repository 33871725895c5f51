package events

import "time"

// EventType represents the type of event being published.
type EventType string

const (
	EventOrderPaymentInitiated EventType = "payment.order.initiated.v1"
	EventOrderPaymentSucceeded EventType = "payment.order.succeeded.v1"
	EventOrderPaymentFailed    EventType = "payment.order.failed.v1"
	EventOrderPaymentTimeout   EventType = "payment.order.timeout.v1"
	EventProviderEvents        EventType = "payment.provider-events.v1"
)

// Event is a single envelope on the bus. Every outbound envelope carries an
// eventId, eventType, source, timestamp and payload (spec §6); Key is the
// partition key (user ID for lifecycle events, provider name for provider
// events) giving per-key FIFO across partitions.
type Event struct {
	ID        string
	Type      EventType
	Source    string
	Key       string
	Timestamp time.Time
	Payload   interface{}
}

// NewEvent builds an Event envelope, stamping Source and Timestamp the way
// every outbound event in this service must (spec §9 resolves the teacher's
// inconsistent omission of source on one event variant).
func NewEvent(id string, eventType EventType, key string, payload interface{}) Event {
	return Event{
		ID:        id,
		Type:      eventType,
		Source:    "payment-service",
		Key:       key,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}
