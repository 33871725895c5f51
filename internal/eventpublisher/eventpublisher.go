// Package eventpublisher adapts pkg/events.Bus into the payment.EventPublisher
// port, keying lifecycle events by user ID and provider events by provider
// name per spec §5/§6.
package eventpublisher

import (
	"context"
	"encoding/json"

	"github.com/crosslogic/payment-orchestrator/internal/payment"
	"github.com/crosslogic/payment-orchestrator/pkg/events"
	"github.com/google/uuid"
)

// Publisher implements payment.EventPublisher over an in-process events.Bus.
type Publisher struct {
	bus *events.Bus
}

func New(bus *events.Bus) *Publisher {
	return &Publisher{bus: bus}
}

func (p *Publisher) PublishInitiated(ctx context.Context, ev payment.OrderPaymentInitiated) error {
	return p.bus.Publish(ctx, events.NewEvent(uuid.NewString(), events.EventOrderPaymentInitiated, ev.UserID, ev))
}

func (p *Publisher) PublishSucceeded(ctx context.Context, ev payment.OrderPaymentSucceeded) error {
	return p.bus.Publish(ctx, events.NewEvent(uuid.NewString(), events.EventOrderPaymentSucceeded, ev.UserID, ev))
}

func (p *Publisher) PublishFailed(ctx context.Context, ev payment.OrderPaymentFailed) error {
	return p.bus.Publish(ctx, events.NewEvent(uuid.NewString(), events.EventOrderPaymentFailed, ev.UserID, ev))
}

func (p *Publisher) PublishTimeout(ctx context.Context, ev payment.OrderPaymentTimeout) error {
	return p.bus.Publish(ctx, events.NewEvent(uuid.NewString(), events.EventOrderPaymentTimeout, ev.UserID, ev))
}

func (p *Publisher) PublishProviderEvent(ctx context.Context, ev payment.ProviderEvent) error {
	return p.bus.Publish(ctx, events.NewEvent(uuid.NewString(), events.EventProviderEvents, string(ev.Provider), ev))
}

// decodeProviderEvent is a small helper the webhook consumer uses to recover
// a strongly-typed payment.ProviderEvent from an events.Event payload, since
// the in-process bus carries interface{} rather than wire bytes.
func decodeProviderEvent(payload interface{}) (payment.ProviderEvent, bool) {
	if ev, ok := payload.(payment.ProviderEvent); ok {
		return ev, true
	}
	// Defensive path: if the payload arrived as raw JSON (e.g. a future
	// out-of-process bus implementation), decode it the same way.
	raw, ok := payload.(json.RawMessage)
	if !ok {
		return payment.ProviderEvent{}, false
	}
	var ev payment.ProviderEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return payment.ProviderEvent{}, false
	}
	return ev, true
}

// DecodeProviderEvent is exported for internal/webhookingress's consumer.
func DecodeProviderEvent(payload interface{}) (payment.ProviderEvent, bool) {
	return decodeProviderEvent(payload)
}
