package webhookingress

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/crosslogic/payment-orchestrator/internal/eventpublisher"
	"github.com/crosslogic/payment-orchestrator/internal/payment"
	"github.com/crosslogic/payment-orchestrator/pkg/events"
)

const processedEventTTL = 30 * 24 * time.Hour

// dispatchTable maps (provider, providerEventType) to the use case the
// consumer invokes (spec §4.5).
var dispatchTable = map[payment.Provider]map[string]string{
	payment.ProviderStripe: {
		"checkout.session.completed":    "success",
		"payment_intent.succeeded":      "success",
		"payment_intent.payment_failed": "failure",
	},
	payment.ProviderPayPal: {
		"PAYMENT.CAPTURE.COMPLETED": "success",
		"PAYMENT.CAPTURE.DENIED":    "failure",
		"PAYMENT.CAPTURE.FAILED":    "failure",
	},
	payment.ProviderRazorpay: {
		"payment.captured": "success",
		"order.paid":       "success",
		"payment.failed":   "failure",
		"order.failed":     "failure",
	},
}

// Consumer subscribes to the provider-events bus topic and drives
// SuccessPayment/FailurePayment per the dispatch table, deduping via the
// processed-event cache (spec §4.5).
type Consumer struct {
	Service   *payment.Service
	Processed payment.ProcessedEventCache
	Logger    *zap.Logger
}

// Register wires the consumer onto the bus's provider-events topic.
func (c *Consumer) Register(bus *events.Bus) {
	bus.Subscribe(events.EventProviderEvents, c.handle)
}

func (c *Consumer) handle(ctx context.Context, event events.Event) error {
	ev, ok := eventpublisher.DecodeProviderEvent(event.Payload)
	if !ok {
		c.Logger.Warn("webhook consumer: failed to decode provider event payload")
		return nil
	}

	already, err := c.Processed.IsProcessed(ctx, ev.Provider, ev.ProviderEventID)
	if err != nil {
		return err
	}
	if already {
		c.Logger.Debug("webhook consumer: event already processed, skipping",
			zap.String("provider", string(ev.Provider)), zap.String("event_id", ev.ProviderEventID))
		return nil
	}

	action, ok := dispatchTable[ev.Provider][ev.ProviderEventType]
	if !ok {
		c.Logger.Debug("webhook consumer: no dispatch mapping, ignoring",
			zap.String("provider", string(ev.Provider)), zap.String("type", ev.ProviderEventType))
		return nil
	}

	var dispatchErr error
	switch action {
	case "success":
		dispatchErr = c.Service.SuccessPayment(ctx, payment.SuccessPaymentRequest{
			Provider:        ev.Provider,
			ProviderOrderID: providerOrderIDOf(ev),
		})
	case "failure":
		dispatchErr = c.Service.FailurePayment(ctx, payment.FailurePaymentRequest{
			Provider:        ev.Provider,
			ProviderOrderID: providerOrderIDOf(ev),
		})
	}

	if dispatchErr != nil {
		c.Logger.Error("webhook consumer: dispatch failed, leaving event unprocessed for redelivery",
			zap.String("provider", string(ev.Provider)), zap.String("event_id", ev.ProviderEventID), zap.Error(dispatchErr))
		return dispatchErr
	}

	if err := c.Processed.MarkProcessed(ctx, ev.Provider, ev.ProviderEventID, processedEventTTL); err != nil {
		c.Logger.Error("webhook consumer: failed to mark event processed", zap.Error(err))
	}
	return nil
}

// providerOrderIDOf recovers the provider order ID the use cases key
// lookups on (payment.Store.GetByProviderOrderID). Every ingress handler
// normalizes this onto ProviderPaymentID regardless of which object shape
// the provider's webhook actually carries; ev.OrderID is reserved for the
// merchant order id when the provider surfaces it.
func providerOrderIDOf(ev payment.ProviderEvent) string {
	return ev.ProviderPaymentID
}
