// Package webhookingress implements the three provider webhook HTTP
// endpoints and the consumer that dispatches normalized ProviderEvents into
// the payment use cases (spec §4.5). Handler wiring follows the teacher's
// gateway.go: plain http.HandlerFunc methods mounted on a chi router by the
// caller, raw-body reads, structured zap logging per request.
package webhookingress

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/crosslogic/payment-orchestrator/internal/payment"
	"github.com/crosslogic/payment-orchestrator/internal/providers/paypal"
	"github.com/crosslogic/payment-orchestrator/internal/providers/razorpay"
	"github.com/crosslogic/payment-orchestrator/internal/providers/stripe"
	"github.com/crosslogic/payment-orchestrator/pkg/metrics"
)

var stripeAllowList = map[string]bool{
	"checkout.session.completed": true,
	"payment_intent.succeeded":   true,
	"payment_intent.payment_failed": true,
	"charge.refunded":            true,
}

var razorpayAllowList = map[string]bool{
	"payment.captured":      true,
	"payment.failed":        true,
	"order.paid":            true,
	"refund.processed":      true,
	"subscription.charged":  true,
}

var paypalAllowList = map[string]bool{
	"PAYMENT.CAPTURE.COMPLETED": true,
	"PAYMENT.CAPTURE.DENIED":    true,
	"PAYMENT.CAPTURE.FAILED":    true,
}

// Handler serves the three provider webhook endpoints.
type Handler struct {
	Stripe    *stripe.Adapter
	PayPal    *paypal.Adapter
	Razorpay  *razorpay.Adapter
	Publisher payment.EventPublisher
	Logger    *zap.Logger
}

// HandleStripe handles POST /api/webhooks/stripe.
func (h *Handler) HandleStripe(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.Logger.Warn("webhook: stripe: failed to read body", zap.Error(err))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	event, err := h.Stripe.ConstructEvent(body, r.Header.Get("stripe-signature"))
	if err != nil {
		h.Logger.Info("webhook: stripe: signature verification failed", zap.Error(err))
		metrics.WebhookIngress.WithLabelValues("stripe", "signature_invalid").Inc()
		w.WriteHeader(http.StatusOK)
		return
	}

	if !stripeAllowList[string(event.Type)] {
		h.Logger.Info("webhook: stripe: event type not in allow-list", zap.String("type", string(event.Type)))
		metrics.WebhookIngress.WithLabelValues("stripe", "ignored").Inc()
		w.WriteHeader(http.StatusOK)
		return
	}

	// The webhook object is a Checkout Session for checkout.session.completed
	// but a PaymentIntent for payment_intent.*; CreateSession tags the
	// PaymentIntent's metadata with the originating checkout session id so
	// both event shapes resolve to the same provider order id here.
	var obj struct {
		ID       string `json:"id"`
		Metadata struct {
			OrderID           string `json:"orderId"`
			CheckoutSessionID string `json:"checkoutSessionId"`
		} `json:"metadata"`
	}
	_ = json.Unmarshal(event.Data.Raw, &obj)

	providerOrderID := obj.ID
	if obj.Metadata.CheckoutSessionID != "" {
		providerOrderID = obj.Metadata.CheckoutSessionID
	}

	ev := payment.ProviderEvent{
		Provider:          payment.ProviderStripe,
		ProviderEventID:   event.ID,
		ProviderEventType: string(event.Type),
		ProviderPaymentID: providerOrderID,
		OrderID:           obj.Metadata.OrderID,
		OccurredAt:        time.Unix(event.Created, 0).UTC(),
		Raw:               body,
	}

	h.publish(w, r, "stripe", ev)
}

// HandlePayPal handles POST /api/webhooks/paypal.
func (h *Handler) HandlePayPal(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.Logger.Warn("webhook: paypal: failed to read body", zap.Error(err))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	headers := map[string]string{
		"paypal-auth-algo":         r.Header.Get("paypal-auth-algo"),
		"paypal-cert-url":          r.Header.Get("paypal-cert-url"),
		"paypal-transmission-id":   r.Header.Get("paypal-transmission-id"),
		"paypal-transmission-sig":  r.Header.Get("paypal-transmission-sig"),
		"paypal-transmission-time": r.Header.Get("paypal-transmission-time"),
	}

	verified, err := h.PayPal.VerifyWebhookSignature(r.Context(), body, headers)
	if err != nil || !verified {
		h.Logger.Info("webhook: paypal: signature verification failed", zap.Error(err))
		metrics.WebhookIngress.WithLabelValues("paypal", "signature_invalid").Inc()
		w.WriteHeader(http.StatusOK)
		return
	}

	var envelope struct {
		ID           string `json:"id"`
		EventType    string `json:"event_type"`
		CreateTime   string `json:"create_time"`
		Resource struct {
			ID                 string `json:"id"`
			CustomID           string `json:"custom_id"`
			SupplementaryData struct {
				RelatedIDs struct {
					OrderID string `json:"order_id"`
				} `json:"related_ids"`
			} `json:"supplementary_data"`
		} `json:"resource"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		h.Logger.Warn("webhook: paypal: failed to parse body", zap.Error(err))
		w.WriteHeader(http.StatusOK)
		return
	}

	if !paypalAllowList[envelope.EventType] {
		h.Logger.Info("webhook: paypal: event type not in allow-list", zap.String("type", envelope.EventType))
		metrics.WebhookIngress.WithLabelValues("paypal", "ignored").Inc()
		w.WriteHeader(http.StatusOK)
		return
	}

	occurredAt, parseErr := time.Parse(time.RFC3339, envelope.CreateTime)
	if parseErr != nil {
		occurredAt = time.Now().UTC()
	}

	// related_ids.order_id is the PayPal order id this capture belongs to —
	// the same id CreateSession stored as the session's provider order id.
	providerOrderID := envelope.Resource.SupplementaryData.RelatedIDs.OrderID

	ev := payment.ProviderEvent{
		Provider:          payment.ProviderPayPal,
		ProviderEventID:   envelope.ID,
		ProviderEventType: envelope.EventType,
		ProviderPaymentID: providerOrderID,
		OrderID:           envelope.Resource.CustomID,
		OccurredAt:        occurredAt,
		Raw:               body,
	}

	h.publish(w, r, "paypal", ev)
}

// HandleRazorpay handles POST /api/webhooks/razorpay.
func (h *Handler) HandleRazorpay(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.Logger.Warn("webhook: razorpay: failed to read body", zap.Error(err))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if !h.Razorpay.VerifyWebhookSignature(body, r.Header.Get("x-razorpay-signature")) {
		h.Logger.Info("webhook: razorpay: signature verification failed")
		metrics.WebhookIngress.WithLabelValues("razorpay", "signature_invalid").Inc()
		w.WriteHeader(http.StatusOK)
		return
	}

	var envelope struct {
		Event   string                     `json:"event"`
		Payload map[string]json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		h.Logger.Warn("webhook: razorpay: failed to parse body", zap.Error(err))
		w.WriteHeader(http.StatusOK)
		return
	}

	if !razorpayAllowList[envelope.Event] {
		h.Logger.Info("webhook: razorpay: event type not in allow-list", zap.String("type", envelope.Event))
		metrics.WebhookIngress.WithLabelValues("razorpay", "ignored").Inc()
		w.WriteHeader(http.StatusOK)
		return
	}

	_, orderID := extractRazorpayIDs(envelope.Payload)

	ev := payment.ProviderEvent{
		Provider:          payment.ProviderRazorpay,
		ProviderEventID:   uuid.NewString(), // Razorpay events carry no top-level event id
		ProviderEventType: envelope.Event,
		ProviderPaymentID: orderID, // the razorpay order id, same as CreateSession's stored provider order id
		OccurredAt:        time.Now().UTC(),
		Raw:               body,
	}

	h.publish(w, r, "razorpay", ev)
}

func extractRazorpayIDs(payload map[string]json.RawMessage) (paymentID, orderID string) {
	if raw, ok := payload["payment"]; ok {
		var wrapper struct {
			Entity struct {
				ID      string `json:"id"`
				OrderID string `json:"order_id"`
			} `json:"entity"`
		}
		if err := json.Unmarshal(raw, &wrapper); err == nil {
			paymentID = wrapper.Entity.ID
			orderID = wrapper.Entity.OrderID
		}
	}
	if orderID == "" {
		if raw, ok := payload["order"]; ok {
			var wrapper struct {
				Entity struct {
					ID string `json:"id"`
				} `json:"entity"`
			}
			if err := json.Unmarshal(raw, &wrapper); err == nil {
				orderID = wrapper.Entity.ID
			}
		}
	}
	return paymentID, orderID
}

// publish dispatches the normalized event to the provider-events bus topic
// and always returns 200: the webhook sender should never retry on our
// internal publish failures once the signature has verified (spec §4.5
// treats invalid-input rejection and downstream-dispatch failure asymmetrically,
// but both return 200 here since the bus redelivery path, not HTTP retry, is
// the recovery mechanism for the latter).
func (h *Handler) publish(w http.ResponseWriter, r *http.Request, provider string, ev payment.ProviderEvent) {
	if err := h.Publisher.PublishProviderEvent(r.Context(), ev); err != nil {
		h.Logger.Error("webhook: failed to publish provider event",
			zap.String("provider", provider), zap.String("event_id", ev.ProviderEventID), zap.Error(err))
		metrics.WebhookIngress.WithLabelValues(provider, "publish_failed").Inc()
		w.WriteHeader(http.StatusOK)
		return
	}
	metrics.WebhookIngress.WithLabelValues(provider, "accepted").Inc()
	w.WriteHeader(http.StatusOK)
}
