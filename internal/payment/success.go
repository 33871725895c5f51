package payment

import (
	"context"
	"time"
)

// SuccessPaymentRequest is the input to SuccessPayment (spec §4.4), invoked
// by the webhook consumer. It carries no caller idempotency key: the
// provider event ID already makes the webhook consumer's dispatch idempotent
// (§4.5), and SuccessPayment's own status check makes repeat calls a no-op.
type SuccessPaymentRequest struct {
	Provider        Provider
	ProviderOrderID string
}

// SuccessPayment implements spec §4.4's SuccessPayment use case.
func (s *Service) SuccessPayment(ctx context.Context, req SuccessPaymentRequest) error {
	p, err := s.Store.GetByProviderOrderID(ctx, req.Provider, req.ProviderOrderID)
	if err != nil {
		return Wrap(KindInternal, err, "success payment: lookup")
	}
	if p == nil {
		return NewError(KindNotFound, "success payment: no payment for provider order %s", req.ProviderOrderID)
	}

	if p.Status == StatusSuccess {
		return nil // idempotent no-op, no re-publish
	}
	if p.Status != StatusPending && p.Status != StatusResolved {
		return NewError(KindInvalidTransition, "success payment: payment %s is %s", p.ID, p.Status)
	}

	now := time.Now().UTC()
	if session := p.SessionByProviderOrderID(req.ProviderOrderID); session != nil {
		if err := session.ApplySessionTransition(SessionCaptured, now); err != nil {
			return err
		}
	}
	if err := p.ApplyTransition(StatusSuccess, now); err != nil {
		return err
	}

	if err := s.Store.UpdatePayment(ctx, p); err != nil {
		return Wrap(KindInternal, err, "success payment: persist")
	}

	return s.Publisher.PublishSucceeded(ctx, OrderPaymentSucceeded{
		Source:    "payment-service",
		PaymentID: p.ID,
		UserID:    p.UserID,
		OrderID:   p.OrderID,
		Provider:  req.Provider,
	})
}
