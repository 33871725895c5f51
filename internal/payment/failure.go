package payment

import (
	"context"
	"time"
)

// FailurePaymentRequest is the input to FailurePayment (spec §4.4), invoked
// by the webhook consumer.
type FailurePaymentRequest struct {
	Provider        Provider
	ProviderOrderID string
}

// FailurePayment implements spec §4.4's FailurePayment use case.
func (s *Service) FailurePayment(ctx context.Context, req FailurePaymentRequest) error {
	p, err := s.Store.GetByProviderOrderID(ctx, req.Provider, req.ProviderOrderID)
	if err != nil {
		return Wrap(KindInternal, err, "failure payment: lookup")
	}
	if p == nil {
		return NewError(KindNotFound, "failure payment: no payment for provider order %s", req.ProviderOrderID)
	}

	if p.Status == StatusFailed {
		return nil
	}
	if p.Status != StatusPending {
		return NewError(KindInvalidTransition, "failure payment: payment %s is %s", p.ID, p.Status)
	}

	now := time.Now().UTC()
	if session := p.SessionByProviderOrderID(req.ProviderOrderID); session != nil {
		if err := session.ApplySessionTransition(SessionFailed, now); err != nil {
			return err
		}
	}
	if err := p.ApplyTransition(StatusFailed, now); err != nil {
		return err
	}

	if err := s.Store.UpdatePayment(ctx, p); err != nil {
		return Wrap(KindInternal, err, "failure payment: persist")
	}

	return s.Publisher.PublishFailed(ctx, OrderPaymentFailed{
		Source:    "payment-service",
		PaymentID: p.ID,
		UserID:    p.UserID,
		OrderID:   p.OrderID,
		Provider:  req.Provider,
	})
}
