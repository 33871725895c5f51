package payment

import (
	"context"
	"time"
)

// HandlePaymentTimeout implements spec §4.4's HandlePaymentTimeout use case.
// It is reached both by the primary keyspace-expiration listener and the
// safety-net sweeper (internal/timeoutsvc); the PENDING check makes the two
// paths idempotent with each other.
func (s *Service) HandlePaymentTimeout(ctx context.Context, paymentID string) error {
	p, err := s.Store.GetByID(ctx, paymentID)
	if err != nil {
		return Wrap(KindInternal, err, "handle timeout: lookup %s", paymentID)
	}
	if p == nil {
		return NewError(KindNotFound, "handle timeout: no payment %s", paymentID)
	}
	if p.Status != StatusPending {
		return nil // already resolved or finalized by another path
	}

	now := time.Now().UTC()
	if err := p.ApplyTransition(StatusExpired, now); err != nil {
		return err
	}
	if err := s.Store.UpdatePayment(ctx, p); err != nil {
		return Wrap(KindInternal, err, "handle timeout: persist")
	}

	return s.Publisher.PublishTimeout(ctx, OrderPaymentTimeout{
		Source:    "payment-service",
		PaymentID: p.ID,
		UserID:    p.UserID,
		OrderID:   p.OrderID,
	})
}
