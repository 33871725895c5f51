package payment

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// CancelPaymentRequest is the input to CancelPayment (spec §4.4).
type CancelPaymentRequest struct {
	Provider        Provider
	ProviderOrderID string
	Reason          string
	IdempotencyKey  string
}

// CancelPaymentResult is returned to the caller.
type CancelPaymentResult struct {
	PaymentID string
	Status    Status
}

// CancelPayment implements spec §4.4's CancelPayment use case.
func (s *Service) CancelPayment(ctx context.Context, req CancelPaymentRequest) (*CancelPaymentResult, error) {
	if req.IdempotencyKey == "" {
		return nil, NewError(KindMissingIdempotency, "cancel payment requires an idempotency key")
	}
	return WithIdempotency(ctx, s.Idempotent, s.Logger, req.IdempotencyKey, func(ctx context.Context) (*CancelPaymentResult, error) {
		return s.cancelPayment(ctx, req)
	})
}

func (s *Service) cancelPayment(ctx context.Context, req CancelPaymentRequest) (*CancelPaymentResult, error) {
	p, err := s.Store.GetByProviderOrderID(ctx, req.Provider, req.ProviderOrderID)
	if err != nil {
		return nil, Wrap(KindInternal, err, "cancel payment: lookup")
	}
	if p == nil {
		return nil, NewError(KindNotFound, "cancel payment: no payment for provider order %s", req.ProviderOrderID)
	}
	if p.Status != StatusPending {
		return nil, NewError(KindInvalidTransition, "cancel payment: payment %s is %s, not PENDING", p.ID, p.Status)
	}

	adapter, err := s.adapter(req.Provider)
	if err != nil {
		return nil, err
	}

	result, err := withRetry(ctx, 3, func(ctx context.Context) (*CancelResult, error) {
		return adapter.Cancel(ctx, req.ProviderOrderID, req.Reason)
	})
	if err != nil {
		return nil, Wrap(KindInternal, err, "cancel payment: adapter cancel")
	}
	if !result.Success {
		return nil, NewError(KindProviderCancelFail, "cancel payment: provider refused cancel for %s", req.ProviderOrderID)
	}

	now := time.Now().UTC()
	if session := p.SessionByProviderOrderID(req.ProviderOrderID); session != nil {
		if err := session.ApplySessionTransition(SessionFailed, now); err != nil {
			return nil, err
		}
	}
	if err := p.ApplyTransition(StatusCancelled, now); err != nil {
		return nil, err
	}

	if err := s.Store.UpdatePayment(ctx, p); err != nil {
		return nil, Wrap(KindInternal, err, "cancel payment: persist")
	}

	if err := s.Publisher.PublishFailed(ctx, OrderPaymentFailed{
		Source:    "payment-service",
		PaymentID: p.ID,
		UserID:    p.UserID,
		OrderID:   p.OrderID,
		Provider:  req.Provider,
		Reason:    req.Reason,
	}); err != nil {
		s.Logger.Error("cancel payment: failed to publish failed event", zap.String("payment_id", p.ID), zap.Error(err))
	}

	return &CancelPaymentResult{PaymentID: p.ID, Status: p.Status}, nil
}
