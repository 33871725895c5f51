package payment

import (
	"context"
	"time"
)

// ResolvePaymentRequest is the input to ResolvePayment (spec §4.4).
type ResolvePaymentRequest struct {
	Provider          Provider
	ProviderOrderID   string
	RazorpayPaymentID string
	RazorpaySignature string
	IdempotencyKey    string
}

// ResolvePaymentResult is returned to the caller once resolve completes.
type ResolvePaymentResult struct {
	ProviderStatus string
	IsVerified     bool
	PaymentID      string
	OrderID        string
	Provider       Provider
}

// ResolvePayment implements spec §4.4's ResolvePayment use case: a
// client-driven capture confirmation that does not yet publish a bus event
// (the authoritative success still arrives via webhook).
func (s *Service) ResolvePayment(ctx context.Context, req ResolvePaymentRequest) (*ResolvePaymentResult, error) {
	if req.IdempotencyKey == "" {
		return nil, NewError(KindMissingIdempotency, "resolve payment requires an idempotency key")
	}
	return WithIdempotency(ctx, s.Idempotent, s.Logger, req.IdempotencyKey, func(ctx context.Context) (*ResolvePaymentResult, error) {
		return s.resolvePayment(ctx, req)
	})
}

func (s *Service) resolvePayment(ctx context.Context, req ResolvePaymentRequest) (*ResolvePaymentResult, error) {
	p, err := s.Store.GetByProviderOrderID(ctx, req.Provider, req.ProviderOrderID)
	if err != nil {
		return nil, Wrap(KindInternal, err, "resolve payment: lookup")
	}
	if p == nil {
		return nil, NewError(KindNotFound, "resolve payment: no payment for provider order %s", req.ProviderOrderID)
	}

	adapter, err := s.adapter(req.Provider)
	if err != nil {
		return nil, err
	}

	result, err := withRetry(ctx, 3, func(ctx context.Context) (*ResolveResult, error) {
		return adapter.Resolve(ctx, ResolveRequest{
			Provider:          req.Provider,
			ProviderOrderID:   req.ProviderOrderID,
			RazorpayPaymentID: req.RazorpayPaymentID,
			RazorpaySignature: req.RazorpaySignature,
		})
	})
	if err != nil {
		return nil, Wrap(KindInternal, err, "resolve payment: adapter resolve")
	}

	now := time.Now().UTC()
	if session := p.SessionByProviderOrderID(req.ProviderOrderID); session != nil {
		if err := session.ApplySessionTransition(SessionCaptured, now); err != nil {
			return nil, err
		}
	}

	if !p.Status.Terminal() {
		if err := p.ApplyTransition(StatusResolved, now); err != nil {
			return nil, err
		}
	}

	if err := s.Store.UpdatePayment(ctx, p); err != nil {
		return nil, Wrap(KindInternal, err, "resolve payment: persist")
	}

	return &ResolvePaymentResult{
		ProviderStatus: result.ProviderStatus,
		IsVerified:     result.IsVerified,
		PaymentID:      p.ID,
		OrderID:        p.OrderID,
		Provider:       req.Provider,
	}, nil
}
