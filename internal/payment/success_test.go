package payment

import (
	"context"
	"testing"
)

func TestSuccessPayment_HappyPath(t *testing.T) {
	adapter := newFakeAdapter(ProviderStripe, "USD")
	svc, store, _, pub := newTestService(t, adapter, baseOrder(), &fakeExchangeClient{})
	seedPendingPayment(store, ProviderStripe, "po_1")

	if err := svc.SuccessPayment(context.Background(), SuccessPaymentRequest{
		Provider:        ProviderStripe,
		ProviderOrderID: "po_1",
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	p, _ := store.GetByProviderOrderID(context.Background(), ProviderStripe, "po_1")
	if p.Status != StatusSuccess {
		t.Errorf("expected SUCCESS, got %s", p.Status)
	}
	if p.Sessions[0].Status != SessionCaptured {
		t.Errorf("expected session CAPTURED, got %s", p.Sessions[0].Status)
	}
	if len(pub.Succeeded) != 1 {
		t.Fatalf("expected one succeeded-event publish, got %d", len(pub.Succeeded))
	}
}

func TestSuccessPayment_FromResolvedAlsoTransitions(t *testing.T) {
	adapter := newFakeAdapter(ProviderStripe, "USD")
	svc, store, _, _ := newTestService(t, adapter, baseOrder(), &fakeExchangeClient{})
	p := seedPendingPayment(store, ProviderStripe, "po_1")
	p.Status = StatusResolved
	_ = store.UpdatePayment(context.Background(), p)

	if err := svc.SuccessPayment(context.Background(), SuccessPaymentRequest{
		Provider:        ProviderStripe,
		ProviderOrderID: "po_1",
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, _ := store.GetByProviderOrderID(context.Background(), ProviderStripe, "po_1")
	if got.Status != StatusSuccess {
		t.Errorf("expected SUCCESS, got %s", got.Status)
	}
}

func TestSuccessPayment_AlreadySuccessIsNoOpAndDoesNotRepublish(t *testing.T) {
	adapter := newFakeAdapter(ProviderStripe, "USD")
	svc, store, _, pub := newTestService(t, adapter, baseOrder(), &fakeExchangeClient{})
	p := seedPendingPayment(store, ProviderStripe, "po_1")
	p.Status = StatusSuccess
	_ = store.UpdatePayment(context.Background(), p)

	if err := svc.SuccessPayment(context.Background(), SuccessPaymentRequest{
		Provider:        ProviderStripe,
		ProviderOrderID: "po_1",
	}); err != nil {
		t.Fatalf("unexpected error on repeat delivery: %v", err)
	}
	if len(pub.Succeeded) != 0 {
		t.Errorf("expected no re-publish on an already-SUCCESS payment, got %d", len(pub.Succeeded))
	}
}

func TestSuccessPayment_RejectsCancelledPayment(t *testing.T) {
	adapter := newFakeAdapter(ProviderStripe, "USD")
	svc, store, _, _ := newTestService(t, adapter, baseOrder(), &fakeExchangeClient{})
	p := seedPendingPayment(store, ProviderStripe, "po_1")
	p.Status = StatusCancelled
	_ = store.UpdatePayment(context.Background(), p)

	err := svc.SuccessPayment(context.Background(), SuccessPaymentRequest{
		Provider:        ProviderStripe,
		ProviderOrderID: "po_1",
	})
	if err == nil || KindOf(err) != KindInvalidTransition {
		t.Fatalf("expected KindInvalidTransition, got %v", err)
	}
}

func TestSuccessPayment_UnknownProviderOrderIsNotFound(t *testing.T) {
	adapter := newFakeAdapter(ProviderStripe, "USD")
	svc, _, _, _ := newTestService(t, adapter, baseOrder(), &fakeExchangeClient{})

	err := svc.SuccessPayment(context.Background(), SuccessPaymentRequest{
		Provider:        ProviderStripe,
		ProviderOrderID: "missing",
	})
	if err == nil || KindOf(err) != KindNotFound {
		t.Fatalf("expected KindNotFound, got %v", err)
	}
}
