// Package payment implements the payment lifecycle state machine, the
// idempotency engine, and the use-case orchestration that sits between the
// RPC/webhook boundary and the provider adapters.
package payment

import (
	"time"

	"github.com/crosslogic/payment-orchestrator/pkg/metrics"
)

// Provider identifies a third-party payment processor.
type Provider string

const (
	ProviderStripe   Provider = "STRIPE"
	ProviderPayPal   Provider = "PAYPAL"
	ProviderRazorpay Provider = "RAZORPAY"
)

// Status is the Payment aggregate's lifecycle state.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusResolved  Status = "RESOLVED"
	StatusSuccess   Status = "SUCCESS"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
	StatusExpired   Status = "EXPIRED"
)

// Terminal reports whether status permits no further transition.
func (s Status) Terminal() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusCancelled, StatusExpired:
		return true
	default:
		return false
	}
}

// SessionStatus is a ProviderSession's lifecycle state.
type SessionStatus string

const (
	SessionCreated         SessionStatus = "CREATED"
	SessionPendingApproval SessionStatus = "PENDING_APPROVAL"
	SessionApproved        SessionStatus = "APPROVED"
	SessionCaptured        SessionStatus = "CAPTURED"
	SessionFailed          SessionStatus = "FAILED"
)

// RefundStatus is a ProviderRefund's lifecycle state.
type RefundStatus string

const (
	RefundPending RefundStatus = "PENDING"
	RefundSuccess RefundStatus = "SUCCESS"
	RefundFailed  RefundStatus = "FAILED"
)

// Money is a minor-unit integer amount paired with an ISO-4217 currency.
type Money struct {
	Amount   int64
	Currency string
}

// Payment is the aggregate root for a single checkout attempt.
type Payment struct {
	ID              string
	UserID          string
	OrderID         string
	Amount          Money
	IdempotencyKey  string
	Status          Status
	ProviderOrderID string
	Sessions        []ProviderSession
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ExpiresAt       time.Time
}

// ProviderSession records one attempt at charging a Payment through a named
// provider. Sessions are append-only within a Payment; they are never
// deleted, only transitioned.
type ProviderSession struct {
	ID                string
	PaymentID         string
	Provider          Provider
	ProviderOrderID   string
	ProviderPaymentID string
	Amount            Money
	FXRate            float64
	FXTimestamp       time.Time
	Status            SessionStatus
	Metadata          map[string]string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ProviderRefund is one-to-one with a CAPTURED ProviderSession.
type ProviderRefund struct {
	ID                string
	PaymentID         string
	ProviderSessionID string
	ProviderRefundID  string
	RequestedAmount   Money
	IdempotencyKey    string
	ProviderFee       *int64
	Status            RefundStatus
	Metadata          map[string]string
}

// LatestSession returns the most recently appended session, or nil.
func (p *Payment) LatestSession() *ProviderSession {
	if len(p.Sessions) == 0 {
		return nil
	}
	return &p.Sessions[len(p.Sessions)-1]
}

// SessionByProviderOrderID finds the session matching a provider order ID.
func (p *Payment) SessionByProviderOrderID(providerOrderID string) *ProviderSession {
	for i := range p.Sessions {
		if p.Sessions[i].ProviderOrderID == providerOrderID {
			return &p.Sessions[i]
		}
	}
	return nil
}

// transition is a (from, to) edge in the Payment state machine.
type transition struct {
	from Status
	to   Status
}

// allowedTransitions centralizes the state machine guard (spec §4.1, §9
// "avoid scattering if (status == X) across use cases"). Idempotent self-loops
// on SUCCESS and FAILED are included deliberately: re-entering them is a
// no-op, not a forbidden edge.
var allowedTransitions = map[transition]bool{
	{StatusPending, StatusResolved}:  true,
	{StatusPending, StatusSuccess}:   true, // webhook fast-path
	{StatusPending, StatusFailed}:    true,
	{StatusPending, StatusCancelled}: true,
	{StatusPending, StatusExpired}:   true,
	{StatusResolved, StatusSuccess}:  true,
	{StatusResolved, StatusFailed}:   true,
	{StatusSuccess, StatusSuccess}:   true,
	{StatusFailed, StatusFailed}:     true,
}

// CanTransition reports whether from -> to is a permitted edge.
func CanTransition(from, to Status) bool {
	return allowedTransitions[transition{from, to}]
}

// ApplyTransition mutates p.Status to to if the edge is allowed, stamping
// UpdatedAt on any state change. It returns a KindInvalidTransition *Error
// otherwise.
func (p *Payment) ApplyTransition(to Status, now time.Time) error {
	if p.Status == to {
		// Self-loop: idempotent no-op for SUCCESS/FAILED, otherwise still a
		// valid no-change (e.g. RESOLVED requested twice).
		return nil
	}
	if !CanTransition(p.Status, to) {
		return NewError(KindInvalidTransition, "payment: cannot transition from %s to %s", p.Status, to)
	}
	p.Status = to
	p.UpdatedAt = now
	metrics.PaymentTransitions.WithLabelValues(string(p.latestProvider()), string(to)).Inc()
	return nil
}

// latestProvider reports the provider of the most recently appended session,
// or "unknown" for a Payment with none yet (used only for metrics labeling).
func (p *Payment) latestProvider() Provider {
	if s := p.LatestSession(); s != nil {
		return s.Provider
	}
	return "unknown"
}

// sessionTransitions mirrors the ProviderSession happy path plus the
// any-state-to-FAILED edge (spec §4.1).
var sessionTransitions = map[transition]bool{
	{Status(SessionCreated), Status(SessionPendingApproval)}: true,
	{Status(SessionPendingApproval), Status(SessionApproved)}: true,
	{Status(SessionApproved), Status(SessionCaptured)}:        true,
	{Status(SessionCreated), Status(SessionCaptured)}:          true,
	{Status(SessionCreated), Status(SessionFailed)}:            true,
	{Status(SessionPendingApproval), Status(SessionFailed)}:    true,
	{Status(SessionApproved), Status(SessionFailed)}:           true,
	{Status(SessionCaptured), Status(SessionFailed)}:           true,
}

// ApplySessionTransition mutates a session's status if the edge is allowed.
func (s *ProviderSession) ApplySessionTransition(to SessionStatus, now time.Time) error {
	if s.Status == to {
		return nil
	}
	if !sessionTransitions[transition{Status(s.Status), Status(to)}] {
		return NewError(KindInvalidTransition, "session: cannot transition from %s to %s", s.Status, to)
	}
	s.Status = to
	s.UpdatedAt = now
	return nil
}

// HasCapturedSession reports whether any session is already CAPTURED
// (invariant: at most one CAPTURED session per Payment).
func (p *Payment) HasCapturedSession() bool {
	for i := range p.Sessions {
		if p.Sessions[i].Status == SessionCaptured {
			return true
		}
	}
	return false
}
