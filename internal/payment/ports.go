package payment

import (
	"context"
	"time"
)

// Store is the persistence port. Per spec §5, CreatePayment and every update
// path must write the Payment aggregate and its touched ProviderSession(s)
// in a single transaction.
type Store interface {
	CreatePayment(ctx context.Context, p *Payment) error
	GetByID(ctx context.Context, id string) (*Payment, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*Payment, error)
	GetByProviderOrderID(ctx context.Context, provider Provider, providerOrderID string) (*Payment, error)
	UpdatePayment(ctx context.Context, p *Payment) error
	ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]*Payment, error)
}

// IdempotencyCache is the lock+result half of the idempotency engine (§4.2).
type IdempotencyCache interface {
	GetResult(ctx context.Context, key string) (string, bool, error)
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key string) error
	SetResult(ctx context.Context, key string, value string, ttl time.Duration) error
}

// TimeoutRecord is the cached payload backing the primary timeout path
// (spec §3, "Timeout record").
type TimeoutRecord struct {
	PaymentID string    `json:"paymentId"`
	OrderID   string    `json:"orderId"`
	UserID    string    `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// TimeoutScheduler schedules and observes the expiry-key side channel.
type TimeoutScheduler interface {
	ScheduleTimeout(ctx context.Context, paymentID string, rec TimeoutRecord, ttl time.Duration) error
	// Subscribe streams payment IDs extracted from expired
	// "payments:timeout:{paymentId}" keys until ctx is cancelled.
	Subscribe(ctx context.Context) (<-chan string, error)
}

// ProcessedEventCache dedupes provider webhook events (spec §3, "Processed-event record").
type ProcessedEventCache interface {
	IsProcessed(ctx context.Context, provider Provider, providerEventID string) (bool, error)
	MarkProcessed(ctx context.Context, provider Provider, providerEventID string, ttl time.Duration) error
}

// LineItem is one cart line presented to a provider adapter.
type LineItem struct {
	Name       string
	Quantity   int64
	UnitAmount Money
	ImageURL   string
}

// CreateSessionRequest is the uniform createSession request shape (spec §4.3).
type CreateSessionRequest struct {
	UserID         string
	OrderID        string
	IdempotencyKey string
	Amount         Money
	LineItems      []LineItem
	SuccessURL     string
	CancelURL      string
	Description    string
	CustomerEmail  string
}

// SessionResult is the adapter-agnostic result of createSession. Provider is
// a tagged variant: exactly one of StripeData/PayPalData/RazorpayData is set,
// selected by Provider, so the RPC boundary can map it into the spec's sum
// type (StripeSession | PayPalSession | RazorpaySession) without a type
// hierarchy.
type SessionResult struct {
	Provider          Provider
	ProviderOrderID   string
	Amount            Money
	Metadata          map[string]string
	StripeData        *StripeSessionData
	PayPalData        *PayPalSessionData
	RazorpayData      *RazorpaySessionData
}

type StripeSessionData struct {
	ClientSecret string
	HostedURL    string
}

type PayPalSessionData struct {
	ApprovalURL string
}

type RazorpaySessionData struct {
	KeyID string
}

// ResolveRequest carries whichever provider-specific payload ResolvePayment
// received; exactly the fields relevant to Provider are populated.
type ResolveRequest struct {
	Provider        Provider
	ProviderOrderID string

	// PayPal: capture the order server-side.
	// Razorpay: orderId/paymentId/signature triple for HMAC verification.
	RazorpayPaymentID string
	RazorpaySignature string

	// Stripe: no extra payload, the checkout session is looked up directly.
}

// ResolveResult is the adapter-agnostic result of resolve.
type ResolveResult struct {
	ProviderStatus string
	IsVerified     bool
}

// CancelResult is the adapter-agnostic result of cancel.
type CancelResult struct {
	Success bool
}

// RefundRequest/RefundResult exist for port completeness (spec §4.3); the
// refund use case itself is out of scope.
type RefundRequest struct {
	Provider          Provider
	ProviderPaymentID string
	Amount            Money
	IdempotencyKey    string
}

type RefundResult struct {
	ProviderRefundID string
	Status           RefundStatus
}

// ProviderAdapter is the single port every provider variant implements
// (spec §4.3).
type ProviderAdapter interface {
	Name() Provider
	CreateSession(ctx context.Context, req CreateSessionRequest) (*SessionResult, error)
	Resolve(ctx context.Context, req ResolveRequest) (*ResolveResult, error)
	Cancel(ctx context.Context, providerOrderID, reason string) (*CancelResult, error)
	Refund(ctx context.Context, req RefundRequest) (*RefundResult, error)
	SupportedCurrencies() []string
	IsCurrencySupported(code string) bool
	IsAvailable(ctx context.Context) bool
}

// OrderInfo is the Order RPC port's response shape (spec §6).
type OrderInfo struct {
	ID     string
	Status string
	Amount Money
	Items  []OrderItem
}

type OrderItem struct {
	CourseID string
	Price    int64
	Currency string
}

// OrderClient is the cross-service RPC port to the Order service.
type OrderClient interface {
	GetOrderByID(ctx context.Context, orderID, userID string) (*OrderInfo, error)
}

// CourseInfo is one entry of the Course service's batch lookup response.
type CourseInfo struct {
	Title       string
	Description string
	Thumbnail   string
}

// CourseClient is the cross-service RPC port to the Course service.
type CourseClient interface {
	GetCoursesByIDs(ctx context.Context, ids []string) (map[string]CourseInfo, error)
}

// ExchangeClient is the FX-rate port (spec §6).
type ExchangeClient interface {
	GetRate(ctx context.Context, base, target string) (rate float64, asOf time.Time, err error)
}

// ProviderEvent is the normalized webhook shape every provider callback is
// mapped to before dispatch (spec §4.5).
type ProviderEvent struct {
	Provider          Provider  `json:"provider"`
	ProviderEventID   string    `json:"providerEventId"`
	ProviderEventType string    `json:"providerEventType"`
	ProviderPaymentID string    `json:"providerPaymentId,omitempty"`
	OrderID           string    `json:"orderId,omitempty"`
	OccurredAt        time.Time `json:"occurredAt"`
	Raw               []byte    `json:"raw"`
}

// Outbound bus event payloads (spec §6). Source is always "payment-service"
// (spec §9 resolves the teacher's inconsistent omission).
const eventSource = "payment-service"

type OrderPaymentInitiated struct {
	Source          string `json:"source"`
	PaymentID       string `json:"paymentId"`
	UserID          string `json:"userId"`
	OrderID         string `json:"orderId"`
	Provider        Provider `json:"provider"`
	ProviderOrderID string `json:"providerOrderId"`
	PaymentStatus   Status `json:"paymentStatus"`
}

type OrderPaymentSucceeded struct {
	Source    string   `json:"source"`
	PaymentID string   `json:"paymentId"`
	UserID    string   `json:"userId"`
	OrderID   string   `json:"orderId"`
	Provider  Provider `json:"provider"`
}

type OrderPaymentFailed struct {
	Source    string   `json:"source"`
	PaymentID string   `json:"paymentId"`
	UserID    string   `json:"userId"`
	OrderID   string   `json:"orderId"`
	Provider  Provider `json:"provider"`
	Reason    string   `json:"reason,omitempty"`
}

type OrderPaymentTimeout struct {
	Source    string `json:"source"`
	PaymentID string `json:"paymentId"`
	UserID    string `json:"userId"`
	OrderID   string `json:"orderId"`
}

// EventPublisher is the message-bus producer port (spec §6).
type EventPublisher interface {
	PublishInitiated(ctx context.Context, ev OrderPaymentInitiated) error
	PublishSucceeded(ctx context.Context, ev OrderPaymentSucceeded) error
	PublishFailed(ctx context.Context, ev OrderPaymentFailed) error
	PublishTimeout(ctx context.Context, ev OrderPaymentTimeout) error
	PublishProviderEvent(ctx context.Context, ev ProviderEvent) error
}
