package payment

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// fakeStore is a hand-written in-memory payment.Store, following the
// teacher's billing/webhooks_test.go mock style of narrow interface fakes
// rather than a generated mock.
type fakeStore struct {
	mu       sync.Mutex
	byID     map[string]*Payment
	byKey    map[string]string // idempotencyKey -> paymentID
	byOrder  map[string]string // provider|providerOrderID -> paymentID
	CreateErr error
	UpdateErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		byID:    make(map[string]*Payment),
		byKey:   make(map[string]string),
		byOrder: make(map[string]string),
	}
}

func orderKey(provider Provider, providerOrderID string) string {
	return string(provider) + "|" + providerOrderID
}

func clonePayment(p *Payment) *Payment {
	cp := *p
	cp.Sessions = append([]ProviderSession(nil), p.Sessions...)
	return &cp
}

func (s *fakeStore) CreatePayment(ctx context.Context, p *Payment) error {
	if s.CreateErr != nil {
		return s.CreateErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[p.ID] = clonePayment(p)
	s.byKey[p.IdempotencyKey] = p.ID
	for _, sess := range p.Sessions {
		s.byOrder[orderKey(sess.Provider, sess.ProviderOrderID)] = p.ID
	}
	return nil
}

func (s *fakeStore) GetByID(ctx context.Context, id string) (*Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok {
		return nil, nil
	}
	return clonePayment(p), nil
}

func (s *fakeStore) GetByIdempotencyKey(ctx context.Context, key string) (*Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byKey[key]
	if !ok {
		return nil, nil
	}
	return clonePayment(s.byID[id]), nil
}

func (s *fakeStore) GetByProviderOrderID(ctx context.Context, provider Provider, providerOrderID string) (*Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byOrder[orderKey(provider, providerOrderID)]
	if !ok {
		return nil, nil
	}
	return clonePayment(s.byID[id]), nil
}

func (s *fakeStore) UpdatePayment(ctx context.Context, p *Payment) error {
	if s.UpdateErr != nil {
		return s.UpdateErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[p.ID] = clonePayment(p)
	for _, sess := range p.Sessions {
		s.byOrder[orderKey(sess.Provider, sess.ProviderOrderID)] = p.ID
	}
	return nil
}

func (s *fakeStore) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]*Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Payment
	for _, p := range s.byID {
		if p.Status == StatusPending && !p.ExpiresAt.After(now) {
			out = append(out, clonePayment(p))
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// fakeIdempotencyCache is an in-memory IdempotencyCache/TimeoutScheduler/
// ProcessedEventCache triple, mirroring the shape rediscache.Adapter wraps
// around a real Redis client.
type fakeIdempotencyCache struct {
	mu       sync.Mutex
	locks    map[string]bool
	results  map[string]string
	timeouts map[string]TimeoutRecord
	processed map[string]bool
}

func newFakeIdempotencyCache() *fakeIdempotencyCache {
	return &fakeIdempotencyCache{
		locks:     make(map[string]bool),
		results:   make(map[string]string),
		timeouts:  make(map[string]TimeoutRecord),
		processed: make(map[string]bool),
	}
}

func (c *fakeIdempotencyCache) GetResult(ctx context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.results[key]
	return v, ok, nil
}

func (c *fakeIdempotencyCache) AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.locks[key] {
		return false, nil
	}
	c.locks[key] = true
	return true, nil
}

func (c *fakeIdempotencyCache) ReleaseLock(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.locks, key)
	return nil
}

func (c *fakeIdempotencyCache) SetResult(ctx context.Context, key string, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results[key] = value
	return nil
}

func (c *fakeIdempotencyCache) ScheduleTimeout(ctx context.Context, paymentID string, rec TimeoutRecord, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeouts[paymentID] = rec
	return nil
}

func (c *fakeIdempotencyCache) Subscribe(ctx context.Context) (<-chan string, error) {
	ch := make(chan string)
	close(ch)
	return ch, nil
}

func (c *fakeIdempotencyCache) IsProcessed(ctx context.Context, provider Provider, providerEventID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.processed[string(provider)+":"+providerEventID], nil
}

func (c *fakeIdempotencyCache) MarkProcessed(ctx context.Context, provider Provider, providerEventID string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.processed[string(provider)+":"+providerEventID] = true
	return nil
}

// fakePublisher records every event published, for assertions on
// publish-exactly-once behavior.
type fakePublisher struct {
	mu         sync.Mutex
	Initiated  []OrderPaymentInitiated
	Succeeded  []OrderPaymentSucceeded
	Failed     []OrderPaymentFailed
	Timeouts   []OrderPaymentTimeout
	ProviderEv []ProviderEvent
}

func newFakePublisher() *fakePublisher { return &fakePublisher{} }

func (p *fakePublisher) PublishInitiated(ctx context.Context, ev OrderPaymentInitiated) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Initiated = append(p.Initiated, ev)
	return nil
}

func (p *fakePublisher) PublishSucceeded(ctx context.Context, ev OrderPaymentSucceeded) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Succeeded = append(p.Succeeded, ev)
	return nil
}

func (p *fakePublisher) PublishFailed(ctx context.Context, ev OrderPaymentFailed) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Failed = append(p.Failed, ev)
	return nil
}

func (p *fakePublisher) PublishTimeout(ctx context.Context, ev OrderPaymentTimeout) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Timeouts = append(p.Timeouts, ev)
	return nil
}

func (p *fakePublisher) PublishProviderEvent(ctx context.Context, ev ProviderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ProviderEv = append(p.ProviderEv, ev)
	return nil
}

// fakeOrderClient / fakeCourseClient / fakeExchangeClient stub the
// cross-service RPC ports.
type fakeOrderClient struct {
	Order *OrderInfo
	Err   error
}

func (f *fakeOrderClient) GetOrderByID(ctx context.Context, orderID, userID string) (*OrderInfo, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Order, nil
}

type fakeCourseClient struct {
	Courses map[string]CourseInfo
}

func (f *fakeCourseClient) GetCoursesByIDs(ctx context.Context, ids []string) (map[string]CourseInfo, error) {
	return f.Courses, nil
}

type fakeExchangeClient struct {
	Rate  float64
	AsOf  time.Time
	Err   error
}

func (f *fakeExchangeClient) GetRate(ctx context.Context, base, target string) (float64, time.Time, error) {
	if f.Err != nil {
		return 0, time.Time{}, f.Err
	}
	return f.Rate, f.AsOf, nil
}

// fakeAdapter is a scriptable ProviderAdapter stand-in for every provider
// variant's happy/error paths.
type fakeAdapter struct {
	provider    Provider
	currencies  map[string]bool
	CreateFn    func(ctx context.Context, req CreateSessionRequest) (*SessionResult, error)
	ResolveFn   func(ctx context.Context, req ResolveRequest) (*ResolveResult, error)
	CancelFn    func(ctx context.Context, providerOrderID, reason string) (*CancelResult, error)
	createCalls int
}

func newFakeAdapter(provider Provider, currencies ...string) *fakeAdapter {
	set := make(map[string]bool, len(currencies))
	for _, c := range currencies {
		set[c] = true
	}
	return &fakeAdapter{provider: provider, currencies: set}
}

func (a *fakeAdapter) Name() Provider { return a.provider }

func (a *fakeAdapter) CreateSession(ctx context.Context, req CreateSessionRequest) (*SessionResult, error) {
	a.createCalls++
	if a.CreateFn != nil {
		return a.CreateFn(ctx, req)
	}
	return &SessionResult{
		Provider:        a.provider,
		ProviderOrderID: "po_" + req.IdempotencyKey + "_" + itoa(a.createCalls),
		Amount:          req.Amount,
	}, nil
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

func (a *fakeAdapter) Resolve(ctx context.Context, req ResolveRequest) (*ResolveResult, error) {
	if a.ResolveFn != nil {
		return a.ResolveFn(ctx, req)
	}
	return &ResolveResult{ProviderStatus: "captured", IsVerified: true}, nil
}

func (a *fakeAdapter) Cancel(ctx context.Context, providerOrderID, reason string) (*CancelResult, error) {
	if a.CancelFn != nil {
		return a.CancelFn(ctx, providerOrderID, reason)
	}
	return &CancelResult{Success: true}, nil
}

func (a *fakeAdapter) Refund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	return &RefundResult{ProviderRefundID: "rf_1", Status: RefundSuccess}, nil
}

func (a *fakeAdapter) SupportedCurrencies() []string {
	out := make([]string, 0, len(a.currencies))
	for c := range a.currencies {
		out = append(out, c)
	}
	return out
}

func (a *fakeAdapter) IsCurrencySupported(code string) bool { return a.currencies[code] }

func (a *fakeAdapter) IsAvailable(ctx context.Context) bool { return true }

// newTestService wires a Service over fakes, with the given adapter
// registered as the only provider.
func newTestService(t interface {
	Helper()
}, adapter ProviderAdapter, order *OrderInfo, exchange ExchangeClient) (*Service, *fakeStore, *fakeIdempotencyCache, *fakePublisher) {
	t.Helper()
	store := newFakeStore()
	idem := newFakeIdempotencyCache()
	pub := newFakePublisher()

	svc := NewService(
		store,
		idem,
		idem,
		idem,
		pub,
		&fakeOrderClient{Order: order},
		&fakeCourseClient{Courses: map[string]CourseInfo{}},
		exchange,
		map[Provider]ProviderAdapter{adapter.Name(): adapter},
		zap.NewNop(),
		10*time.Minute,
	)
	return svc, store, idem, pub
}
