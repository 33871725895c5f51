package timeoutsvc

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/crosslogic/payment-orchestrator/internal/payment"
)

type fakeStore struct {
	mu      sync.Mutex
	byID    map[string]*payment.Payment
	updated []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{byID: make(map[string]*payment.Payment)}
}

func (s *fakeStore) CreatePayment(ctx context.Context, p *payment.Payment) error { return nil }
func (s *fakeStore) GetByID(ctx context.Context, id string) (*payment.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byID[id], nil
}
func (s *fakeStore) GetByIdempotencyKey(ctx context.Context, key string) (*payment.Payment, error) {
	return nil, nil
}
func (s *fakeStore) GetByProviderOrderID(ctx context.Context, provider payment.Provider, providerOrderID string) (*payment.Payment, error) {
	return nil, nil
}
func (s *fakeStore) UpdatePayment(ctx context.Context, p *payment.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[p.ID] = p
	s.updated = append(s.updated, p.ID)
	return nil
}
func (s *fakeStore) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]*payment.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*payment.Payment
	for _, p := range s.byID {
		if p.Status == payment.StatusPending && !p.ExpiresAt.After(now) {
			out = append(out, p)
		}
	}
	return out, nil
}

// fixedListStore returns a fixed listing from ListExpiredPending and
// delegates everything else to the wrapped fakeStore.
type fixedListStore struct {
	*fakeStore
	list []*payment.Payment
}

func (s *fixedListStore) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]*payment.Payment, error) {
	return s.list, nil
}

type noopCache struct{}

func (noopCache) GetResult(ctx context.Context, key string) (string, bool, error) { return "", false, nil }
func (noopCache) AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return true, nil
}
func (noopCache) ReleaseLock(ctx context.Context, key string) error { return nil }
func (noopCache) SetResult(ctx context.Context, key string, value string, ttl time.Duration) error {
	return nil
}
func (noopCache) ScheduleTimeout(ctx context.Context, paymentID string, rec payment.TimeoutRecord, ttl time.Duration) error {
	return nil
}

type fakeScheduler struct {
	ch chan string
}

func (f *fakeScheduler) ScheduleTimeout(ctx context.Context, paymentID string, rec payment.TimeoutRecord, ttl time.Duration) error {
	return nil
}
func (f *fakeScheduler) Subscribe(ctx context.Context) (<-chan string, error) {
	return f.ch, nil
}

type noopProcessed struct{}

func (noopProcessed) IsProcessed(ctx context.Context, provider payment.Provider, providerEventID string) (bool, error) {
	return false, nil
}
func (noopProcessed) MarkProcessed(ctx context.Context, provider payment.Provider, providerEventID string, ttl time.Duration) error {
	return nil
}

type noopPublisher struct {
	mu       sync.Mutex
	timeouts int
}

func (p *noopPublisher) PublishInitiated(ctx context.Context, ev payment.OrderPaymentInitiated) error {
	return nil
}
func (p *noopPublisher) PublishSucceeded(ctx context.Context, ev payment.OrderPaymentSucceeded) error {
	return nil
}
func (p *noopPublisher) PublishFailed(ctx context.Context, ev payment.OrderPaymentFailed) error {
	return nil
}
func (p *noopPublisher) PublishTimeout(ctx context.Context, ev payment.OrderPaymentTimeout) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.timeouts++
	return nil
}
func (p *noopPublisher) PublishProviderEvent(ctx context.Context, ev payment.ProviderEvent) error {
	return nil
}

type noopOrderClient struct{}

func (noopOrderClient) GetOrderByID(ctx context.Context, orderID, userID string) (*payment.OrderInfo, error) {
	return nil, nil
}

type noopCourseClient struct{}

func (noopCourseClient) GetCoursesByIDs(ctx context.Context, ids []string) (map[string]payment.CourseInfo, error) {
	return nil, nil
}

type noopExchangeClient struct{}

func (noopExchangeClient) GetRate(ctx context.Context, base, target string) (float64, time.Time, error) {
	return 1, time.Now(), nil
}

func newTestServiceAndStore(pub *noopPublisher) (*payment.Service, *fakeStore) {
	store := newFakeStore()
	svc := payment.NewService(
		store, noopCache{}, &fakeScheduler{ch: make(chan string)}, noopProcessed{}, pub,
		noopOrderClient{}, noopCourseClient{}, noopExchangeClient{},
		map[payment.Provider]payment.ProviderAdapter{},
		zap.NewNop(), 10*time.Minute,
	)
	return svc, store
}

func seedExpiredPending(store *fakeStore, id string, expiresAt time.Time) {
	store.byID[id] = &payment.Payment{
		ID:        id,
		UserID:    "user_1",
		OrderID:   "order_1",
		Status:    payment.StatusPending,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
		ExpiresAt: expiresAt,
	}
}

func TestSweeper_SweepOnceExpiresDuePayments(t *testing.T) {
	pub := &noopPublisher{}
	svc, store := newTestServiceAndStore(pub)
	seedExpiredPending(store, "pay_1", time.Now().Add(-time.Minute))
	seedExpiredPending(store, "pay_2", time.Now().Add(time.Hour)) // not yet due

	s := &Sweeper{Service: svc, Store: store, Logger: zap.NewNop()}
	s.sweepOnce(context.Background())

	if store.byID["pay_1"].Status != payment.StatusExpired {
		t.Errorf("expected pay_1 to be EXPIRED, got %s", store.byID["pay_1"].Status)
	}
	if store.byID["pay_2"].Status != payment.StatusPending {
		t.Errorf("expected pay_2 to remain PENDING, got %s", store.byID["pay_2"].Status)
	}
	if pub.timeouts != 1 {
		t.Errorf("expected exactly one timeout publish, got %d", pub.timeouts)
	}
}

func TestSweeper_ContinuesBatchAfterPerItemFailure(t *testing.T) {
	pub := &noopPublisher{}
	svc, store := newTestServiceAndStore(pub)
	seedExpiredPending(store, "pay_1", time.Now().Add(-time.Minute))
	seedExpiredPending(store, "pay_2", time.Now().Add(-time.Minute))

	// The sweeper's listing puts first an id that GetByID cannot find, so
	// HandlePaymentTimeout fails with NotFound for it; the batch must still go
	// on to expire pay_1 and pay_2.
	listing := &fixedListStore{fakeStore: store, list: []*payment.Payment{
		{ID: "pay_missing"}, store.byID["pay_1"], store.byID["pay_2"],
	}}
	s := &Sweeper{Service: svc, Store: listing, Logger: zap.NewNop()}
	s.sweepOnce(context.Background())

	if store.byID["pay_1"].Status != payment.StatusExpired {
		t.Errorf("expected pay_1 EXPIRED, got %s", store.byID["pay_1"].Status)
	}
	if store.byID["pay_2"].Status != payment.StatusExpired {
		t.Errorf("expected pay_2 EXPIRED, got %s", store.byID["pay_2"].Status)
	}
}

func TestListener_DispatchesIDsUntilChannelClosesOrCtxCancelled(t *testing.T) {
	pub := &noopPublisher{}
	svc, store := newTestServiceAndStore(pub)
	seedExpiredPending(store, "pay_1", time.Now().Add(-time.Minute))

	ch := make(chan string, 1)
	ch <- "pay_1"
	close(ch)

	l := &Listener{Service: svc, Scheduler: &fakeScheduler{ch: ch}, Logger: zap.NewNop()}
	if err := l.Run(context.Background()); err != nil {
		t.Fatalf("expected Run to return nil once the channel closes, got %v", err)
	}

	if store.byID["pay_1"].Status != payment.StatusExpired {
		t.Errorf("expected pay_1 EXPIRED, got %s", store.byID["pay_1"].Status)
	}
}

func TestListener_ReturnsContextErrorOnCancellation(t *testing.T) {
	pub := &noopPublisher{}
	svc, _ := newTestServiceAndStore(pub)

	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan string)
	l := &Listener{Service: svc, Scheduler: &fakeScheduler{ch: ch}, Logger: zap.NewNop()}

	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected Run to return a context error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
