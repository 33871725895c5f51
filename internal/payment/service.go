package payment

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Service wires the lifecycle model, idempotency engine and provider
// adapters into the use cases in spec §4.4. It is constructed once at
// startup and passed by reference to the RPC server and webhook ingress.
type Service struct {
	Store      Store
	Idempotent IdempotencyCache
	Timeouts   TimeoutScheduler
	Processed  ProcessedEventCache
	Publisher  EventPublisher
	Orders     OrderClient
	Courses    CourseClient
	Exchange   ExchangeClient
	Providers  map[Provider]ProviderAdapter
	Logger     *zap.Logger

	PaymentTTL time.Duration
}

// NewService constructs a Service. PaymentTTL defaults to 10 minutes per
// spec §4.4 step 5 if zero.
func NewService(
	store Store,
	idempotent IdempotencyCache,
	timeouts TimeoutScheduler,
	processed ProcessedEventCache,
	publisher EventPublisher,
	orders OrderClient,
	courses CourseClient,
	exchange ExchangeClient,
	providers map[Provider]ProviderAdapter,
	logger *zap.Logger,
	paymentTTL time.Duration,
) *Service {
	if paymentTTL == 0 {
		paymentTTL = 10 * time.Minute
	}
	return &Service{
		Store:      store,
		Idempotent: idempotent,
		Timeouts:   timeouts,
		Processed:  processed,
		Publisher:  publisher,
		Orders:     orders,
		Courses:    courses,
		Exchange:   exchange,
		Providers:  providers,
		Logger:     logger,
		PaymentTTL: paymentTTL,
	}
}

func (s *Service) adapter(p Provider) (ProviderAdapter, error) {
	a, ok := s.Providers[p]
	if !ok {
		return nil, NewError(KindInternal, "no adapter registered for provider %s", p)
	}
	return a, nil
}

func newID() string {
	return uuid.New().String()
}

// withRetry runs fn up to maxAttempts times total (1 initial +
// maxAttempts-1 more), sleeping an exponential 1s-base backoff between attempts, bounded by
// ctx. This is the "2x-3x exponential, 1s base" retry profile spec §5
// prescribes for outbound cross-service and provider calls.
func withRetry[T any](ctx context.Context, maxAttempts int, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	delay := time.Second

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return zero, ctx.Err()
			}
			delay *= 2
		}
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err
	}
	return zero, lastErr
}

// withDeadline bounds fn by a hard deadline (spec §5: every outbound
// cross-service RPC races a deadline timer).
func withDeadline[T any](ctx context.Context, d time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	dctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type result struct {
		val T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		val, err := fn(dctx)
		ch <- result{val, err}
	}()

	select {
	case r := <-ch:
		return r.val, r.err
	case <-dctx.Done():
		var zero T
		return zero, NewError(KindTimeout, "operation exceeded deadline")
	}
}
