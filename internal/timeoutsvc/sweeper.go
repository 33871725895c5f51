package timeoutsvc

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/crosslogic/payment-orchestrator/internal/payment"
	"github.com/crosslogic/payment-orchestrator/pkg/metrics"
)

const sweepBatchSize = 50

// Sweeper is the safety-net path from spec §4.5: a fixed-interval poll for
// PENDING payments whose ExpiresAt has already passed, following the
// teacher's ticker-based StartBackgroundJobs pattern.
type Sweeper struct {
	Service  *payment.Service
	Store    payment.Store
	Logger   *zap.Logger
	Interval time.Duration
}

// Run ticks at s.Interval (default 1 minute) until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	interval := s.Interval
	if interval == 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	now := time.Now().UTC()
	expired, err := s.Store.ListExpiredPending(ctx, now, sweepBatchSize)
	if err != nil {
		s.Logger.Error("sweeper: failed to list expired pending payments", zap.Error(err))
		return
	}

	metrics.SweeperBatchSize.Set(float64(len(expired)))

	for _, p := range expired {
		if err := s.Service.HandlePaymentTimeout(ctx, p.ID); err != nil {
			s.Logger.Warn("sweeper: failed to handle timeout, continuing batch",
				zap.String("payment_id", p.ID), zap.Error(err))
		}
	}
}
