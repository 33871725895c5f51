// Package timeoutsvc implements the two timeout paths from spec §4.5: a
// long-lived listener on the cache's key-expiration notifications, and a
// periodic safety-net sweeper. Both funnel into payment.Service.HandlePaymentTimeout,
// which is idempotent with respect to either firing first.
package timeoutsvc

import (
	"context"

	"go.uber.org/zap"

	"github.com/crosslogic/payment-orchestrator/internal/payment"
)

// Listener drives the primary timeout path off the cache's
// __keyevent@*__:expired keyspace notifications.
type Listener struct {
	Service   *payment.Service
	Scheduler payment.TimeoutScheduler
	Logger    *zap.Logger
}

// Run subscribes and dispatches HandlePaymentTimeout for each expired
// payment id until ctx is cancelled. Delivery is best-effort by the cache;
// the Sweeper closes the gap for anything missed here.
func (l *Listener) Run(ctx context.Context) error {
	ids, err := l.Scheduler.Subscribe(ctx)
	if err != nil {
		return err
	}

	l.Logger.Info("timeout listener: subscribed to expiry notifications")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case paymentID, ok := <-ids:
			if !ok {
				return nil
			}
			if err := l.Service.HandlePaymentTimeout(ctx, paymentID); err != nil {
				l.Logger.Warn("timeout listener: failed to handle timeout",
					zap.String("payment_id", paymentID), zap.Error(err))
			}
		}
	}
}
