// Package rediscache adapts pkg/cache's generic Redis wrapper into the
// payment package's IdempotencyCache, TimeoutScheduler and
// ProcessedEventCache ports, namespacing keys the way spec §6 specifies
// (lock:*, result:*, payments:timeout:*, processed:*).
package rediscache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/crosslogic/payment-orchestrator/internal/payment"
	"github.com/crosslogic/payment-orchestrator/pkg/cache"
	"github.com/go-redis/redis/v8"
)

const timeoutKeyPrefix = "payments:timeout:"

// Adapter implements payment.IdempotencyCache, payment.TimeoutScheduler and
// payment.ProcessedEventCache over a single *cache.Cache.
type Adapter struct {
	cache *cache.Cache
}

func New(c *cache.Cache) *Adapter {
	return &Adapter{cache: c}
}

func lockKey(key string) string   { return "lock:" + key }
func resultKey(key string) string { return "result:" + key }

// GetResult implements payment.IdempotencyCache.
func (a *Adapter) GetResult(ctx context.Context, key string) (string, bool, error) {
	val, err := a.cache.Get(ctx, resultKey(key))
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// AcquireLock implements payment.IdempotencyCache via a single SetNX (spec
// §4.2's "atomic with lock placement" requirement).
func (a *Adapter) AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return a.cache.SetNX(ctx, lockKey(key), "1", ttl)
}

// ReleaseLock implements payment.IdempotencyCache.
func (a *Adapter) ReleaseLock(ctx context.Context, key string) error {
	return a.cache.Delete(ctx, lockKey(key))
}

// SetResult implements payment.IdempotencyCache.
func (a *Adapter) SetResult(ctx context.Context, key string, value string, ttl time.Duration) error {
	return a.cache.Set(ctx, resultKey(key), value, ttl)
}

// ScheduleTimeout implements payment.TimeoutScheduler.
func (a *Adapter) ScheduleTimeout(ctx context.Context, paymentID string, rec payment.TimeoutRecord, ttl time.Duration) error {
	encoded, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("rediscache: encode timeout record: %w", err)
	}
	return a.cache.Set(ctx, timeoutKeyPrefix+paymentID, string(encoded), ttl)
}

// Subscribe implements payment.TimeoutScheduler, listening for Redis
// keyspace-expiration notifications and extracting the payment ID from keys
// matching the payments:timeout: prefix (spec §4.5).
func (a *Adapter) Subscribe(ctx context.Context) (<-chan string, error) {
	pubsub := a.cache.Subscribe(ctx, "__keyevent@*__:expired")
	out := make(chan string)

	go func() {
		defer close(out)
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if !strings.HasPrefix(msg.Payload, timeoutKeyPrefix) {
					continue
				}
				paymentID := strings.TrimPrefix(msg.Payload, timeoutKeyPrefix)
				select {
				case out <- paymentID:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

func processedKey(provider payment.Provider, providerEventID string) string {
	return fmt.Sprintf("processed:%s:%s", provider, providerEventID)
}

// IsProcessed implements payment.ProcessedEventCache.
func (a *Adapter) IsProcessed(ctx context.Context, provider payment.Provider, providerEventID string) (bool, error) {
	n, err := a.cache.Exists(ctx, processedKey(provider, providerEventID))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkProcessed implements payment.ProcessedEventCache.
func (a *Adapter) MarkProcessed(ctx context.Context, provider payment.Provider, providerEventID string, ttl time.Duration) error {
	return a.cache.Set(ctx, processedKey(provider, providerEventID), "1", ttl)
}
