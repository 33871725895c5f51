// Package exchange implements payment.ExchangeClient against the public
// Frankfurter FX API, cached in Redis per spec §6's `fx:BASE:TARGET`
// namespace with a 60s fresh TTL and a stale-on-failure fallback. The HTTP
// shape (context-aware client, JSON decode, wrapped errors) follows the
// teacher's internal/skypilot.Client.
package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/crosslogic/payment-orchestrator/pkg/cache"
)

const (
	freshTTL = 60 * time.Second
	staleTTL = 24 * time.Hour
)

type cachedRate struct {
	Rate      float64   `json:"rate"`
	Timestamp time.Time `json:"timestamp"`
}

// Client implements payment.ExchangeClient.
type Client struct {
	baseURL    string
	httpClient *http.Client
	cache      *cache.Cache
	logger     *zap.Logger
}

func New(baseURL string, c *cache.Cache, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = "https://api.frankfurter.app"
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		cache:      c,
		logger:     logger,
	}
}

// GetRate returns the base->target FX rate, serving a fresh cached value
// when present, fetching on a miss, and falling back to a stale cached value
// if the fetch itself fails (spec §6).
func (c *Client) GetRate(ctx context.Context, base, target string) (float64, time.Time, error) {
	freshKey := fmt.Sprintf("fx:%s:%s", base, target)
	staleKey := freshKey + ":stale"

	if raw, err := c.cache.Get(ctx, freshKey); err == nil && raw != "" {
		var cr cachedRate
		if err := json.Unmarshal([]byte(raw), &cr); err == nil {
			return cr.Rate, cr.Timestamp, nil
		}
	}

	rate, asOf, err := c.fetch(ctx, base, target)
	if err != nil {
		c.logger.Warn("exchange: fetch failed, falling back to stale rate",
			zap.String("base", base), zap.String("target", target), zap.Error(err))
		if raw, cacheErr := c.cache.Get(ctx, staleKey); cacheErr == nil && raw != "" {
			var cr cachedRate
			if err := json.Unmarshal([]byte(raw), &cr); err == nil {
				return cr.Rate, cr.Timestamp, nil
			}
		}
		return 0, time.Time{}, fmt.Errorf("exchange: no rate available for %s->%s: %w", base, target, err)
	}

	cr := cachedRate{Rate: rate, Timestamp: asOf}
	encoded, _ := json.Marshal(cr)
	if err := c.cache.Set(ctx, freshKey, string(encoded), freshTTL); err != nil {
		c.logger.Warn("exchange: failed to cache fresh rate", zap.Error(err))
	}
	if err := c.cache.Set(ctx, staleKey, string(encoded), staleTTL); err != nil {
		c.logger.Warn("exchange: failed to cache stale fallback rate", zap.Error(err))
	}

	return rate, asOf, nil
}

func (c *Client) fetch(ctx context.Context, base, target string) (float64, time.Time, error) {
	url := fmt.Sprintf("%s/latest?from=%s&to=%s", c.baseURL, base, target)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, time.Time{}, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("fx request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, time.Time{}, fmt.Errorf("fx provider returned status %d", resp.StatusCode)
	}

	var out struct {
		Amount float64            `json:"amount"`
		Base   string             `json:"base"`
		Date   string             `json:"date"`
		Rates  map[string]float64 `json:"rates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, time.Time{}, fmt.Errorf("decode fx response: %w", err)
	}

	rate, ok := out.Rates[target]
	if !ok {
		return 0, time.Time{}, fmt.Errorf("fx response missing rate for %s", target)
	}

	asOf, err := time.Parse("2006-01-02", out.Date)
	if err != nil {
		asOf = time.Now().UTC()
	}

	return rate, asOf, nil
}
