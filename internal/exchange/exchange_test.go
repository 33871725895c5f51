package exchange

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/crosslogic/payment-orchestrator/pkg/cache"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

func setupCache(t *testing.T) (*cache.Cache, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return cache.NewCacheFromClient(client), func() {
		client.Close()
		mr.Close()
	}
}

func frankfurterStub(rate float64, calls *int32) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"amount": 1,
			"base":   "INR",
			"date":   "2026-07-29",
			"rates":  map[string]float64{"USD": rate},
		})
	}))
}

func TestGetRate_FetchesOnMiss(t *testing.T) {
	c, cleanup := setupCache(t)
	defer cleanup()
	var calls int32
	srv := frankfurterStub(0.012, &calls)
	defer srv.Close()

	client := New(srv.URL, c, zap.NewNop())
	rate, _, err := client.GetRate(context.Background(), "INR", "USD")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rate != 0.012 {
		t.Errorf("expected rate 0.012, got %v", rate)
	}
	if calls != 1 {
		t.Errorf("expected exactly one upstream fetch, got %d", calls)
	}
}

func TestGetRate_ServesFreshCacheWithoutRefetching(t *testing.T) {
	c, cleanup := setupCache(t)
	defer cleanup()
	var calls int32
	srv := frankfurterStub(0.012, &calls)
	defer srv.Close()

	client := New(srv.URL, c, zap.NewNop())
	ctx := context.Background()

	if _, _, err := client.GetRate(ctx, "INR", "USD"); err != nil {
		t.Fatalf("unexpected error on first fetch: %v", err)
	}
	if _, _, err := client.GetRate(ctx, "INR", "USD"); err != nil {
		t.Fatalf("unexpected error on second fetch: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected the second call to be served from the fresh cache, got %d upstream calls", calls)
	}
}

func TestGetRate_FallsBackToStaleOnFetchFailure(t *testing.T) {
	c, cleanup := setupCache(t)
	defer cleanup()
	var calls int32
	srv := frankfurterStub(0.012, &calls)

	client := New(srv.URL, c, zap.NewNop())
	ctx := context.Background()

	if _, _, err := client.GetRate(ctx, "INR", "USD"); err != nil {
		t.Fatalf("unexpected error priming the cache: %v", err)
	}

	// Expire the fresh key but leave the stale key alone, then take the
	// upstream down entirely.
	if err := c.Client.Del(ctx, "fx:INR:USD").Err(); err != nil {
		t.Fatalf("failed to expire fresh key: %v", err)
	}
	srv.Close()

	rate, _, err := client.GetRate(ctx, "INR", "USD")
	if err != nil {
		t.Fatalf("expected stale fallback to succeed, got %v", err)
	}
	if rate != 0.012 {
		t.Errorf("expected stale rate 0.012, got %v", rate)
	}
}

func TestGetRate_NoStaleAndFetchFailsReturnsError(t *testing.T) {
	c, cleanup := setupCache(t)
	defer cleanup()

	client := New("http://127.0.0.1:0", c, zap.NewNop())
	_, _, err := client.GetRate(context.Background(), "INR", "USD")
	if err == nil {
		t.Fatal("expected an error when there is no cached rate and the fetch fails")
	}
}

func TestNew_DefaultsBaseURL(t *testing.T) {
	c, cleanup := setupCache(t)
	defer cleanup()
	client := New("", c, zap.NewNop())
	if client.baseURL != "https://api.frankfurter.app" {
		t.Errorf("expected default base URL, got %s", client.baseURL)
	}
}
