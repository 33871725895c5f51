// Package orderclient implements payment.OrderClient and payment.CourseClient
// as an HTTP RPC client to the Order/Course services (spec §6), following the
// teacher's internal/skypilot.Client shape: bounded retries, exponential
// backoff, a single doRequest helper shared across calls.
package orderclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/crosslogic/payment-orchestrator/internal/payment"
)

// Config configures the Order/Course service client.
type Config struct {
	BaseURL        string
	Token          string
	RequestTimeout time.Duration
	MaxRetries     int
}

// Client implements payment.OrderClient and payment.CourseClient.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
}

func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 2
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		logger:     logger,
	}
}

type orderResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Amount struct {
		Total    int64  `json:"total"`
		Currency string `json:"currency"`
	} `json:"amount"`
	Items []struct {
		CourseID string `json:"courseId"`
		Price    int64  `json:"price"`
		Currency string `json:"currency"`
	} `json:"items"`
}

// GetOrderByID implements payment.OrderClient.
func (c *Client) GetOrderByID(ctx context.Context, orderID, userID string) (*payment.OrderInfo, error) {
	path := fmt.Sprintf("/internal/orders/%s?userId=%s", orderID, userID)

	var out orderResponse
	if err := c.doRequestWithRetry(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, fmt.Errorf("orderclient: get order %s: %w", orderID, err)
	}

	items := make([]payment.OrderItem, 0, len(out.Items))
	for _, it := range out.Items {
		items = append(items, payment.OrderItem{CourseID: it.CourseID, Price: it.Price, Currency: it.Currency})
	}

	return &payment.OrderInfo{
		ID:     out.ID,
		Status: out.Status,
		Amount: payment.Money{Amount: out.Amount.Total, Currency: out.Amount.Currency},
		Items:  items,
	}, nil
}

type courseResponse struct {
	Courses map[string]struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		Thumbnail   string `json:"thumbnail"`
	} `json:"courses"`
}

// GetCoursesByIDs implements payment.CourseClient.
func (c *Client) GetCoursesByIDs(ctx context.Context, ids []string) (map[string]payment.CourseInfo, error) {
	if len(ids) == 0 {
		return map[string]payment.CourseInfo{}, nil
	}

	path := "/internal/courses?ids=" + strings.Join(ids, ",")

	var out courseResponse
	if err := c.doRequestWithRetry(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, fmt.Errorf("orderclient: get courses: %w", err)
	}

	result := make(map[string]payment.CourseInfo, len(out.Courses))
	for id, c := range out.Courses {
		result[id] = payment.CourseInfo{Title: c.Title, Description: c.Description, Thumbnail: c.Thumbnail}
	}
	return result, nil
}

func (c *Client) doRequestWithRetry(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.calculateBackoff(attempt)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := c.doRequest(ctx, method, path, body, result)
		if err == nil {
			return nil
		}
		lastErr = err
		if !isRetryable(err) {
			return err
		}
		c.logger.Warn("orderclient: request failed, will retry",
			zap.String("method", method), zap.String("path", path),
			zap.Int("attempt", attempt), zap.Error(err))
	}
	return fmt.Errorf("request failed after %d retries: %w", c.cfg.MaxRetries, lastErr)
}

func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &apiError{statusCode: resp.StatusCode, message: string(respBody)}
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

type apiError struct {
	statusCode int
	message    string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("order service returned status %d: %s", e.statusCode, e.message)
}

func isRetryable(err error) bool {
	if apiErr, ok := err.(*apiError); ok {
		return apiErr.statusCode >= 500 || apiErr.statusCode == http.StatusTooManyRequests
	}
	return true
}

func (c *Client) calculateBackoff(attempt int) time.Duration {
	base := time.Second
	delay := time.Duration(float64(base) * math.Pow(2, float64(attempt-1)))
	maxDelay := 10 * time.Second
	if delay > maxDelay {
		delay = maxDelay
	}
	jitter := float64(delay) * 0.25
	delay += time.Duration(jitter * (2*rand.Float64() - 1))
	return delay
}
