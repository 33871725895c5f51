// Package paypal implements payment.ProviderAdapter for PayPal Checkout
// Orders v2. No PayPal SDK appears anywhere in the retrieved example
// corpus, so this client is hand-rolled against the retry/backoff HTTP
// shape of the teacher's internal/skypilot.Client (doRequestWithRetry,
// exponential backoff with jitter, connection-pooled http.Transport).
package paypal

import (
	"bytes"
	"context"
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/crosslogic/payment-orchestrator/internal/payment"
	"go.uber.org/zap"
)

var supportedCurrencies = []string{"USD", "EUR", "GBP", "CAD", "AUD", "JPY"}

const certCacheTTL = 12 * time.Hour

// Config configures the PayPal adapter.
type Config struct {
	ClientID      string
	ClientSecret  string
	WebhookID     string
	BaseURL       string // e.g. https://api-m.sandbox.paypal.com
	Timeout       time.Duration
	MaxRetries    int
	RetryDelay    time.Duration
	RetryMaxDelay time.Duration
}

// Adapter implements payment.ProviderAdapter for PayPal.
type Adapter struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger

	tokenMu     sync.Mutex
	accessToken string
	tokenExpiry time.Time

	certMu    sync.Mutex
	certCache map[string]certCacheEntry
}

type certCacheEntry struct {
	pubKey    *rsa.PublicKey
	fetchedAt time.Time
}

// New builds a PayPal adapter with production defaults mirroring the
// teacher's SkyPilot client (5m timeout, 3 retries, 1s/30s backoff bounds).
func New(cfg Config, logger *zap.Logger) *Adapter {
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.RetryMaxDelay == 0 {
		cfg.RetryMaxDelay = 30 * time.Second
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api-m.paypal.com"
	}

	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		DialContext:         (&net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:   true,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	return &Adapter{
		cfg:        cfg,
		httpClient: &http.Client{Transport: transport, Timeout: cfg.Timeout},
		logger:     logger,
		certCache:  make(map[string]certCacheEntry),
	}
}

func (a *Adapter) Name() payment.Provider { return payment.ProviderPayPal }

func (a *Adapter) SupportedCurrencies() []string { return supportedCurrencies }

func (a *Adapter) IsCurrencySupported(code string) bool {
	for _, c := range supportedCurrencies {
		if c == code {
			return true
		}
	}
	return false
}

func (a *Adapter) IsAvailable(ctx context.Context) bool {
	return a.cfg.ClientID != "" && a.cfg.ClientSecret != ""
}

// CreateSession creates a PayPal checkout order (spec §4.3).
func (a *Adapter) CreateSession(ctx context.Context, req payment.CreateSessionRequest) (*payment.SessionResult, error) {
	body := map[string]interface{}{
		"intent": "CAPTURE",
		"purchase_units": []map[string]interface{}{
			{
				"reference_id": req.OrderID,
				"amount": map[string]interface{}{
					"currency_code": req.Amount.Currency,
					"value":         toMajorUnits(req.Amount),
				},
			},
		},
		"application_context": map[string]interface{}{
			"return_url": req.SuccessURL,
			"cancel_url": req.CancelURL,
		},
	}

	var out struct {
		ID    string `json:"id"`
		Links []struct {
			Href string `json:"href"`
			Rel  string `json:"rel"`
		} `json:"links"`
	}

	headers := map[string]string{"PayPal-Request-Id": req.IdempotencyKey}
	if err := a.doRequestWithRetry(ctx, http.MethodPost, "/v2/checkout/orders", body, &out, headers); err != nil {
		return nil, fmt.Errorf("paypal: create order: %w", err)
	}

	approvalURL := ""
	for _, l := range out.Links {
		if l.Rel == "approve" {
			approvalURL = l.Href
			break
		}
	}

	return &payment.SessionResult{
		Provider:        payment.ProviderPayPal,
		ProviderOrderID: out.ID,
		Amount:          req.Amount,
		PayPalData:      &payment.PayPalSessionData{ApprovalURL: approvalURL},
	}, nil
}

// Resolve captures the order server-side (spec §4.3).
func (a *Adapter) Resolve(ctx context.Context, req payment.ResolveRequest) (*payment.ResolveResult, error) {
	var out struct {
		Status string `json:"status"`
	}
	path := fmt.Sprintf("/v2/checkout/orders/%s/capture", req.ProviderOrderID)
	if err := a.doRequestWithRetry(ctx, http.MethodPost, path, map[string]interface{}{}, &out, nil); err != nil {
		return nil, fmt.Errorf("paypal: capture order: %w", err)
	}
	return &payment.ResolveResult{
		ProviderStatus: out.Status,
		IsVerified:     out.Status == "COMPLETED",
	}, nil
}

// Cancel makes no remote call and always reports success: PayPal has no
// order-cancel API, so the cancel use case's local state change (session
// FAILED, payment CANCELLED) is the whole cancellation (spec §4.3).
func (a *Adapter) Cancel(ctx context.Context, providerOrderID, reason string) (*payment.CancelResult, error) {
	return &payment.CancelResult{Success: true}, nil
}

func (a *Adapter) Refund(ctx context.Context, req payment.RefundRequest) (*payment.RefundResult, error) {
	return nil, fmt.Errorf("paypal: refund use case out of scope")
}

// VerifyWebhookSignature validates the five PayPal transmission headers
// against the raw body (spec §4.5). The expected signature string is
// transmissionId|transmissionTime|webhookId|sha256(bodyJSON), verified as
// SHA256withRSA (PKCS#1 v1.5) against the base64 transmission signature. The
// paypal-auth-algo header does not select the algorithm: a value other than a
// SHA256 one is only logged, and SHA256 is still used.
func (a *Adapter) VerifyWebhookSignature(ctx context.Context, body []byte, headers map[string]string) (bool, error) {
	authAlgo := headers["paypal-auth-algo"]
	certURL := headers["paypal-cert-url"]
	transmissionID := headers["paypal-transmission-id"]
	transmissionSig := headers["paypal-transmission-sig"]
	transmissionTime := headers["paypal-transmission-time"]

	if certURL == "" || transmissionSig == "" {
		return false, fmt.Errorf("paypal: missing signature headers")
	}

	pubKey, err := a.certFor(ctx, certURL)
	if err != nil {
		return false, fmt.Errorf("paypal: fetch cert: %w", err)
	}

	bodyHash := sha256.Sum256(body)
	expected := fmt.Sprintf("%s|%s|%s|%x", transmissionID, transmissionTime, a.cfg.WebhookID, bodyHash)

	sig, err := base64.StdEncoding.DecodeString(transmissionSig)
	if err != nil {
		return false, fmt.Errorf("paypal: decode signature: %w", err)
	}

	digest := sha256.Sum256([]byte(expected))
	hashAlgo := crypto.SHA256
	if strings.Contains(strings.ToUpper(authAlgo), "SHA256") == false {
		a.logger.Warn("paypal: unexpected auth algo, defaulting to SHA256", zap.String("algo", authAlgo))
	}

	if err := rsa.VerifyPKCS1v15(pubKey, hashAlgo, digest[:], sig); err != nil {
		return false, nil
	}
	return true, nil
}

// certFor returns the cached public key for a cert-url, fetching and caching
// it for 12h keyed by sha256(cert-url) if absent or stale (spec §4.5).
func (a *Adapter) certFor(ctx context.Context, certURL string) (*rsa.PublicKey, error) {
	key := fmt.Sprintf("%x", sha256.Sum256([]byte(certURL)))

	a.certMu.Lock()
	entry, ok := a.certCache[key]
	a.certMu.Unlock()
	if ok && time.Since(entry.fetchedAt) < certCacheTTL {
		return entry.pubKey, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, certURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	pemBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("paypal: no PEM block in cert")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("paypal: parse cert: %w", err)
	}
	pubKey, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("paypal: cert public key is not RSA")
	}

	a.certMu.Lock()
	a.certCache[key] = certCacheEntry{pubKey: pubKey, fetchedAt: time.Now()}
	a.certMu.Unlock()

	return pubKey, nil
}

// token fetches (and caches) an OAuth2 client-credentials access token.
func (a *Adapter) token(ctx context.Context) (string, error) {
	a.tokenMu.Lock()
	defer a.tokenMu.Unlock()

	if a.accessToken != "" && time.Now().Before(a.tokenExpiry) {
		return a.accessToken, nil
	}

	form := strings.NewReader("grant_type=client_credentials")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/v1/oauth2/token", form)
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(a.cfg.ClientID, a.cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("paypal: oauth token request: %w", err)
	}
	defer resp.Body.Close()

	var out struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("paypal: decode oauth response: %w", err)
	}
	if out.AccessToken == "" {
		return "", fmt.Errorf("paypal: oauth token request returned no token (status %d)", resp.StatusCode)
	}

	a.accessToken = out.AccessToken
	a.tokenExpiry = time.Now().Add(time.Duration(out.ExpiresIn-60) * time.Second)
	return a.accessToken, nil
}

// doRequestWithRetry mirrors the teacher's skypilot.Client retry loop:
// exponential backoff with jitter, bounded by maxRetries, aborting early on
// non-retryable (4xx) errors.
func (a *Adapter) doRequestWithRetry(ctx context.Context, method, path string, body interface{}, result interface{}, extraHeaders map[string]string) error {
	var lastErr error
	for attempt := 0; attempt <= a.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := a.calculateBackoff(attempt)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := a.doRequest(ctx, method, path, body, result, extraHeaders)
		if err == nil {
			return nil
		}
		lastErr = err
		if !isRetryable(err) {
			return err
		}
		a.logger.Warn("paypal: request failed, will retry",
			zap.String("method", method), zap.String("path", path),
			zap.Int("attempt", attempt), zap.Error(err))
	}
	return fmt.Errorf("paypal: request failed after %d retries: %w", a.cfg.MaxRetries, lastErr)
}

func (a *Adapter) doRequest(ctx context.Context, method, path string, body interface{}, result interface{}, extraHeaders map[string]string) error {
	tok, err := a.token(ctx)
	if err != nil {
		return err
	}

	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.cfg.BaseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+tok)
	for k, v := range extraHeaders {
		req.Header.Set(k, v)
	}

	resp, err := a.httpClient.Do(req)
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
	return fmt.Sprintf("paypal api error (status %d): %s", e.statusCode, e.message)
}

func isRetryable(err error) bool {
	if apiErr, ok := err.(*apiError); ok {
		return apiErr.statusCode >= 500 || apiErr.statusCode == http.StatusTooManyRequests
	}
	return true
}

func (a *Adapter) calculateBackoff(attempt int) time.Duration {
	delay := time.Duration(float64(a.cfg.RetryDelay) * math.Pow(2, float64(attempt-1)))
	if delay > a.cfg.RetryMaxDelay {
		delay = a.cfg.RetryMaxDelay
	}
	jitter := float64(delay) * 0.25
	delay += time.Duration(jitter * (2*rand.Float64() - 1))
	return delay
}

// toMajorUnits renders a minor-unit amount as the decimal string PayPal's
// v2 orders API expects (spec §9: minor units are internal, major-unit
// string formatting is the adapter's responsibility).
func toMajorUnits(m payment.Money) string {
	whole := m.Amount / 100
	frac := m.Amount % 100
	if frac < 0 {
		frac = -frac
	}
	return strconv.FormatInt(whole, 10) + "." + fmt.Sprintf("%02d", frac)
}
