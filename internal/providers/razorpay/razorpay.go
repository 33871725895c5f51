// Package razorpay implements payment.ProviderAdapter for Razorpay, grounded
// on the pg-switcher-sdk example's razorpay.Adapter (order create/fetch via
// the official SDK, HMAC-SHA256 signature verification for both resolve and
// webhook ingress).
package razorpay

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	rzp "github.com/razorpay/razorpay-go"
	"go.uber.org/zap"

	"github.com/crosslogic/payment-orchestrator/internal/payment"
)

var supportedCurrencies = []string{"INR", "USD"}

// Config holds Razorpay credentials.
type Config struct {
	KeyID         string
	KeySecret     string
	WebhookSecret string
}

// Adapter implements payment.ProviderAdapter for Razorpay.
type Adapter struct {
	cfg    Config
	client *rzp.Client
	logger *zap.Logger
}

func New(cfg Config, logger *zap.Logger) *Adapter {
	return &Adapter{
		cfg:    cfg,
		client: rzp.NewClient(cfg.KeyID, cfg.KeySecret),
		logger: logger,
	}
}

func (a *Adapter) Name() payment.Provider { return payment.ProviderRazorpay }

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
	return a.cfg.KeyID != "" && a.cfg.KeySecret != ""
}

// CreateSession creates a Razorpay order (spec §4.3).
func (a *Adapter) CreateSession(ctx context.Context, req payment.CreateSessionRequest) (*payment.SessionResult, error) {
	notes := map[string]interface{}{
		"orderId":        req.OrderID,
		"userId":         req.UserID,
		"idempotencyKey": req.IdempotencyKey,
	}
	body := map[string]interface{}{
		"amount":          req.Amount.Amount,
		"currency":        req.Amount.Currency,
		"receipt":         req.OrderID,
		"notes":           notes,
		"payment_capture": 1,
	}

	result, err := a.client.Order.Create(body, nil)
	if err != nil {
		return nil, fmt.Errorf("razorpay: create order: %w", err)
	}
	id, _ := result["id"].(string)

	return &payment.SessionResult{
		Provider:        payment.ProviderRazorpay,
		ProviderOrderID: id,
		Amount:          req.Amount,
		RazorpayData:    &payment.RazorpaySessionData{KeyID: a.cfg.KeyID},
	}, nil
}

// Resolve verifies the HMAC-SHA256 signature over orderId|paymentId using
// the webhook secret (spec §4.3).
func (a *Adapter) Resolve(ctx context.Context, req payment.ResolveRequest) (*payment.ResolveResult, error) {
	data := req.ProviderOrderID + "|" + req.RazorpayPaymentID
	h := hmac.New(sha256.New, []byte(a.cfg.WebhookSecret))
	h.Write([]byte(data))
	expected := hex.EncodeToString(h.Sum(nil))
	verified := hmac.Equal([]byte(req.RazorpaySignature), []byte(expected))

	status := "signature_invalid"
	if verified {
		status = "captured"
	}
	return &payment.ResolveResult{ProviderStatus: status, IsVerified: verified}, nil
}

// Cancel issues a full refund for each captured payment on the order.
// Authorized, uncaptured payments get no remote call and are left as they
// are. A failure to list the order's payments or to refund one is logged and
// Success is still reported, so remote failure never blocks local
// cancellation of a PENDING payment.
func (a *Adapter) Cancel(ctx context.Context, providerOrderID, reason string) (*payment.CancelResult, error) {
	payments, err := a.client.Order.Payments(providerOrderID, nil, nil)
	if err != nil {
		a.logger.Warn("razorpay: cancel: failed to list order payments", zap.String("order_id", providerOrderID), zap.Error(err))
		return &payment.CancelResult{Success: true}, nil
	}

	items, _ := payments["items"].([]interface{})
	for _, raw := range items {
		p, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		paymentID, _ := p["id"].(string)
		status, _ := p["status"].(string)
		amount, _ := p["amount"].(float64)

		switch status {
		case "captured":
			if _, err := a.client.Payment.Refund(paymentID, int(amount), map[string]interface{}{"notes": map[string]interface{}{"reason": reason}}, nil); err != nil {
				a.logger.Warn("razorpay: cancel: refund of captured payment failed", zap.String("payment_id", paymentID), zap.Error(err))
			}
		case "authorized":
			// Razorpay has no direct void endpoint for an authorized, uncaptured
			// payment; it lapses on its own once the authorization window
			// passes. Nothing to call remotely, so this is a local no-op.
			a.logger.Info("razorpay: cancel: leaving authorized payment to lapse", zap.String("payment_id", paymentID))
		}
	}

	return &payment.CancelResult{Success: true}, nil
}

func (a *Adapter) Refund(ctx context.Context, req payment.RefundRequest) (*payment.RefundResult, error) {
	result, err := a.client.Payment.Refund(req.ProviderPaymentID, int(req.Amount.Amount), map[string]interface{}{
		"notes": map[string]interface{}{"idempotencyKey": req.IdempotencyKey},
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("razorpay: refund: %w", err)
	}
	id, _ := result["id"].(string)
	return &payment.RefundResult{ProviderRefundID: id, Status: payment.RefundSuccess}, nil
}

// VerifyWebhookSignature verifies the X-Razorpay-Signature header over the
// raw payload bytes (spec §4.5).
func (a *Adapter) VerifyWebhookSignature(payload []byte, signatureHeader string) bool {
	if signatureHeader == "" {
		return false
	}
	h := hmac.New(sha256.New, []byte(a.cfg.WebhookSecret))
	h.Write(payload)
	expected := hex.EncodeToString(h.Sum(nil))
	return hmac.Equal([]byte(signatureHeader), []byte(expected))
}
