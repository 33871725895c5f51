package paypal

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/crosslogic/payment-orchestrator/internal/payment"
)

// selfSignedCert generates a throwaway RSA keypair and a self-signed
// certificate PEM, mirroring the shape PayPal serves at its cert-url.
func selfSignedCert(t *testing.T) (*rsa.PrivateKey, []byte) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate rsa key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("failed to create self-signed cert: %v", err)
	}
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	return key, pemBytes
}

func TestVerifyWebhookSignature_ValidSignature(t *testing.T) {
	key, certPEM := selfSignedCert(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(certPEM)
	}))
	defer srv.Close()

	a := New(Config{WebhookID: "wh_1"}, zap.NewNop())
	body := []byte(`{"event_type":"PAYMENT.CAPTURE.COMPLETED"}`)

	headers := map[string]string{
		"paypal-auth-algo":         "SHA256withRSA",
		"paypal-cert-url":          srv.URL,
		"paypal-transmission-id":   "txn_1",
		"paypal-transmission-time": "2026-07-29T00:00:00Z",
	}

	bodyHash := sha256.Sum256(body)
	expected := headers["paypal-transmission-id"] + "|" + headers["paypal-transmission-time"] + "|wh_1|" + hexOf(bodyHash[:])
	digest := sha256.Sum256([]byte(expected))
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, 5, digest[:]) // crypto.SHA256 == 5
	if err != nil {
		t.Fatalf("failed to sign: %v", err)
	}
	headers["paypal-transmission-sig"] = base64.StdEncoding.EncodeToString(sig)

	verified, err := a.VerifyWebhookSignature(context.Background(), body, headers)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !verified {
		t.Error("expected a correctly signed webhook to verify")
	}
}

func TestVerifyWebhookSignature_TamperedBodyFailsVerification(t *testing.T) {
	key, certPEM := selfSignedCert(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(certPEM)
	}))
	defer srv.Close()

	a := New(Config{WebhookID: "wh_1"}, zap.NewNop())
	signedBody := []byte(`{"event_type":"PAYMENT.CAPTURE.COMPLETED"}`)

	headers := map[string]string{
		"paypal-auth-algo":         "SHA256withRSA",
		"paypal-cert-url":          srv.URL,
		"paypal-transmission-id":   "txn_1",
		"paypal-transmission-time": "2026-07-29T00:00:00Z",
	}
	bodyHash := sha256.Sum256(signedBody)
	expected := headers["paypal-transmission-id"] + "|" + headers["paypal-transmission-time"] + "|wh_1|" + hexOf(bodyHash[:])
	digest := sha256.Sum256([]byte(expected))
	sig, _ := rsa.SignPKCS1v15(rand.Reader, key, 5, digest[:])
	headers["paypal-transmission-sig"] = base64.StdEncoding.EncodeToString(sig)

	tamperedBody := []byte(`{"event_type":"PAYMENT.CAPTURE.DENIED"}`)
	verified, err := a.VerifyWebhookSignature(context.Background(), tamperedBody, headers)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if verified {
		t.Error("expected a tampered body to fail verification")
	}
}

func TestVerifyWebhookSignature_MissingHeadersErrors(t *testing.T) {
	a := New(Config{WebhookID: "wh_1"}, zap.NewNop())
	_, err := a.VerifyWebhookSignature(context.Background(), []byte("{}"), map[string]string{})
	if err == nil {
		t.Fatal("expected an error for missing signature headers")
	}
}

func TestToMajorUnits(t *testing.T) {
	tests := []struct {
		amount int64
		want   string
	}{
		{1000, "10.00"},
		{1099, "10.99"},
		{5, "0.05"},
		{100, "1.00"},
	}
	for _, tt := range tests {
		got := toMajorUnits(payment.Money{Amount: tt.amount, Currency: "USD"})
		if got != tt.want {
			t.Errorf("toMajorUnits(%d) = %s, want %s", tt.amount, got, tt.want)
		}
	}
}

func hexOf(b []byte) string {
	const hextable = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = hextable[c>>4]
		out[i*2+1] = hextable[c&0x0f]
	}
	return string(out)
}
