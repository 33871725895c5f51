package rpcserver

import (
	"net/http"
	"testing"

	"github.com/crosslogic/payment-orchestrator/internal/payment"
)

func TestRpcCode_MapsEveryKind(t *testing.T) {
	tests := []struct {
		kind payment.Kind
		code string
	}{
		{payment.KindNotFound, "NOT_FOUND"},
		{payment.KindInvalidTransition, "FAILED_PRECONDITION"},
		{payment.KindInvalidOrderState, "FAILED_PRECONDITION"},
		{payment.KindAmountMismatch, "INVALID_ARGUMENT"},
		{payment.KindProviderCancelFail, "ABORTED"},
		{payment.KindTimeout, "DEADLINE_EXCEEDED"},
		{payment.KindInProgress, "ALREADY_EXISTS"},
		{payment.KindCurrencyConversion, "UNAVAILABLE"},
		{payment.KindSignatureInvalid, "UNAUTHENTICATED"},
		{payment.KindMissingIdempotency, "INVALID_ARGUMENT"},
		{payment.KindInternal, "INTERNAL"},
		{payment.Kind("SOMETHING_UNMAPPED"), "INTERNAL"},
	}
	for _, tt := range tests {
		if got := rpcCode(tt.kind); got != tt.code {
			t.Errorf("rpcCode(%s) = %s, want %s", tt.kind, got, tt.code)
		}
	}
}

func TestHttpStatus_MapsEveryRPCCode(t *testing.T) {
	tests := []struct {
		code   string
		status int
	}{
		{"NOT_FOUND", http.StatusNotFound},
		{"FAILED_PRECONDITION", http.StatusConflict},
		{"INVALID_ARGUMENT", http.StatusBadRequest},
		{"ABORTED", http.StatusConflict},
		{"DEADLINE_EXCEEDED", http.StatusGatewayTimeout},
		{"ALREADY_EXISTS", http.StatusConflict},
		{"UNAVAILABLE", http.StatusServiceUnavailable},
		{"UNAUTHENTICATED", http.StatusUnauthorized},
		{"INTERNAL", http.StatusInternalServerError},
		{"UNMAPPED", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := httpStatus(tt.code); got != tt.status {
			t.Errorf("httpStatus(%s) = %d, want %d", tt.code, got, tt.status)
		}
	}
}
