package rpcserver

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/crosslogic/payment-orchestrator/internal/payment"
)

// rpcCode maps a domain Kind to the stable RPC error code the boundary
// exposes to callers (spec §7), decoupling wire error codes from Go's
// internal error taxonomy.
func rpcCode(kind payment.Kind) string {
	switch kind {
	case payment.KindNotFound:
		return "NOT_FOUND"
	case payment.KindInvalidTransition, payment.KindInvalidOrderState:
		return "FAILED_PRECONDITION"
	case payment.KindAmountMismatch:
		return "INVALID_ARGUMENT"
	case payment.KindProviderCancelFail:
		return "ABORTED"
	case payment.KindTimeout:
		return "DEADLINE_EXCEEDED"
	case payment.KindInProgress:
		return "ALREADY_EXISTS"
	case payment.KindCurrencyConversion:
		return "UNAVAILABLE"
	case payment.KindSignatureInvalid:
		return "UNAUTHENTICATED"
	case payment.KindMissingIdempotency:
		return "INVALID_ARGUMENT"
	default:
		return "INTERNAL"
	}
}

// httpStatus maps an RPC code to the HTTP status the webhook-free JSON API
// returns it as.
func httpStatus(code string) int {
	switch code {
	case "NOT_FOUND":
		return http.StatusNotFound
	case "FAILED_PRECONDITION":
		return http.StatusConflict
	case "INVALID_ARGUMENT":
		return http.StatusBadRequest
	case "ABORTED":
		return http.StatusConflict
	case "DEADLINE_EXCEEDED":
		return http.StatusGatewayTimeout
	case "ALREADY_EXISTS":
		return http.StatusConflict
	case "UNAVAILABLE":
		return http.StatusServiceUnavailable
	case "UNAUTHENTICATED":
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// writeDomainError maps a use-case error onto the JSON error envelope and
// appropriate HTTP status (spec §7). Errors not tagged with payment.Kind
// (should not happen at this boundary) fall back to INTERNAL.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	kind := payment.KindOf(err)
	code := rpcCode(kind)

	if code == "INTERNAL" {
		s.logger.Error("rpcserver: internal error", zap.Error(err))
	}

	s.writeJSON(w, httpStatus(code), map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"kind":    string(kind),
			"message": err.Error(),
		},
	})
}
