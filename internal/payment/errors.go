package payment

import (
	"errors"
	"fmt"
)

// Kind is the error taxonomy from spec §7. Use-case and adapter code raises
// Kind-tagged errors; the RPC boundary (internal/rpcserver) maps Kind to a
// stable RPC code instead of leaking Go error strings to callers.
type Kind string

const (
	KindNotFound           Kind = "NOT_FOUND"
	KindInvalidTransition  Kind = "INVALID_TRANSITION"
	KindInvalidOrderState  Kind = "INVALID_ORDER_STATE"
	KindAmountMismatch     Kind = "AMOUNT_MISMATCH"
	KindProviderCancelFail Kind = "PROVIDER_CANCEL_FAILED"
	KindTimeout            Kind = "TIMEOUT"
	KindInProgress         Kind = "IN_PROGRESS"
	KindCurrencyConversion Kind = "CURRENCY_CONVERSION"
	KindSignatureInvalid   Kind = "SIGNATURE_INVALID"
	KindMissingIdempotency Kind = "MISSING_IDEMPOTENCY_KEY"
	KindInternal           Kind = "INTERNAL_UNKNOWN"
)

// Error is a domain error carrying a stable Kind alongside the message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a *Error with a formatted message.
func NewError(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds a *Error carrying a lower-level cause.
func Wrap(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the Kind from err, defaulting to KindInternal.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}
