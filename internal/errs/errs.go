package errs

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ValidationError rejects a malformed request before any side effect.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func Validation(format string, args ...interface{}) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// NotSellableError means the event is not open for ticket sales.
type NotSellableError struct {
	EventID string
	Status  string
}

func (e *NotSellableError) Error() string {
	return fmt.Sprintf("event %s is not available for ticket sales (status %s)", e.EventID, e.Status)
}

// NotFoundError covers missing events, carts, orders and tickets.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s %s not found", e.Kind, e.ID) }

// ConflictError carries the seat ids that failed their precondition. The
// caller recovers by re-selecting; no partial state was applied.
type ConflictError struct {
	Msg     string
	SeatIDs []string
}

func (e *ConflictError) Error() string {
	if len(e.SeatIDs) == 0 {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Msg, strings.Join(e.SeatIDs, ", "))
}

// GoneError means the cart or hold is no longer usable; the buyer must
// reserve again.
type GoneError struct {
	Msg string
}

func (e *GoneError) Error() string { return e.Msg }

// PaymentNotSucceededError reports the provider's authoritative status when
// it is not a terminal success. Seats stay held until the TTL, so the buyer
// may retry payment.
type PaymentNotSucceededError struct {
	Status string
}

func (e *PaymentNotSucceededError) Error() string {
	return fmt.Sprintf("payment not successful (status %s)", e.Status)
}

// SecurityMismatchError means the authorization's metadata does not match the
// cart and user completing the purchase. Treated as abuse or a bug; nothing
// is committed.
type SecurityMismatchError struct{}

func (e *SecurityMismatchError) Error() string {
	return "payment verification failed: authorization does not match this cart"
}

// IntegrityError is the money-captured-but-not-finalized condition. It is
// fatal and never auto-retried; the occurrence is durably recorded for
// manual reconciliation or refund.
type IntegrityError struct {
	PaymentIntentID string
	CartID          string
	SeatIDs         []string
	Reason          string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("purchase could not be finalized for cart %s (payment %s): %s",
		e.CartID, e.PaymentIntentID, e.Reason)
}

// StatusCode maps a domain error onto its HTTP status. Unknown errors map to
// 500.
func StatusCode(err error) int {
	var (
		validation  *ValidationError
		notSellable *NotSellableError
		notFound    *NotFoundError
		conflict    *ConflictError
		gone        *GoneError
		payment     *PaymentNotSucceededError
		mismatch    *SecurityMismatchError
		integrity   *IntegrityError
	)
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &notSellable):
		return http.StatusBadRequest
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &conflict):
		return http.StatusConflict
	case errors.As(err, &gone):
		return http.StatusGone
	case errors.As(err, &payment):
		return http.StatusBadRequest
	case errors.As(err, &mismatch):
		return http.StatusForbidden
	case errors.As(err, &integrity):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns what the caller is shown. Integrity errors get a
// generic contact-support response; the detailed error is logged instead.
func PublicMessage(err error) string {
	var integrity *IntegrityError
	if errors.As(err, &integrity) {
		return "your payment was received but the purchase could not be completed; please contact support"
	}
	if StatusCode(err) == http.StatusInternalServerError {
		return "internal error"
	}
	return err.Error()
}

// ConflictSeats extracts the offending seat ids from a conflict, if any.
func ConflictSeats(err error) []string {
	var conflict *ConflictError
	if errors.As(err, &conflict) {
		return conflict.SeatIDs
	}
	return nil
}
