package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors shared across layers. Services wrap these with context;
// the HTTP layer maps them to status codes with errors.Is.
var (
	// ErrNotFound indicates the requested record or symbol does not exist.
	ErrNotFound = errors.New("not found")

	// ErrValidation indicates a malformed client request. Use
	// NewValidationError to carry the complete per-field report.
	ErrValidation = errors.New("validation failed")

	// ErrPriceUnavailable indicates a quote could not be fetched, so
	// offset stop levels cannot be resolved. Transient; callers may retry.
	ErrPriceUnavailable = errors.New("price unavailable")

	// ErrBroker indicates the broker rejected an operation. The broker's
	// message is surfaced verbatim and the operation is never retried
	// automatically.
	ErrBroker = errors.New("broker error")

	// ErrIndeterminate indicates a network failure with unknown broker-side
	// outcome. The caller must reconcile via position/order lookups before
	// retrying; blind resubmission risks duplicate orders.
	ErrIndeterminate = errors.New("indeterminate broker outcome")

	// ErrAlreadyClosed indicates a close request against a position whose
	// net exposure is already zero. Not retryable.
	ErrAlreadyClosed = errors.New("position already closed")

	// ErrLockHeld indicates another request holds the per-position lock.
	ErrLockHeld = errors.New("lock held")

	// ErrRateLimited indicates the client exceeded the request budget.
	ErrRateLimited = errors.New("rate limited")

	// ErrUnauthorized indicates a missing or invalid API key.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrConflict indicates an operation that contradicts current state,
	// such as cancelling an order that already reached a terminal status.
	ErrConflict = errors.New("conflict")
)

// FieldError names a single violated request field.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e FieldError) String() string {
	return e.Field + ": " + e.Reason
}

// ValidationError carries every violated field of a request, so callers get
// the complete report in one round trip. It matches ErrValidation under
// errors.Is.
type ValidationError struct {
	Fields []FieldError
}

// NewValidationError builds a ValidationError from the collected field
// violations.
func NewValidationError(fields []FieldError) *ValidationError {
	return &ValidationError{Fields: fields}
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.String()
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(parts, "; "))
}

// Is lets errors.Is(err, ErrValidation) match a *ValidationError.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// BrokerRejection wraps the broker's verbatim rejection message together with
// the local order id for correlation. It matches ErrBroker under errors.Is.
type BrokerRejection struct {
	OrderID string
	Message string
}

func (e *BrokerRejection) Error() string {
	if e.OrderID == "" {
		return fmt.Sprintf("broker rejected order: %s", e.Message)
	}
	return fmt.Sprintf("broker rejected order %s: %s", e.OrderID, e.Message)
}

// Is lets errors.Is(err, ErrBroker) match a *BrokerRejection.
func (e *BrokerRejection) Is(target error) bool {
	return target == ErrBroker
}
