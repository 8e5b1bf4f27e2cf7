package attribution

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the attribution error taxonomy. Availability and
// throttling errors are retried by the processing layer; validation and
// conflict errors are deterministic and never retried automatically.
var (
	// ErrDataUnavailable signals that the touchpoint or spend source is
	// unreachable. Callers retry with exponential backoff.
	ErrDataUnavailable = errors.New("data source unavailable")

	// ErrThrottled is the backpressure signal raised when the processing
	// queue is full. Callers retry with backoff.
	ErrThrottled = errors.New("processing queue full")

	// ErrConflict is returned on an attempted write of an already-persisted
	// attribution result version. A new computationVersion is required.
	ErrConflict = errors.New("computation version already persisted")

	// ErrNotFound is returned when a requested resource does not exist.
	ErrNotFound = errors.New("resource not found")
)

// FieldError carries field-level detail for a validation failure.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ValidationError reports one or more malformed fields on an ingested
// record or model configuration. It is rejected immediately, never retried.
type ValidationError struct {
	Fields []FieldError
}

// Add appends a field-level failure.
func (e *ValidationError) Add(field, reason string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Reason: reason})
}

// OrNil returns the error when it holds at least one field failure,
// otherwise nil. Lets validators accumulate and return in one expression.
func (e *ValidationError) OrNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Reason))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// NewValidationError builds a single-field validation error.
func NewValidationError(field, reason string) *ValidationError {
	v := &ValidationError{}
	v.Add(field, reason)
	return v
}

// Stable error codes surfaced at the API boundary. User-visible failures
// always carry one of these, never raw internal error text.
const (
	CodeValidation      = "VALIDATION_ERROR"
	CodeDataUnavailable = "DATA_UNAVAILABLE"
	CodeThrottled       = "THROTTLED"
	CodeConflict        = "CONFLICT"
	CodeNotFound        = "NOT_FOUND"
	CodeInternal        = "INTERNAL_ERROR"
)

// CodeFor maps an error to its stable taxonomy code.
func CodeFor(err error) string {
	var v *ValidationError
	switch {
	case errors.As(err, &v):
		return CodeValidation
	case errors.Is(err, ErrDataUnavailable):
		return CodeDataUnavailable
	case errors.Is(err, ErrThrottled):
		return CodeThrottled
	case errors.Is(err, ErrConflict):
		return CodeConflict
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	}
	return CodeInternal
}
