package analysis

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when an analysis ID is unknown.
var ErrNotFound = errors.New("analysis not found")

// ErrQuotaExceeded indicates the AI provider returned a quota/limit error (HTTP 429 or similar).
var ErrQuotaExceeded = errors.New("ai quota exceeded")

// AdapterErrorKind classifies AI adapter failures
type AdapterErrorKind string

const (
	KindNotConfigured AdapterErrorKind = "not_configured"
	KindTimeout       AdapterErrorKind = "timeout"
	KindTransport     AdapterErrorKind = "transport"
	KindMalformed     AdapterErrorKind = "malformed"
	KindQuota         AdapterErrorKind = "quota"
)

// AdapterError is the single failure type of the AI adapter.
type AdapterError struct {
	Kind AdapterErrorKind
	Err  error
}

func (e *AdapterError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("ai adapter: %s", e.Kind)
	}
	return fmt.Sprintf("ai adapter: %s: %v", e.Kind, e.Err)
}

func (e *AdapterError) Unwrap() error { return e.Err }

// NewAdapterError wraps err with kind.
func NewAdapterError(kind AdapterErrorKind, err error) *AdapterError {
	return &AdapterError{Kind: kind, Err: err}
}
