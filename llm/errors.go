package llm

import (
	"context"
	"errors"
	"fmt"
)

// ErrTransport matches any *TransportError via errors.Is.
var ErrTransport = errors.New("llm transport failure")

// TransportError is a failure to get any completion out of the gateway:
// network errors, non-2xx statuses and deadline expiry. It is never repaired.
type TransportError struct {
	Op         string
	StatusCode int
	Timeout    bool
	err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.StatusCode, e.err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.err)
}

func (e *TransportError) Unwrap() error {
	return e.err
}

func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// NewTransportError wraps err as a transport failure of op. Context deadline
// expiry is flagged as a timeout.
func NewTransportError(op string, statusCode int, err error) error {
	return &TransportError{
		Op:         op,
		StatusCode: statusCode,
		Timeout:    errors.Is(err, context.DeadlineExceeded),
		err:        err,
	}
}

// IsTransport reports whether err is (or wraps) a transport failure.
func IsTransport(err error) bool {
	return errors.Is(err, ErrTransport)
}
