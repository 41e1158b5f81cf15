package schema

import (
	"errors"
	"fmt"
)

var (
	// ErrParse matches any *ParseError.
	ErrParse = errors.New("json parse failure")
	// ErrValidation matches any *ValidationError.
	ErrValidation = errors.New("schema validation failure")
)

// ParseError is model output that is not JSON even after fence stripping.
type ParseError struct {
	Kind Kind
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: JSON parsing failed", e.Kind)
}

func (e *ParseError) Is(target error) bool {
	return target == ErrParse
}

// ValidationError is JSON that does not satisfy the contract of Kind.
type ValidationError struct {
	Kind Kind
	err  error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.err)
}

func (e *ValidationError) Unwrap() error {
	return e.err
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
