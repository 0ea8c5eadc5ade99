// Package errdefs provides the typed error taxonomy shared across the
// execution core. Callers classify failures with the Is* predicates rather
// than matching on message text.
package errdefs

import (
	"errors"
	"fmt"
)

// Kind categorizes an error for API payloads and logs.
type Kind string

const (
	KindValidation Kind = "validation"
	KindAgent      Kind = "agent"
	KindTimeout    Kind = "timeout"
	KindGateway    Kind = "gateway"
	KindConnection Kind = "connection"
	KindConfig     Kind = "config"
	KindInternal   Kind = "internal"
)

// Sentinel base errors. Wrapped errors remain identifiable via errors.Is.
var (
	// ErrValidation is returned for malformed requests or records.
	ErrValidation = &baseError{kind: KindValidation, msg: "validation failed"}

	// ErrAgent is returned when the execution engine fails a step.
	ErrAgent = &baseError{kind: KindAgent, msg: "agent execution failed"}

	// ErrTimeout is returned when a step or run deadline is exceeded.
	ErrTimeout = &baseError{kind: KindTimeout, msg: "deadline exceeded"}

	// ErrGateway is returned when the remote tool platform is unreachable
	// or rejects a gateway operation.
	ErrGateway = &baseError{kind: KindGateway, msg: "gateway operation failed"}

	// ErrConnection is returned for misconfigured tool connections.
	ErrConnection = &baseError{kind: KindConnection, msg: "connection unavailable"}

	// ErrConfig is returned when no usable toolkit or setting exists for
	// a requested operation.
	ErrConfig = &baseError{kind: KindConfig, msg: "configuration error"}

	// ErrNotFound marks missing records; callers usually degrade rather
	// than propagate.
	ErrNotFound = &baseError{kind: KindInternal, msg: "not found"}
)

type baseError struct {
	kind Kind
	msg  string
}

func (e *baseError) Error() string {
	return e.msg
}

// Validation wraps a detail message as a validation error.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Agent wraps an engine failure with its cause preserved.
func Agent(msg string, cause error) error {
	if cause == nil {
		return fmt.Errorf("%w: %s", ErrAgent, msg)
	}
	return fmt.Errorf("%w: %s: %w", ErrAgent, msg, cause)
}

// Timeout wraps a deadline failure.
func Timeout(msg string, cause error) error {
	if cause == nil {
		return fmt.Errorf("%w: %s", ErrTimeout, msg)
	}
	return fmt.Errorf("%w: %s: %w", ErrTimeout, msg, cause)
}

// Gateway wraps a remote platform failure with its cause preserved.
func Gateway(msg string, cause error) error {
	if cause == nil {
		return fmt.Errorf("%w: %s", ErrGateway, msg)
	}
	return fmt.Errorf("%w: %s: %w", ErrGateway, msg, cause)
}

// Connection wraps a connection resolution failure.
func Connection(msg string, cause error) error {
	if cause == nil {
		return fmt.Errorf("%w: %s", ErrConnection, msg)
	}
	return fmt.Errorf("%w: %s: %w", ErrConnection, msg, cause)
}

// Config wraps a configuration failure.
func Config(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfig, fmt.Sprintf(format, args...))
}

// NotFound wraps a missing-record condition.
func NotFound(resource string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, resource)
}

// IsValidation returns true if err is or wraps ErrValidation.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsAgent returns true if err is or wraps ErrAgent.
func IsAgent(err error) bool {
	return errors.Is(err, ErrAgent)
}

// IsTimeout returns true if err is or wraps ErrTimeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsGateway returns true if err is or wraps ErrGateway.
func IsGateway(err error) bool {
	return errors.Is(err, ErrGateway)
}

// IsConnection returns true if err is or wraps ErrConnection.
func IsConnection(err error) bool {
	return errors.Is(err, ErrConnection)
}

// IsConfig returns true if err is or wraps ErrConfig.
func IsConfig(err error) bool {
	return errors.Is(err, ErrConfig)
}

// IsNotFound returns true if err is or wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// KindOf reports the taxonomy kind of err, or KindInternal when untyped.
func KindOf(err error) Kind {
	var base *baseError
	if errors.As(err, &base) {
		return base.kind
	}
	return KindInternal
}
