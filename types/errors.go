package types

import (
	"errors"
	"fmt"
)

var (
	// ErrConfig matches every configuration error raised at registration or
	// setup time. Use errors.Is(err, types.ErrConfig).
	ErrConfig = errors.New("configuration error")

	// ErrUnsupportedType is wrapped when inference cannot classify a type.
	ErrUnsupportedType = errors.New("unsupported preference type")

	// ErrDuplicateField is wrapped when a name is registered twice with
	// different shapes.
	ErrDuplicateField = errors.New("field already registered with a different shape")

	// ErrMissingCopyFunc is wrapped when an immutable container field has no
	// copy function.
	ErrMissingCopyFunc = errors.New("missing copy function")
)

// ConfigError describes a mistake in how fields, chains or stores were
// declared. It is always returned before any value is read or written.
type ConfigError struct {
	Subject string // field name, key or type the error is about
	Reason  string // human readable explanation
	Err     error  // optional underlying sentinel or cause
}

// NewConfigError builds a ConfigError wrapping cause.
func NewConfigError(subject, reason string, cause error) *ConfigError {
	return &ConfigError{Subject: subject, Reason: reason, Err: cause}
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	msg := "configuration error"
	if e.Subject != "" {
		msg += fmt.Sprintf(" for %s", e.Subject)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += fmt.Sprintf(" (%v)", e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Is makes every ConfigError match ErrConfig.
func (e *ConfigError) Is(target error) bool {
	return target == ErrConfig
}
