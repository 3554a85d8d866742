package nanoprefs

import (
	"errors"
	"fmt"
	"strings"

	"github.com/arthur-debert/nanoprefs/types"
)

var (
	// ErrDecode matches every DecodeError.
	ErrDecode = errors.New("decode error")

	// ErrNotRegistered matches every NotRegisteredError.
	ErrNotRegistered = errors.New("field not registered")

	// ErrObservableDisabled is wrapped when Observe is used on a store built
	// without WithObservable.
	ErrObservableDisabled = errors.New("observable layer is not enabled")
)

// DecodeError reports a stored value that could not be turned back into the
// field's type. It is returned from reads, never swallowed.
type DecodeError struct {
	Key string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %q: %v", e.Key, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Is matches ErrDecode.
func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

func decodeError(key string, err error) error {
	var de *DecodeError
	if errors.As(err, &de) {
		return err
	}
	return &DecodeError{Key: key, Err: err}
}

// NotRegisteredError is returned when a lookup names a field that was never
// registered. Known lists every registered name, sorted.
type NotRegisteredError struct {
	Name  string
	Known []string
}

func (e *NotRegisteredError) Error() string {
	return fmt.Sprintf("field %q is not registered (known: %s)", e.Name, strings.Join(e.Known, ", "))
}

// Is matches ErrNotRegistered.
func (e *NotRegisteredError) Is(target error) bool { return target == ErrNotRegistered }

func configError(subject, reason string, cause error) error {
	return types.NewConfigError(subject, reason, cause)
}
