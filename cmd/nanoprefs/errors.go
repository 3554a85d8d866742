package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/arthur-debert/nanoprefs/nanoprefs/storage"
)

// CLIError is a user-facing error with context and suggestions.
type CLIError struct {
	Operation   string // e.g. "get", "set"
	Cause       string
	Details     string
	Suggestions []string
	Underlying  error
}

func (e *CLIError) Error() string {
	var msg strings.Builder

	if e.Operation != "" {
		fmt.Fprintf(&msg, "failed to %s", e.Operation)
	} else {
		msg.WriteString("operation failed")
	}
	if e.Cause != "" {
		fmt.Fprintf(&msg, ": %s", e.Cause)
	}
	if e.Details != "" {
		fmt.Fprintf(&msg, " (%s)", e.Details)
	}
	if len(e.Suggestions) > 0 {
		msg.WriteString("\n\nSuggestions:")
		for i, s := range e.Suggestions {
			fmt.Fprintf(&msg, "\n  %d. %s", i+1, s)
		}
	}
	return msg.String()
}

func (e *CLIError) Unwrap() error {
	return e.Underlying
}

func newKeyNotFoundError(operation, key string) *CLIError {
	return &CLIError{
		Operation:   operation,
		Cause:       fmt.Sprintf("no value stored under %q", key),
		Suggestions: []string{suggestDump},
	}
}

func newValueError(operation, kind, raw string, err error) *CLIError {
	return &CLIError{
		Operation:   operation,
		Cause:       fmt.Sprintf("cannot parse %q as %s", raw, kind),
		Details:     err.Error(),
		Suggestions: []string{suggestKind},
		Underlying:  err,
	}
}

func newConfigError(operation, issue string, suggestions ...string) *CLIError {
	return &CLIError{
		Operation:   operation,
		Cause:       "configuration error: " + issue,
		Suggestions: suggestions,
	}
}

// wrapError gives err CLI context. CLIErrors pass through.
func wrapError(operation string, err error) error {
	if err == nil {
		return nil
	}
	var cliErr *CLIError
	if errors.As(err, &cliErr) {
		if cliErr.Operation == "" {
			cliErr.Operation = operation
		}
		return cliErr
	}

	cause := "store operation failed"
	var suggestions []string
	lower := strings.ToLower(err.Error())
	switch {
	case errors.Is(err, storage.ErrClosed):
		cause = "store is closed"
	case strings.Contains(lower, "permission denied"):
		cause = "insufficient permissions to access the store"
		suggestions = append(suggestions, suggestPerms)
	case strings.Contains(lower, "database is locked"), strings.Contains(lower, "lock"):
		cause = "store is locked by another process"
	case strings.Contains(lower, "connection refused"), strings.Contains(lower, "ping"):
		cause = "cannot reach the store server"
		suggestions = append(suggestions, suggestConfig)
	}
	return &CLIError{
		Operation:   operation,
		Cause:       cause,
		Details:     err.Error(),
		Suggestions: suggestions,
		Underlying:  err,
	}
}

const (
	suggestDump   = "Run 'nanoprefs dump' to list stored keys"
	suggestKind   = "Use --kind with one of: string, string_set, int, long, float, boolean"
	suggestPerms  = "Check file permissions and directory access"
	suggestConfig = "Check --backend, --path and the NANOPREFS_* environment variables"
)
