// Package errors provides the structured error type shared by barre packages.
//
// ContextualError records which component failed, what it was doing, and,
// for backend calls, the HTTP status and the server's own message. It
// implements Unwrap so callers can still match sentinel causes.
//
// Usage:
//
//	err := errors.New(errors.ComponentBackend, "CreateReport", cause).
//		WithStatusCode(422).
//		WithServerMessage("title is required")
package errors

import (
	stderrors "errors"
	"fmt"
)

// Component names used in ContextualError.Component.
const (
	ComponentBackend  = "backend"
	ComponentConfig   = "config"
	ComponentProvider = "provider"
	ComponentRelay    = "relay"
	ComponentSession  = "session"
	ComponentStore    = "statestore"
)

// ContextualError is a structured error type that provides consistent context
// about where and why an error occurred.
type ContextualError struct {
	// Component identifies the package that produced the error (e.g. "backend", "relay").
	Component string

	// Operation describes what was being done when the error occurred.
	Operation string

	// StatusCode is an optional HTTP status code.
	StatusCode int

	// ServerMessage is the human-readable message returned by a remote service, if any.
	ServerMessage string

	// Details holds optional structured metadata about the error.
	Details map[string]any

	// Cause is the underlying error, if any.
	Cause error
}

// New creates a ContextualError with the given component, operation, and cause.
func New(component, operation string, cause error) *ContextualError {
	return &ContextualError{
		Component: component,
		Operation: operation,
		Cause:     cause,
	}
}

// Error returns a human-readable representation of the error.
func (e *ContextualError) Error() string {
	base := fmt.Sprintf("[%s] %s", e.Component, e.Operation)

	if e.StatusCode != 0 {
		base += fmt.Sprintf(" (status %d)", e.StatusCode)
	}

	switch {
	case e.ServerMessage != "":
		base += ": " + e.ServerMessage
	case e.Cause != nil:
		base += ": " + e.Cause.Error()
	}

	return base
}

// Unwrap returns the underlying cause, enabling use with errors.Is and errors.As.
func (e *ContextualError) Unwrap() error {
	return e.Cause
}

// WithStatusCode sets the status code and returns the same error for chaining.
func (e *ContextualError) WithStatusCode(code int) *ContextualError {
	e.StatusCode = code
	return e
}

// WithServerMessage sets the message reported by the remote service.
func (e *ContextualError) WithServerMessage(msg string) *ContextualError {
	e.ServerMessage = msg
	return e
}

// WithDetails sets the details map and returns the same error for chaining.
func (e *ContextualError) WithDetails(details map[string]any) *ContextualError {
	e.Details = details
	return e
}

// UserMessage returns the most specific message suitable for showing to a
// person: the server's message when present, otherwise the error text.
// It returns "" for a nil error.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var ce *ContextualError
	if stderrors.As(err, &ce) && ce.ServerMessage != "" {
		return ce.ServerMessage
	}
	return err.Error()
}

// StatusCode extracts the status code from err, or 0 when none was recorded.
func StatusCode(err error) int {
	var ce *ContextualError
	if stderrors.As(err, &ce) {
		return ce.StatusCode
	}
	return 0
}
