package models

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies engine failures. The kind decides whether a failure ends the run
// (fatal) or is recorded against a single step.
type ErrorKind string

const (
	ErrorKindEnvironment        ErrorKind = "EnvironmentError"
	ErrorKindActionTimeout      ErrorKind = "ActionTimeout"
	ErrorKindElementNotFound    ErrorKind = "ElementNotFound"
	ErrorKindSignalTimeout      ErrorKind = "SignalTimeout"
	ErrorKindDownloadNotStarted ErrorKind = "DownloadNotStarted"
	ErrorKindAssertionMismatch  ErrorKind = "AssertionMismatch"
	ErrorKindStateMismatch      ErrorKind = "StateMismatch"
	ErrorKindStateAmbiguity     ErrorKind = "StateAmbiguity"
	ErrorKindAborted            ErrorKind = "Aborted"
	// ErrorKindScriptError is an exception thrown by page JavaScript; it never ends the run
	ErrorKindScriptError        ErrorKind = "ScriptError"
)

var (
	ErrScenarioNotFound = errors.New("scenario not found")
	ErrReportNotFound   = errors.New("report not found")
	ErrSessionClosed    = errors.New("session closed")
)

// EngineError is the error type returned by the driver, the signal bus and the executor
type EngineError struct {
	Kind     ErrorKind
	Op       string
	Selector string
	Message  string
	Err      error
}

func (e *EngineError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Op)
	if e.Selector != "" {
		msg += fmt.Sprintf(" (%s)", e.Selector)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

// NewEngineError creates an EngineError without an underlying cause
func NewEngineError(kind ErrorKind, op, message string) *EngineError {
	return &EngineError{Kind: kind, Op: op, Message: message}
}

// WrapEngineError wraps err with engine context
func WrapEngineError(kind ErrorKind, op, selector string, err error) *EngineError {
	return &EngineError{Kind: kind, Op: op, Selector: selector, Err: err}
}

// KindOf returns the ErrorKind carried by err. Context cancellation maps to Aborted and
// deadline expiry to ActionTimeout when no EngineError is present.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var engineErr *EngineError
	if errors.As(err, &engineErr) {
		return engineErr.Kind
	}
	if errors.Is(err, context.Canceled) {
		return ErrorKindAborted
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorKindActionTimeout
	}
	return ErrorKindEnvironment
}

// IsKind reports whether err carries the given kind
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// IsFatal reports whether err must end the whole run (Errored) rather than fail one step
func IsFatal(err error) bool {
	switch KindOf(err) {
	case ErrorKindEnvironment, ErrorKindActionTimeout, ErrorKindElementNotFound, ErrorKindAborted:
		return true
	default:
		return false
	}
}
