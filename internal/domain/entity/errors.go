package entity

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrEnvironmentSetup    = errors.New("environment setup failed")
	ErrActionExecution     = errors.New("action execution failed")
	ErrPerceptionTimeout   = errors.New("screenshot capture timeout")
	ErrModelResponse       = errors.New("malformed model response")
	ErrConsecutiveFailures = errors.New("consecutive failure limit exceeded")
	ErrModelUnavailable    = errors.New("model unavailable")
	ErrCancelled           = errors.New("run cancelled")
)

// EnvironmentSetupError reports that a backend could not be started or is no longer usable.
// Failure is FailureSessionExpired when a running session was lost, empty otherwise.
type EnvironmentSetupError struct {
	Backend string
	Op      string
	Failure FailureKind
	Err     error
}

func (e *EnvironmentSetupError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Backend, e.Op, e.Err)
}

func (e *EnvironmentSetupError) Unwrap() error { return e.Err }

func (e *EnvironmentSetupError) Is(target error) bool {
	return target == ErrEnvironmentSetup
}

func NewEnvironmentSetupError(backend, op string, err error) error {
	return &EnvironmentSetupError{Backend: backend, Op: op, Err: err}
}

// NewSessionExpiredError reports a page, target or remote session that went away mid-run.
// It is fatal like any environment error.
func NewSessionExpiredError(backend, op string, err error) error {
	return &EnvironmentSetupError{Backend: backend, Op: op, Failure: FailureSessionExpired, Err: err}
}

type FailureKind string

const (
	FailureTargetNotFound    FailureKind = "target_not_found"
	FailureTimeout           FailureKind = "timeout"
	FailureNavigation        FailureKind = "navigation_error"
	FailureUnsupportedAction FailureKind = "unsupported_action"
	FailureInvalidAction     FailureKind = "invalid_action"
	FailureSessionExpired    FailureKind = "session_expired"
	FailureOther             FailureKind = "other"
)

// ActionError is the typed failure of a single action. It is recoverable: the loop
// reports it back to the model on the next turn.
type ActionError struct {
	Kind    ActionKind
	Failure FailureKind
	Err     error
}

func (e *ActionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Failure)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Failure, e.Err)
}

func (e *ActionError) Unwrap() error { return e.Err }

func (e *ActionError) Is(target error) bool {
	return target == ErrActionExecution
}

func NewActionError(kind ActionKind, failure FailureKind, err error) error {
	return &ActionError{Kind: kind, Failure: failure, Err: err}
}

// FailureOf extracts the failure class of an action or session error, FailureOther otherwise.
func FailureOf(err error) FailureKind {
	var ae *ActionError
	if errors.As(err, &ae) {
		return ae.Failure
	}
	var ee *EnvironmentSetupError
	if errors.As(err, &ee) && ee.Failure != "" {
		return ee.Failure
	}
	return FailureOther
}

// ModelResponseError reports a model reply that could not be turned into actions or an answer.
type ModelResponseError struct {
	Reason string
	Raw    string
}

func (e *ModelResponseError) Error() string {
	return "model response: " + e.Reason
}

func (e *ModelResponseError) Is(target error) bool {
	return target == ErrModelResponse
}

// IsFatal reports whether err must terminate the run.
func IsFatal(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrEnvironmentSetup),
		errors.Is(err, ErrConsecutiveFailures),
		errors.Is(err, ErrModelUnavailable),
		errors.Is(err, ErrCancelled),
		errors.Is(err, context.Canceled):
		return true
	default:
		return false
	}
}
