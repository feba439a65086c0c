package fault

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Kind classifies a failure for verdict and propagation decisions.
type Kind string

const (
	KindNone             Kind = ""
	KindInfrastructure   Kind = "infrastructure"
	KindReadinessTimeout Kind = "readiness_timeout"
	KindLocatorTimeout   Kind = "locator_timeout"
	KindAssertion        Kind = "assertion"
	KindAccessibility    Kind = "accessibility"
	KindDeadline         Kind = "deadline"
	KindStep             Kind = "step_error"
)

// InfrastructureError reports a broken harness: browser launch or navigation commit failed.
type InfrastructureError struct {
	Op  string
	Err error
}

func (e *InfrastructureError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("infrastructure error: %s", e.Op)
	}
	return fmt.Sprintf("infrastructure error: %s: %v", e.Op, e.Err)
}

func (e *InfrastructureError) Unwrap() error { return e.Err }

// Infrastructure wraps err as an InfrastructureError for op.
func Infrastructure(op string, err error) error {
	return &InfrastructureError{Op: op, Err: err}
}

// ReadinessTimeout is a soft condition: the page or frame did not reach Signal in time.
type ReadinessTimeout struct {
	Target  string
	Signal  string
	Timeout time.Duration
	Err     error
}

func (e *ReadinessTimeout) Error() string {
	return fmt.Sprintf("%s not %s within %s", e.Target, e.Signal, e.Timeout)
}

func (e *ReadinessTimeout) Unwrap() error { return e.Err }

// LocatorTimeoutError reports a target that never became actionable.
type LocatorTimeoutError struct {
	Locator   string
	Action    string
	Timeout   time.Duration
	LastState string
	Err       error
}

func (e *LocatorTimeoutError) Error() string {
	return fmt.Sprintf("%s %s: not actionable after %s (last state: %s)", e.Action, e.Locator, e.Timeout, e.LastState)
}

func (e *LocatorTimeoutError) Unwrap() error { return e.Err }

// AssertionFailure is an expected/actual mismatch.
type AssertionFailure struct {
	Description string
	Expected    string
	Actual      string
}

func (e *AssertionFailure) Error() string {
	return fmt.Sprintf("%s: expected %q, got %q", e.Description, e.Expected, e.Actual)
}

// AccessibilityViolation is a critical-impact rule failure reported by the in-page ruleset.
type AccessibilityViolation struct {
	ID          string
	Impact      string
	Description string
	Help        string
	Nodes       int
}

func (e *AccessibilityViolation) Error() string {
	return fmt.Sprintf("accessibility %s (%s): %s [%d nodes]", e.ID, e.Impact, e.Help, e.Nodes)
}

// KindOf returns the taxonomy kind of err, or KindStep for unclassified errors.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	var infra *InfrastructureError
	var ready *ReadinessTimeout
	var locator *LocatorTimeoutError
	var assertion *AssertionFailure
	var a11y *AccessibilityViolation
	switch {
	case errors.As(err, &infra):
		return KindInfrastructure
	case errors.As(err, &locator):
		return KindLocatorTimeout
	case errors.As(err, &ready):
		return KindReadinessTimeout
	case errors.As(err, &assertion):
		return KindAssertion
	case errors.As(err, &a11y):
		return KindAccessibility
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return KindDeadline
	default:
		return KindStep
	}
}

// IsFatal reports whether err must short-circuit the scenario to teardown.
func IsFatal(err error) bool {
	switch KindOf(err) {
	case KindInfrastructure, KindDeadline:
		return true
	default:
		return false
	}
}
