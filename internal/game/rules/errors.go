package rules

import (
	"errors"
	"fmt"
)

// InvalidTransitionError reports a turn-engine call made in the wrong state.
// It is fatal to the call, not to the match.
type InvalidTransitionError struct {
	Op     string
	Phase  Phase
	Reason string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition %s in phase %s: %s", e.Op, e.Phase, e.Reason)
}

// InvariantViolation reports engine state that can no longer be trusted.
// A match that hits one is marked errored.
type InvariantViolation struct {
	Op     string
	Detail string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("engine invariant violated in %s: %s", e.Op, e.Detail)
}

// Violationf builds an InvariantViolation with a formatted detail.
func Violationf(op, format string, args ...any) error {
	return &InvariantViolation{Op: op, Detail: fmt.Sprintf(format, args...)}
}

// IsInvariantViolation reports whether err wraps an InvariantViolation.
func IsInvariantViolation(err error) bool {
	var v *InvariantViolation
	return errors.As(err, &v)
}

// IsInvalidTransition reports whether err wraps an InvalidTransitionError.
func IsInvalidTransition(err error) bool {
	var t *InvalidTransitionError
	return errors.As(err, &t)
}
