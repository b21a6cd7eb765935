package prompt

import (
	"errors"
	"fmt"
)

var (
	// ErrPromptNotFound is returned for an unknown prompt id.
	ErrPromptNotFound = errors.New("prompt not found")
	// ErrPromptConsumed is returned when a prompt was already resolved.
	ErrPromptConsumed = errors.New("prompt already resolved")
)

// WrongPlayerError reports a response from a player the prompt was not
// addressed to.
type WrongPlayerError struct {
	PromptID string
	Expected string
	Actual   string
}

func (e *WrongPlayerError) Error() string {
	return fmt.Sprintf("prompt %s is for player %s, not %s", e.PromptID, e.Expected, e.Actual)
}

// InvalidDecisionError reports a response that violates the prompt's
// constraints. The prompt stays open.
type InvalidDecisionError struct {
	PromptID string
	Reason   string
}

func (e *InvalidDecisionError) Error() string {
	return fmt.Sprintf("invalid decision for prompt %s: %s", e.PromptID, e.Reason)
}

// IsProtocolError reports whether err is recoverable by re-prompting.
func IsProtocolError(err error) bool {
	var wrong *WrongPlayerError
	var invalid *InvalidDecisionError
	return errors.As(err, &wrong) || errors.As(err, &invalid) || errors.Is(err, ErrPromptConsumed)
}
