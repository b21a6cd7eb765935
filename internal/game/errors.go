package game

import (
	"errors"
	"fmt"
)

// ReasonInvariantViolation is the errored-match reason code.
const ReasonInvariantViolation = "invariant_violation"

var (
	// ErrMatchNotFound is returned for unknown or closed match ids.
	ErrMatchNotFound = errors.New("match not found")
	// ErrMatchExists is returned when StartMatch reuses a live id.
	ErrMatchExists = errors.New("match already exists")
	// ErrMatchErrored is returned for every mutation of an errored match.
	ErrMatchErrored = errors.New("match is errored")
	// ErrMatchNotFinished is returned by Summary before GameOver.
	ErrMatchNotFinished = errors.New("match has not finished")
	// ErrUnknownPlayer is returned for players not seated in the match.
	ErrUnknownPlayer = errors.New("player is not in this match")
	// ErrInvalidMatchID is returned for ids outside [A-Za-z0-9_-]{1,64}.
	ErrInvalidMatchID = errors.New("invalid match id")
)

const maxMatchIDLength = 64

// ValidateMatchID checks that id is safe to use as a file name.
func ValidateMatchID(id string) error {
	if id == "" || len(id) > maxMatchIDLength {
		return fmt.Errorf("%w: %q", ErrInvalidMatchID, id)
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return fmt.Errorf("%w: %q", ErrInvalidMatchID, id)
		}
	}
	return nil
}

// NotActivePlayerError reports a turn action from a player who does not
// have the turn.
type NotActivePlayerError struct {
	Player string
	Active string
}

func (e *NotActivePlayerError) Error() string {
	return fmt.Sprintf("player %s acted during %s's turn", e.Player, e.Active)
}

// IllegalMoveError reports a play or buy the rules do not allow. The match is
// unchanged.
type IllegalMoveError struct {
	Op     string
	Card   string
	Reason string
}

func (e *IllegalMoveError) Error() string {
	if e.Card == "" {
		return fmt.Sprintf("illegal %s: %s", e.Op, e.Reason)
	}
	return fmt.Sprintf("illegal %s of %s: %s", e.Op, e.Card, e.Reason)
}
