package server

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/kingdomforge/kingdom-server-go/internal/game"
	"github.com/kingdomforge/kingdom-server-go/internal/game/cards"
	"github.com/kingdomforge/kingdom-server-go/internal/game/expansion"
	"github.com/kingdomforge/kingdom-server-go/internal/game/prompt"
	"github.com/kingdomforge/kingdom-server-go/internal/game/rules"
)

// Inbound message types.
const (
	MsgStartMatch   = "start_match"
	MsgJoin         = "join"
	MsgAdvancePhase = "advance_phase"
	MsgEndTurn      = "end_turn"
	MsgPlayCard     = "play_card"
	MsgBuy          = "buy"
	MsgDecision     = "decision"
)

// Outbound message types.
const (
	MsgPrompt   = "prompt"
	MsgState    = "state"
	MsgGameOver = "game_over"
	MsgError    = "error"
)

// InboundMessage is a client request. Fields not used by Type are ignored.
type InboundMessage struct {
	Type       string          `json:"type"`
	RequestID  string          `json:"request_id,omitempty"`
	MatchID    string          `json:"match_id,omitempty"`
	PromptID   string          `json:"prompt_id,omitempty"`
	Kind       prompt.Kind     `json:"kind,omitempty"`
	Card       string          `json:"card,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Players    []string        `json:"players,omitempty"`
	Kingdom    []string        `json:"kingdom,omitempty"`
	Expansions []string        `json:"expansions,omitempty"`
}

// PromptMessage delivers a pending decision.
type PromptMessage struct {
	Type        string             `json:"type"`
	MatchID     string             `json:"match_id"`
	PromptID    string             `json:"prompt_id"`
	Kind        prompt.Kind        `json:"kind"`
	Constraints prompt.Constraints `json:"constraints"`
	Deadline    *time.Time         `json:"deadline,omitempty"`
}

// StateMessage carries a player's view of a match.
type StateMessage struct {
	Type      string         `json:"type"`
	RequestID string         `json:"request_id,omitempty"`
	MatchID   string         `json:"match_id"`
	View      game.MatchView `json:"view"`
}

// GameOverMessage carries the final summary.
type GameOverMessage struct {
	Type    string            `json:"type"`
	MatchID string            `json:"match_id"`
	Summary game.MatchSummary `json:"summary"`
}

// ErrorMessage reports a rejected request.
type ErrorMessage struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id,omitempty"`
	MatchID   string `json:"match_id,omitempty"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

// Error codes sent to clients.
const (
	CodeBadRequest      = "bad_request"
	CodeNotFound        = "not_found"
	CodeForbidden       = "forbidden"
	CodeNotYourTurn     = "not_your_turn"
	CodeIllegalMove     = "illegal_move"
	CodeInvalidDecision = "invalid_decision"
	CodePromptConsumed  = "prompt_consumed"
	CodeWrongPhase      = "wrong_phase"
	CodeMatchErrored    = "match_errored"
	CodeSetupFailed     = "setup_failed"
	CodeInternal        = "internal"
)

// errorCode maps engine errors to client error codes.
func errorCode(err error) string {
	var (
		notActive  *game.NotActivePlayerError
		illegal    *game.IllegalMoveError
		invalid    *prompt.InvalidDecisionError
		wrong      *prompt.WrongPlayerError
		transition *rules.InvalidTransitionError
		notFound   *cards.NotFoundError
		unknownExp *expansion.UnknownExpansionError
		missingDep *expansion.MissingDependencyError
		unselected *expansion.UnselectedExpansionError
	)
	switch {
	case errors.Is(err, game.ErrMatchErrored):
		return CodeMatchErrored
	case errors.Is(err, game.ErrMatchNotFound), errors.Is(err, prompt.ErrPromptNotFound):
		return CodeNotFound
	case errors.Is(err, game.ErrUnknownPlayer), errors.As(err, &wrong):
		return CodeForbidden
	case errors.Is(err, prompt.ErrPromptConsumed):
		return CodePromptConsumed
	case errors.As(err, &notActive):
		return CodeNotYourTurn
	case errors.As(err, &illegal):
		return CodeIllegalMove
	case errors.As(err, &invalid):
		return CodeInvalidDecision
	case errors.As(err, &transition):
		return CodeWrongPhase
	case errors.Is(err, game.ErrMatchExists), errors.Is(err, game.ErrInvalidMatchID), errors.As(err, &notFound),
		errors.As(err, &unknownExp), errors.As(err, &missingDep), errors.As(err, &unselected):
		return CodeSetupFailed
	}
	return CodeInternal
}
