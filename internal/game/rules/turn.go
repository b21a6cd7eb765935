package rules

import (
	"fmt"
	"strings"
)

// Phase represents the phases a match moves through.
type Phase int

const (
	PhaseSetup Phase = iota
	PhaseAction
	PhaseBuy
	PhaseCleanup
	PhaseGameOver
)

var phaseNames = map[Phase]string{
	PhaseSetup:    "SETUP",
	PhaseAction:   "ACTION",
	PhaseBuy:      "BUY",
	PhaseCleanup:  "CLEANUP",
	PhaseGameOver: "GAME_OVER",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("PHASE_%d", int(p))
}

// ParsePhase maps a phase name back to its value.
func ParsePhase(name string) (Phase, bool) {
	name = strings.ToUpper(strings.TrimSpace(name))
	for phase, n := range phaseNames {
		if n == name {
			return phase, true
		}
	}
	return PhaseSetup, false
}

// turnSequence is the phase order every turn follows.
var turnSequence = []Phase{PhaseAction, PhaseBuy, PhaseCleanup}

// TurnManager tracks the active player, the turn number and phase progression.
type TurnManager struct {
	players    []string
	active     int
	orderIndex int
	turnNumber int
	phase      Phase
}

// NewTurnManager creates a turn manager in the setup phase. The first player
// in the list takes the first turn.
func NewTurnManager(players []string) *TurnManager {
	order := make([]string, 0, len(players))
	for _, p := range players {
		order = append(order, strings.TrimSpace(p))
	}
	return &TurnManager{
		players: order,
		phase:   PhaseSetup,
	}
}

// CurrentPhase returns the phase currently in progress.
func (tm *TurnManager) CurrentPhase() Phase {
	return tm.phase
}

// TurnNumber returns the current turn number (1-based, 0 during setup).
func (tm *TurnManager) TurnNumber() int {
	return tm.turnNumber
}

// ActivePlayer returns the player who currently has the turn.
func (tm *TurnManager) ActivePlayer() string {
	if len(tm.players) == 0 {
		return ""
	}
	return tm.players[tm.active]
}

// ActiveIndex returns the turn-order index of the active player.
func (tm *TurnManager) ActiveIndex() int {
	return tm.active
}

// Players returns a copy of the turn order.
func (tm *TurnManager) Players() []string {
	return append([]string(nil), tm.players...)
}

// AdvancePhase moves Setup->Action->Buy->Cleanup. Leaving Cleanup requires
// NextTurn, and GameOver is never left.
func (tm *TurnManager) AdvancePhase() (Phase, error) {
	switch tm.phase {
	case PhaseSetup:
		if len(tm.players) == 0 {
			return tm.phase, &InvalidTransitionError{Op: "advance_phase", Phase: tm.phase, Reason: "no players"}
		}
		tm.turnNumber = 1
		tm.orderIndex = 0
		tm.phase = turnSequence[0]
		return tm.phase, nil
	case PhaseGameOver:
		return tm.phase, &InvalidTransitionError{Op: "advance_phase", Phase: tm.phase, Reason: "match is over"}
	}

	if tm.orderIndex+1 >= len(turnSequence) {
		return tm.phase, &InvalidTransitionError{Op: "advance_phase", Phase: tm.phase, Reason: "turn must be ended from cleanup"}
	}
	tm.orderIndex++
	tm.phase = turnSequence[tm.orderIndex]
	return tm.phase, nil
}

// NextTurn rotates to the next player's action phase. Only valid from Cleanup.
func (tm *TurnManager) NextTurn() (string, error) {
	if tm.phase != PhaseCleanup {
		return "", &InvalidTransitionError{Op: "next_turn", Phase: tm.phase, Reason: "turn can only pass from cleanup"}
	}
	tm.active = (tm.active + 1) % len(tm.players)
	tm.turnNumber++
	tm.orderIndex = 0
	tm.phase = turnSequence[0]
	return tm.ActivePlayer(), nil
}

// End moves the match into the terminal GameOver phase.
func (tm *TurnManager) End() {
	tm.phase = PhaseGameOver
}

// OthersInTurnOrder returns every player except the given one, starting with
// the player to their left and following turn order.
func (tm *TurnManager) OthersInTurnOrder(player string) []string {
	start := -1
	for i, p := range tm.players {
		if p == player {
			start = i
			break
		}
	}
	if start < 0 {
		return nil
	}
	others := make([]string, 0, len(tm.players)-1)
	for i := 1; i < len(tm.players); i++ {
		others = append(others, tm.players[(start+i)%len(tm.players)])
	}
	return others
}

// Restore resets the manager to an explicit position. Used when rebuilding a
// match from a snapshot.
func (tm *TurnManager) Restore(active, turnNumber int, phase Phase) {
	tm.active = active
	tm.turnNumber = turnNumber
	tm.phase = phase
	tm.orderIndex = 0
	for i, p := range turnSequence {
		if p == phase {
			tm.orderIndex = i
		}
	}
}
