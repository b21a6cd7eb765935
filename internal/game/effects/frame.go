package effects

import (
	"context"

	"github.com/kingdomforge/kingdom-server-go/internal/game/cards"
	"github.com/kingdomforge/kingdom-server-go/internal/game/prompt"
	"github.com/kingdomforge/kingdom-server-go/internal/game/rules"
)

// Handle addresses a frame in the resolver's arena.
type Handle int

// FrameState is the execution state of a frame.
type FrameState int

const (
	FrameReady FrameState = iota
	FrameSuspended
	FrameDone
)

var frameStateNames = map[FrameState]string{
	FrameReady:     "READY",
	FrameSuspended: "SUSPENDED",
	FrameDone:      "DONE",
}

func (s FrameState) String() string {
	if name, ok := frameStateNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

// FrameSpec describes a frame to push. Program wins over ProgramID when set.
type FrameSpec struct {
	// Player is whose zones the program acts on.
	Player string
	// Actor is the player whose card produced the effect.
	Actor     string
	Source    string
	ProgramID string
	Program   Program
}

// Frame is one in-flight effect invocation.
type Frame struct {
	Handle    Handle
	Player    string
	Actor     string
	Source    string
	ProgramID string
	Program   Program
	Cursor    int
	State     FrameState
	PromptID  string

	// Selected and Last carry the cards touched by the previous step.
	Selected []string
	Last     int
}

func (f *Frame) label() string {
	if f.ProgramID != "" {
		return f.ProgramID
	}
	if f.Source != "" {
		return f.Source
	}
	return "inline"
}

// Match is the view of match state handlers work against. game.Match
// implements it; all calls happen under the match's writer lock.
type Match interface {
	ID() string
	ActivePlayer() string
	// OthersInTurnOrder lists the other players starting at player's left.
	OthersInTurnOrder(player string) []string
	Card(key string) (cards.Definition, error)

	// Zone returns a copy of a zone, top first.
	Zone(player string, zone rules.Zone) []string
	// Draw moves up to n cards from the top of the deck to a zone, shuffling
	// the discard pile into the deck when it runs out.
	Draw(player string, n int, to rules.Zone) ([]string, error)
	// Move relocates exactly the given cards. Cards land on top of a deck
	// and at the end of other zones.
	Move(player string, from, to rules.Zone, keys []string) error
	// Reorder permutes the top n cards of a zone: new[i] = old[order[i]].
	Reorder(player string, zone rules.Zone, n int, order []int) error

	AdjustCounter(c rules.Counter, delta int) error
	// Gain takes a card from the supply. It reports false when the pile is
	// empty.
	Gain(player, key string, to rules.Zone) (bool, error)
	SupplyCount(key string) int
	SupplyKeys() []string

	ExpansionState(id string) (any, bool)
}

// Env is what a handler sees while running one step.
type Env struct {
	Ctx      context.Context
	Match    Match
	Frame    *Frame
	decision *prompt.Decision
}

// Decision returns the decision the step was resumed with.
func (e *Env) Decision() (prompt.Decision, bool) {
	if e.decision == nil {
		return prompt.Decision{}, false
	}
	return *e.decision, true
}

// Player is the frame's player.
func (e *Env) Player() string {
	return e.Frame.Player
}
