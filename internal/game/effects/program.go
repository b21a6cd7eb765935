package effects

import (
	"github.com/kingdomforge/kingdom-server-go/internal/game/cards"
	"github.com/kingdomforge/kingdom-server-go/internal/game/prompt"
	"github.com/kingdomforge/kingdom-server-go/internal/game/rules"
)

// ActionKind tags a step. The core kinds are registered by NewInterpreter;
// expansions add their own through Interpreter.RegisterAction.
type ActionKind string

const (
	KindDrawCards      ActionKind = "draw_cards"
	KindAdjustCounter  ActionKind = "adjust_counter"
	KindMoveSelected   ActionKind = "move_selected"
	KindMoveMatching   ActionKind = "move_matching"
	KindGainSelect     ActionKind = "gain_select"
	KindGainCard       ActionKind = "gain_card"
	KindOptional       ActionKind = "optional"
	KindRepeatAction   ActionKind = "repeat_action"
	KindAttack         ActionKind = "attack"
	KindRevealReaction ActionKind = "reveal_reaction"
	KindRearrangeDeck  ActionKind = "rearrange_deck"
	KindDiscardDeck    ActionKind = "discard_deck"
	KindTrashSource    ActionKind = "trash_source"
)

// Step is one instruction of an effect program. Which fields matter depends
// on Kind.
type Step struct {
	Kind ActionKind `json:"kind"`

	// Amount is a card count, counter delta, cost cap or repeat count.
	Amount int `json:"amount,omitempty"`
	// UseLast replaces Amount with the number of cards the previous step of
	// the same frame touched.
	UseLast bool          `json:"use_last,omitempty"`
	Counter rules.Counter `json:"counter,omitempty"`

	// Selection shape for prompts.
	Count rules.CountSpec `json:"count"`
	Any   bool            `json:"any,omitempty"`
	Min   int             `json:"min,omitempty"`
	// Leave turns a selection into "discard down to Leave cards".
	Leave int `json:"leave,omitempty"`

	From  rules.Zone `json:"from,omitempty"`
	To    rules.Zone `json:"to,omitempty"`
	Card  string     `json:"card,omitempty"`
	Cards []string   `json:"cards,omitempty"`
	Type  cards.Type `json:"type,omitempty"`
	Mat   string     `json:"mat,omitempty"`
	// WithSource also moves the playing card.
	WithSource bool `json:"with_source,omitempty"`
	// Blind hides card identities from the prompt.
	Blind bool `json:"blind,omitempty"`

	Sub     Program `json:"sub,omitempty"`
	Else    Program `json:"else,omitempty"`
	Message string  `json:"message,omitempty"`
}

// Program is the ordered list of steps a card performs when resolved.
type Program []Step

// Coins returns a step granting n coins.
func Coins(n int) Step {
	return Step{Kind: KindAdjustCounter, Counter: rules.CounterCoins, Amount: n}
}

// Potions returns a step granting n potions.
func Potions(n int) Step {
	return Step{Kind: KindAdjustCounter, Counter: rules.CounterPotions, Amount: n}
}

// Actions returns a step granting n actions.
func Actions(n int) Step {
	return Step{Kind: KindAdjustCounter, Counter: rules.CounterActions, Amount: n}
}

// Buys returns a step granting n buys.
func Buys(n int) Step {
	return Step{Kind: KindAdjustCounter, Counter: rules.CounterBuys, Amount: n}
}

// Draw returns a step drawing n cards into hand.
func Draw(n int) Step {
	return Step{Kind: KindDrawCards, Amount: n}
}

type outcomeKind int

const (
	outcomeContinue outcomeKind = iota
	outcomeSuspend
	outcomePush
	outcomeStop
)

// Request describes the decision a suspended step waits for.
type Request struct {
	// Player defaults to the frame's player.
	Player      string
	Kind        prompt.Kind
	Constraints prompt.Constraints
	Default     *prompt.Payload
}

// Outcome tells the resolver what to do after a step ran.
type Outcome struct {
	kind    outcomeKind
	request Request
	frames  []FrameSpec
}

// Continue advances to the next step of the frame.
func Continue() Outcome {
	return Outcome{kind: outcomeContinue}
}

// Suspend parks the frame until a decision for r arrives. The step runs again
// with the decision available.
func Suspend(r Request) Outcome {
	return Outcome{kind: outcomeSuspend, request: r}
}

// Push completes the step and runs the given frames before the frame
// continues. The first frame resolves first.
func Push(frames ...FrameSpec) Outcome {
	return Outcome{kind: outcomePush, frames: frames}
}

// Stop ends the frame without running its remaining steps.
func Stop() Outcome {
	return Outcome{kind: outcomeStop}
}
