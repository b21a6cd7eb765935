package effects

import (
	"context"
	"testing"

	"github.com/kingdomforge/kingdom-server-go/internal/game/cards"
	"github.com/kingdomforge/kingdom-server-go/internal/game/prompt"
	"github.com/kingdomforge/kingdom-server-go/internal/game/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestDeterministicProgramRunsToIdle(t *testing.T) {
	h := newHarness(t)
	h.match.set("alice", rules.ZoneHand, "smithy")
	h.match.set("alice", rules.ZoneDeck, "copper", "silver", "gold", "estate")

	status := h.play("alice", "smithy")
	assert.Equal(t, StatusIdle, status)
	assert.True(t, h.resolver.Idle())
	assert.Equal(t, []string{"copper", "silver", "gold"}, h.match.Zone("alice", rules.ZoneHand))
	assert.Equal(t, []string{"estate"}, h.match.Zone("alice", rules.ZoneDeck))
	require.Len(t, h.events, 1)
	assert.Equal(t, KindDrawCards, h.events[0].Kind)
}

func TestSuspendAndResume(t *testing.T) {
	h := newHarness(t)
	h.match.set("alice", rules.ZoneHand, "cellar", "estate", "estate", "copper")
	h.match.set("alice", rules.ZoneDeck, "gold", "silver", "copper")

	status := h.play("alice", "cellar")
	require.Equal(t, StatusSuspended, status)
	assert.Equal(t, 2, h.match.counters.Actions)

	p := h.pending()
	assert.Equal(t, prompt.KindSelectCards, p.Kind)
	assert.Equal(t, rules.UpTo(3), p.Constraints.Count)
	assert.Equal(t, []string{"estate", "estate", "copper"}, p.Constraints.Eligible)

	status = h.answer(prompt.Payload{Cards: []string{"estate", "estate"}})
	assert.Equal(t, StatusIdle, status)
	assert.Equal(t, []string{"copper", "gold", "silver"}, h.match.Zone("alice", rules.ZoneHand))
	assert.Equal(t, []string{"estate", "estate"}, h.match.Zone("alice", rules.ZoneDiscard))
}

func TestPushedFramesResolveBeforeOuterFrame(t *testing.T) {
	h := newHarness(t)
	h.match.set("alice", rules.ZoneHand, "throne_room", "smithy", "copper")
	h.match.set("alice", rules.ZoneDeck, "copper", "silver", "gold", "estate", "duchy", "curse", "copper")

	require.Equal(t, StatusSuspended, h.play("alice", "throne_room"))
	p := h.pending()
	assert.Equal(t, []string{"smithy"}, p.Constraints.Eligible)

	require.Equal(t, StatusIdle, h.answer(prompt.Payload{Cards: []string{"smithy"}}))
	assert.Len(t, h.match.Zone("alice", rules.ZoneHand), 7)
	assert.Equal(t, []string{"copper"}, h.match.Zone("alice", rules.ZoneDeck))
	assert.Equal(t, []string{"throne_room", "smithy"}, h.match.Zone("alice", rules.ZoneInPlay))

	var sources []string
	for _, e := range h.events {
		sources = append(sources, e.Source)
	}
	assert.Equal(t, []string{"throne_room", "throne_room", "smithy", "smithy"}, sources)
}

func TestAttackVictimsResolveFromActorsLeft(t *testing.T) {
	h := newHarness(t, "p1", "p2", "p3", "p4")
	for _, p := range []string{"p1", "p3", "p4"} {
		h.match.set(p, rules.ZoneHand, "copper", "copper", "estate", "estate", "silver")
	}
	h.match.set("p2", rules.ZoneHand, "militia")

	require.Equal(t, StatusSuspended, h.play("p2", "militia"))
	assert.Equal(t, 2, h.match.counters.Coins)

	var order []string
	for !h.resolver.Idle() {
		p := h.pending()
		order = append(order, p.Player)
		assert.Equal(t, rules.Exact(2), p.Constraints.Count)
		h.answer(prompt.Payload{Cards: []string{"estate", "estate"}})
	}
	assert.Equal(t, []string{"p3", "p4", "p1"}, order)
	for _, p := range []string{"p1", "p3", "p4"} {
		assert.Equal(t, []string{"copper", "copper", "silver"}, h.match.Zone(p, rules.ZoneHand))
	}
}

func TestReactionBlocksAttack(t *testing.T) {
	h := newHarness(t, "alice", "bob", "carol")
	h.match.set("alice", rules.ZoneHand, "witch")
	h.match.set("bob", rules.ZoneHand, "moat", "copper")
	h.match.set("carol", rules.ZoneHand, "copper")

	require.Equal(t, StatusSuspended, h.play("alice", "witch"))
	p := h.pending()
	assert.Equal(t, "bob", p.Player)
	assert.Equal(t, prompt.KindYesNo, p.Kind)
	assert.Equal(t, []string{"moat"}, p.Constraints.Eligible)

	require.Equal(t, StatusIdle, h.answer(prompt.Payload{Accept: true}))
	assert.Empty(t, h.match.Zone("bob", rules.ZoneDiscard))
	assert.Equal(t, []string{"curse"}, h.match.Zone("carol", rules.ZoneDiscard))
	assert.Equal(t, 9, h.match.SupplyCount("curse"))
}

func TestBlindRearrangeReordersDeck(t *testing.T) {
	h := newHarness(t)
	h.match.set("alice", rules.ZoneHand, "gambler")
	h.match.set("alice", rules.ZoneDeck, "copper", "silver", "gold", "estate", "duchy")

	require.Equal(t, StatusSuspended, h.play("alice", "gambler"))
	p := h.pending()
	assert.Equal(t, prompt.KindBlindRearrange, p.Kind)
	assert.Equal(t, 3, p.Constraints.Arity)
	assert.Empty(t, p.Constraints.Eligible)

	_, err := h.broker.Submit(p.ID, "alice", prompt.Payload{Order: []int{0, 1}})
	var invalid *prompt.InvalidDecisionError
	require.ErrorAs(t, err, &invalid)

	require.Equal(t, StatusIdle, h.answer(prompt.Payload{Order: []int{2, 0, 1}}))
	assert.Equal(t, []string{"gold", "copper", "silver", "estate", "duchy"}, h.match.Zone("alice", rules.ZoneDeck))
	assert.Equal(t, 2, h.match.counters.Buys)
}

func TestScoutSortsRevealedCards(t *testing.T) {
	h := newHarness(t)
	h.match.set("alice", rules.ZoneHand, "scout")
	h.match.set("alice", rules.ZoneDeck, "estate", "copper", "duchy", "silver", "gold")

	require.Equal(t, StatusSuspended, h.play("alice", "scout"))
	assert.Equal(t, []string{"estate", "duchy"}, h.match.Zone("alice", rules.ZoneHand))
	p := h.pending()
	assert.Equal(t, prompt.KindOrderCards, p.Kind)
	assert.Equal(t, []string{"copper", "silver"}, p.Constraints.Eligible)

	require.Equal(t, StatusIdle, h.answer(prompt.Payload{Order: []int{1, 0}}))
	assert.Equal(t, []string{"silver", "copper", "gold"}, h.match.Zone("alice", rules.ZoneDeck))
	assert.Empty(t, h.match.Zone("alice", rules.ZoneSetAside))
}

func TestOptionalBranch(t *testing.T) {
	h := newHarness(t)
	h.match.set("alice", rules.ZoneHand, "chancellor")
	h.match.set("alice", rules.ZoneDeck, "copper", "estate")

	require.Equal(t, StatusSuspended, h.play("alice", "chancellor"))
	require.Equal(t, StatusIdle, h.answer(prompt.Payload{Accept: true}))
	assert.Empty(t, h.match.Zone("alice", rules.ZoneDeck))
	assert.Equal(t, []string{"copper", "estate"}, h.match.Zone("alice", rules.ZoneDiscard))
	assert.Equal(t, 2, h.match.counters.Coins)
}

func TestFeastTrashesItselfOnceWhenRepeated(t *testing.T) {
	h := newHarness(t)
	h.match.set("alice", rules.ZoneHand, "throne_room", "feast")

	h.play("alice", "throne_room")
	h.answer(prompt.Payload{Cards: []string{"feast"}})
	p := h.pending()
	assert.Equal(t, prompt.KindSelectSupply, p.Kind)
	assert.NotContains(t, p.Constraints.Eligible, "gold")
	h.answer(prompt.Payload{Cards: []string{"duchy"}})
	h.answer(prompt.Payload{Cards: []string{"smithy"}})

	assert.True(t, h.resolver.Idle())
	assert.Equal(t, []string{"feast"}, h.match.Zone("alice", rules.ZoneTrash))
	assert.Equal(t, []string{"duchy", "smithy"}, h.match.Zone("alice", rules.ZoneDiscard))
}

func TestMovingMissingCardIsInvariantViolation(t *testing.T) {
	h := newHarness(t)
	h.match.set("alice", rules.ZoneHand, "cellar", "estate")

	h.play("alice", "cellar")
	id, _ := h.resolver.PendingPrompt()
	_, err := h.resolver.Resume(context.Background(), h.match, prompt.Decision{
		PromptID: id,
		Player:   "alice",
		Payload:  prompt.Payload{Cards: []string{"gold"}},
	})
	require.Error(t, err)
	assert.True(t, rules.IsInvariantViolation(err))
	h.resolver.Abort()
	assert.True(t, h.resolver.Idle())
}

func TestResumeWithUnknownPrompt(t *testing.T) {
	h := newHarness(t)
	_, err := h.resolver.Resume(context.Background(), h.match, prompt.Decision{PromptID: "nope"})
	require.ErrorIs(t, err, ErrNotSuspended)

	h.match.set("alice", rules.ZoneHand, "cellar", "estate")
	h.play("alice", "cellar")
	_, err = h.resolver.Resume(context.Background(), h.match, prompt.Decision{PromptID: "nope"})
	require.ErrorIs(t, err, ErrNotSuspended)
	require.ErrorIs(t, h.resolver.Begin(FrameSpec{Player: "alice", ProgramID: "smithy"}), ErrBusy)
}

func TestDepthLimit(t *testing.T) {
	in := NewInterpreter()
	require.NoError(t, in.RegisterAction("recurse", func(env *Env, step Step) (Outcome, error) {
		return Push(FrameSpec{Player: env.Player(), ProgramID: "loop"}), nil
	}))
	require.NoError(t, in.RegisterProgram("loop", Program{{Kind: "recurse"}}))
	in.Seal()

	m := newTableMatch(t, "alice", "bob")
	r := NewResolver(in, nil, zaptest.NewLogger(t), WithMaxDepth(4))
	require.NoError(t, r.Begin(FrameSpec{Player: "alice", ProgramID: "loop"}))
	_, err := r.Run(context.Background(), m)
	require.Error(t, err)
	assert.True(t, rules.IsInvariantViolation(err))
	assert.Equal(t, 4, r.Depth())
}

func TestUnknownProgramIsInvariantViolation(t *testing.T) {
	r := NewResolver(NewInterpreter(), nil, nil)
	err := r.Begin(FrameSpec{Player: "alice", ProgramID: "missing"})
	assert.True(t, rules.IsInvariantViolation(err))
}

func TestInterpreterRegistration(t *testing.T) {
	in := NewInterpreter()
	noop := func(*Env, Step) (Outcome, error) { return Continue(), nil }

	var dup *DuplicateActionError
	require.ErrorAs(t, in.RegisterAction(KindDrawCards, noop), &dup)
	require.NoError(t, in.RegisterAction("custom", noop))
	assert.Contains(t, in.Kinds(), ActionKind("custom"))

	require.NoError(t, in.RegisterProgram("p", Program{{Kind: "custom"}}))
	var dupProgram *DuplicateProgramError
	require.ErrorAs(t, in.RegisterProgram("p", nil), &dupProgram)

	in.Seal()
	require.ErrorIs(t, in.RegisterAction("late", noop), ErrSealed)
	require.ErrorIs(t, in.RegisterProgram("late", nil), ErrSealed)
}

func TestCheckLibrary(t *testing.T) {
	in := NewInterpreter()
	require.NoError(t, RegisterBasePrograms(in))
	require.NoError(t, in.RegisterProgram("broken", Program{{Kind: "nope"}}))

	lib := cards.NewLibrary()
	require.NoError(t, lib.Register(
		cards.Definition{Key: "smithy", Name: "Smithy", Types: []cards.Type{cards.TypeAction}, Program: "smithy"},
		cards.Definition{Key: "ghost", Name: "Ghost", Types: []cards.Type{cards.TypeAction}, Program: "ghost"},
	))

	err := in.CheckLibrary(lib)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost")
	assert.Contains(t, err.Error(), "broken")
}
