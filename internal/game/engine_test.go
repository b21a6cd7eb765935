package game

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kingdomforge/kingdom-server-go/internal/game/cards"
	"github.com/kingdomforge/kingdom-server-go/internal/game/effects"
	"github.com/kingdomforge/kingdom-server-go/internal/game/expansion"
	"github.com/kingdomforge/kingdom-server-go/internal/game/prompt"
	"github.com/kingdomforge/kingdom-server-go/internal/game/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartMatchDealsOpeningHands(t *testing.T) {
	h := newHarness(t)
	id := h.start(baseKingdom, []string{})

	v := h.view(id, "alice")
	assert.Equal(t, "SETUP", v.Phase)
	assert.Equal(t, "alice", v.ActivePlayer)
	require.Len(t, v.Players, 2)
	for _, p := range v.Players {
		assert.Equal(t, 5, p.HandCount)
		assert.Equal(t, 5, p.DeckCount)
		assert.Zero(t, p.DiscardCount)
	}
	assert.Len(t, v.Hand, 5)
	assert.Equal(t, 46, v.Supply["copper"])
	assert.Equal(t, 10, v.Supply["militia"])
	assert.NotContains(t, v.Supply, "potion")

	started := h.records(id, TransitionMatchStarted)
	require.Len(t, started, 1)
	assert.Equal(t, uint64(42), started[0].Seed)
	assert.Equal(t, []string{"alice", "bob"}, started[0].Players)
	assert.Equal(t, baseKingdom, started[0].Config.Kingdom)
}

func TestStartMatchIsDeterministicPerSeed(t *testing.T) {
	a := newHarness(t)
	b := newHarness(t)
	assert.Equal(t, a.checksum(a.start(baseKingdom, []string{})), b.checksum(b.start(baseKingdom, []string{})))
}

func TestStartMatchRejectsBadSetup(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.e.StartMatch(ctx, MatchOptions{Players: []string{"alice"}, Kingdom: baseKingdom})
	require.Error(t, err)

	_, err = h.e.StartMatch(ctx, MatchOptions{Players: []string{"alice", "alice"}, Kingdom: baseKingdom})
	require.Error(t, err)

	_, err = h.e.StartMatch(ctx, MatchOptions{Players: []string{"alice", "bob"}, Kingdom: []string{"smithy", "unknown"}})
	var notFound *cards.NotFoundError
	require.ErrorAs(t, err, &notFound)

	_, err = h.e.StartMatch(ctx, MatchOptions{Players: []string{"alice", "bob"}, Kingdom: baseKingdom, Expansions: []string{"hinterlands"}})
	var unknown *expansion.UnknownExpansionError
	require.ErrorAs(t, err, &unknown)

	h.start(baseKingdom, []string{})
	_, err = h.e.StartMatch(ctx, MatchOptions{ID: "m1", Players: []string{"alice", "bob"}, Kingdom: baseKingdom})
	require.ErrorIs(t, err, ErrMatchExists)
	assert.Equal(t, []string{"m1"}, h.e.MatchIDs())

	_, err = h.e.StartMatch(ctx, MatchOptions{ID: "../escaped", Players: []string{"alice", "bob"}, Kingdom: baseKingdom})
	require.ErrorIs(t, err, ErrInvalidMatchID)
	assert.Equal(t, []string{"m1"}, h.e.MatchIDs())
}

func TestPhaseSequence(t *testing.T) {
	h := newHarness(t)
	id := h.start(baseKingdom, []string{})
	ctx := context.Background()

	assert.Equal(t, "ACTION", h.advance(id, 1).Phase)
	assert.Equal(t, "BUY", h.advance(id, 1).Phase)
	v := h.advance(id, 1)
	assert.Equal(t, "CLEANUP", v.Phase)
	assert.Equal(t, 1, v.Turn)

	_, err := h.e.AdvancePhase(ctx, id)
	var invalid *rules.InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, rules.PhaseCleanup, invalid.Phase)

	v, err = h.e.EndTurn(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "ACTION", v.Phase)
	assert.Equal(t, "bob", v.ActivePlayer)
	assert.Equal(t, 2, v.Turn)

	v, err = h.e.EndTurn(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "alice", v.ActivePlayer)
	assert.Equal(t, 3, v.Turn)

	assert.Len(t, h.records(id, TransitionTurnEnded), 2)
	assert.Len(t, h.records(id, TransitionPhaseAdvanced), 3)
}

func TestEndTurnRequiresStartedMatch(t *testing.T) {
	h := newHarness(t)
	id := h.start(baseKingdom, []string{})

	_, err := h.e.EndTurn(context.Background(), id)
	var invalid *rules.InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, rules.PhaseSetup, invalid.Phase)
}

func TestEndTurnPerformsCleanup(t *testing.T) {
	h := newHarness(t)
	id := h.start(baseKingdom, []string{})
	ctx := context.Background()
	h.set(id, "alice", rules.ZoneHand, "smithy", "copper", "copper", "estate", "estate")
	h.set(id, "alice", rules.ZoneDeck, "silver", "gold", "copper", "estate", "copper", "copper", "copper", "copper")
	h.advance(id, 1)

	v, err := h.e.PlayCard(ctx, id, "alice", "smithy")
	require.NoError(t, err)
	assert.Equal(t, []string{"copper", "copper", "estate", "estate", "silver", "gold", "copper"}, v.Hand)
	assert.Equal(t, []string{"smithy"}, v.Players[0].InPlay)
	assert.Zero(t, v.Counters.Actions)

	v, err = h.e.EndTurn(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "bob", v.ActivePlayer)
	assert.Equal(t, rules.NewTurnCounters(), v.Counters)

	alice := h.view(id, "alice")
	assert.Equal(t, []string{"estate", "copper", "copper", "copper", "copper"}, alice.Hand)
	assert.Equal(t, 8, alice.Players[0].DiscardCount)
	assert.Zero(t, alice.Players[0].DeckCount)
	assert.Empty(t, alice.Players[0].InPlay)
}

func TestPlayCardRules(t *testing.T) {
	h := newHarness(t)
	id := h.start(baseKingdom, []string{})
	ctx := context.Background()
	h.set(id, "alice", rules.ZoneHand, "village", "smithy", "copper", "estate", "copper")

	_, err := h.e.PlayCard(ctx, id, "alice", "village")
	var invalid *rules.InvalidTransitionError
	require.ErrorAs(t, err, &invalid, "setup does not accept plays")

	h.advance(id, 1)
	_, err = h.e.PlayCard(ctx, id, "bob", "village")
	var notActive *NotActivePlayerError
	require.ErrorAs(t, err, &notActive)
	assert.Equal(t, "alice", notActive.Active)

	_, err = h.e.PlayCard(ctx, id, "carol", "village")
	require.ErrorIs(t, err, ErrUnknownPlayer)

	var illegal *IllegalMoveError
	_, err = h.e.PlayCard(ctx, id, "alice", "copper")
	require.ErrorAs(t, err, &illegal)
	_, err = h.e.PlayCard(ctx, id, "alice", "gold")
	require.ErrorAs(t, err, &illegal)
	assert.Equal(t, "card is not in hand", illegal.Reason)

	v, err := h.e.PlayCard(ctx, id, "alice", "village")
	require.NoError(t, err)
	assert.Equal(t, 2, v.Counters.Actions)
	v, err = h.e.PlayCard(ctx, id, "alice", "smithy")
	require.NoError(t, err)
	assert.Equal(t, 1, v.Counters.Actions)
}

func TestBuyChecksFundsAndBuys(t *testing.T) {
	h := newHarness(t)
	id := h.start(baseKingdom, []string{})
	ctx := context.Background()
	h.set(id, "alice", rules.ZoneHand, "copper", "copper", "copper", "estate", "estate")

	h.advance(id, 1)
	_, err := h.e.Buy(ctx, id, "alice", "silver")
	var invalid *rules.InvalidTransitionError
	require.ErrorAs(t, err, &invalid)

	h.advance(id, 1)
	var illegal *IllegalMoveError
	_, err = h.e.Buy(ctx, id, "alice", "silver")
	require.ErrorAs(t, err, &illegal)

	for i := 0; i < 3; i++ {
		_, err = h.e.PlayCard(ctx, id, "alice", "copper")
		require.NoError(t, err)
	}
	before := h.view(id, "")
	assert.Equal(t, 3, before.Counters.Coins)

	_, err = h.e.Buy(ctx, id, "alice", "platinum")
	require.ErrorAs(t, err, &illegal)
	assert.Equal(t, "card is not in the supply", illegal.Reason)

	v, err := h.e.Buy(ctx, id, "alice", "silver")
	require.NoError(t, err)
	assert.Equal(t, 39, v.Supply["silver"])
	assert.Zero(t, v.Counters.Coins)
	assert.Zero(t, v.Counters.Buys)
	assert.Equal(t, "silver", v.Players[0].DiscardTop)

	_, err = h.e.Buy(ctx, id, "alice", "copper")
	require.ErrorAs(t, err, &illegal)
	assert.Equal(t, "no buys left", illegal.Reason)
}

func TestGameOverIsTerminal(t *testing.T) {
	h := newHarness(t)
	id := h.start(baseKingdom, []string{})
	ctx := context.Background()
	h.set(id, "alice", rules.ZoneDeck)
	h.set(id, "alice", rules.ZoneHand, "gold", "gold", "gold", "estate", "estate")
	h.mutate(id, func(m *Match) { m.supply["province"] = 1 })

	h.advance(id, 2)
	for i := 0; i < 3; i++ {
		_, err := h.e.PlayCard(ctx, id, "alice", "gold")
		require.NoError(t, err)
	}
	v, err := h.e.Buy(ctx, id, "alice", "province")
	require.NoError(t, err)
	assert.True(t, v.EndTriggered)
	assert.Equal(t, "BUY", v.Phase, "the end condition waits for the buy phase to close")

	_, err = h.e.Summary(id)
	require.ErrorIs(t, err, ErrMatchNotFinished)

	v = h.advance(id, 1)
	assert.Equal(t, "GAME_OVER", v.Phase)

	_, err = h.e.AdvancePhase(ctx, id)
	var invalid *rules.InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, rules.PhaseGameOver, invalid.Phase)
	_, err = h.e.EndTurn(ctx, id)
	require.ErrorAs(t, err, &invalid)
	_, err = h.e.Buy(ctx, id, "alice", "estate")
	require.ErrorAs(t, err, &invalid)

	summary, err := h.e.Summary(id)
	require.NoError(t, err)
	assert.Equal(t, "province pile exhausted", summary.Reason)
	assert.Equal(t, []string{"alice"}, summary.Winners)
	require.Len(t, summary.Players, 2)
	assert.Equal(t, 8, summary.Players[0].Score)
	assert.Equal(t, 1, summary.Players[0].Cards["province"])
	assert.Equal(t, 3, summary.Players[1].Score)
	assert.Len(t, h.records(id, TransitionGameOver), 1)

	require.NoError(t, h.e.Close(ctx, id))
	again, err := h.e.Summary(id)
	require.NoError(t, err)
	assert.Equal(t, summary, again)
}

func TestEndConditionCountsEmptyPiles(t *testing.T) {
	h := newHarness(t)
	id := h.start(baseKingdom, []string{})
	ctx := context.Background()
	h.set(id, "alice", rules.ZoneHand, "workshop", "copper", "copper", "copper", "copper")
	h.mutate(id, func(m *Match) {
		m.supply["cellar"] = 0
		m.supply["chapel"] = 0
		m.supply["moat"] = 1
		m.supply["workshop"] = 10
		m.piles = append(m.piles, "workshop")
	})
	h.advance(id, 1)

	_, err := h.e.PlayCard(ctx, id, "alice", "workshop")
	require.NoError(t, err)
	p := h.pending(id)
	assert.Contains(t, p.Constraints.Eligible, "moat")

	v, err := h.e.SubmitDecision(ctx, id, p.ID, "alice", prompt.Payload{Cards: []string{"moat"}})
	require.NoError(t, err)
	assert.True(t, v.EndTriggered)

	v, err = h.e.EndTurn(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "GAME_OVER", v.Phase)
	summary, err := h.e.Summary(id)
	require.NoError(t, err)
	assert.Equal(t, "3 supply piles exhausted", summary.Reason)
}

func TestTransitionsWaitForEffects(t *testing.T) {
	h := newHarness(t)
	id := h.start(baseKingdom, []string{})
	ctx := context.Background()
	h.set(id, "alice", rules.ZoneHand, "militia", "village", "copper", "copper", "copper")
	h.set(id, "bob", rules.ZoneHand, "copper", "estate", "copper", "estate", "silver")
	h.advance(id, 1)

	_, err := h.e.PlayCard(ctx, id, "alice", "militia")
	require.NoError(t, err)
	before := h.checksum(id)

	var invalid *rules.InvalidTransitionError
	_, err = h.e.AdvancePhase(ctx, id)
	require.ErrorAs(t, err, &invalid)
	_, err = h.e.EndTurn(ctx, id)
	require.ErrorAs(t, err, &invalid)
	_, err = h.e.PlayCard(ctx, id, "alice", "village")
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, before, h.checksum(id))
}

func TestProtocolErrorsLeaveStateUntouched(t *testing.T) {
	h := newHarness(t)
	id := h.start(baseKingdom, []string{})
	ctx := context.Background()
	h.set(id, "alice", rules.ZoneHand, "militia", "copper", "copper", "copper", "copper")
	h.set(id, "bob", rules.ZoneHand, "copper", "estate", "copper", "estate", "silver")
	h.advance(id, 1)

	v, err := h.e.PlayCard(ctx, id, "alice", "militia")
	require.NoError(t, err)
	assert.Equal(t, 2, v.Counters.Coins)
	require.Len(t, v.Prompts, 1)
	assert.Equal(t, "bob", v.Prompts[0].Player)
	assert.Equal(t, 1, h.sent.count("bob"))

	p := h.pending(id)
	assert.Equal(t, prompt.KindSelectCards, p.Kind)
	assert.Equal(t, rules.Exact(2), p.Constraints.Count)
	before := h.checksum(id)

	_, err = h.e.SubmitDecision(ctx, id, p.ID, "alice", prompt.Payload{Cards: []string{"estate", "estate"}})
	var wrong *prompt.WrongPlayerError
	require.ErrorAs(t, err, &wrong)
	assert.Equal(t, before, h.checksum(id))

	_, err = h.e.SubmitDecision(ctx, id, p.ID, "bob", prompt.Payload{Cards: []string{"estate"}})
	var invalid *prompt.InvalidDecisionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, before, h.checksum(id))

	_, err = h.e.SubmitDecision(ctx, id, "nope", "bob", prompt.Payload{})
	require.ErrorIs(t, err, prompt.ErrPromptNotFound)

	v, err = h.e.SubmitDecision(ctx, id, p.ID, "bob", prompt.Payload{Cards: []string{"estate", "estate"}})
	require.NoError(t, err)
	assert.Empty(t, v.Prompts)
	assert.Equal(t, []string{"copper", "copper", "silver"}, h.view(id, "bob").Hand)

	_, err = h.e.SubmitDecision(ctx, id, p.ID, "bob", prompt.Payload{Cards: []string{"copper", "copper"}})
	require.ErrorIs(t, err, prompt.ErrPromptConsumed)
	assert.Equal(t, []string{"copper", "copper", "silver"}, h.view(id, "bob").Hand)

	decisions := h.records(id, TransitionDecision)
	require.Len(t, decisions, 1)
	assert.Equal(t, []string{"estate", "estate"}, decisions[0].Decision.Cards)
	assert.False(t, decisions[0].Defaulted)
}

func TestSubmitDecisionRejectsPromptOfAnotherMatch(t *testing.T) {
	h := newHarness(t)
	id := h.start(baseKingdom, []string{})
	ctx := context.Background()
	_, err := h.e.StartMatch(ctx, MatchOptions{ID: "m2", Players: []string{"carol", "dave"}, Kingdom: baseKingdom, Expansions: []string{}, Seed: 7})
	require.NoError(t, err)

	h.set(id, "alice", rules.ZoneHand, "militia", "copper", "copper", "copper", "copper")
	h.set(id, "bob", rules.ZoneHand, "copper", "estate", "copper", "estate", "silver")
	h.advance(id, 1)
	_, err = h.e.PlayCard(ctx, id, "alice", "militia")
	require.NoError(t, err)
	p := h.pending(id)

	_, err = h.e.SubmitDecision(ctx, "m2", p.ID, "bob", prompt.Payload{Cards: []string{"estate", "estate"}})
	require.ErrorIs(t, err, prompt.ErrPromptNotFound)
	_, ok := h.broker.Get(p.ID)
	assert.True(t, ok, "the prompt stays open")
}

func TestPromptTimeoutResolvesOnceWithDefault(t *testing.T) {
	h := newHarness(t, withPromptTimeout(5*time.Second))
	id := h.start(baseKingdom, []string{})
	ctx := context.Background()
	h.set(id, "alice", rules.ZoneHand, "militia", "copper", "copper", "copper", "copper")
	h.set(id, "bob", rules.ZoneHand, "copper", "estate", "copper", "estate", "silver")
	h.advance(id, 1)

	_, err := h.e.PlayCard(ctx, id, "alice", "militia")
	require.NoError(t, err)
	p := h.pending(id)
	require.NotNil(t, p.Envelope().Deadline)

	h.clock.Advance(4 * time.Second)
	assert.Len(t, h.broker.Outstanding(id), 1)

	h.clock.Advance(time.Second)
	assert.Empty(t, h.broker.Outstanding(id))
	assert.Equal(t, []string{"copper", "estate", "silver"}, h.view(id, "bob").Hand)

	_, err = h.e.SubmitDecision(ctx, id, p.ID, "bob", prompt.Payload{Cards: []string{"estate", "estate"}})
	require.ErrorIs(t, err, prompt.ErrPromptConsumed)

	h.clock.Advance(time.Minute)
	decisions := h.records(id, TransitionDecision)
	require.Len(t, decisions, 1)
	assert.True(t, decisions[0].Defaulted)
	assert.Equal(t, "timeout", decisions[0].Detail)

	v, err := h.e.AdvancePhase(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "BUY", v.Phase)
}

func TestDisconnectGracePeriod(t *testing.T) {
	h := newHarness(t)
	id := h.start(baseKingdom, []string{})
	ctx := context.Background()
	h.set(id, "alice", rules.ZoneHand, "militia", "militia", "village", "copper", "copper")
	h.set(id, "bob", rules.ZoneHand, "copper", "estate", "copper", "estate", "silver")
	h.advance(id, 1)

	_, err := h.e.PlayCard(ctx, id, "alice", "village")
	require.NoError(t, err)
	_, err = h.e.PlayCard(ctx, id, "alice", "militia")
	require.NoError(t, err)
	p := h.pending(id)

	require.NoError(t, h.e.Disconnect(ctx, id, "bob"))
	assert.False(t, h.view(id, "").Players[1].Connected)
	h.clock.Advance(10 * time.Second)
	v, err := h.e.Reconnect(ctx, id, "bob")
	require.NoError(t, err)
	assert.True(t, v.Players[1].Connected)
	assert.Equal(t, 2, h.sent.count("bob"), "open prompts are resent on reconnect")
	h.clock.Advance(time.Minute)
	assert.Len(t, h.broker.Outstanding(id), 1, "a reconnect cancels the grace timer")

	_, err = h.e.SubmitDecision(ctx, id, p.ID, "bob", prompt.Payload{Cards: []string{"estate", "estate"}})
	require.NoError(t, err)

	require.NoError(t, h.e.Disconnect(ctx, id, "bob"))
	h.set(id, "bob", rules.ZoneHand, "copper", "estate", "copper", "estate", "silver")
	_, err = h.e.PlayCard(ctx, id, "alice", "militia")
	require.NoError(t, err)
	assert.Len(t, h.broker.Outstanding(id), 1, "prompts wait during the grace period")

	h.clock.Advance(30 * time.Second)
	assert.Empty(t, h.broker.Outstanding(id))
	assert.Equal(t, []string{"copper", "estate", "silver"}, h.view(id, "bob").Hand, "the default discards the first two cards")

	decisions := h.records(id, TransitionDecision)
	require.Len(t, decisions, 2)
	assert.True(t, decisions[1].Defaulted)
	assert.Equal(t, "player disconnected", decisions[1].Detail)
	assert.Len(t, h.records(id, TransitionDisconnected), 2)
	assert.Len(t, h.records(id, TransitionReconnected), 1)
}

func TestAbsentPlayerPromptsResolveImmediately(t *testing.T) {
	h := newHarness(t)
	id := h.start(baseKingdom, []string{})
	ctx := context.Background()
	h.set(id, "alice", rules.ZoneHand, "militia", "copper", "copper", "copper", "copper")
	h.set(id, "bob", rules.ZoneHand, "copper", "estate", "copper", "estate", "silver")
	h.advance(id, 1)

	require.NoError(t, h.e.Disconnect(ctx, id, "bob"))
	h.clock.Advance(30 * time.Second)

	v, err := h.e.PlayCard(ctx, id, "alice", "militia")
	require.NoError(t, err)
	assert.Empty(t, v.Prompts)
	assert.Equal(t, 3, v.Players[1].HandCount)
	assert.Equal(t, "player absent", h.records(id, TransitionDecision)[0].Detail)
}

func TestInvariantViolationMarksMatchErrored(t *testing.T) {
	h := newHarness(t, withProgram("smithy", effects.Program{
		{Kind: effects.KindAdjustCounter, Counter: rules.CounterCoins, Amount: -5},
	}))
	id := h.start(baseKingdom, []string{})
	ctx := context.Background()
	h.set(id, "alice", rules.ZoneHand, "smithy", "copper", "copper", "copper", "copper")
	h.advance(id, 1)

	_, err := h.e.PlayCard(ctx, id, "alice", "smithy")
	require.ErrorIs(t, err, ErrMatchErrored)
	assert.True(t, rules.IsInvariantViolation(err))

	v := h.view(id, "")
	assert.True(t, v.Errored)
	assert.Equal(t, ReasonInvariantViolation, v.ErrorReason)
	assert.Len(t, h.records(id, TransitionErrored), 1)

	_, err = h.e.AdvancePhase(ctx, id)
	require.ErrorIs(t, err, ErrMatchErrored)
	_, err = h.e.EndTurn(ctx, id)
	require.ErrorIs(t, err, ErrMatchErrored)
	_, err = h.e.Buy(ctx, id, "alice", "copper")
	require.ErrorIs(t, err, ErrMatchErrored)
	_, err = h.e.SubmitDecision(ctx, id, "any", "alice", prompt.Payload{})
	require.True(t, errors.Is(err, ErrMatchErrored))
}

func TestCloseCancelsPrompts(t *testing.T) {
	h := newHarness(t, withPromptTimeout(5*time.Second))
	id := h.start(baseKingdom, []string{})
	ctx := context.Background()
	h.set(id, "alice", rules.ZoneHand, "militia", "copper", "copper", "copper", "copper")
	h.advance(id, 1)
	_, err := h.e.PlayCard(ctx, id, "alice", "militia")
	require.NoError(t, err)
	require.Len(t, h.broker.Outstanding(id), 1)

	require.NoError(t, h.e.Close(ctx, id))
	assert.Empty(t, h.broker.Outstanding(id))
	assert.Zero(t, h.clock.Pending())

	_, err = h.e.View(id, "")
	require.ErrorIs(t, err, ErrMatchNotFound)
	_, err = h.e.Summary(id)
	require.ErrorIs(t, err, ErrMatchNotFound)
	require.ErrorIs(t, h.e.Close(ctx, id), ErrMatchNotFound)
	assert.Len(t, h.records(id, TransitionClosed), 1)
}

func TestNotificationsArriveInOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	var (
		mu  sync.Mutex
		got []Notification
	)
	h.e.SetNotificationHandler(func(n Notification) {
		mu.Lock()
		first := len(got) == 0
		mu.Unlock()
		if first {
			time.Sleep(20 * time.Millisecond)
		}
		mu.Lock()
		got = append(got, n)
		mu.Unlock()
	})

	id := h.start(baseKingdom, []string{})
	h.advance(id, 1)
	var v MatchView
	for i := 0; i < 3; i++ {
		var err error
		v, err = h.e.EndTurn(ctx, id)
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 5
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, NotifyMatchStarted, got[0].Type)
	turns := make([]int, 0, 4)
	for _, n := range got[1:] {
		require.Equal(t, NotifyStateChanged, n.Type)
		turns = append(turns, n.Data["turn"].(int))
	}
	assert.Equal(t, []int{v.Turn - 3, v.Turn - 2, v.Turn - 1, v.Turn}, turns)
}

func TestStartMatchRejectsUnselectedExpansionCard(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	kingdom := append([]string{"island"}, baseKingdom[1:]...)

	_, err := h.e.StartMatch(ctx, MatchOptions{ID: "m1", Players: []string{"alice", "bob"}, Kingdom: kingdom, Expansions: []string{}})
	var unselected *expansion.UnselectedExpansionError
	require.ErrorAs(t, err, &unselected)
	assert.Equal(t, expansion.Seaside, unselected.Expansion)
	_, err = h.e.View("m1", "")
	require.ErrorIs(t, err, ErrMatchNotFound)

	id := h.start(kingdom, []string{expansion.Seaside})
	v := h.view(id, "")
	assert.Contains(t, v.Players[0].Mats, "island")
}

func TestExpansionStateThroughEngine(t *testing.T) {
	h := newHarness(t)
	kingdom := []string{"monument", "island", "smithy", "village", "militia", "cellar", "chapel", "moat", "market", "witch"}
	id := h.start(kingdom, nil)
	ctx := context.Background()

	v := h.view(id, "")
	assert.Equal(t, 12, v.Supply["platinum"])
	assert.Equal(t, 8, v.Supply["colony"])
	assert.Equal(t, map[string]int{"alice": 0, "bob": 0}, v.Expansions[expansion.Prosperity])

	h.set(id, "alice", rules.ZoneDeck)
	h.set(id, "alice", rules.ZoneHand, "monument", "island", "estate", "copper", "copper")
	h.advance(id, 1)
	h.mutate(id, func(m *Match) { m.counters.Actions = 2 })

	v, err := h.e.PlayCard(ctx, id, "alice", "monument")
	require.NoError(t, err)
	assert.Equal(t, 2, v.Counters.Coins)
	assert.Equal(t, 1, v.Expansions[expansion.Prosperity]["alice"])

	_, err = h.e.PlayCard(ctx, id, "alice", "island")
	require.NoError(t, err)
	p := h.pending(id)
	assert.Equal(t, []string{"copper", "copper", "estate"}, p.Constraints.Eligible)
	v, err = h.e.SubmitDecision(ctx, id, p.ID, "alice", prompt.Payload{Cards: []string{"estate"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"island", "estate"}, v.Players[0].Mats["island"])
	assert.Empty(t, v.Players[1].Mats["island"])
	assert.Equal(t, []string{"monument"}, v.Players[0].InPlay)

	h.mutate(id, func(m *Match) {
		m.supply["colony"] = 0
		m.checkEnd()
	})
	v = h.advance(id, 2)
	assert.Equal(t, "GAME_OVER", v.Phase)

	summary, err := h.e.Summary(id)
	require.NoError(t, err)
	assert.Equal(t, "colony pile exhausted", summary.Reason)
	alice := summary.Players[0]
	assert.Equal(t, 1, alice.VictoryTokens)
	assert.Equal(t, 1, alice.Cards["island"])
	assert.Equal(t, 4, alice.Score, "island 2, estate 1, one token")
	assert.Equal(t, 3, summary.Players[1].Score)
	assert.Equal(t, []string{"alice"}, summary.Winners)
}

func TestSummarySharesTiedWins(t *testing.T) {
	h := newHarness(t)
	id := h.start(baseKingdom, []string{})
	ctx := context.Background()

	h.advance(id, 1)
	_, err := h.e.EndTurn(ctx, id)
	require.NoError(t, err)
	h.mutate(id, func(m *Match) {
		m.supply["province"] = 0
		m.checkEnd()
	})
	_, err = h.e.EndTurn(ctx, id)
	require.NoError(t, err)

	summary, err := h.e.Summary(id)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Players[0].Score)
	assert.Equal(t, 3, summary.Players[1].Score)
	assert.Equal(t, 1, summary.Players[0].Turns)
	assert.Equal(t, 1, summary.Players[1].Turns)
	assert.Equal(t, []string{"alice", "bob"}, summary.Winners)
}
