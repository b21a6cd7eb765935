package effects

import (
	"context"
	"testing"
	"time"

	"github.com/kingdomforge/kingdom-server-go/internal/game/cards"
	"github.com/kingdomforge/kingdom-server-go/internal/game/prompt"
	"github.com/kingdomforge/kingdom-server-go/internal/game/rules"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// tableMatch is an in-memory Match without shuffling.
type tableMatch struct {
	id       string
	players  []string
	active   string
	lib      *cards.Library
	zones    map[string]map[rules.Zone][]string
	trash    []string
	supply   map[string]int
	counters rules.Counters
	states   map[string]any
}

func newTableMatch(t *testing.T, players ...string) *tableMatch {
	t.Helper()
	lib := cards.NewLibrary()
	require.NoError(t, lib.Register(
		cards.Definition{Key: "copper", Name: "Copper", Types: []cards.Type{cards.TypeTreasure}, Program: "copper"},
		cards.Definition{Key: "silver", Name: "Silver", Cost: cards.Cost{Coins: 3}, Types: []cards.Type{cards.TypeTreasure}, Program: "silver"},
		cards.Definition{Key: "gold", Name: "Gold", Cost: cards.Cost{Coins: 6}, Types: []cards.Type{cards.TypeTreasure}, Program: "gold"},
		cards.Definition{Key: "estate", Name: "Estate", Cost: cards.Cost{Coins: 2}, Types: []cards.Type{cards.TypeVictory}, VictoryPoints: 1},
		cards.Definition{Key: "duchy", Name: "Duchy", Cost: cards.Cost{Coins: 5}, Types: []cards.Type{cards.TypeVictory}, VictoryPoints: 3},
		cards.Definition{Key: "curse", Name: "Curse", Types: []cards.Type{cards.TypeCurse}, VictoryPoints: -1},
		cards.Definition{Key: "cellar", Name: "Cellar", Cost: cards.Cost{Coins: 2}, Types: []cards.Type{cards.TypeAction}, Program: "cellar"},
		cards.Definition{Key: "moat", Name: "Moat", Cost: cards.Cost{Coins: 2}, Types: []cards.Type{cards.TypeAction, cards.TypeReaction}, Program: "moat"},
		cards.Definition{Key: "smithy", Name: "Smithy", Cost: cards.Cost{Coins: 4}, Types: []cards.Type{cards.TypeAction}, Program: "smithy"},
		cards.Definition{Key: "throne_room", Name: "Throne Room", Cost: cards.Cost{Coins: 4}, Types: []cards.Type{cards.TypeAction}, Program: "throne_room"},
		cards.Definition{Key: "feast", Name: "Feast", Cost: cards.Cost{Coins: 4}, Types: []cards.Type{cards.TypeAction}, Program: "feast"},
		cards.Definition{Key: "militia", Name: "Militia", Cost: cards.Cost{Coins: 4}, Types: []cards.Type{cards.TypeAction, cards.TypeAttack}, Program: "militia"},
		cards.Definition{Key: "witch", Name: "Witch", Cost: cards.Cost{Coins: 5}, Types: []cards.Type{cards.TypeAction, cards.TypeAttack}, Program: "witch"},
		cards.Definition{Key: "scout", Name: "Scout", Cost: cards.Cost{Coins: 4}, Types: []cards.Type{cards.TypeAction}, Program: "scout"},
		cards.Definition{Key: "gambler", Name: "Gambler", Cost: cards.Cost{Coins: 3}, Types: []cards.Type{cards.TypeAction}, Program: "gambler"},
		cards.Definition{Key: "chancellor", Name: "Chancellor", Cost: cards.Cost{Coins: 3}, Types: []cards.Type{cards.TypeAction}, Program: "chancellor"},
	))
	lib.Seal()

	m := &tableMatch{
		id:       "match-1",
		players:  players,
		active:   players[0],
		lib:      lib,
		zones:    make(map[string]map[rules.Zone][]string),
		supply:   map[string]int{"copper": 10, "silver": 10, "gold": 10, "estate": 8, "duchy": 8, "curse": 10, "smithy": 10},
		counters: rules.NewTurnCounters(),
		states:   make(map[string]any),
	}
	for _, p := range players {
		m.zones[p] = make(map[rules.Zone][]string)
	}
	return m
}

func (m *tableMatch) set(player string, zone rules.Zone, keys ...string) {
	m.zones[player][zone] = keys
}

func (m *tableMatch) ID() string           { return m.id }
func (m *tableMatch) ActivePlayer() string { return m.active }

func (m *tableMatch) OthersInTurnOrder(player string) []string {
	for i, p := range m.players {
		if p == player {
			out := make([]string, 0, len(m.players)-1)
			for j := 1; j < len(m.players); j++ {
				out = append(out, m.players[(i+j)%len(m.players)])
			}
			return out
		}
	}
	return nil
}

func (m *tableMatch) Card(key string) (cards.Definition, error) { return m.lib.Get(key) }

func (m *tableMatch) Zone(player string, zone rules.Zone) []string {
	if zone == rules.ZoneTrash {
		return append([]string(nil), m.trash...)
	}
	return append([]string(nil), m.zones[player][zone]...)
}

func (m *tableMatch) Draw(player string, n int, to rules.Zone) ([]string, error) {
	var drawn []string
	for i := 0; i < n; i++ {
		deck := m.zones[player][rules.ZoneDeck]
		if len(deck) == 0 {
			deck = m.zones[player][rules.ZoneDiscard]
			m.zones[player][rules.ZoneDiscard] = nil
			if len(deck) == 0 {
				break
			}
		}
		drawn = append(drawn, deck[0])
		m.zones[player][rules.ZoneDeck] = deck[1:]
	}
	m.zones[player][to] = append(m.zones[player][to], drawn...)
	return drawn, nil
}

func (m *tableMatch) Move(player string, from, to rules.Zone, keys []string) error {
	src := m.Zone(player, from)
	for _, key := range keys {
		idx := -1
		for i, have := range src {
			if have == key {
				idx = i
				break
			}
		}
		if idx < 0 {
			return rules.Violationf("move", "%s not in %s of %s", key, from, player)
		}
		src = append(src[:idx], src[idx+1:]...)
	}
	if from == rules.ZoneTrash {
		m.trash = src
	} else {
		m.zones[player][from] = src
	}
	switch to {
	case rules.ZoneTrash:
		m.trash = append(m.trash, keys...)
	case rules.ZoneDeck:
		m.zones[player][to] = append(append([]string(nil), keys...), m.zones[player][to]...)
	default:
		m.zones[player][to] = append(m.zones[player][to], keys...)
	}
	return nil
}

func (m *tableMatch) Reorder(player string, zone rules.Zone, n int, order []int) error {
	cur := m.zones[player][zone]
	if n > len(cur) || len(order) != n {
		return rules.Violationf("reorder", "bad order")
	}
	top := make([]string, n)
	for i, idx := range order {
		top[i] = cur[idx]
	}
	copy(cur, top)
	return nil
}

func (m *tableMatch) AdjustCounter(c rules.Counter, delta int) error {
	return m.counters.Adjust(c, delta)
}

func (m *tableMatch) Gain(player, key string, to rules.Zone) (bool, error) {
	if m.supply[key] == 0 {
		return false, nil
	}
	m.supply[key]--
	m.zones[player][to] = append(m.zones[player][to], key)
	return true, nil
}

func (m *tableMatch) SupplyCount(key string) int { return m.supply[key] }

func (m *tableMatch) SupplyKeys() []string {
	return []string{"copper", "curse", "duchy", "estate", "gold", "silver", "smithy"}
}

func (m *tableMatch) ExpansionState(id string) (any, bool) {
	s, ok := m.states[id]
	return s, ok
}

type harness struct {
	t        *testing.T
	match    *tableMatch
	broker   *prompt.Broker
	interp   *Interpreter
	resolver *Resolver
	events   []StepEvent
}

func newHarness(t *testing.T, players ...string) *harness {
	t.Helper()
	if len(players) == 0 {
		players = []string{"alice", "bob"}
	}
	h := &harness{t: t, match: newTableMatch(t, players...)}
	h.interp = NewInterpreter()
	require.NoError(t, RegisterBasePrograms(h.interp))
	h.interp.Seal()
	h.broker = prompt.NewBroker(nil, zaptest.NewLogger(t), prompt.WithClock(prompt.NewManualClock(time.Unix(0, 0))))
	h.resolver = NewResolver(h.interp, h.broker, zaptest.NewLogger(t), WithObserver(func(e StepEvent) {
		h.events = append(h.events, e)
	}))
	return h
}

// play moves key from hand to in-play and resolves its program.
func (h *harness) play(player, key string) Status {
	h.t.Helper()
	require.NoError(h.t, h.match.Move(player, rules.ZoneHand, rules.ZoneInPlay, []string{key}))
	def, err := h.match.Card(key)
	require.NoError(h.t, err)
	require.NoError(h.t, h.resolver.Begin(FrameSpec{Player: player, Source: key, ProgramID: def.Program}))
	status, err := h.resolver.Run(context.Background(), h.match)
	require.NoError(h.t, err)
	return status
}

// pending returns the outstanding prompt the resolver waits for.
func (h *harness) pending() *prompt.Pending {
	h.t.Helper()
	id, ok := h.resolver.PendingPrompt()
	require.True(h.t, ok, "expected a suspended frame")
	p, ok := h.broker.Get(id)
	require.True(h.t, ok)
	return p
}

// answer submits payload for the current prompt and resumes.
func (h *harness) answer(payload prompt.Payload) Status {
	h.t.Helper()
	p := h.pending()
	d, err := h.broker.Submit(p.ID, p.Player, payload)
	require.NoError(h.t, err)
	status, err := h.resolver.Resume(context.Background(), h.match, d)
	require.NoError(h.t, err)
	return status
}
