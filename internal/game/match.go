package game

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/kingdomforge/kingdom-server-go/internal/game/cards"
	"github.com/kingdomforge/kingdom-server-go/internal/game/effects"
	"github.com/kingdomforge/kingdom-server-go/internal/game/expansion"
	"github.com/kingdomforge/kingdom-server-go/internal/game/prompt"
	"github.com/kingdomforge/kingdom-server-go/internal/game/rules"
)

// seatState is one player's zones and connection state.
type seatState struct {
	id    string
	zones map[rules.Zone][]string

	connected bool
	// absent is set once a disconnect outlives the grace period. Prompts to an
	// absent player resolve with their default immediately.
	absent     bool
	graceTimer prompt.Timer
	turns      int
}

// Match is the state of one game. Every field is guarded by mu; the engine
// holds it for the whole of each operation.
type Match struct {
	mu sync.Mutex

	id       string
	config   expansion.Configuration
	lib      *cards.Library
	turn     *rules.TurnManager
	seats    map[string]*seatState
	order    []string
	supply   map[string]int
	piles    []string
	trash    []string
	counters rules.Counters
	states   map[string]expansion.State

	resolver *effects.Resolver
	seed     uint64
	rng      *rand.Rand

	seq          uint64
	outbox       []TransitionRecord
	endTriggered bool
	endReason    string
	errored      bool
	errReason    string
	closed       bool
	startedAt    time.Time
	summary      *MatchSummary
}

var _ effects.Match = (*Match)(nil)

func newMatch(id string, cfg expansion.Configuration, players []string, lib *cards.Library, states map[string]expansion.State, seed uint64) *Match {
	m := &Match{
		id:       id,
		config:   cfg,
		lib:      lib,
		turn:     rules.NewTurnManager(players),
		seats:    make(map[string]*seatState, len(players)),
		order:    append([]string(nil), players...),
		supply:   make(map[string]int),
		counters: rules.NewTurnCounters(),
		states:   states,
		seed:     seed,
		rng:      rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
	for _, p := range cfg.Supply() {
		m.supply[p.Key] = p.Count
		m.piles = append(m.piles, p.Key)
	}
	for _, p := range players {
		seat := &seatState{id: p, zones: make(map[rules.Zone][]string), connected: true}
		for _, z := range rules.PlayerZones {
			seat.zones[z] = nil
		}
		for _, mat := range cfg.Mats {
			seat.zones[rules.MatZone(mat.Key)] = nil
		}
		m.seats[p] = seat
	}
	return m
}

// deal builds and shuffles every starting deck, then draws opening hands.
func (m *Match) deal() error {
	for _, p := range m.order {
		var deck []string
		for _, pile := range m.config.StartingDeck {
			for i := 0; i < pile.Count; i++ {
				deck = append(deck, pile.Key)
			}
		}
		m.shuffle(deck)
		m.seats[p].zones[rules.ZoneDeck] = deck
		if _, err := m.Draw(p, m.config.HandSize, rules.ZoneHand); err != nil {
			return err
		}
	}
	return nil
}

func (m *Match) shuffle(keys []string) {
	m.rng.Shuffle(len(keys), func(i, j int) { keys[i], keys[j] = keys[j], keys[i] })
}

// ID implements effects.Match.
func (m *Match) ID() string { return m.id }

// ActivePlayer implements effects.Match.
func (m *Match) ActivePlayer() string { return m.turn.ActivePlayer() }

// OthersInTurnOrder implements effects.Match.
func (m *Match) OthersInTurnOrder(player string) []string {
	return m.turn.OthersInTurnOrder(player)
}

// Card implements effects.Match.
func (m *Match) Card(key string) (cards.Definition, error) {
	return m.lib.Get(key)
}

func (m *Match) zone(op, player string, zone rules.Zone) ([]string, error) {
	if zone == rules.ZoneTrash {
		return m.trash, nil
	}
	seat, ok := m.seats[player]
	if !ok {
		return nil, rules.Violationf(op, "unknown player %s", player)
	}
	keys, ok := seat.zones[zone]
	if !ok {
		return nil, rules.Violationf(op, "player %s has no zone %s", player, zone)
	}
	return keys, nil
}

// setZone stores a zone previously validated through zone.
func (m *Match) setZone(player string, zone rules.Zone, keys []string) {
	if zone == rules.ZoneTrash {
		m.trash = keys
		return
	}
	m.seats[player].zones[zone] = keys
}

// Zone implements effects.Match.
func (m *Match) Zone(player string, zone rules.Zone) []string {
	keys, err := m.zone("zone", player, zone)
	if err != nil {
		return nil
	}
	return append([]string(nil), keys...)
}

// Draw implements effects.Match.
func (m *Match) Draw(player string, n int, to rules.Zone) ([]string, error) {
	if _, err := m.zone("draw", player, to); err != nil {
		return nil, err
	}
	seat, ok := m.seats[player]
	if !ok {
		return nil, rules.Violationf("draw", "unknown player %s", player)
	}

	drawn := make([]string, 0, n)
	for len(drawn) < n {
		deck := seat.zones[rules.ZoneDeck]
		if len(deck) == 0 {
			discard := seat.zones[rules.ZoneDiscard]
			if len(discard) == 0 {
				break
			}
			deck = append([]string(nil), discard...)
			m.shuffle(deck)
			seat.zones[rules.ZoneDiscard] = nil
		}
		drawn = append(drawn, deck[0])
		seat.zones[rules.ZoneDeck] = deck[1:]
	}

	dest, _ := m.zone("draw", player, to)
	m.setZone(player, to, place(dest, drawn, to))
	return drawn, nil
}

// Move implements effects.Match.
func (m *Match) Move(player string, from, to rules.Zone, keys []string) error {
	src, err := m.zone("move", player, from)
	if err != nil {
		return err
	}
	if _, err := m.zone("move", player, to); err != nil {
		return err
	}
	if len(keys) == 0 || from == to {
		return nil
	}

	remaining := append([]string(nil), src...)
	for _, key := range keys {
		idx := indexOf(remaining, key)
		if idx < 0 {
			return rules.Violationf("move", "card %s not in %s of %s", key, from, player)
		}
		remaining = append(remaining[:idx], remaining[idx+1:]...)
	}
	m.setZone(player, from, remaining)

	dest, _ := m.zone("move", player, to)
	m.setZone(player, to, place(dest, keys, to))
	return nil
}

// Reorder implements effects.Match.
func (m *Match) Reorder(player string, zone rules.Zone, n int, order []int) error {
	keys, err := m.zone("reorder", player, zone)
	if err != nil {
		return err
	}
	if n > len(keys) || len(order) != n {
		return rules.Violationf("reorder", "cannot reorder %d of %d cards with %d indices", n, len(keys), len(order))
	}
	seen := make([]bool, n)
	top := make([]string, n)
	for i, idx := range order {
		if idx < 0 || idx >= n || seen[idx] {
			return rules.Violationf("reorder", "order %v is not a permutation of %d", order, n)
		}
		seen[idx] = true
		top[i] = keys[idx]
	}
	reordered := append(top, keys[n:]...)
	m.setZone(player, zone, reordered)
	return nil
}

// AdjustCounter implements effects.Match.
func (m *Match) AdjustCounter(c rules.Counter, delta int) error {
	return m.counters.Adjust(c, delta)
}

// Gain implements effects.Match.
func (m *Match) Gain(player, key string, to rules.Zone) (bool, error) {
	count, ok := m.supply[key]
	if !ok {
		return false, rules.Violationf("gain", "no supply pile %s", key)
	}
	dest, err := m.zone("gain", player, to)
	if err != nil {
		return false, err
	}
	if count == 0 {
		return false, nil
	}
	m.supply[key] = count - 1
	m.setZone(player, to, place(dest, []string{key}, to))
	m.checkEnd()
	return true, nil
}

// SupplyCount implements effects.Match.
func (m *Match) SupplyCount(key string) int {
	return m.supply[key]
}

// SupplyKeys implements effects.Match. Basic piles come first.
func (m *Match) SupplyKeys() []string {
	return append([]string(nil), m.piles...)
}

// ExpansionState implements effects.Match.
func (m *Match) ExpansionState(id string) (any, bool) {
	s, ok := m.states[id]
	return s, ok
}

// checkEnd evaluates the end condition. It runs after every supply change.
func (m *Match) checkEnd() {
	if m.endTriggered {
		return
	}
	for _, key := range m.config.End.KeyPiles {
		if count, ok := m.supply[key]; ok && count == 0 {
			m.endTriggered = true
			m.endReason = fmt.Sprintf("%s pile exhausted", key)
			return
		}
	}
	empty := 0
	for _, key := range m.piles {
		if m.supply[key] == 0 {
			empty++
		}
	}
	if m.config.End.EmptyPiles > 0 && empty >= m.config.End.EmptyPiles {
		m.endTriggered = true
		m.endReason = fmt.Sprintf("%d supply piles exhausted", empty)
	}
}

// cleanup discards hand, in-play and set-aside cards, draws a new hand and
// resets the turn counters.
func (m *Match) cleanup(player string) error {
	seat := m.seats[player]
	for _, z := range []rules.Zone{rules.ZoneInPlay, rules.ZoneHand, rules.ZoneSetAside} {
		if err := m.Move(player, z, rules.ZoneDiscard, seat.zones[z]); err != nil {
			return err
		}
	}
	if _, err := m.Draw(player, m.config.HandSize, rules.ZoneHand); err != nil {
		return err
	}
	m.counters = rules.NewTurnCounters()
	return nil
}

// ownedCards counts every card a player owns across all of their zones.
func (m *Match) ownedCards(player string) map[string]int {
	counts := make(map[string]int)
	seat, ok := m.seats[player]
	if !ok {
		return counts
	}
	for _, keys := range seat.zones {
		for _, key := range keys {
			counts[key]++
		}
	}
	return counts
}

func (m *Match) inHand(player, key string) bool {
	return indexOf(m.seats[player].zones[rules.ZoneHand], key) >= 0
}

// place adds cards to a zone. Decks take them on top, keeping their order.
func place(zone, keys []string, to rules.Zone) []string {
	if to == rules.ZoneDeck {
		out := make([]string, 0, len(zone)+len(keys))
		out = append(out, keys...)
		return append(out, zone...)
	}
	return append(append([]string(nil), zone...), keys...)
}

func indexOf(keys []string, key string) int {
	for i, k := range keys {
		if k == key {
			return i
		}
	}
	return -1
}
