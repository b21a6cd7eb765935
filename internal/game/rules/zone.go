package rules

import "strings"

// Zone names a card location. Index 0 of an ordered zone is its top.
type Zone string

const (
	ZoneHand     Zone = "hand"
	ZoneDeck     Zone = "deck"
	ZoneDiscard  Zone = "discard"
	ZoneInPlay   Zone = "in_play"
	ZoneSetAside Zone = "set_aside"
	// ZoneTrash is shared by all players.
	ZoneTrash Zone = "trash"
)

const matPrefix = "mat:"

// MatZone returns the zone of a player-owned mat.
func MatZone(mat string) Zone {
	return Zone(matPrefix + mat)
}

// Mat returns the mat key when z is a mat zone.
func (z Zone) Mat() (string, bool) {
	if !strings.HasPrefix(string(z), matPrefix) {
		return "", false
	}
	return strings.TrimPrefix(string(z), matPrefix), true
}

// PlayerZones lists the fixed per-player zones.
var PlayerZones = []Zone{ZoneHand, ZoneDeck, ZoneDiscard, ZoneInPlay, ZoneSetAside}

// Counter names a per-turn resource of the active player.
type Counter string

const (
	CounterActions Counter = "actions"
	CounterBuys    Counter = "buys"
	CounterCoins   Counter = "coins"
	CounterPotions Counter = "potions"
)

// Counters holds the active player's turn resources.
type Counters struct {
	Actions int `json:"actions"`
	Buys    int `json:"buys"`
	Coins   int `json:"coins"`
	Potions int `json:"potions"`
}

// NewTurnCounters returns the resources a turn starts with.
func NewTurnCounters() Counters {
	return Counters{Actions: 1, Buys: 1}
}

// Adjust applies delta to a counter. Counters never drop below zero.
func (c *Counters) Adjust(counter Counter, delta int) error {
	var target *int
	switch counter {
	case CounterActions:
		target = &c.Actions
	case CounterBuys:
		target = &c.Buys
	case CounterCoins:
		target = &c.Coins
	case CounterPotions:
		target = &c.Potions
	default:
		return Violationf("adjust_counter", "unknown counter %q", counter)
	}
	if *target+delta < 0 {
		return Violationf("adjust_counter", "%s would drop to %d", counter, *target+delta)
	}
	*target += delta
	return nil
}
