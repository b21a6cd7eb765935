package game

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/kingdomforge/kingdom-server-go/internal/game/rules"
	"golang.org/x/crypto/blake2b"
)

// checksum hashes the canonical representation of the match with
// BLAKE2b-256. Prompt ids and timestamps are not part of it.
func (m *Match) checksum() string {
	sum := blake2b.Sum256([]byte(m.canonical()))
	return hex.EncodeToString(sum[:])
}

// canonical renders match state independently of map iteration order.
func (m *Match) canonical() string {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "MATCH:%s|%s|%d|%s|%t|%t|%s\n",
		m.id,
		m.turn.CurrentPhase(),
		m.turn.TurnNumber(),
		m.turn.ActivePlayer(),
		m.endTriggered,
		m.errored,
		m.errReason,
	)
	fmt.Fprintf(&buf, "COUNTERS:%d|%d|%d|%d\n",
		m.counters.Actions, m.counters.Buys, m.counters.Coins, m.counters.Potions)

	for _, p := range m.order {
		seat := m.seats[p]
		fmt.Fprintf(&buf, "PLAYER:%s|%d\n", p, seat.turns)
		zones := make([]string, 0, len(seat.zones))
		for z := range seat.zones {
			zones = append(zones, string(z))
		}
		sort.Strings(zones)
		for _, z := range zones {
			fmt.Fprintf(&buf, "  ZONE:%s|%s\n", z, strings.Join(seat.zones[rules.Zone(z)], ","))
		}
	}

	for _, key := range m.piles {
		fmt.Fprintf(&buf, "SUPPLY:%s|%d\n", key, m.supply[key])
	}
	fmt.Fprintf(&buf, "TRASH:%s\n", strings.Join(m.trash, ","))

	for _, id := range sortedStateIDs(m.states) {
		snapshot := m.states[id].Snapshot()
		keys := make([]string, 0, len(snapshot))
		for k := range snapshot {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&buf, "STATE:%s|%s|%d\n", id, k, snapshot[k])
		}
	}

	for _, f := range m.resolver.Frames() {
		fmt.Fprintf(&buf, "FRAME:%s|%s|%s|%d|%s\n", f.Player, f.Source, f.ProgramID, f.Cursor, f.State)
	}
	return buf.String()
}
