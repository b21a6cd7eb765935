package expansion

import (
	"fmt"
	"sort"

	"github.com/kingdomforge/kingdom-server-go/internal/game/cards"
)

const (
	// DefaultHandSize is the number of cards drawn at cleanup.
	DefaultHandSize = 5
	// KingdomPileSize is the supply count of a non-victory kingdom card.
	KingdomPileSize = 10
	// MinPlayers and MaxPlayers bound the base supply formulas.
	MinPlayers = 2
	MaxPlayers = 6
)

// Pile is a supply pile or a starting-deck entry.
type Pile struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// MatDefinition is a player-owned auxiliary zone.
type MatDefinition struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

// EndCondition ends the game when any key pile or EmptyPiles piles run out.
type EndCondition struct {
	KeyPiles   []string `json:"key_piles"`
	EmptyPiles int      `json:"empty_piles"`
}

// Configuration is the composed description of a match's cards and mats. It
// is immutable once handed to the engine.
type Configuration struct {
	Players      int             `json:"players"`
	Kingdom      []string        `json:"kingdom"`
	Basic        []Pile          `json:"basic"`
	KingdomPiles []Pile          `json:"kingdom_piles"`
	StartingDeck []Pile          `json:"starting_deck"`
	Mats         []MatDefinition `json:"mats,omitempty"`
	End          EndCondition    `json:"end"`
	Expansions   []string        `json:"expansions,omitempty"`
	HandSize     int             `json:"hand_size"`
}

// Base builds the base-game configuration for a kingdom and player count.
func Base(lib *cards.Library, kingdom []string, players int) (Configuration, error) {
	if players < MinPlayers || players > MaxPlayers {
		return Configuration{}, fmt.Errorf("player count %d outside %d-%d", players, MinPlayers, MaxPlayers)
	}
	if len(kingdom) == 0 {
		return Configuration{}, fmt.Errorf("kingdom is empty")
	}

	victory := victoryPileSize(players)
	cfg := Configuration{
		Players: players,
		Kingdom: append([]string(nil), kingdom...),
		Basic: []Pile{
			{Key: "copper", Count: 60 - 7*players},
			{Key: "silver", Count: 40},
			{Key: "gold", Count: 30},
			{Key: "estate", Count: victory},
			{Key: "duchy", Count: victory},
			{Key: "province", Count: victory},
			{Key: "curse", Count: 10 * (players - 1)},
		},
		StartingDeck: []Pile{
			{Key: "copper", Count: 7},
			{Key: "estate", Count: 3},
		},
		End:      EndCondition{KeyPiles: []string{"province"}, EmptyPiles: 3},
		HandSize: DefaultHandSize,
	}

	for _, p := range cfg.Basic {
		if _, err := lib.Get(p.Key); err != nil {
			return Configuration{}, fmt.Errorf("base card: %w", err)
		}
	}

	seen := make(map[string]bool, len(kingdom))
	for _, key := range kingdom {
		if seen[key] {
			return Configuration{}, fmt.Errorf("kingdom card %s selected twice", key)
		}
		seen[key] = true
		def, err := lib.Get(key)
		if err != nil {
			return Configuration{}, fmt.Errorf("kingdom card: %w", err)
		}
		if _, basic := cfg.Pile(key); basic {
			return Configuration{}, fmt.Errorf("kingdom card %s is a basic card", key)
		}
		count := KingdomPileSize
		if def.HasType(cards.TypeVictory) {
			count = victory
		}
		cfg.KingdomPiles = append(cfg.KingdomPiles, Pile{Key: key, Count: count})
	}
	return cfg, nil
}

func victoryPileSize(players int) int {
	if players == 2 {
		return 8
	}
	return 12
}

// Clone returns a deep copy.
func (c Configuration) Clone() Configuration {
	c.Kingdom = append([]string(nil), c.Kingdom...)
	c.Basic = append([]Pile(nil), c.Basic...)
	c.KingdomPiles = append([]Pile(nil), c.KingdomPiles...)
	c.StartingDeck = append([]Pile(nil), c.StartingDeck...)
	c.Mats = append([]MatDefinition(nil), c.Mats...)
	c.End.KeyPiles = append([]string(nil), c.End.KeyPiles...)
	c.Expansions = append([]string(nil), c.Expansions...)
	return c
}

// Pile finds a supply pile by key.
func (c Configuration) Pile(key string) (Pile, bool) {
	for _, p := range c.Basic {
		if p.Key == key {
			return p, true
		}
	}
	for _, p := range c.KingdomPiles {
		if p.Key == key {
			return p, true
		}
	}
	return Pile{}, false
}

// Supply returns every pile, basic first.
func (c Configuration) Supply() []Pile {
	out := make([]Pile, 0, len(c.Basic)+len(c.KingdomPiles))
	out = append(out, c.Basic...)
	return append(out, c.KingdomPiles...)
}

// SupplySet returns the supply as a key to count map.
func (c Configuration) SupplySet() map[string]int {
	set := make(map[string]int)
	for _, p := range c.Supply() {
		set[p.Key] = p.Count
	}
	return set
}

// MatKeys returns the sorted mat keys.
func (c Configuration) MatKeys() []string {
	keys := make([]string, 0, len(c.Mats))
	for _, m := range c.Mats {
		keys = append(keys, m.Key)
	}
	sort.Strings(keys)
	return keys
}

// EnsureBasic makes sure exactly one basic pile of key exists holding at
// least count cards. It never lowers a count.
func (c *Configuration) EnsureBasic(key string, count int) {
	for i := range c.Basic {
		if c.Basic[i].Key == key {
			if c.Basic[i].Count < count {
				c.Basic[i].Count = count
			}
			return
		}
	}
	c.Basic = append(c.Basic, Pile{Key: key, Count: count})
}

// EnsureMat adds a mat unless it already exists.
func (c *Configuration) EnsureMat(mat MatDefinition) {
	for _, m := range c.Mats {
		if m.Key == mat.Key {
			return
		}
	}
	c.Mats = append(c.Mats, mat)
}

// EnsureKeyPile adds key to the end condition's key piles.
func (c *Configuration) EnsureKeyPile(key string) {
	for _, k := range c.End.KeyPiles {
		if k == key {
			return
		}
	}
	c.End.KeyPiles = append(c.End.KeyPiles, key)
}

// VictoryPileSize is the victory pile count for the configured players.
func (c Configuration) VictoryPileSize() int {
	return victoryPileSize(c.Players)
}

// String renders a configuration summary for logs.
func (c Configuration) String() string {
	return fmt.Sprintf("%d players, %d kingdom, %d basic piles, expansions %v", c.Players, len(c.Kingdom), len(c.Basic), c.Expansions)
}
