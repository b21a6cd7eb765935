package expansion

import (
	"fmt"
	"sort"
	"sync"

	"github.com/kingdomforge/kingdom-server-go/internal/game/cards"
	"github.com/kingdomforge/kingdom-server-go/internal/game/effects"
)

// Configurator adjusts a configuration for an expansion. It must be
// idempotent and may only add entries or raise counts.
type Configurator func(cfg *Configuration, lib *cards.Library) error

// State is an expansion's slot in match state.
type State interface {
	// Snapshot returns a deterministic view used for checksums and views.
	Snapshot() map[string]int
	// VictoryPoints is the score the state adds for player.
	VictoryPoints(player string) int
}

// Expansion bundles everything an expansion contributes.
type Expansion struct {
	ID        string
	Configure Configurator
	NewState  func(players []string) State
	Actions   map[effects.ActionKind]effects.Handler
	Programs  map[string]effects.Program
}

// Composer applies registered expansions to base configurations in
// registration order.
type Composer struct {
	mu    sync.RWMutex
	order []string
	byID  map[string]Expansion
}

// NewComposer creates an empty composer.
func NewComposer() *Composer {
	return &Composer{byID: make(map[string]Expansion)}
}

// NewDefaultComposer returns a composer with the built-in expansions.
func NewDefaultComposer() *Composer {
	c := NewComposer()
	for _, exp := range Builtins() {
		// Built-in ids are distinct.
		_ = c.Register(exp)
	}
	return c
}

// Register adds an expansion. Registration order fixes composition order.
func (c *Composer) Register(exp Expansion) error {
	if exp.ID == "" {
		return fmt.Errorf("expansion id is empty")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.byID[exp.ID]; exists {
		return &DuplicateExpansionError{ID: exp.ID}
	}
	c.byID[exp.ID] = exp
	c.order = append(c.order, exp.ID)
	return nil
}

// IDs lists the registered expansions in registration order.
func (c *Composer) IDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.order...)
}

// Get returns a registered expansion.
func (c *Composer) Get(id string) (Expansion, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	exp, ok := c.byID[id]
	return exp, ok
}

// Install registers every expansion's action kinds and programs.
func (c *Composer) Install(in *effects.Interpreter) error {
	for _, id := range c.IDs() {
		exp, _ := c.Get(id)
		kinds := make([]effects.ActionKind, 0, len(exp.Actions))
		for kind := range exp.Actions {
			kinds = append(kinds, kind)
		}
		sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
		for _, kind := range kinds {
			if err := in.RegisterAction(kind, exp.Actions[kind]); err != nil {
				return fmt.Errorf("install %s: %w", id, err)
			}
		}
		if err := in.RegisterPrograms(exp.Programs); err != nil {
			return fmt.Errorf("install %s: %w", id, err)
		}
	}
	return nil
}

// Compose runs the configurators of the selected expansions over base.
func (c *Composer) Compose(base Configuration, selected []string, lib *cards.Library) (Configuration, error) {
	want := make(map[string]bool, len(selected))
	for _, id := range selected {
		if _, ok := c.Get(id); !ok {
			return Configuration{}, &UnknownExpansionError{ID: id}
		}
		want[id] = true
	}
	if err := c.checkKingdomExpansions(base, want, lib); err != nil {
		return Configuration{}, err
	}

	cfg := base.Clone()
	cfg.Expansions = nil
	for _, id := range c.IDs() {
		if !want[id] {
			continue
		}
		exp, _ := c.Get(id)
		if exp.Configure != nil {
			before := cfg.Clone()
			if err := exp.Configure(&cfg, lib); err != nil {
				return Configuration{}, err
			}
			if err := checkAddOnly(id, before, cfg); err != nil {
				return Configuration{}, err
			}
		}
		cfg.Expansions = append(cfg.Expansions, id)
	}
	return cfg, nil
}

// checkKingdomExpansions rejects kingdom cards that belong to a registered
// expansion left out of the selection.
func (c *Composer) checkKingdomExpansions(base Configuration, want map[string]bool, lib *cards.Library) error {
	for _, key := range base.Kingdom {
		def, err := lib.Get(key)
		if err != nil {
			return fmt.Errorf("kingdom card: %w", err)
		}
		if def.Expansion == "" || want[def.Expansion] {
			continue
		}
		if _, registered := c.Get(def.Expansion); registered {
			return &UnselectedExpansionError{Card: key, Expansion: def.Expansion}
		}
	}
	return nil
}

// NewStates creates the state slots of the configuration's expansions.
func (c *Composer) NewStates(cfg Configuration, players []string) map[string]State {
	states := make(map[string]State)
	for _, id := range cfg.Expansions {
		exp, ok := c.Get(id)
		if !ok || exp.NewState == nil {
			continue
		}
		states[id] = exp.NewState(players)
	}
	return states
}

func checkAddOnly(id string, before, after Configuration) error {
	if after.Players != before.Players || after.HandSize != before.HandSize {
		return &AddOnlyError{Expansion: id, Detail: "players or hand size changed"}
	}
	if len(after.Kingdom) < len(before.Kingdom) {
		return &AddOnlyError{Expansion: id, Detail: "kingdom shrank"}
	}
	afterSupply := after.SupplySet()
	for _, p := range before.Supply() {
		count, ok := afterSupply[p.Key]
		if !ok {
			return &AddOnlyError{Expansion: id, Detail: fmt.Sprintf("pile %s removed", p.Key)}
		}
		if count < p.Count {
			return &AddOnlyError{Expansion: id, Detail: fmt.Sprintf("pile %s lowered from %d to %d", p.Key, p.Count, count)}
		}
	}
	mats := make(map[string]bool, len(after.Mats))
	for _, m := range after.Mats {
		mats[m.Key] = true
	}
	for _, m := range before.Mats {
		if !mats[m.Key] {
			return &AddOnlyError{Expansion: id, Detail: fmt.Sprintf("mat %s removed", m.Key)}
		}
	}
	keys := make(map[string]bool, len(after.End.KeyPiles))
	for _, k := range after.End.KeyPiles {
		keys[k] = true
	}
	for _, k := range before.End.KeyPiles {
		if !keys[k] {
			return &AddOnlyError{Expansion: id, Detail: fmt.Sprintf("end pile %s removed", k)}
		}
	}
	return nil
}
