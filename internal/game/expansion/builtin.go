package expansion

import (
	"sort"

	"github.com/kingdomforge/kingdom-server-go/internal/game/cards"
	"github.com/kingdomforge/kingdom-server-go/internal/game/effects"
	"github.com/kingdomforge/kingdom-server-go/internal/game/prompt"
	"github.com/kingdomforge/kingdom-server-go/internal/game/rules"
)

const (
	Alchemy    = "alchemy"
	Prosperity = "prosperity"
	Seaside    = "seaside"

	// PotionPileSize is the supply count of the potion pile.
	PotionPileSize = 16
	// PlatinumPileSize is the supply count of the platinum pile.
	PlatinumPileSize = 12

	// VictoryTokensMat holds a player's victory tokens.
	VictoryTokensMat = "victory_tokens"

	KindAddVictoryTokens effects.ActionKind = "add_victory_tokens"
	KindSetAsideOnMat    effects.ActionKind = "set_aside_on_mat"
)

// Builtins returns the bundled expansions in their registration order.
func Builtins() []Expansion {
	return []Expansion{
		{
			ID:        Alchemy,
			Configure: configureAlchemy,
			Programs: map[string]effects.Program{
				"potion": {effects.Potions(1)},
				"apothecary": {
					effects.Draw(1),
					effects.Actions(1),
					{Kind: effects.KindDrawCards, Amount: 4, To: rules.ZoneSetAside},
					{Kind: effects.KindMoveMatching, From: rules.ZoneSetAside, To: rules.ZoneHand, Cards: []string{"copper", "potion"}},
					{Kind: effects.KindMoveMatching, From: rules.ZoneSetAside, To: rules.ZoneDeck},
					{Kind: effects.KindRearrangeDeck, UseLast: true, Message: "Put the cards back in any order"},
				},
				"familiar": {
					effects.Draw(1),
					effects.Actions(1),
					{Kind: effects.KindAttack, Sub: effects.Program{{Kind: effects.KindGainCard, Card: "curse", To: rules.ZoneDiscard}}},
				},
			},
		},
		{
			ID:        Prosperity,
			Configure: configureProsperity,
			NewState:  func(players []string) State { return NewTokenState(players) },
			Actions: map[effects.ActionKind]effects.Handler{
				KindAddVictoryTokens: addVictoryTokens,
			},
			Programs: map[string]effects.Program{
				"platinum": {effects.Coins(5)},
				"monument": {effects.Coins(2), {Kind: KindAddVictoryTokens, Amount: 1}},
			},
		},
		{
			ID:        Seaside,
			Configure: configureSeaside,
			Actions: map[effects.ActionKind]effects.Handler{
				KindSetAsideOnMat: setAsideOnMat,
			},
			Programs: map[string]effects.Program{
				"navigator": {
					effects.Coins(2),
					{Kind: effects.KindDrawCards, Amount: 5, To: rules.ZoneSetAside},
					{
						Kind:    effects.KindOptional,
						Message: "Discard the top 5 cards of your deck?",
						Sub: effects.Program{
							{Kind: effects.KindMoveMatching, From: rules.ZoneSetAside, To: rules.ZoneDiscard},
						},
						Else: effects.Program{
							{Kind: effects.KindMoveMatching, From: rules.ZoneSetAside, To: rules.ZoneDeck},
							{Kind: effects.KindRearrangeDeck, UseLast: true, Message: "Put the cards back in any order"},
						},
					},
				},
				"island": {
					{Kind: KindSetAsideOnMat, Mat: "island", WithSource: true, Message: "Put a card from your hand on your Island mat"},
				},
			},
		},
	}
}

// configureAlchemy adds the potion pile when a kingdom card costs potions.
func configureAlchemy(cfg *Configuration, lib *cards.Library) error {
	requiredBy := ""
	for _, key := range cfg.Kingdom {
		def, err := lib.Get(key)
		if err != nil {
			return err
		}
		if def.Cost.Potions > 0 {
			requiredBy = key
			break
		}
	}
	if requiredBy == "" {
		return nil
	}
	if !lib.Has("potion") {
		return &MissingDependencyError{Expansion: Alchemy, Card: "potion", RequiredBy: requiredBy}
	}
	cfg.EnsureBasic("potion", PotionPileSize)
	return nil
}

// configureProsperity adds platinum and colony when the kingdom uses a
// prosperity card.
func configureProsperity(cfg *Configuration, lib *cards.Library) error {
	requiredBy := ""
	for _, key := range cfg.Kingdom {
		def, err := lib.Get(key)
		if err != nil {
			return err
		}
		if def.Expansion == Prosperity {
			requiredBy = key
			break
		}
	}
	if requiredBy == "" {
		return nil
	}
	for _, key := range []string{"platinum", "colony"} {
		if !lib.Has(key) {
			return &MissingDependencyError{Expansion: Prosperity, Card: key, RequiredBy: requiredBy}
		}
	}
	cfg.EnsureBasic("platinum", PlatinumPileSize)
	cfg.EnsureBasic("colony", cfg.VictoryPileSize())
	cfg.EnsureKeyPile("colony")
	cfg.EnsureMat(MatDefinition{Key: VictoryTokensMat, Name: "Victory Tokens"})
	return nil
}

// configureSeaside adds the mats kingdom cards declare.
func configureSeaside(cfg *Configuration, lib *cards.Library) error {
	for _, key := range cfg.Kingdom {
		def, err := lib.Get(key)
		if err != nil {
			return err
		}
		if def.Mat != "" {
			cfg.EnsureMat(MatDefinition{Key: def.Mat, Name: def.Name + " Mat"})
		}
	}
	return nil
}

// TokenState tracks victory tokens per player.
type TokenState struct {
	tokens map[string]int
}

// NewTokenState creates an empty token state.
func NewTokenState(players []string) *TokenState {
	s := &TokenState{tokens: make(map[string]int, len(players))}
	for _, p := range players {
		s.tokens[p] = 0
	}
	return s
}

// Add gives player n tokens.
func (s *TokenState) Add(player string, n int) error {
	if _, ok := s.tokens[player]; !ok {
		return rules.Violationf(string(KindAddVictoryTokens), "unknown player %s", player)
	}
	if n < 0 {
		return rules.Violationf(string(KindAddVictoryTokens), "negative token count %d", n)
	}
	s.tokens[player] += n
	return nil
}

// Tokens returns player's token count.
func (s *TokenState) Tokens(player string) int {
	return s.tokens[player]
}

// Snapshot implements State.
func (s *TokenState) Snapshot() map[string]int {
	out := make(map[string]int, len(s.tokens))
	for p, n := range s.tokens {
		out[p] = n
	}
	return out
}

// VictoryPoints implements State.
func (s *TokenState) VictoryPoints(player string) int {
	return s.tokens[player]
}

func addVictoryTokens(env *effects.Env, step effects.Step) (effects.Outcome, error) {
	raw, ok := env.Match.ExpansionState(Prosperity)
	if !ok {
		return effects.Outcome{}, rules.Violationf(string(KindAddVictoryTokens), "match has no %s state", Prosperity)
	}
	state, ok := raw.(*TokenState)
	if !ok {
		return effects.Outcome{}, rules.Violationf(string(KindAddVictoryTokens), "unexpected state type %T", raw)
	}
	if err := state.Add(env.Frame.Actor, step.Amount); err != nil {
		return effects.Outcome{}, err
	}
	return effects.Continue(), nil
}

// setAsideOnMat moves a chosen hand card, and optionally the playing card,
// onto a mat.
func setAsideOnMat(env *effects.Env, step effects.Step) (effects.Outcome, error) {
	if step.Mat == "" {
		return effects.Outcome{}, rules.Violationf(string(KindSetAsideOnMat), "step has no mat")
	}
	mat := rules.MatZone(step.Mat)
	f := env.Frame

	if d, ok := env.Decision(); ok {
		if err := env.Match.Move(f.Player, rules.ZoneHand, mat, d.Payload.Cards); err != nil {
			return effects.Outcome{}, err
		}
		f.Selected = append([]string(nil), d.Payload.Cards...)
		f.Last = len(d.Payload.Cards)
		return effects.Continue(), nil
	}

	if step.WithSource {
		if err := moveSource(env, mat); err != nil {
			return effects.Outcome{}, err
		}
	}
	hand := env.Match.Zone(f.Player, rules.ZoneHand)
	if len(hand) == 0 {
		f.Selected, f.Last = nil, 0
		return effects.Continue(), nil
	}
	eligible := append([]string(nil), hand...)
	sort.Strings(eligible)
	return effects.Suspend(effects.Request{
		Kind: prompt.KindSelectCards,
		Constraints: prompt.Constraints{
			Count:    rules.Exact(1),
			Eligible: eligible,
			Zone:     string(rules.ZoneHand),
			Message:  step.Message,
		},
	}), nil
}

func moveSource(env *effects.Env, mat rules.Zone) error {
	f := env.Frame
	for _, key := range env.Match.Zone(f.Player, rules.ZoneInPlay) {
		if key == f.Source {
			return env.Match.Move(f.Player, rules.ZoneInPlay, mat, []string{key})
		}
	}
	return nil
}
