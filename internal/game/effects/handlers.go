package effects

import (
	"fmt"

	"github.com/kingdomforge/kingdom-server-go/internal/game/cards"
	"github.com/kingdomforge/kingdom-server-go/internal/game/prompt"
	"github.com/kingdomforge/kingdom-server-go/internal/game/rules"
)

func coreHandlers() map[ActionKind]Handler {
	return map[ActionKind]Handler{
		KindDrawCards:      drawCards,
		KindAdjustCounter:  adjustCounter,
		KindMoveSelected:   moveSelected,
		KindMoveMatching:   moveMatching,
		KindGainSelect:     gainSelect,
		KindGainCard:       gainCard,
		KindOptional:       optional,
		KindRepeatAction:   repeatAction,
		KindAttack:         attack,
		KindRevealReaction: revealReaction,
		KindRearrangeDeck:  rearrangeDeck,
		KindDiscardDeck:    discardDeck,
		KindTrashSource:    trashSource,
	}
}

func amount(f *Frame, step Step) int {
	if step.UseLast {
		return f.Last
	}
	return step.Amount
}

func zoneOr(z, fallback rules.Zone) rules.Zone {
	if z == "" {
		return fallback
	}
	return z
}

func record(f *Frame, touched []string) {
	f.Selected = append([]string(nil), touched...)
	f.Last = len(touched)
}

func drawCards(env *Env, step Step) (Outcome, error) {
	n := amount(env.Frame, step)
	drawn, err := env.Match.Draw(env.Player(), n, zoneOr(step.To, rules.ZoneHand))
	if err != nil {
		return Outcome{}, err
	}
	record(env.Frame, drawn)
	return Continue(), nil
}

func adjustCounter(env *Env, step Step) (Outcome, error) {
	if err := env.Match.AdjustCounter(step.Counter, amount(env.Frame, step)); err != nil {
		return Outcome{}, err
	}
	return Continue(), nil
}

// filterCards keeps the cards matching the step's type or key filter.
func filterCards(m Match, keys []string, step Step) ([]string, error) {
	if step.Type == "" && len(step.Cards) == 0 {
		return append([]string(nil), keys...), nil
	}
	var out []string
	for _, key := range keys {
		ok, err := matches(m, key, step)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, key)
		}
	}
	return out, nil
}

func matches(m Match, key string, step Step) (bool, error) {
	if len(step.Cards) > 0 {
		for _, want := range step.Cards {
			if key == want {
				return true, nil
			}
		}
		return false, nil
	}
	def, err := m.Card(key)
	if err != nil {
		return false, rules.Violationf("filter", "card %s in zone is not in the library", key)
	}
	return def.HasType(step.Type), nil
}

// selection returns the count a move_selected prompt asks for.
func selection(step Step, zoneSize, eligible int) rules.CountSpec {
	switch {
	case step.Leave > 0:
		return rules.Exact(max(0, zoneSize-step.Leave))
	case step.Any:
		return rules.UpTo(eligible)
	case !step.Count.IsUpTo() && step.Count.N() > eligible:
		return rules.Exact(eligible)
	default:
		return step.Count
	}
}

func moveSelected(env *Env, step Step) (Outcome, error) {
	from := zoneOr(step.From, rules.ZoneHand)
	to := zoneOr(step.To, rules.ZoneDiscard)

	if d, ok := env.Decision(); ok {
		if err := env.Match.Move(env.Player(), from, to, d.Payload.Cards); err != nil {
			return Outcome{}, err
		}
		record(env.Frame, d.Payload.Cards)
		return Continue(), nil
	}

	zone := env.Match.Zone(env.Player(), from)
	eligible, err := filterCards(env.Match, zone, step)
	if err != nil {
		return Outcome{}, err
	}
	count := selection(step, len(zone), len(eligible))
	if len(eligible) == 0 || count.N() == 0 {
		record(env.Frame, nil)
		return Continue(), nil
	}
	return Suspend(Request{
		Kind: prompt.KindSelectCards,
		Constraints: prompt.Constraints{
			Count:    count,
			Min:      min(step.Min, len(eligible)),
			Eligible: eligible,
			Zone:     string(from),
			Message:  step.Message,
		},
	}), nil
}

func moveMatching(env *Env, step Step) (Outcome, error) {
	from := zoneOr(step.From, rules.ZoneSetAside)
	to := zoneOr(step.To, rules.ZoneHand)
	picked, err := filterCards(env.Match, env.Match.Zone(env.Player(), from), step)
	if err != nil {
		return Outcome{}, err
	}
	if err := env.Match.Move(env.Player(), from, to, picked); err != nil {
		return Outcome{}, err
	}
	record(env.Frame, picked)
	return Continue(), nil
}

func gainSelect(env *Env, step Step) (Outcome, error) {
	to := zoneOr(step.To, rules.ZoneDiscard)

	if d, ok := env.Decision(); ok {
		record(env.Frame, nil)
		for _, key := range d.Payload.Cards {
			gained, err := env.Match.Gain(env.Player(), key, to)
			if err != nil {
				return Outcome{}, err
			}
			if gained {
				env.Frame.Selected = append(env.Frame.Selected, key)
				env.Frame.Last++
			}
		}
		return Continue(), nil
	}

	limit := cards.Cost{Coins: amount(env.Frame, step)}
	var eligible []string
	for _, key := range env.Match.SupplyKeys() {
		if env.Match.SupplyCount(key) == 0 {
			continue
		}
		def, err := env.Match.Card(key)
		if err != nil {
			return Outcome{}, rules.Violationf("gain_select", "supply pile %s is not in the library", key)
		}
		if !limit.Covers(def.Cost) {
			continue
		}
		if step.Type != "" && !def.HasType(step.Type) {
			continue
		}
		eligible = append(eligible, key)
	}
	if len(eligible) == 0 {
		record(env.Frame, nil)
		return Continue(), nil
	}
	message := step.Message
	if message == "" {
		message = fmt.Sprintf("Gain a card costing up to %s", limit)
	}
	return Suspend(Request{
		Kind: prompt.KindSelectSupply,
		Constraints: prompt.Constraints{
			Count:    rules.Exact(1),
			Eligible: eligible,
			Zone:     "supply",
			Message:  message,
		},
	}), nil
}

func gainCard(env *Env, step Step) (Outcome, error) {
	gained, err := env.Match.Gain(env.Player(), step.Card, zoneOr(step.To, rules.ZoneDiscard))
	if err != nil {
		return Outcome{}, err
	}
	if gained {
		record(env.Frame, []string{step.Card})
	} else {
		record(env.Frame, nil)
	}
	return Continue(), nil
}

func optional(env *Env, step Step) (Outcome, error) {
	d, ok := env.Decision()
	if !ok {
		return Suspend(Request{
			Kind:        prompt.KindYesNo,
			Constraints: prompt.Constraints{Message: step.Message},
			Default:     &prompt.Payload{Accept: false},
		}), nil
	}
	branch := step.Else
	if d.Payload.Accept {
		branch = step.Sub
	}
	if len(branch) == 0 {
		return Continue(), nil
	}
	f := env.Frame
	return Push(FrameSpec{Player: f.Player, Actor: f.Actor, Source: f.Source, Program: branch}), nil
}

// repeatAction plays the card the previous step selected Amount times.
func repeatAction(env *Env, step Step) (Outcome, error) {
	f := env.Frame
	if len(f.Selected) == 0 {
		return Continue(), nil
	}
	key := f.Selected[0]
	def, err := env.Match.Card(key)
	if err != nil {
		return Outcome{}, rules.Violationf("repeat_action", "selected card %s is not in the library", key)
	}
	if def.Program == "" {
		return Continue(), nil
	}
	specs := make([]FrameSpec, 0, amount(f, step))
	for i := 0; i < amount(f, step); i++ {
		specs = append(specs, FrameSpec{Player: f.Player, Actor: f.Actor, Source: key, ProgramID: def.Program})
	}
	return Push(specs...), nil
}

// attack runs Sub once per opponent, starting at the actor's left. Every
// victim may first reveal a reaction.
func attack(env *Env, step Step) (Outcome, error) {
	f := env.Frame
	victims := env.Match.OthersInTurnOrder(f.Actor)
	if len(victims) == 0 {
		return Continue(), nil
	}
	program := make(Program, 0, len(step.Sub)+1)
	program = append(program, Step{Kind: KindRevealReaction})
	program = append(program, step.Sub...)

	specs := make([]FrameSpec, 0, len(victims))
	for _, victim := range victims {
		specs = append(specs, FrameSpec{Player: victim, Actor: f.Actor, Source: f.Source, Program: program})
	}
	return Push(specs...), nil
}

// revealReaction lets the frame's player block the rest of the frame by
// revealing a Reaction from hand.
func revealReaction(env *Env, step Step) (Outcome, error) {
	if d, ok := env.Decision(); ok {
		if d.Payload.Accept {
			return Stop(), nil
		}
		return Continue(), nil
	}

	var reactions []string
	for _, key := range env.Match.Zone(env.Player(), rules.ZoneHand) {
		def, err := env.Match.Card(key)
		if err != nil {
			return Outcome{}, rules.Violationf("reveal_reaction", "card %s in hand is not in the library", key)
		}
		if def.HasType(cards.TypeReaction) {
			reactions = append(reactions, key)
		}
	}
	if len(reactions) == 0 {
		return Continue(), nil
	}
	message := step.Message
	if message == "" {
		message = fmt.Sprintf("Reveal %s to block the attack?", reactions[0])
	}
	return Suspend(Request{
		Kind:        prompt.KindYesNo,
		Constraints: prompt.Constraints{Eligible: reactions, Zone: string(rules.ZoneHand), Message: message},
		Default:     &prompt.Payload{Accept: false},
	}), nil
}

func rearrangeDeck(env *Env, step Step) (Outcome, error) {
	f := env.Frame
	if d, ok := env.Decision(); ok {
		if err := env.Match.Reorder(f.Player, rules.ZoneDeck, len(d.Payload.Order), d.Payload.Order); err != nil {
			return Outcome{}, err
		}
		return Continue(), nil
	}

	deck := env.Match.Zone(f.Player, rules.ZoneDeck)
	n := min(amount(f, step), len(deck))
	if n < 2 {
		return Continue(), nil
	}
	if step.Blind {
		return Suspend(Request{
			Kind:        prompt.KindBlindRearrange,
			Constraints: prompt.Constraints{Arity: n, Zone: string(rules.ZoneDeck), Message: step.Message},
		}), nil
	}
	return Suspend(Request{
		Kind:        prompt.KindOrderCards,
		Constraints: prompt.Constraints{Eligible: deck[:n], Zone: string(rules.ZoneDeck), Message: step.Message},
	}), nil
}

func discardDeck(env *Env, step Step) (Outcome, error) {
	deck := env.Match.Zone(env.Player(), rules.ZoneDeck)
	if err := env.Match.Move(env.Player(), rules.ZoneDeck, rules.ZoneDiscard, deck); err != nil {
		return Outcome{}, err
	}
	record(env.Frame, deck)
	return Continue(), nil
}

// trashSource trashes the playing card if it is still in play. A repeated
// card is only trashed once.
func trashSource(env *Env, step Step) (Outcome, error) {
	f := env.Frame
	for _, key := range env.Match.Zone(f.Player, rules.ZoneInPlay) {
		if key == f.Source {
			if err := env.Match.Move(f.Player, rules.ZoneInPlay, rules.ZoneTrash, []string{key}); err != nil {
				return Outcome{}, err
			}
			record(f, []string{key})
			return Continue(), nil
		}
	}
	record(f, nil)
	return Continue(), nil
}
