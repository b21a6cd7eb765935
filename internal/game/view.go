package game

import (
	"sort"
	"time"

	"github.com/kingdomforge/kingdom-server-go/internal/game/prompt"
	"github.com/kingdomforge/kingdom-server-go/internal/game/rules"
)

// MatchView is the state of a match as one player may see it.
type MatchView struct {
	MatchID      string                    `json:"match_id"`
	Phase        string                    `json:"phase"`
	Turn         int                       `json:"turn"`
	ActivePlayer string                    `json:"active_player"`
	Players      []PlayerView              `json:"players"`
	Hand         []string                  `json:"hand,omitempty"`
	Supply       map[string]int            `json:"supply"`
	Trash        []string                  `json:"trash"`
	Counters     rules.Counters            `json:"counters"`
	Prompts      []PromptView              `json:"prompts,omitempty"`
	Expansions   map[string]map[string]int `json:"expansions,omitempty"`
	EndTriggered bool                      `json:"end_triggered"`
	Errored      bool                      `json:"errored"`
	ErrorReason  string                    `json:"error_reason,omitempty"`
}

// PlayerView holds the public part of a player's state.
type PlayerView struct {
	PlayerID     string              `json:"player_id"`
	HandCount    int                 `json:"hand_count"`
	DeckCount    int                 `json:"deck_count"`
	DiscardCount int                 `json:"discard_count"`
	DiscardTop   string              `json:"discard_top,omitempty"`
	InPlay       []string            `json:"in_play"`
	Mats         map[string][]string `json:"mats,omitempty"`
	Connected    bool                `json:"connected"`
}

// PromptView describes an outstanding prompt.
type PromptView struct {
	PromptID string      `json:"prompt_id"`
	Player   string      `json:"player"`
	Kind     prompt.Kind `json:"kind"`
	Deadline *time.Time  `json:"deadline,omitempty"`
}

// PlayerScore is one player's final standing.
type PlayerScore struct {
	PlayerID      string         `json:"player_id"`
	Score         int            `json:"score"`
	VictoryTokens int            `json:"victory_tokens"`
	Cards         map[string]int `json:"cards"`
	Turns         int            `json:"turns"`
}

// MatchSummary is produced once, when a match reaches GameOver.
type MatchSummary struct {
	MatchID string        `json:"match_id"`
	Players []PlayerScore `json:"players"`
	Winners []string      `json:"winners"`
	Turns   int           `json:"turns"`
	Reason  string        `json:"reason"`
	EndedAt time.Time     `json:"ended_at"`
}

// view builds the match view for player. An empty player gets the public view.
func (m *Match) view(player string, pending []*prompt.Pending) MatchView {
	v := MatchView{
		MatchID:      m.id,
		Phase:        m.turn.CurrentPhase().String(),
		Turn:         m.turn.TurnNumber(),
		ActivePlayer: m.turn.ActivePlayer(),
		Supply:       make(map[string]int, len(m.supply)),
		Trash:        append([]string(nil), m.trash...),
		Counters:     m.counters,
		EndTriggered: m.endTriggered,
		Errored:      m.errored,
		ErrorReason:  m.errReason,
	}
	for key, n := range m.supply {
		v.Supply[key] = n
	}
	for _, p := range m.order {
		seat := m.seats[p]
		pv := PlayerView{
			PlayerID:     p,
			HandCount:    len(seat.zones[rules.ZoneHand]),
			DeckCount:    len(seat.zones[rules.ZoneDeck]),
			DiscardCount: len(seat.zones[rules.ZoneDiscard]),
			InPlay:       append([]string(nil), seat.zones[rules.ZoneInPlay]...),
			Connected:    seat.connected,
		}
		if discard := seat.zones[rules.ZoneDiscard]; len(discard) > 0 {
			pv.DiscardTop = discard[len(discard)-1]
		}
		for _, mat := range m.config.Mats {
			if pv.Mats == nil {
				pv.Mats = make(map[string][]string)
			}
			pv.Mats[mat.Key] = append([]string(nil), seat.zones[rules.MatZone(mat.Key)]...)
		}
		v.Players = append(v.Players, pv)
		if p == player {
			v.Hand = append([]string(nil), seat.zones[rules.ZoneHand]...)
		}
	}
	for _, p := range pending {
		pv := PromptView{PromptID: p.ID, Player: p.Player, Kind: p.Kind}
		if !p.Deadline.IsZero() {
			deadline := p.Deadline
			pv.Deadline = &deadline
		}
		v.Prompts = append(v.Prompts, pv)
	}
	if len(m.states) > 0 {
		v.Expansions = make(map[string]map[string]int, len(m.states))
		for id, s := range m.states {
			v.Expansions[id] = s.Snapshot()
		}
	}
	return v
}

// summarize scores the match. Ties go to the tied player with fewer turns;
// players tied on both share the win.
func (m *Match) summarize(at time.Time) MatchSummary {
	s := MatchSummary{
		MatchID: m.id,
		Turns:   m.turn.TurnNumber(),
		Reason:  m.endReason,
		EndedAt: at,
	}
	for _, p := range m.order {
		ps := PlayerScore{
			PlayerID: p,
			Cards:    m.ownedCards(p),
			Turns:    m.seats[p].turns,
		}
		for key, n := range ps.Cards {
			def, err := m.lib.Get(key)
			if err != nil {
				continue
			}
			ps.Score += def.VictoryPoints * n
		}
		for _, id := range sortedStateIDs(m.states) {
			vp := m.states[id].VictoryPoints(p)
			ps.VictoryTokens += vp
			ps.Score += vp
		}
		s.Players = append(s.Players, ps)
	}

	best := -1
	for i, ps := range s.Players {
		if best < 0 || better(ps, s.Players[best]) {
			best = i
		}
	}
	for _, ps := range s.Players {
		if ps.Score == s.Players[best].Score && ps.Turns == s.Players[best].Turns {
			s.Winners = append(s.Winners, ps.PlayerID)
		}
	}
	return s
}

func better(a, b PlayerScore) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.Turns < b.Turns
}

func sortedStateIDs[T any](states map[string]T) []string {
	ids := make([]string, 0, len(states))
	for id := range states {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
