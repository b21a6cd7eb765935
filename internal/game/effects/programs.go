package effects

import (
	"github.com/kingdomforge/kingdom-server-go/internal/game/cards"
	"github.com/kingdomforge/kingdom-server-go/internal/game/rules"
)

// BasePrograms returns the effect programs of the base card set.
func BasePrograms() map[string]Program {
	return map[string]Program{
		"copper": {Coins(1)},
		"silver": {Coins(2)},
		"gold":   {Coins(3)},

		"cellar": {
			Actions(1),
			{Kind: KindMoveSelected, From: rules.ZoneHand, To: rules.ZoneDiscard, Any: true, Message: "Discard any number of cards"},
			{Kind: KindDrawCards, UseLast: true},
		},
		"chapel": {
			{Kind: KindMoveSelected, From: rules.ZoneHand, To: rules.ZoneTrash, Count: rules.UpTo(4), Message: "Trash up to 4 cards"},
		},
		"moat": {Draw(2)},
		"chancellor": {
			Coins(2),
			{Kind: KindOptional, Message: "Put your deck into your discard pile?", Sub: Program{{Kind: KindDiscardDeck}}},
		},
		"village": {Draw(1), Actions(2)},
		"workshop": {
			{Kind: KindGainSelect, Amount: 4, To: rules.ZoneDiscard},
		},
		"feast": {
			{Kind: KindTrashSource},
			{Kind: KindGainSelect, Amount: 5, To: rules.ZoneDiscard},
		},
		"militia": {
			Coins(2),
			{Kind: KindAttack, Sub: Program{
				{Kind: KindMoveSelected, From: rules.ZoneHand, To: rules.ZoneDiscard, Leave: 3, Message: "Discard down to 3 cards"},
			}},
		},
		"smithy": {Draw(3)},
		"throne_room": {
			{Kind: KindMoveSelected, From: rules.ZoneHand, To: rules.ZoneInPlay, Type: cards.TypeAction, Count: rules.UpTo(1), Message: "Choose an action to play twice"},
			{Kind: KindRepeatAction, Amount: 2},
		},
		"festival":   {Actions(2), Buys(1), Coins(2)},
		"laboratory": {Draw(2), Actions(1)},
		"market":     {Draw(1), Actions(1), Buys(1), Coins(1)},
		"witch": {
			Draw(2),
			{Kind: KindAttack, Sub: Program{{Kind: KindGainCard, Card: "curse", To: rules.ZoneDiscard}}},
		},
		"scout": {
			Actions(1),
			{Kind: KindDrawCards, Amount: 4, To: rules.ZoneSetAside},
			{Kind: KindMoveMatching, From: rules.ZoneSetAside, To: rules.ZoneHand, Type: cards.TypeVictory},
			{Kind: KindMoveMatching, From: rules.ZoneSetAside, To: rules.ZoneDeck},
			{Kind: KindRearrangeDeck, UseLast: true, Message: "Put the cards back in any order"},
		},
		"gambler": {
			Buys(1),
			{Kind: KindRearrangeDeck, Amount: 3, Blind: true, Message: "Rearrange the top 3 cards of your deck without looking"},
		},
	}
}

// RegisterBasePrograms installs BasePrograms into in.
func RegisterBasePrograms(in *Interpreter) error {
	return in.RegisterPrograms(BasePrograms())
}
