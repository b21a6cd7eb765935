package cards

import (
	"fmt"
	"strings"
)

// Type is a card type tag.
type Type string

const (
	TypeAction   Type = "Action"
	TypeTreasure Type = "Treasure"
	TypeVictory  Type = "Victory"
	TypeCurse    Type = "Curse"
	TypeReaction Type = "Reaction"
	TypeAttack   Type = "Attack"
	TypeDuration Type = "Duration"
)

// Cost is the price of a card. Potions and debt are the secondary cost
// dimensions some expansions use.
type Cost struct {
	Coins   int `json:"coins"`
	Potions int `json:"potions,omitempty"`
	Debt    int `json:"debt,omitempty"`
}

// String renders the cost as e.g. "$3P".
func (c Cost) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "$%d", c.Coins)
	if c.Potions > 0 {
		b.WriteString(strings.Repeat("P", c.Potions))
	}
	if c.Debt > 0 {
		fmt.Fprintf(&b, "<%d>", c.Debt)
	}
	return b.String()
}

// Covers reports whether this amount of currency pays for other.
func (c Cost) Covers(other Cost) bool {
	return c.Coins >= other.Coins && c.Potions >= other.Potions && c.Debt >= other.Debt
}

// Definition is the static, immutable description of a card.
type Definition struct {
	Key           string `json:"key"`
	Name          string `json:"name"`
	Cost          Cost   `json:"cost"`
	Types         []Type `json:"types"`
	Program       string `json:"program,omitempty"`
	VictoryPoints int    `json:"victory_points,omitempty"`
	Expansion     string `json:"expansion,omitempty"`
	Mat           string `json:"mat,omitempty"`
}

// HasType reports whether the card carries the given type tag.
func (d Definition) HasType(t Type) bool {
	for _, v := range d.Types {
		if v == t {
			return true
		}
	}
	return false
}

func (d Definition) validate() error {
	if strings.TrimSpace(d.Key) == "" {
		return fmt.Errorf("card definition has empty key")
	}
	if d.Cost.Coins < 0 || d.Cost.Potions < 0 || d.Cost.Debt < 0 {
		return fmt.Errorf("card %s has negative cost %s", d.Key, d.Cost)
	}
	if len(d.Types) == 0 {
		return fmt.Errorf("card %s has no types", d.Key)
	}
	return nil
}

func (d Definition) clone() Definition {
	d.Types = append([]Type(nil), d.Types...)
	return d
}
