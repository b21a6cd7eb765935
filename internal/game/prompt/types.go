package prompt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kingdomforge/kingdom-server-go/internal/game/rules"
)

// Kind identifies the shape of a decision a player is asked to make.
type Kind string

const (
	// KindSelectCards asks for a subset of the eligible cards.
	KindSelectCards Kind = "select-cards"
	// KindSelectSupply asks for supply piles to gain from.
	KindSelectSupply Kind = "select-supply"
	// KindOrderCards asks for an ordering of known cards.
	KindOrderCards Kind = "order-cards"
	// KindBlindRearrange asks for a permutation of Arity positions. The
	// prompt does not carry card identities.
	KindBlindRearrange Kind = "blind-rearrange"
	// KindYesNo asks a yes/no question.
	KindYesNo Kind = "yes-no"
)

// Constraints restrict what a valid decision looks like.
type Constraints struct {
	Count    rules.CountSpec `json:"count"`
	Min      int             `json:"min,omitempty"`
	Eligible []string        `json:"eligible,omitempty"`
	Arity    int             `json:"arity,omitempty"`
	Zone     string          `json:"zone,omitempty"`
	Message  string          `json:"message,omitempty"`
}

// Payload is the player's answer. Which field is meaningful depends on Kind.
type Payload struct {
	Cards  []string `json:"cards,omitempty"`
	Order  []int    `json:"order,omitempty"`
	Accept bool     `json:"accept,omitempty"`
}

// Decision is a resolved prompt.
type Decision struct {
	PromptID  string
	MatchID   string
	Player    string
	Kind      Kind
	Payload   Payload
	Defaulted bool
	Reason    string
}

// Envelope is the outbound message describing a prompt.
type Envelope struct {
	PromptID    string      `json:"prompt_id"`
	MatchID     string      `json:"match_id"`
	Kind        Kind        `json:"kind"`
	Constraints Constraints `json:"constraints"`
	Deadline    *time.Time  `json:"deadline,omitempty"`
}

// Transport delivers prompts to players.
type Transport interface {
	SendPrompt(ctx context.Context, player string, env Envelope) error
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, player string, env Envelope) error

// SendPrompt implements Transport.
func (f TransportFunc) SendPrompt(ctx context.Context, player string, env Envelope) error {
	return f(ctx, player, env)
}

// DecodePayload decodes an inbound payload for a prompt kind. Bare values are
// accepted (index list, card-key list or boolean) as well as the object form.
func DecodePayload(kind Kind, raw json.RawMessage) (Payload, error) {
	var payload Payload
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return payload, nil
	}
	if strings.HasPrefix(trimmed, "{") {
		if err := json.Unmarshal(raw, &payload); err != nil {
			return payload, fmt.Errorf("decode %s payload: %w", kind, err)
		}
		return payload, nil
	}

	var err error
	switch kind {
	case KindYesNo:
		err = json.Unmarshal(raw, &payload.Accept)
	case KindOrderCards, KindBlindRearrange:
		err = json.Unmarshal(raw, &payload.Order)
	case KindSelectCards, KindSelectSupply:
		err = json.Unmarshal(raw, &payload.Cards)
	default:
		return payload, fmt.Errorf("unknown prompt kind %q", kind)
	}
	if err != nil {
		return payload, fmt.Errorf("decode %s payload: %w", kind, err)
	}
	return payload, nil
}
