package prompt

import "fmt"

// Validate checks a payload against a prompt's kind and constraints. It
// returns a human-readable reason, or "" when the payload is acceptable.
func Validate(kind Kind, c Constraints, payload Payload) string {
	switch kind {
	case KindSelectCards, KindSelectSupply:
		n := len(payload.Cards)
		if !c.Count.Validate(n) {
			return fmt.Sprintf("expected %s cards, got %d", c.Count, n)
		}
		if n < c.Min {
			return fmt.Sprintf("expected at least %d cards, got %d", c.Min, n)
		}
		return validateMembership(c.Eligible, payload.Cards)
	case KindOrderCards:
		return validatePermutation(payload.Order, len(c.Eligible))
	case KindBlindRearrange:
		return validatePermutation(payload.Order, c.Arity)
	case KindYesNo:
		return ""
	default:
		return fmt.Sprintf("unknown prompt kind %q", kind)
	}
}

// validateMembership treats eligible as a multiset: each selected key must be
// available as many times as it is selected.
func validateMembership(eligible, selected []string) string {
	available := make(map[string]int, len(eligible))
	for _, key := range eligible {
		available[key]++
	}
	for _, key := range selected {
		if available[key] == 0 {
			return fmt.Sprintf("card %q is not eligible", key)
		}
		available[key]--
	}
	return ""
}

func validatePermutation(order []int, n int) string {
	if len(order) != n {
		return fmt.Sprintf("expected a permutation of %d positions, got %d", n, len(order))
	}
	seen := make([]bool, n)
	for _, idx := range order {
		if idx < 0 || idx >= n {
			return fmt.Sprintf("position %d out of range", idx)
		}
		if seen[idx] {
			return fmt.Sprintf("position %d repeated", idx)
		}
		seen[idx] = true
	}
	return ""
}

// defaultPayload is the resolution applied when a prompt times out or is
// cancelled without an explicit default. Forced selections take the first
// eligible cards.
func defaultPayload(kind Kind, c Constraints) Payload {
	switch kind {
	case KindSelectCards, KindSelectSupply:
		need := c.Min
		if !c.Count.IsUpTo() {
			need = c.Count.N()
		}
		if need > len(c.Eligible) {
			need = len(c.Eligible)
		}
		if need <= 0 {
			return Payload{}
		}
		return Payload{Cards: append([]string(nil), c.Eligible[:need]...)}
	case KindOrderCards:
		return Payload{Order: identity(len(c.Eligible))}
	case KindBlindRearrange:
		return Payload{Order: identity(c.Arity)}
	default:
		return Payload{}
	}
}

func identity(n int) []int {
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	return order
}
