package rules

import (
	"encoding/json"
	"fmt"
)

// CountSpec constrains a quantity to either an exact value or an upper bound.
// The zero value is Exact(0).
type CountSpec struct {
	n    int
	upTo bool
}

// Exact returns a spec satisfied only by n.
func Exact(n int) CountSpec {
	return CountSpec{n: n}
}

// UpTo returns a spec satisfied by any count <= n. No lower bound is applied;
// callers that need a minimum check it themselves.
func UpTo(n int) CountSpec {
	return CountSpec{n: n, upTo: true}
}

// Validate reports whether count satisfies the spec.
func (s CountSpec) Validate(count int) bool {
	if s.upTo {
		return count <= s.n
	}
	return count == s.n
}

// N returns the exact value or the upper bound.
func (s CountSpec) N() int {
	return s.n
}

// IsUpTo reports whether the spec is an upper bound.
func (s CountSpec) IsUpTo() bool {
	return s.upTo
}

func (s CountSpec) String() string {
	if s.upTo {
		return fmt.Sprintf("up to %d", s.n)
	}
	return fmt.Sprintf("exactly %d", s.n)
}

type countSpecJSON struct {
	N    int  `json:"n"`
	UpTo bool `json:"up_to"`
}

// MarshalJSON encodes the spec as {"n":..,"up_to":..}.
func (s CountSpec) MarshalJSON() ([]byte, error) {
	return json.Marshal(countSpecJSON{N: s.n, UpTo: s.upTo})
}

// UnmarshalJSON decodes the {"n":..,"up_to":..} form.
func (s *CountSpec) UnmarshalJSON(data []byte) error {
	var raw countSpecJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.n = raw.N
	s.upTo = raw.UpTo
	return nil
}
