package expansion

import "fmt"

// UnknownExpansionError reports a selected expansion that was never
// registered.
type UnknownExpansionError struct {
	ID string
}

func (e *UnknownExpansionError) Error() string {
	return fmt.Sprintf("unknown expansion %q", e.ID)
}

// DuplicateExpansionError reports a second registration of the same id.
type DuplicateExpansionError struct {
	ID string
}

func (e *DuplicateExpansionError) Error() string {
	return fmt.Sprintf("expansion %q already registered", e.ID)
}

// MissingDependencyError reports a card an expansion needs that the library
// does not have. Match setup cannot continue.
type MissingDependencyError struct {
	Expansion  string
	Card       string
	RequiredBy string
}

func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("expansion %s: card %s required by %s is not in the library", e.Expansion, e.Card, e.RequiredBy)
}

// UnselectedExpansionError reports a kingdom card whose expansion is
// registered but not selected for the match.
type UnselectedExpansionError struct {
	Card      string
	Expansion string
}

func (e *UnselectedExpansionError) Error() string {
	return fmt.Sprintf("kingdom card %s needs expansion %s, which is not selected", e.Card, e.Expansion)
}

// AddOnlyError reports a configurator that removed or lowered an entry.
type AddOnlyError struct {
	Expansion string
	Detail    string
}

func (e *AddOnlyError) Error() string {
	return fmt.Sprintf("expansion %s removed configuration: %s", e.Expansion, e.Detail)
}
