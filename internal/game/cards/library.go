package cards

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrSealed is returned when registering into a sealed library.
var ErrSealed = errors.New("card library is sealed")

// NotFoundError reports a lookup of an unregistered card key.
type NotFoundError struct {
	Key string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("card %q not found", e.Key)
}

// DuplicateKeyError reports a registration collision.
type DuplicateKeyError struct {
	Key string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("card %q already registered", e.Key)
}

// Library maps card keys to their definitions. It is populated once at
// startup, sealed, and shared read-only by every match.
type Library struct {
	mu     sync.RWMutex
	cards  map[string]Definition
	sealed bool
}

// NewLibrary creates an empty library.
func NewLibrary() *Library {
	return &Library{cards: make(map[string]Definition)}
}

// Register adds definitions. The batch is applied atomically: a collision
// with an existing key or within the batch registers nothing.
func (l *Library) Register(defs ...Definition) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.sealed {
		return ErrSealed
	}

	seen := make(map[string]struct{}, len(defs))
	for _, def := range defs {
		if err := def.validate(); err != nil {
			return err
		}
		if _, exists := l.cards[def.Key]; exists {
			return &DuplicateKeyError{Key: def.Key}
		}
		if _, dup := seen[def.Key]; dup {
			return &DuplicateKeyError{Key: def.Key}
		}
		seen[def.Key] = struct{}{}
	}

	for _, def := range defs {
		l.cards[def.Key] = def.clone()
	}
	return nil
}

// Seal makes the library read-only.
func (l *Library) Seal() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sealed = true
}

// Get returns the definition for key.
func (l *Library) Get(key string) (Definition, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	def, ok := l.cards[key]
	if !ok {
		return Definition{}, &NotFoundError{Key: key}
	}
	return def.clone(), nil
}

// Has reports whether key is registered.
func (l *Library) Has(key string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.cards[key]
	return ok
}

// Keys returns all registered keys in sorted order.
func (l *Library) Keys() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	keys := make([]string, 0, len(l.cards))
	for k := range l.cards {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of registered cards.
func (l *Library) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.cards)
}
