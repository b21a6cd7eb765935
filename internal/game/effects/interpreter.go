package effects

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/kingdomforge/kingdom-server-go/internal/game/cards"
)

// ErrSealed is returned when registering into a sealed interpreter.
var ErrSealed = errors.New("interpreter is sealed")

// Handler executes one step. When the step suspended earlier it runs again
// with env.Decision() set.
type Handler func(env *Env, step Step) (Outcome, error)

// DuplicateActionError reports a second handler for the same kind.
type DuplicateActionError struct {
	Kind ActionKind
}

func (e *DuplicateActionError) Error() string {
	return fmt.Sprintf("action kind %q already registered", e.Kind)
}

// DuplicateProgramError reports a second program with the same id.
type DuplicateProgramError struct {
	ID string
}

func (e *DuplicateProgramError) Error() string {
	return fmt.Sprintf("program %q already registered", e.ID)
}

// Interpreter maps action kinds to handlers and program ids to programs. It
// is built once at startup, sealed, and then shared read-only by all matches.
type Interpreter struct {
	mu       sync.RWMutex
	handlers map[ActionKind]Handler
	programs map[string]Program
	sealed   bool
}

// NewInterpreter returns an interpreter with the core action kinds
// registered.
func NewInterpreter() *Interpreter {
	in := &Interpreter{
		handlers: make(map[ActionKind]Handler),
		programs: make(map[string]Program),
	}
	for kind, h := range coreHandlers() {
		in.handlers[kind] = h
	}
	return in
}

// RegisterAction adds a handler for a new action kind.
func (in *Interpreter) RegisterAction(kind ActionKind, h Handler) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.sealed {
		return ErrSealed
	}
	if h == nil {
		return fmt.Errorf("nil handler for action kind %q", kind)
	}
	if _, exists := in.handlers[kind]; exists {
		return &DuplicateActionError{Kind: kind}
	}
	in.handlers[kind] = h
	return nil
}

// RegisterProgram adds an effect program under id.
func (in *Interpreter) RegisterProgram(id string, p Program) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.sealed {
		return ErrSealed
	}
	if _, exists := in.programs[id]; exists {
		return &DuplicateProgramError{ID: id}
	}
	in.programs[id] = p
	return nil
}

// RegisterPrograms adds every program of the map, in id order.
func (in *Interpreter) RegisterPrograms(programs map[string]Program) error {
	ids := make([]string, 0, len(programs))
	for id := range programs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if err := in.RegisterProgram(id, programs[id]); err != nil {
			return err
		}
	}
	return nil
}

// Seal makes the interpreter read-only.
func (in *Interpreter) Seal() {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.sealed = true
}

// Handler returns the handler for kind.
func (in *Interpreter) Handler(kind ActionKind) (Handler, bool) {
	in.mu.RLock()
	defer in.mu.RUnlock()
	h, ok := in.handlers[kind]
	return h, ok
}

// Program returns the program registered under id.
func (in *Interpreter) Program(id string) (Program, bool) {
	in.mu.RLock()
	defer in.mu.RUnlock()
	p, ok := in.programs[id]
	return p, ok
}

// Kinds lists the registered action kinds.
func (in *Interpreter) Kinds() []ActionKind {
	in.mu.RLock()
	defer in.mu.RUnlock()
	kinds := make([]ActionKind, 0, len(in.handlers))
	for kind := range in.handlers {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// CheckLibrary verifies that every card program exists and that every step
// of every program has a handler.
func (in *Interpreter) CheckLibrary(lib *cards.Library) error {
	in.mu.RLock()
	defer in.mu.RUnlock()

	var errs []error
	for _, key := range lib.Keys() {
		def, err := lib.Get(key)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if def.Program == "" {
			continue
		}
		if _, ok := in.programs[def.Program]; !ok {
			errs = append(errs, fmt.Errorf("card %s: program %q not registered", key, def.Program))
		}
	}

	ids := make([]string, 0, len(in.programs))
	for id := range in.programs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if err := in.checkProgram(id, in.programs[id]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (in *Interpreter) checkProgram(id string, p Program) error {
	for i, step := range p {
		if _, ok := in.handlers[step.Kind]; !ok {
			return fmt.Errorf("program %s step %d: unknown action kind %q", id, i, step.Kind)
		}
		if err := in.checkProgram(id, step.Sub); err != nil {
			return err
		}
		if err := in.checkProgram(id, step.Else); err != nil {
			return err
		}
	}
	return nil
}
