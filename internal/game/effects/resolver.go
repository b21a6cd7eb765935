package effects

import (
	"context"
	"errors"
	"fmt"

	"github.com/kingdomforge/kingdom-server-go/internal/game/prompt"
	"github.com/kingdomforge/kingdom-server-go/internal/game/rules"
	"go.uber.org/zap"
)

// DefaultMaxDepth bounds the frame stack.
const DefaultMaxDepth = 32

var (
	// ErrBusy is returned by Begin while an effect is still resolving.
	ErrBusy = errors.New("effect stack is not empty")
	// ErrNotSuspended is returned by Resume when no frame waits for the
	// decision's prompt.
	ErrNotSuspended = errors.New("no frame is waiting for this prompt")
)

// Status is where Run or Resume left the stack.
type Status int

const (
	StatusIdle Status = iota
	StatusSuspended
)

func (s Status) String() string {
	if s == StatusSuspended {
		return "SUSPENDED"
	}
	return "IDLE"
}

// Prompter issues player prompts. *prompt.Broker implements it.
type Prompter interface {
	RequestDecision(ctx context.Context, matchID, player string, kind prompt.Kind, c prompt.Constraints, opts ...prompt.Option) (*prompt.Pending, error)
}

// StepEvent describes a step that ran to completion.
type StepEvent struct {
	Player    string
	Actor     string
	Source    string
	ProgramID string
	Cursor    int
	Kind      ActionKind
	Selected  []string
	Resumed   bool
}

// StepObserver receives every completed step.
type StepObserver func(StepEvent)

// ResolverOption customizes a Resolver.
type ResolverOption func(*Resolver)

// WithMaxDepth overrides DefaultMaxDepth.
func WithMaxDepth(n int) ResolverOption {
	return func(r *Resolver) { r.maxDepth = n }
}

// WithObserver registers a step observer.
func WithObserver(fn StepObserver) ResolverOption {
	return func(r *Resolver) { r.observer = fn }
}

// Resolver runs effect programs for one match. Frames live in an arena and
// the stack holds their handles. It is not safe for concurrent use; the
// owning match serializes access.
type Resolver struct {
	interp   *Interpreter
	prompter Prompter
	logger   *zap.Logger
	maxDepth int
	observer StepObserver

	arena []Frame
	free  []Handle
	stack []Handle
}

// NewResolver creates an idle resolver.
func NewResolver(interp *Interpreter, prompter Prompter, logger *zap.Logger, opts ...ResolverOption) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Resolver{
		interp:   interp,
		prompter: prompter,
		logger:   logger,
		maxDepth: DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Idle reports whether the stack is empty.
func (r *Resolver) Idle() bool {
	return len(r.stack) == 0
}

// Depth is the number of frames on the stack.
func (r *Resolver) Depth() int {
	return len(r.stack)
}

// PendingPrompt returns the prompt the top frame waits for.
func (r *Resolver) PendingPrompt() (string, bool) {
	if len(r.stack) == 0 {
		return "", false
	}
	f := &r.arena[r.stack[len(r.stack)-1]]
	if f.State != FrameSuspended {
		return "", false
	}
	return f.PromptID, true
}

// Frames returns copies of the stacked frames, bottom first.
func (r *Resolver) Frames() []Frame {
	frames := make([]Frame, 0, len(r.stack))
	for _, h := range r.stack {
		f := r.arena[h]
		f.Selected = append([]string(nil), f.Selected...)
		frames = append(frames, f)
	}
	return frames
}

// Begin pushes the root frame of a new effect. The stack must be empty.
func (r *Resolver) Begin(spec FrameSpec) error {
	if !r.Idle() {
		return ErrBusy
	}
	return r.push(spec)
}

// Run executes frames until the stack empties or a frame suspends.
func (r *Resolver) Run(ctx context.Context, m Match) (Status, error) {
	for len(r.stack) > 0 {
		h := r.stack[len(r.stack)-1]
		f := &r.arena[h]
		if f.State == FrameSuspended {
			return StatusSuspended, nil
		}
		if f.Cursor >= len(f.Program) {
			f.State = FrameDone
			r.pop()
			continue
		}
		if err := r.exec(ctx, m, h, nil); err != nil {
			return r.status(), err
		}
	}
	r.reset()
	return StatusIdle, nil
}

// Resume applies a decision to the suspended top frame and keeps running.
func (r *Resolver) Resume(ctx context.Context, m Match, d prompt.Decision) (Status, error) {
	if len(r.stack) == 0 {
		return StatusIdle, ErrNotSuspended
	}
	h := r.stack[len(r.stack)-1]
	f := &r.arena[h]
	if f.State != FrameSuspended || f.PromptID != d.PromptID {
		return r.status(), fmt.Errorf("%w: %s", ErrNotSuspended, d.PromptID)
	}
	f.State = FrameReady
	f.PromptID = ""
	if err := r.exec(ctx, m, h, &d); err != nil {
		return r.status(), err
	}
	return r.Run(ctx, m)
}

// Abort discards every frame and returns the prompt the stack was waiting
// for, if any.
func (r *Resolver) Abort() string {
	id, _ := r.PendingPrompt()
	r.stack = r.stack[:0]
	r.reset()
	return id
}

func (r *Resolver) status() Status {
	if _, ok := r.PendingPrompt(); ok {
		return StatusSuspended
	}
	return StatusIdle
}

func (r *Resolver) exec(ctx context.Context, m Match, h Handle, d *prompt.Decision) error {
	f := &r.arena[h]
	step := f.Program[f.Cursor]
	handler, ok := r.interp.Handler(step.Kind)
	if !ok {
		return rules.Violationf("resolve", "no handler for action kind %q in %s", step.Kind, f.label())
	}

	env := &Env{Ctx: ctx, Match: m, Frame: f, decision: d}
	out, err := handler(env, step)
	if err != nil {
		return fmt.Errorf("%s step %d (%s): %w", f.label(), f.Cursor, step.Kind, err)
	}

	if out.kind != outcomeSuspend && r.observer != nil {
		r.observer(StepEvent{
			Player:    f.Player,
			Actor:     f.Actor,
			Source:    f.Source,
			ProgramID: f.ProgramID,
			Cursor:    f.Cursor,
			Kind:      step.Kind,
			Selected:  append([]string(nil), f.Selected...),
			Resumed:   d != nil,
		})
	}
	return r.apply(ctx, m, h, out)
}

func (r *Resolver) apply(ctx context.Context, m Match, h Handle, out Outcome) error {
	switch out.kind {
	case outcomeContinue:
		r.arena[h].Cursor++
	case outcomeStop:
		r.arena[h].State = FrameDone
		r.pop()
	case outcomePush:
		if len(r.stack)+len(out.frames) > r.maxDepth {
			return rules.Violationf("push", "effect stack would exceed %d frames", r.maxDepth)
		}
		r.arena[h].Cursor++
		// Reverse so the first spec ends on top and resolves first.
		for i := len(out.frames) - 1; i >= 0; i-- {
			if err := r.push(out.frames[i]); err != nil {
				return err
			}
		}
	case outcomeSuspend:
		return r.suspend(ctx, m, h, out.request)
	}
	return nil
}

func (r *Resolver) suspend(ctx context.Context, m Match, h Handle, req Request) error {
	if r.prompter == nil {
		return rules.Violationf("suspend", "no prompter configured")
	}
	f := &r.arena[h]
	player := req.Player
	if player == "" {
		player = f.Player
	}
	var opts []prompt.Option
	if req.Default != nil {
		opts = append(opts, prompt.WithDefault(*req.Default))
	}

	pending, err := r.prompter.RequestDecision(ctx, m.ID(), player, req.Kind, req.Constraints, opts...)
	if err != nil {
		return fmt.Errorf("request decision from %s: %w", player, err)
	}
	f.State = FrameSuspended
	f.PromptID = pending.ID

	r.logger.Debug("effect suspended",
		zap.String("match_id", m.ID()),
		zap.String("player_id", player),
		zap.String("prompt_id", pending.ID),
		zap.String("program", f.label()),
	)
	return nil
}

func (r *Resolver) push(spec FrameSpec) error {
	if len(r.stack) >= r.maxDepth {
		return rules.Violationf("push", "effect stack would exceed %d frames", r.maxDepth)
	}
	program := spec.Program
	if program == nil {
		p, ok := r.interp.Program(spec.ProgramID)
		if !ok {
			return rules.Violationf("push", "program %q not registered", spec.ProgramID)
		}
		program = p
	}

	frame := Frame{
		Player:    spec.Player,
		Actor:     spec.Actor,
		Source:    spec.Source,
		ProgramID: spec.ProgramID,
		Program:   program,
		State:     FrameReady,
	}
	if frame.Actor == "" {
		frame.Actor = spec.Player
	}

	var h Handle
	if n := len(r.free); n > 0 {
		h = r.free[n-1]
		r.free = r.free[:n-1]
	} else {
		h = Handle(len(r.arena))
		r.arena = append(r.arena, Frame{})
	}
	frame.Handle = h
	r.arena[h] = frame
	r.stack = append(r.stack, h)
	return nil
}

func (r *Resolver) pop() {
	n := len(r.stack)
	h := r.stack[n-1]
	r.stack = r.stack[:n-1]
	r.arena[h] = Frame{}
	r.free = append(r.free, h)
}

func (r *Resolver) reset() {
	r.arena = r.arena[:0]
	r.free = r.free[:0]
}
