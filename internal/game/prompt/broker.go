package prompt

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Future is a single-consumer promise for one prompt's decision. It is
// resolved at most once.
type Future struct {
	once     sync.Once
	done     chan struct{}
	decision Decision
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) resolve(d Decision) bool {
	resolved := false
	f.once.Do(func() {
		f.decision = d
		close(f.done)
		resolved = true
	})
	return resolved
}

// Done is closed once the decision is available.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Decision returns the decision without blocking.
func (f *Future) Decision() (Decision, bool) {
	select {
	case <-f.done:
		return f.decision, true
	default:
		return Decision{}, false
	}
}

// Wait blocks until the decision is available or ctx is done.
func (f *Future) Wait(ctx context.Context) (Decision, error) {
	select {
	case <-f.done:
		return f.decision, nil
	case <-ctx.Done():
		return Decision{}, ctx.Err()
	}
}

// Pending is an outstanding request for one player's input.
type Pending struct {
	ID          string
	MatchID     string
	Player      string
	Kind        Kind
	Constraints Constraints
	CreatedAt   time.Time
	Deadline    time.Time
	Default     Payload

	seq    uint64
	future *Future
	timer  Timer
}

// Future returns the prompt's decision future.
func (p *Pending) Future() *Future {
	return p.future
}

// Envelope returns the outbound message for the prompt.
func (p *Pending) Envelope() Envelope {
	env := Envelope{
		PromptID:    p.ID,
		MatchID:     p.MatchID,
		Kind:        p.Kind,
		Constraints: p.Constraints,
	}
	if !p.Deadline.IsZero() {
		deadline := p.Deadline
		env.Deadline = &deadline
	}
	return env
}

func (p *Pending) defaultDecision(reason string) Decision {
	return Decision{
		PromptID:  p.ID,
		MatchID:   p.MatchID,
		Player:    p.Player,
		Kind:      p.Kind,
		Payload:   p.Default,
		Defaulted: true,
		Reason:    reason,
	}
}

// Option customizes a prompt request.
type Option func(*requestOptions)

type requestOptions struct {
	timeout    time.Duration
	defaultSet bool
	payload    Payload
}

// WithTimeout overrides the broker's default deadline. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(o *requestOptions) {
		o.timeout = d
	}
}

// WithDefault sets the payload applied when the prompt times out or is
// cancelled.
func WithDefault(p Payload) Option {
	return func(o *requestOptions) {
		o.payload = p
		o.defaultSet = true
	}
}

// ForcedResolutionFunc is invoked after a prompt resolved itself through its
// deadline.
type ForcedResolutionFunc func(p *Pending, d Decision)

// Broker registers prompts, validates responses and enforces deadlines.
type Broker struct {
	logger    *zap.Logger
	transport Transport
	clock     Clock
	timeout   time.Duration

	mu       sync.Mutex
	seq      uint64
	pending  map[string]*Pending
	consumed map[string]string // prompt id -> match id
	onForced ForcedResolutionFunc
}

// BrokerOption customizes a Broker.
type BrokerOption func(*Broker)

// WithClock replaces the real clock.
func WithClock(c Clock) BrokerOption {
	return func(b *Broker) { b.clock = c }
}

// WithDefaultTimeout sets the deadline applied to prompts that do not set
// their own. Zero means no deadline.
func WithDefaultTimeout(d time.Duration) BrokerOption {
	return func(b *Broker) { b.timeout = d }
}

// NewBroker creates a broker sending prompts through transport.
func NewBroker(transport Transport, logger *zap.Logger, opts ...BrokerOption) *Broker {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Broker{
		logger:    logger,
		transport: transport,
		clock:     RealClock{},
		pending:   make(map[string]*Pending),
		consumed:  make(map[string]string),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// OnForcedResolution registers the hook called when a deadline resolves a
// prompt. The hook runs on the timer goroutine without broker locks held.
func (b *Broker) OnForcedResolution(fn ForcedResolutionFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onForced = fn
}

// RequestDecision registers a prompt and sends it to the player. It returns
// immediately; the decision arrives through Submit, a deadline or a cancel.
func (b *Broker) RequestDecision(ctx context.Context, matchID, player string, kind Kind, c Constraints, opts ...Option) (*Pending, error) {
	o := requestOptions{timeout: b.timeout}
	for _, opt := range opts {
		opt(&o)
	}

	now := b.clock.Now()
	p := &Pending{
		ID:          uuid.NewString(),
		MatchID:     matchID,
		Player:      player,
		Kind:        kind,
		Constraints: c,
		CreatedAt:   now,
		Default:     defaultPayload(kind, c),
		future:      newFuture(),
	}
	if o.defaultSet {
		p.Default = o.payload
	}
	if o.timeout > 0 {
		p.Deadline = now.Add(o.timeout)
	}

	b.mu.Lock()
	b.seq++
	p.seq = b.seq
	b.pending[p.ID] = p
	if o.timeout > 0 {
		id := p.ID
		p.timer = b.clock.AfterFunc(o.timeout, func() { b.expire(id) })
	}
	b.mu.Unlock()

	b.logger.Debug("prompt issued",
		zap.String("match_id", matchID),
		zap.String("player_id", player),
		zap.String("prompt_id", p.ID),
		zap.String("kind", string(kind)),
	)

	b.send(ctx, p)
	return p, nil
}

func (b *Broker) send(ctx context.Context, p *Pending) {
	if b.transport == nil {
		return
	}
	if err := b.transport.SendPrompt(ctx, p.Player, p.Envelope()); err != nil {
		// The prompt stays outstanding; Resend delivers it on reconnect.
		b.logger.Warn("failed to deliver prompt",
			zap.String("match_id", p.MatchID),
			zap.String("player_id", p.Player),
			zap.String("prompt_id", p.ID),
			zap.Error(err),
		)
	}
}

// Submit validates and applies a player's response. Protocol errors leave the
// prompt outstanding.
func (b *Broker) Submit(promptID, player string, payload Payload) (Decision, error) {
	b.mu.Lock()
	p, ok := b.pending[promptID]
	if !ok {
		_, consumed := b.consumed[promptID]
		b.mu.Unlock()
		if consumed {
			return Decision{}, ErrPromptConsumed
		}
		return Decision{}, ErrPromptNotFound
	}
	if p.Player != player {
		b.mu.Unlock()
		return Decision{}, &WrongPlayerError{PromptID: promptID, Expected: p.Player, Actual: player}
	}
	if reason := Validate(p.Kind, p.Constraints, payload); reason != "" {
		b.mu.Unlock()
		return Decision{}, &InvalidDecisionError{PromptID: promptID, Reason: reason}
	}
	b.consumeLocked(p)
	b.mu.Unlock()

	d := Decision{
		PromptID: p.ID,
		MatchID:  p.MatchID,
		Player:   p.Player,
		Kind:     p.Kind,
		Payload:  payload,
	}
	p.future.resolve(d)

	b.logger.Debug("prompt resolved",
		zap.String("match_id", p.MatchID),
		zap.String("player_id", player),
		zap.String("prompt_id", p.ID),
	)
	return d, nil
}

// consumeLocked removes p from the outstanding set. Caller holds b.mu.
func (b *Broker) consumeLocked(p *Pending) {
	delete(b.pending, p.ID)
	b.consumed[p.ID] = p.MatchID
	if p.timer != nil {
		p.timer.Stop()
	}
}

func (b *Broker) expire(promptID string) {
	b.mu.Lock()
	p, ok := b.pending[promptID]
	if !ok {
		b.mu.Unlock()
		return
	}
	b.consumeLocked(p)
	hook := b.onForced
	b.mu.Unlock()

	d := p.defaultDecision("timeout")
	if !p.future.resolve(d) {
		return
	}

	b.logger.Info("prompt deadline expired",
		zap.String("match_id", p.MatchID),
		zap.String("player_id", p.Player),
		zap.String("prompt_id", p.ID),
	)
	if hook != nil {
		hook(p, d)
	}
}

// Cancel resolves a prompt with its default. The forced-resolution hook is
// not called; the caller applies the returned decision itself.
func (b *Broker) Cancel(promptID, reason string) (Decision, bool) {
	b.mu.Lock()
	p, ok := b.pending[promptID]
	if !ok {
		b.mu.Unlock()
		return Decision{}, false
	}
	b.consumeLocked(p)
	b.mu.Unlock()

	d := p.defaultDecision(reason)
	p.future.resolve(d)
	return d, true
}

// CancelMatch cancels every outstanding prompt of a match.
func (b *Broker) CancelMatch(matchID, reason string) []Decision {
	return b.cancelWhere(reason, func(p *Pending) bool { return p.MatchID == matchID })
}

// CancelPlayer cancels every outstanding prompt addressed to player in a match.
func (b *Broker) CancelPlayer(matchID, player, reason string) []Decision {
	return b.cancelWhere(reason, func(p *Pending) bool { return p.MatchID == matchID && p.Player == player })
}

func (b *Broker) cancelWhere(reason string, match func(*Pending) bool) []Decision {
	b.mu.Lock()
	var cancelled []*Pending
	for _, p := range b.pending {
		if match(p) {
			cancelled = append(cancelled, p)
		}
	}
	sort.Slice(cancelled, func(i, j int) bool { return cancelled[i].seq < cancelled[j].seq })
	for _, p := range cancelled {
		b.consumeLocked(p)
	}
	b.mu.Unlock()

	decisions := make([]Decision, 0, len(cancelled))
	for _, p := range cancelled {
		d := p.defaultDecision(reason)
		p.future.resolve(d)
		decisions = append(decisions, d)
	}
	return decisions
}

// Get returns an outstanding prompt.
func (b *Broker) Get(promptID string) (*Pending, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.pending[promptID]
	return p, ok
}

// Outstanding lists a match's open prompts in creation order.
func (b *Broker) Outstanding(matchID string) []*Pending {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []*Pending
	for _, p := range b.pending {
		if p.MatchID == matchID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// Resend delivers a player's open prompts again, e.g. after a reconnect.
func (b *Broker) Resend(ctx context.Context, matchID, player string) int {
	sent := 0
	for _, p := range b.Outstanding(matchID) {
		if p.Player == player {
			b.send(ctx, p)
			sent++
		}
	}
	return sent
}

// Forget drops the consumed-prompt history of a finished match.
func (b *Broker) Forget(matchID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, m := range b.consumed {
		if m == matchID {
			delete(b.consumed, id)
		}
	}
}
