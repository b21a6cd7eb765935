package game

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kingdomforge/kingdom-server-go/internal/game/cards"
	"github.com/kingdomforge/kingdom-server-go/internal/game/effects"
	"github.com/kingdomforge/kingdom-server-go/internal/game/expansion"
	"github.com/kingdomforge/kingdom-server-go/internal/game/prompt"
	"github.com/kingdomforge/kingdom-server-go/internal/game/rules"
	"go.uber.org/zap"
)

// ReasonInternalError marks a match errored by a failure that is not an
// invariant violation.
const ReasonInternalError = "internal_error"

// Notification types emitted by the engine.
const (
	NotifyMatchStarted = "MATCH_STARTED"
	NotifyStateChanged = "STATE_CHANGED"
	NotifyGameOver     = "GAME_OVER"
	NotifyMatchErrored = "MATCH_ERRORED"
)

// Notification is pushed to UI/websocket clients after state changes.
type Notification struct {
	Type      string
	MatchID   string
	PlayerID  string
	Timestamp time.Time
	Data      map[string]interface{}
}

// NotificationHandler receives engine notifications.
type NotificationHandler func(n Notification)

// MatchOptions describes a new match.
type MatchOptions struct {
	// ID is generated when empty.
	ID      string
	Players []string
	Kingdom []string
	// Expansions selects expansions by id. Nil selects the engine defaults;
	// an empty slice selects none.
	Expansions []string
	// Seed drives every shuffle. Zero picks a random seed.
	Seed uint64
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithSink sets the journal sink.
func WithSink(sink TransitionSink) EngineOption {
	return func(e *Engine) { e.sink = sink }
}

// WithClock sets the clock used for timestamps and disconnect grace timers.
func WithClock(c prompt.Clock) EngineOption {
	return func(e *Engine) { e.clock = c }
}

// WithGracePeriod sets how long a disconnected player keeps their prompts.
// Zero makes a disconnect take effect immediately.
func WithGracePeriod(d time.Duration) EngineOption {
	return func(e *Engine) { e.grace = d }
}

// WithDefaultExpansions sets the expansions used when MatchOptions leaves
// them nil.
func WithDefaultExpansions(ids []string) EngineOption {
	return func(e *Engine) { e.defaultExpansions = append([]string(nil), ids...) }
}

// WithMaxEffectDepth bounds every match's effect stack.
func WithMaxEffectDepth(n int) EngineOption {
	return func(e *Engine) { e.maxDepth = n }
}

// Engine hosts concurrent matches. Matches are independent; the card library
// and interpreter are shared read-only.
type Engine struct {
	logger            *zap.Logger
	lib               *cards.Library
	composer          *expansion.Composer
	interp            *effects.Interpreter
	broker            *prompt.Broker
	sink              TransitionSink
	clock             prompt.Clock
	grace             time.Duration
	defaultExpansions []string
	maxDepth          int

	mu                  sync.RWMutex
	matches             map[string]*Match
	notificationHandler NotificationHandler

	notifyMu sync.Mutex
	notifyQ  []Notification
	draining bool

	summaryMu sync.RWMutex
	summaries map[string]MatchSummary
}

// NewEngine creates an engine. The broker's forced-resolution hook is taken
// over by the engine.
func NewEngine(lib *cards.Library, composer *expansion.Composer, interp *effects.Interpreter, broker *prompt.Broker, logger *zap.Logger, opts ...EngineOption) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		logger:   logger,
		lib:      lib,
		composer: composer,
		interp:   interp,
		broker:   broker,
		clock:    prompt.RealClock{},
		maxDepth: effects.DefaultMaxDepth,
		matches:  make(map[string]*Match),

		summaries: make(map[string]MatchSummary),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.defaultExpansions == nil {
		e.defaultExpansions = composer.IDs()
	}
	broker.OnForcedResolution(e.handleForced)
	return e
}

// SetNotificationHandler sets the handler for engine notifications.
func (e *Engine) SetNotificationHandler(handler NotificationHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.notificationHandler = handler
}

// emit queues a notification for the handler. One drain goroutine at a time
// delivers the queue in emit order, so the handler may call back into the
// engine.
func (e *Engine) emit(n Notification) {
	e.mu.RLock()
	handler := e.notificationHandler
	e.mu.RUnlock()
	if handler == nil {
		return
	}
	n.Timestamp = e.clock.Now()

	e.notifyMu.Lock()
	defer e.notifyMu.Unlock()
	e.notifyQ = append(e.notifyQ, n)
	if !e.draining {
		e.draining = true
		go e.drainNotifications(handler)
	}
}

func (e *Engine) drainNotifications(handler NotificationHandler) {
	for {
		e.notifyMu.Lock()
		if len(e.notifyQ) == 0 {
			e.draining = false
			e.notifyMu.Unlock()
			return
		}
		n := e.notifyQ[0]
		e.notifyQ[0] = Notification{}
		e.notifyQ = e.notifyQ[1:]
		e.notifyMu.Unlock()
		handler(n)
	}
}

func (e *Engine) notifyState(m *Match) {
	data := map[string]interface{}{
		"phase":         m.turn.CurrentPhase().String(),
		"turn":          m.turn.TurnNumber(),
		"active_player": m.turn.ActivePlayer(),
	}
	if id, ok := m.resolver.PendingPrompt(); ok {
		data["prompt_id"] = id
	}
	e.emit(Notification{Type: NotifyStateChanged, MatchID: m.id, Data: data})
}

// StartMatch builds a match, deals the starting decks and leaves it in
// Setup.
func (e *Engine) StartMatch(ctx context.Context, opts MatchOptions) (MatchView, error) {
	players, err := normalizePlayers(opts.Players)
	if err != nil {
		return MatchView{}, err
	}
	base, err := expansion.Base(e.lib, opts.Kingdom, len(players))
	if err != nil {
		return MatchView{}, fmt.Errorf("base configuration: %w", err)
	}
	selected := opts.Expansions
	if selected == nil {
		selected = e.defaultExpansions
	}
	cfg, err := e.composer.Compose(base, selected, e.lib)
	if err != nil {
		return MatchView{}, fmt.Errorf("compose configuration: %w", err)
	}
	for _, p := range cfg.StartingDeck {
		if _, err := e.lib.Get(p.Key); err != nil {
			return MatchView{}, fmt.Errorf("starting deck: %w", err)
		}
	}

	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	if err := ValidateMatchID(id); err != nil {
		return MatchView{}, err
	}
	seed := opts.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}

	m := newMatch(id, cfg, players, e.lib, e.composer.NewStates(cfg, players), seed)
	m.startedAt = e.clock.Now()
	m.resolver = effects.NewResolver(e.interp, e.broker, e.logger,
		effects.WithMaxDepth(e.maxDepth),
		effects.WithObserver(func(ev effects.StepEvent) { e.recordStep(m, ev) }),
	)
	if err := m.deal(); err != nil {
		return MatchView{}, fmt.Errorf("deal starting decks: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	e.mu.Lock()
	if _, exists := e.matches[id]; exists {
		e.mu.Unlock()
		return MatchView{}, fmt.Errorf("%w: %s", ErrMatchExists, id)
	}
	e.matches[id] = m
	e.mu.Unlock()

	recorded := cfg.Clone()
	e.record(m, TransitionRecord{
		Kind:    TransitionMatchStarted,
		Seed:    seed,
		Players: append([]string(nil), players...),
		Config:  &recorded,
	})
	e.flush(ctx, m)

	e.logger.Info("match started",
		zap.String("match_id", id),
		zap.Strings("players", players),
		zap.Strings("kingdom", cfg.Kingdom),
		zap.Strings("expansions", cfg.Expansions),
		zap.Uint64("seed", seed),
	)
	e.emit(Notification{Type: NotifyMatchStarted, MatchID: id, Data: map[string]interface{}{
		"players":    players,
		"kingdom":    cfg.Kingdom,
		"expansions": cfg.Expansions,
	}})
	return m.view("", nil), nil
}

func normalizePlayers(players []string) ([]string, error) {
	out := make([]string, 0, len(players))
	seen := make(map[string]bool, len(players))
	for _, p := range players {
		p = strings.TrimSpace(p)
		if p == "" {
			return nil, fmt.Errorf("player id is empty")
		}
		if seen[p] {
			return nil, fmt.Errorf("player %s seated twice", p)
		}
		seen[p] = true
		out = append(out, p)
	}
	return out, nil
}

func (e *Engine) lookup(matchID string) (*Match, error) {
	e.mu.RLock()
	m, ok := e.matches[matchID]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMatchNotFound, matchID)
	}
	return m, nil
}

// checkMutable rejects mutations of closed, errored or finished matches.
func (m *Match) checkMutable(op string) error {
	if m.closed {
		return fmt.Errorf("%w: %s", ErrMatchNotFound, m.id)
	}
	phase := m.turn.CurrentPhase()
	if m.errored {
		return fmt.Errorf("%w: %w", ErrMatchErrored, &rules.InvalidTransitionError{Op: op, Phase: phase, Reason: m.errReason})
	}
	if phase == rules.PhaseGameOver {
		return &rules.InvalidTransitionError{Op: op, Phase: phase, Reason: "match is over"}
	}
	return nil
}

// checkQuiet rejects turn structure changes while an effect is resolving.
func (m *Match) checkQuiet(op string) error {
	if !m.resolver.Idle() {
		return &rules.InvalidTransitionError{Op: op, Phase: m.turn.CurrentPhase(), Reason: "an effect is still resolving"}
	}
	return nil
}

func (m *Match) checkActive(player string) error {
	if _, ok := m.seats[player]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPlayer, player)
	}
	if active := m.turn.ActivePlayer(); player != active {
		return &NotActivePlayerError{Player: player, Active: active}
	}
	return nil
}

// AdvancePhase moves Setup->Action->Buy->Cleanup. Cleanup is left through
// EndTurn.
func (e *Engine) AdvancePhase(ctx context.Context, matchID string) (MatchView, error) {
	m, err := e.lookup(matchID)
	if err != nil {
		return MatchView{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	defer e.flush(ctx, m)

	if err := m.checkMutable("advance_phase"); err != nil {
		return MatchView{}, err
	}
	if err := m.checkQuiet("advance_phase"); err != nil {
		return MatchView{}, err
	}
	if phase := m.turn.CurrentPhase(); phase == rules.PhaseCleanup {
		return MatchView{}, &rules.InvalidTransitionError{Op: "advance_phase", Phase: phase, Reason: "turn must be ended from cleanup"}
	}

	e.record(m, TransitionRecord{Kind: TransitionPhaseAdvanced, Player: m.turn.ActivePlayer()})
	if err := e.advance(ctx, m); err != nil {
		return MatchView{}, err
	}
	e.notifyState(m)
	return m.view("", e.broker.Outstanding(m.id)), nil
}

// advance steps the turn manager once and ends the game when a triggered end
// condition meets the Buy->Cleanup transition.
func (e *Engine) advance(ctx context.Context, m *Match) error {
	from := m.turn.CurrentPhase()
	to, err := m.turn.AdvancePhase()
	if err != nil {
		return err
	}
	if from == rules.PhaseSetup {
		m.seats[m.turn.ActivePlayer()].turns++
	}
	e.record(m, TransitionRecord{Kind: TransitionPhaseChanged, Player: m.turn.ActivePlayer(), Detail: from.String() + "->" + to.String()})
	if from == rules.PhaseBuy && m.endTriggered {
		e.finish(ctx, m)
	}
	return nil
}

// EndTurn walks the remaining phases, performs cleanup and hands the turn
// to the next player.
func (e *Engine) EndTurn(ctx context.Context, matchID string) (MatchView, error) {
	m, err := e.lookup(matchID)
	if err != nil {
		return MatchView{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	defer e.flush(ctx, m)

	if err := m.checkMutable("end_turn"); err != nil {
		return MatchView{}, err
	}
	if err := m.checkQuiet("end_turn"); err != nil {
		return MatchView{}, err
	}
	if phase := m.turn.CurrentPhase(); phase == rules.PhaseSetup {
		return MatchView{}, &rules.InvalidTransitionError{Op: "end_turn", Phase: phase, Reason: "match has not started"}
	}

	player := m.turn.ActivePlayer()
	e.record(m, TransitionRecord{Kind: TransitionTurnEnded, Player: player})
	for m.turn.CurrentPhase() != rules.PhaseCleanup {
		if err := e.advance(ctx, m); err != nil {
			return MatchView{}, err
		}
		if m.turn.CurrentPhase() == rules.PhaseGameOver {
			return m.view("", nil), nil
		}
	}

	if err := m.cleanup(player); err != nil {
		return MatchView{}, e.fail(ctx, m, err)
	}
	next, err := m.turn.NextTurn()
	if err != nil {
		return MatchView{}, err
	}
	m.seats[next].turns++
	e.record(m, TransitionRecord{Kind: TransitionPhaseChanged, Player: next, Detail: rules.PhaseCleanup.String() + "->" + rules.PhaseAction.String()})

	e.logger.Debug("turn ended",
		zap.String("match_id", m.id),
		zap.String("player_id", player),
		zap.String("next_player", next),
		zap.Int("turn", m.turn.TurnNumber()),
	)
	e.notifyState(m)
	return m.view("", e.broker.Outstanding(m.id)), nil
}

// PlayCard plays an action card in the action phase or a treasure in the
// buy phase and resolves its program.
func (e *Engine) PlayCard(ctx context.Context, matchID, player, key string) (MatchView, error) {
	m, err := e.lookup(matchID)
	if err != nil {
		return MatchView{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	defer e.flush(ctx, m)

	if err := m.checkMutable("play_card"); err != nil {
		return MatchView{}, err
	}
	if err := m.checkActive(player); err != nil {
		return MatchView{}, err
	}
	if err := m.checkQuiet("play_card"); err != nil {
		return MatchView{}, err
	}
	def, err := m.lib.Get(key)
	if err != nil {
		return MatchView{}, fmt.Errorf("play_card: %w", err)
	}
	if !m.inHand(player, key) {
		return MatchView{}, &IllegalMoveError{Op: "play_card", Card: key, Reason: "card is not in hand"}
	}

	isAction := false
	switch phase := m.turn.CurrentPhase(); phase {
	case rules.PhaseAction:
		if !def.HasType(cards.TypeAction) {
			return MatchView{}, &IllegalMoveError{Op: "play_card", Card: key, Reason: "only action cards are played in the action phase"}
		}
		if m.counters.Actions < 1 {
			return MatchView{}, &IllegalMoveError{Op: "play_card", Card: key, Reason: "no actions left"}
		}
		isAction = true
	case rules.PhaseBuy:
		if !def.HasType(cards.TypeTreasure) {
			return MatchView{}, &IllegalMoveError{Op: "play_card", Card: key, Reason: "only treasures are played in the buy phase"}
		}
	default:
		return MatchView{}, &rules.InvalidTransitionError{Op: "play_card", Phase: phase, Reason: "cards are played in the action and buy phases"}
	}

	e.record(m, TransitionRecord{Kind: TransitionCardPlayed, Player: player, Card: key})
	if isAction {
		if err := m.AdjustCounter(rules.CounterActions, -1); err != nil {
			return MatchView{}, e.fail(ctx, m, err)
		}
	}
	if err := m.Move(player, rules.ZoneHand, rules.ZoneInPlay, []string{key}); err != nil {
		return MatchView{}, e.fail(ctx, m, err)
	}
	if def.Program != "" {
		if err := m.resolver.Begin(effects.FrameSpec{Player: player, Actor: player, Source: key, ProgramID: def.Program}); err != nil {
			return MatchView{}, e.fail(ctx, m, err)
		}
		status, err := m.resolver.Run(ctx, m)
		if err := e.drive(ctx, m, status, err); err != nil {
			return MatchView{}, err
		}
	}
	e.notifyState(m)
	return m.view(player, e.broker.Outstanding(m.id)), nil
}

// Buy gains a supply card for the active player in the buy phase.
func (e *Engine) Buy(ctx context.Context, matchID, player, key string) (MatchView, error) {
	m, err := e.lookup(matchID)
	if err != nil {
		return MatchView{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	defer e.flush(ctx, m)

	if err := m.checkMutable("buy"); err != nil {
		return MatchView{}, err
	}
	if err := m.checkActive(player); err != nil {
		return MatchView{}, err
	}
	if err := m.checkQuiet("buy"); err != nil {
		return MatchView{}, err
	}
	if phase := m.turn.CurrentPhase(); phase != rules.PhaseBuy {
		return MatchView{}, &rules.InvalidTransitionError{Op: "buy", Phase: phase, Reason: "cards are bought in the buy phase"}
	}
	def, err := m.lib.Get(key)
	if err != nil {
		return MatchView{}, fmt.Errorf("buy: %w", err)
	}
	count, ok := m.supply[key]
	switch {
	case !ok:
		return MatchView{}, &IllegalMoveError{Op: "buy", Card: key, Reason: "card is not in the supply"}
	case count == 0:
		return MatchView{}, &IllegalMoveError{Op: "buy", Card: key, Reason: "pile is empty"}
	case m.counters.Buys < 1:
		return MatchView{}, &IllegalMoveError{Op: "buy", Card: key, Reason: "no buys left"}
	case def.Cost.Debt > 0:
		return MatchView{}, &IllegalMoveError{Op: "buy", Card: key, Reason: "debt costs are not supported"}
	}
	funds := cards.Cost{Coins: m.counters.Coins, Potions: m.counters.Potions}
	if !funds.Covers(def.Cost) {
		return MatchView{}, &IllegalMoveError{Op: "buy", Card: key, Reason: fmt.Sprintf("costs %s, have %s", def.Cost, funds)}
	}

	e.record(m, TransitionRecord{Kind: TransitionCardBought, Player: player, Card: key})
	for _, adj := range []struct {
		counter rules.Counter
		delta   int
	}{
		{rules.CounterBuys, -1},
		{rules.CounterCoins, -def.Cost.Coins},
		{rules.CounterPotions, -def.Cost.Potions},
	} {
		if err := m.AdjustCounter(adj.counter, adj.delta); err != nil {
			return MatchView{}, e.fail(ctx, m, err)
		}
	}
	if _, err := m.Gain(player, key, rules.ZoneDiscard); err != nil {
		return MatchView{}, e.fail(ctx, m, err)
	}
	e.notifyState(m)
	return m.view(player, e.broker.Outstanding(m.id)), nil
}

// SubmitDecision answers an outstanding prompt of the match. Protocol errors
// from the broker leave the match untouched.
func (e *Engine) SubmitDecision(ctx context.Context, matchID, promptID, player string, payload prompt.Payload) (MatchView, error) {
	m, err := e.lookup(matchID)
	if err != nil {
		return MatchView{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	defer e.flush(ctx, m)

	if m.closed {
		return MatchView{}, fmt.Errorf("%w: %s", ErrMatchNotFound, m.id)
	}
	if m.errored {
		return MatchView{}, fmt.Errorf("%w: %s", ErrMatchErrored, m.errReason)
	}
	if p, live := e.broker.Get(promptID); live && p.MatchID != m.id {
		return MatchView{}, fmt.Errorf("%w: %s", prompt.ErrPromptNotFound, promptID)
	}
	d, err := e.broker.Submit(promptID, player, payload)
	if err != nil {
		return MatchView{}, err
	}
	if err := e.applyDecision(ctx, m, d); err != nil {
		return MatchView{}, err
	}
	e.notifyState(m)
	return m.view(player, e.broker.Outstanding(m.id)), nil
}

// handleForced applies a decision the broker resolved through a deadline.
func (e *Engine) handleForced(p *prompt.Pending, d prompt.Decision) {
	m, err := e.lookup(p.MatchID)
	if err != nil {
		return
	}
	ctx := context.Background()
	m.mu.Lock()
	defer m.mu.Unlock()
	defer e.flush(ctx, m)

	if m.closed || m.errored {
		return
	}
	if err := e.applyDecision(ctx, m, d); err != nil {
		e.logger.Warn("forced decision failed",
			zap.String("match_id", m.id),
			zap.String("player_id", d.Player),
			zap.String("prompt_id", d.PromptID),
			zap.Error(err),
		)
		return
	}
	e.notifyState(m)
}

// applyDecision resumes the resolver with a decision that belongs to its
// waiting frame. Stale decisions are dropped.
func (e *Engine) applyDecision(ctx context.Context, m *Match, d prompt.Decision) error {
	if id, ok := m.resolver.PendingPrompt(); !ok || id != d.PromptID {
		e.logger.Warn("dropping stale decision",
			zap.String("match_id", m.id),
			zap.String("player_id", d.Player),
			zap.String("prompt_id", d.PromptID),
		)
		return nil
	}
	e.recordDecision(m, d)
	status, err := m.resolver.Resume(ctx, m, d)
	return e.drive(ctx, m, status, err)
}

// drive settles the resolver after Run or Resume. Prompts addressed to an
// absent player are answered with their default on the spot.
func (e *Engine) drive(ctx context.Context, m *Match, status effects.Status, err error) error {
	for {
		if err != nil {
			return e.fail(ctx, m, err)
		}
		if status != effects.StatusSuspended {
			return nil
		}
		id, _ := m.resolver.PendingPrompt()
		p, ok := e.broker.Get(id)
		if !ok || !m.seats[p.Player].absent {
			return nil
		}
		d, ok := e.broker.Cancel(id, "player absent")
		if !ok {
			return nil
		}
		e.recordDecision(m, d)
		status, err = m.resolver.Resume(ctx, m, d)
	}
}

// fail marks the match errored. Nothing mutates it afterwards.
func (e *Engine) fail(ctx context.Context, m *Match, cause error) error {
	reason := ReasonInternalError
	if rules.IsInvariantViolation(cause) {
		reason = ReasonInvariantViolation
	}
	m.errored = true
	m.errReason = reason
	m.resolver.Abort()
	e.broker.CancelMatch(m.id, "match errored")
	e.record(m, TransitionRecord{Kind: TransitionErrored, Detail: cause.Error()})

	e.logger.Error("match errored",
		zap.String("match_id", m.id),
		zap.String("reason", reason),
		zap.Error(cause),
	)
	e.emit(Notification{Type: NotifyMatchErrored, MatchID: m.id, Data: map[string]interface{}{
		"reason": reason,
	}})
	return fmt.Errorf("%w: %w", ErrMatchErrored, cause)
}

// finish enters GameOver and archives the summary.
func (e *Engine) finish(ctx context.Context, m *Match) {
	m.turn.End()
	e.broker.CancelMatch(m.id, "game over")
	summary := m.summarize(e.clock.Now())
	m.summary = &summary

	e.summaryMu.Lock()
	e.summaries[m.id] = summary
	e.summaryMu.Unlock()

	e.record(m, TransitionRecord{Kind: TransitionGameOver, Detail: summary.Reason})
	e.logger.Info("match over",
		zap.String("match_id", m.id),
		zap.String("reason", summary.Reason),
		zap.Strings("winners", summary.Winners),
		zap.Int("turns", summary.Turns),
	)
	e.emit(Notification{Type: NotifyGameOver, MatchID: m.id, Data: map[string]interface{}{
		"winners": summary.Winners,
		"reason":  summary.Reason,
	}})
}

// View returns the match as player sees it. An empty player gets the public
// view.
func (e *Engine) View(matchID, player string) (MatchView, error) {
	m, err := e.lookup(matchID)
	if err != nil {
		return MatchView{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if player != "" {
		if _, ok := m.seats[player]; !ok {
			return MatchView{}, fmt.Errorf("%w: %s", ErrUnknownPlayer, player)
		}
	}
	return m.view(player, e.broker.Outstanding(m.id)), nil
}

// Summary returns the archived summary of a finished match. Summaries
// outlive Close.
func (e *Engine) Summary(matchID string) (MatchSummary, error) {
	e.summaryMu.RLock()
	s, ok := e.summaries[matchID]
	e.summaryMu.RUnlock()
	if ok {
		return s, nil
	}
	if _, err := e.lookup(matchID); err != nil {
		return MatchSummary{}, err
	}
	return MatchSummary{}, fmt.Errorf("%w: %s", ErrMatchNotFinished, matchID)
}

// Checksum returns the match's state checksum.
func (e *Engine) Checksum(matchID string) (string, error) {
	m, err := e.lookup(matchID)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.checksum(), nil
}

// Disconnect starts a player's grace period. When it runs out without a
// reconnect, the player's prompts resolve with their defaults.
func (e *Engine) Disconnect(ctx context.Context, matchID, player string) error {
	m, err := e.lookup(matchID)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	defer e.flush(ctx, m)

	seat, ok := m.seats[player]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPlayer, player)
	}
	if !seat.connected {
		return nil
	}
	seat.connected = false
	e.record(m, TransitionRecord{Kind: TransitionDisconnected, Player: player})
	e.logger.Info("player disconnected",
		zap.String("match_id", m.id),
		zap.String("player_id", player),
		zap.Duration("grace", e.grace),
	)

	if e.grace <= 0 {
		return e.markAbsent(ctx, m, seat)
	}
	seat.graceTimer = e.clock.AfterFunc(e.grace, func() { e.graceExpired(matchID, player) })
	return nil
}

func (e *Engine) graceExpired(matchID, player string) {
	m, err := e.lookup(matchID)
	if err != nil {
		return
	}
	ctx := context.Background()
	m.mu.Lock()
	defer m.mu.Unlock()
	defer e.flush(ctx, m)

	seat := m.seats[player]
	if seat.connected || seat.absent {
		return
	}
	if err := e.markAbsent(ctx, m, seat); err != nil {
		e.logger.Warn("resolving prompts of absent player failed",
			zap.String("match_id", m.id),
			zap.String("player_id", player),
			zap.Error(err),
		)
	}
	e.notifyState(m)
}

func (e *Engine) markAbsent(ctx context.Context, m *Match, seat *seatState) error {
	seat.absent = true
	seat.graceTimer = nil
	if m.closed || m.errored {
		return nil
	}
	for _, d := range e.broker.CancelPlayer(m.id, seat.id, "player disconnected") {
		if err := e.applyDecision(ctx, m, d); err != nil {
			return err
		}
	}
	return nil
}

// Reconnect restores a player and resends their open prompts.
func (e *Engine) Reconnect(ctx context.Context, matchID, player string) (MatchView, error) {
	m, err := e.lookup(matchID)
	if err != nil {
		return MatchView{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	defer e.flush(ctx, m)

	seat, ok := m.seats[player]
	if !ok {
		return MatchView{}, fmt.Errorf("%w: %s", ErrUnknownPlayer, player)
	}
	if seat.graceTimer != nil {
		seat.graceTimer.Stop()
		seat.graceTimer = nil
	}
	if !seat.connected {
		seat.connected = true
		seat.absent = false
		e.record(m, TransitionRecord{Kind: TransitionReconnected, Player: player})
	}
	resent := e.broker.Resend(ctx, m.id, player)
	e.logger.Info("player reconnected",
		zap.String("match_id", m.id),
		zap.String("player_id", player),
		zap.Int("prompts_resent", resent),
	)
	return m.view(player, e.broker.Outstanding(m.id)), nil
}

// Close removes a match. Outstanding prompts are cancelled.
func (e *Engine) Close(ctx context.Context, matchID string) error {
	e.mu.Lock()
	m, ok := e.matches[matchID]
	delete(e.matches, matchID)
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrMatchNotFound, matchID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.resolver.Abort()
	e.broker.CancelMatch(m.id, "match closed")
	e.broker.Forget(m.id)
	for _, seat := range m.seats {
		if seat.graceTimer != nil {
			seat.graceTimer.Stop()
			seat.graceTimer = nil
		}
	}
	e.record(m, TransitionRecord{Kind: TransitionClosed})
	e.flush(ctx, m)
	e.logger.Info("match closed", zap.String("match_id", m.id))
	return nil
}

// MatchIDs lists the live matches.
func (e *Engine) MatchIDs() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return sortedStateIDs(e.matches)
}

func (e *Engine) record(m *Match, rec TransitionRecord) {
	m.seq++
	rec.MatchID = m.id
	rec.Seq = m.seq
	rec.Turn = m.turn.TurnNumber()
	rec.Phase = m.turn.CurrentPhase().String()
	rec.At = e.clock.Now()
	m.outbox = append(m.outbox, rec)
}

func (e *Engine) recordStep(m *Match, ev effects.StepEvent) {
	detail := string(ev.Kind)
	if len(ev.Selected) > 0 {
		detail += " " + strings.Join(ev.Selected, ",")
	}
	e.record(m, TransitionRecord{
		Kind:   TransitionEffectStep,
		Player: ev.Player,
		Card:   ev.Source,
		Detail: detail,
	})
}

// flush hands buffered records to the sink. Sink failures are logged; the
// match keeps going.
func (e *Engine) flush(ctx context.Context, m *Match) {
	records := m.outbox
	m.outbox = nil
	if e.sink == nil {
		return
	}
	for _, rec := range records {
		if err := e.sink.Append(ctx, rec); err != nil {
			e.logger.Warn("journal append failed",
				zap.String("match_id", rec.MatchID),
				zap.Uint64("seq", rec.Seq),
				zap.String("kind", string(rec.Kind)),
				zap.Error(err),
			)
		}
	}
}

func (e *Engine) recordDecision(m *Match, d prompt.Decision) {
	payload := clonePayload(d.Payload)
	e.record(m, TransitionRecord{
		Kind:      TransitionDecision,
		Player:    d.Player,
		PromptID:  d.PromptID,
		Decision:  &payload,
		Defaulted: d.Defaulted,
		Detail:    d.Reason,
	})
}

func clonePayload(p prompt.Payload) prompt.Payload {
	return prompt.Payload{
		Cards:  append([]string(nil), p.Cards...),
		Order:  append([]int(nil), p.Order...),
		Accept: p.Accept,
	}
}
