package game

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/kingdomforge/kingdom-server-go/internal/game/cards"
	"github.com/kingdomforge/kingdom-server-go/internal/game/effects"
	"github.com/kingdomforge/kingdom-server-go/internal/game/expansion"
	"github.com/kingdomforge/kingdom-server-go/internal/game/prompt"
	"github.com/kingdomforge/kingdom-server-go/internal/game/rules"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var baseKingdom = []string{
	"cellar", "chapel", "moat", "village", "militia",
	"smithy", "throne_room", "witch", "market", "feast",
}

type sentPrompts struct {
	mu   sync.Mutex
	sent map[string][]prompt.Envelope
}

func (s *sentPrompts) SendPrompt(_ context.Context, player string, env prompt.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent[player] = append(s.sent[player], env)
	return nil
}

func (s *sentPrompts) count(player string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent[player])
}

type harness struct {
	t      *testing.T
	e      *Engine
	broker *prompt.Broker
	clock  *prompt.ManualClock
	sent   *sentPrompts
	rec    *Recorder
	lib    *cards.Library
}

type harnessConfig struct {
	promptTimeout time.Duration
	programs      map[string]effects.Program
}

type harnessOption func(*harnessConfig)

func withPromptTimeout(d time.Duration) harnessOption {
	return func(c *harnessConfig) { c.promptTimeout = d }
}

// withProgram replaces a base program.
func withProgram(id string, p effects.Program) harnessOption {
	return func(c *harnessConfig) { c.programs[id] = p }
}

func loadTestLibrary(t *testing.T) *cards.Library {
	t.Helper()
	defs, err := cards.NewCSVLoader(filepath.Join("..", "..", "data", "cards.csv")).LoadCardDefinitions(context.Background())
	require.NoError(t, err)
	lib := cards.NewLibrary()
	require.NoError(t, lib.Register(defs...))
	lib.Seal()
	return lib
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	cfg := harnessConfig{programs: effects.BasePrograms()}
	for _, opt := range opts {
		opt(&cfg)
	}

	logger := zaptest.NewLogger(t)
	lib := loadTestLibrary(t)
	composer := expansion.NewDefaultComposer()
	in := effects.NewInterpreter()
	require.NoError(t, in.RegisterPrograms(cfg.programs))
	require.NoError(t, composer.Install(in))
	in.Seal()
	require.NoError(t, in.CheckLibrary(lib))

	clock := prompt.NewManualClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	sent := &sentPrompts{sent: make(map[string][]prompt.Envelope)}
	broker := prompt.NewBroker(sent, logger, prompt.WithClock(clock), prompt.WithDefaultTimeout(cfg.promptTimeout))
	rec := NewRecorder(logger, t.TempDir())
	e := NewEngine(lib, composer, in, broker, logger,
		WithSink(rec),
		WithClock(clock),
		WithGracePeriod(30*time.Second),
	)
	return &harness{t: t, e: e, broker: broker, clock: clock, sent: sent, rec: rec, lib: lib}
}

func (h *harness) start(kingdom []string, expansions []string) string {
	h.t.Helper()
	v, err := h.e.StartMatch(context.Background(), MatchOptions{
		ID:         "m1",
		Players:    []string{"alice", "bob"},
		Kingdom:    kingdom,
		Expansions: expansions,
		Seed:       42,
	})
	require.NoError(h.t, err)
	return v.MatchID
}

func (h *harness) match(id string) *Match {
	h.t.Helper()
	m, err := h.e.lookup(id)
	require.NoError(h.t, err)
	return m
}

// set overwrites a zone directly.
func (h *harness) set(id, player string, zone rules.Zone, keys ...string) {
	h.t.Helper()
	m := h.match(id)
	m.mu.Lock()
	defer m.mu.Unlock()
	if zone == rules.ZoneTrash {
		m.trash = keys
		return
	}
	m.seats[player].zones[zone] = keys
}

func (h *harness) mutate(id string, fn func(m *Match)) {
	h.t.Helper()
	m := h.match(id)
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m)
}

func (h *harness) view(id, player string) MatchView {
	h.t.Helper()
	v, err := h.e.View(id, player)
	require.NoError(h.t, err)
	return v
}

func (h *harness) advance(id string, times int) MatchView {
	h.t.Helper()
	var v MatchView
	for i := 0; i < times; i++ {
		var err error
		v, err = h.e.AdvancePhase(context.Background(), id)
		require.NoError(h.t, err)
	}
	return v
}

func (h *harness) checksum(id string) string {
	h.t.Helper()
	sum, err := h.e.Checksum(id)
	require.NoError(h.t, err)
	return sum
}

// pending returns the single outstanding prompt of a match.
func (h *harness) pending(id string) *prompt.Pending {
	h.t.Helper()
	out := h.broker.Outstanding(id)
	require.Len(h.t, out, 1)
	return out[0]
}

func (h *harness) records(id string, kind TransitionKind) []TransitionRecord {
	var out []TransitionRecord
	for _, rec := range h.rec.Records(id) {
		if rec.Kind == kind {
			out = append(out, rec)
		}
	}
	return out
}

// minimalAnswer builds the smallest valid answer to a prompt.
func minimalAnswer(p *prompt.Pending) prompt.Payload {
	c := p.Constraints
	switch p.Kind {
	case prompt.KindSelectCards, prompt.KindSelectSupply:
		n := c.Min
		if !c.Count.IsUpTo() {
			n = c.Count.N()
		}
		n = min(n, len(c.Eligible))
		return prompt.Payload{Cards: append([]string(nil), c.Eligible[:n]...)}
	case prompt.KindOrderCards:
		return prompt.Payload{Order: identity(len(c.Eligible))}
	case prompt.KindBlindRearrange:
		return prompt.Payload{Order: identity(c.Arity)}
	}
	return prompt.Payload{}
}

func identity(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
