package game

import (
	"context"
	"fmt"

	"github.com/kingdomforge/kingdom-server-go/internal/game/prompt"
	"go.uber.org/zap"
)

// ReplayResult is the outcome of re-executing a journal.
type ReplayResult struct {
	MatchID  string
	Checksum string
	View     MatchView
	// Applied counts the command records executed.
	Applied int
}

// Replay rebuilds a match from its journal on a scratch engine sharing this
// engine's library, composer and interpreter, and returns the rebuilt
// state's checksum. Informational records are skipped.
func (e *Engine) Replay(ctx context.Context, records []TransitionRecord) (ReplayResult, error) {
	scratch := NewEngine(e.lib, e.composer, e.interp, prompt.NewBroker(nil, e.logger.Named("replay")), e.logger.Named("replay"),
		WithMaxEffectDepth(e.maxDepth),
	)
	return scratch.replay(ctx, records)
}

func (e *Engine) replay(ctx context.Context, records []TransitionRecord) (ReplayResult, error) {
	var result ReplayResult
	for _, rec := range records {
		if !rec.Kind.IsCommand() {
			continue
		}
		if result.MatchID == "" && rec.Kind != TransitionMatchStarted {
			return result, fmt.Errorf("journal record %d (%s) precedes match_started", rec.Seq, rec.Kind)
		}
		if err := e.apply(ctx, rec); err != nil {
			return result, fmt.Errorf("replay record %d (%s): %w", rec.Seq, rec.Kind, err)
		}
		result.MatchID = rec.MatchID
		result.Applied++
	}
	if result.MatchID == "" {
		return result, fmt.Errorf("journal has no match_started record")
	}

	sum, err := e.Checksum(result.MatchID)
	if err != nil {
		return result, err
	}
	view, err := e.View(result.MatchID, "")
	if err != nil {
		return result, err
	}
	result.Checksum = sum
	result.View = view

	e.logger.Debug("journal replayed",
		zap.String("match_id", result.MatchID),
		zap.Int("applied", result.Applied),
		zap.String("checksum", sum),
	)
	return result, nil
}

func (e *Engine) apply(ctx context.Context, rec TransitionRecord) error {
	var err error
	switch rec.Kind {
	case TransitionMatchStarted:
		if rec.Config == nil {
			return fmt.Errorf("match_started without configuration")
		}
		_, err = e.StartMatch(ctx, MatchOptions{
			ID:         rec.MatchID,
			Players:    rec.Players,
			Kingdom:    rec.Config.Kingdom,
			Expansions: append([]string{}, rec.Config.Expansions...),
			Seed:       rec.Seed,
		})
	case TransitionPhaseAdvanced:
		_, err = e.AdvancePhase(ctx, rec.MatchID)
	case TransitionTurnEnded:
		_, err = e.EndTurn(ctx, rec.MatchID)
	case TransitionCardPlayed:
		_, err = e.PlayCard(ctx, rec.MatchID, rec.Player, rec.Card)
	case TransitionCardBought:
		_, err = e.Buy(ctx, rec.MatchID, rec.Player, rec.Card)
	case TransitionDecision:
		err = e.replayDecision(ctx, rec)
	}
	return err
}

// replayDecision answers the rebuilt match's waiting prompt. Prompt ids are
// regenerated, so the recorded id is not used.
func (e *Engine) replayDecision(ctx context.Context, rec TransitionRecord) error {
	if rec.Decision == nil {
		return fmt.Errorf("decision record without payload")
	}
	m, err := e.lookup(rec.MatchID)
	if err != nil {
		return err
	}
	m.mu.Lock()
	promptID, ok := m.resolver.PendingPrompt()
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("no prompt is waiting")
	}
	_, err = e.SubmitDecision(ctx, rec.MatchID, promptID, rec.Player, *rec.Decision)
	return err
}
