package game

import (
	"compress/gzip"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kingdomforge/kingdom-server-go/internal/game/expansion"
	"github.com/kingdomforge/kingdom-server-go/internal/game/prompt"
	"go.uber.org/zap"
)

// TransitionKind classifies a journal record.
type TransitionKind string

// Command records are re-executed by Replay; the rest are informational.
const (
	TransitionMatchStarted  TransitionKind = "match_started"
	TransitionPhaseAdvanced TransitionKind = "phase_advanced"
	TransitionTurnEnded     TransitionKind = "turn_ended"
	TransitionCardPlayed    TransitionKind = "card_played"
	TransitionCardBought    TransitionKind = "card_bought"
	TransitionDecision      TransitionKind = "decision_resolved"

	TransitionPhaseChanged TransitionKind = "phase_changed"
	TransitionEffectStep   TransitionKind = "effect_step"
	TransitionGameOver     TransitionKind = "game_over"
	TransitionErrored      TransitionKind = "match_errored"
	TransitionDisconnected TransitionKind = "player_disconnected"
	TransitionReconnected  TransitionKind = "player_reconnected"
	TransitionClosed       TransitionKind = "match_closed"
)

// IsCommand reports whether Replay re-executes records of this kind.
func (k TransitionKind) IsCommand() bool {
	switch k {
	case TransitionMatchStarted, TransitionPhaseAdvanced, TransitionTurnEnded,
		TransitionCardPlayed, TransitionCardBought, TransitionDecision:
		return true
	}
	return false
}

// TransitionRecord is one journal entry. Seq is dense per match.
type TransitionRecord struct {
	MatchID   string                   `json:"match_id"`
	Seq       uint64                   `json:"seq"`
	Kind      TransitionKind           `json:"kind"`
	Turn      int                      `json:"turn"`
	Phase     string                   `json:"phase"`
	Player    string                   `json:"player,omitempty"`
	Card      string                   `json:"card,omitempty"`
	PromptID  string                   `json:"prompt_id,omitempty"`
	Decision  *prompt.Payload          `json:"decision,omitempty"`
	Defaulted bool                     `json:"defaulted,omitempty"`
	Seed      uint64                   `json:"seed,string,omitempty"`
	Players   []string                 `json:"players,omitempty"`
	Config    *expansion.Configuration `json:"config,omitempty"`
	Detail    string                   `json:"detail,omitempty"`
	At        time.Time                `json:"at"`
}

// TransitionSink receives journal records in order.
type TransitionSink interface {
	Append(ctx context.Context, rec TransitionRecord) error
}

// MultiSink fans records out to several sinks.
type MultiSink []TransitionSink

// Append implements TransitionSink. Every sink sees the record even when an
// earlier one fails.
func (m MultiSink) Append(ctx context.Context, rec TransitionRecord) error {
	var errs []error
	for _, sink := range m {
		if err := sink.Append(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

const journalVersion = 1

type journalMetadata struct {
	MatchID     string
	Timestamp   time.Time
	Version     int
	RecordCount int
}

// Recorder keeps match journals in memory and exports them as gzipped gob
// files.
type Recorder struct {
	logger   *zap.Logger
	mu       sync.RWMutex
	journals map[string][]TransitionRecord
	saveDir  string
}

// NewRecorder creates a recorder that saves into saveDir.
func NewRecorder(logger *zap.Logger, saveDir string) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		logger:   logger,
		journals: make(map[string][]TransitionRecord),
		saveDir:  saveDir,
	}
}

// Append implements TransitionSink.
func (r *Recorder) Append(_ context.Context, rec TransitionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.journals[rec.MatchID] = append(r.journals[rec.MatchID], rec)
	return nil
}

// Records returns a copy of a match's journal.
func (r *Recorder) Records(matchID string) []TransitionRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]TransitionRecord(nil), r.journals[matchID]...)
}

// Clear drops a match's journal from memory without saving.
func (r *Recorder) Clear(matchID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.journals, matchID)
}

// Save writes a match's journal to <saveDir>/<matchID>.journal.
func (r *Recorder) Save(matchID string) error {
	records := r.Records(matchID)
	if len(records) == 0 {
		return fmt.Errorf("no journal for match %s", matchID)
	}
	if err := SaveJournal(r.saveDir, matchID, records); err != nil {
		return err
	}
	r.logger.Info("saved journal to disk",
		zap.String("match_id", matchID),
		zap.Int("record_count", len(records)),
		zap.String("directory", r.saveDir),
	)
	return nil
}

// Load reads a saved journal back.
func (r *Recorder) Load(matchID string) ([]TransitionRecord, error) {
	records, err := LoadJournal(r.saveDir, matchID)
	if err != nil {
		return nil, err
	}
	r.logger.Info("loaded journal from disk",
		zap.String("match_id", matchID),
		zap.Int("record_count", len(records)),
	)
	return records, nil
}

// SaveJournal writes records as a gzipped gob stream.
func SaveJournal(directory, matchID string, records []TransitionRecord) error {
	path, err := journalPath(directory, matchID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(directory, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	gz := gzip.NewWriter(file)
	encoder := gob.NewEncoder(gz)
	metadata := journalMetadata{
		MatchID:     matchID,
		Timestamp:   time.Now(),
		Version:     journalVersion,
		RecordCount: len(records),
	}
	if err := encoder.Encode(&metadata); err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	for i := range records {
		if err := encoder.Encode(&records[i]); err != nil {
			return fmt.Errorf("failed to encode record %d: %w", i, err)
		}
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("failed to flush journal: %w", err)
	}
	return nil
}

// LoadJournal reads a journal written by SaveJournal.
func LoadJournal(directory, matchID string) ([]TransitionRecord, error) {
	path, err := journalPath(directory, matchID)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	gz, err := gzip.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gz.Close()

	decoder := gob.NewDecoder(gz)
	var metadata journalMetadata
	if err := decoder.Decode(&metadata); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	if metadata.Version != journalVersion {
		return nil, fmt.Errorf("unsupported journal version: %d", metadata.Version)
	}

	records := make([]TransitionRecord, 0, metadata.RecordCount)
	for i := 0; i < metadata.RecordCount; i++ {
		var rec TransitionRecord
		if err := decoder.Decode(&rec); err != nil {
			return nil, fmt.Errorf("failed to decode record %d: %w", i, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func journalPath(directory, matchID string) (string, error) {
	if err := ValidateMatchID(matchID); err != nil {
		return "", err
	}
	if filepath.Base(matchID) != matchID {
		return "", fmt.Errorf("%w: %q", ErrInvalidMatchID, matchID)
	}
	return filepath.Join(directory, matchID+".journal"), nil
}
