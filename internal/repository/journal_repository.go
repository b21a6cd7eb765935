package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kingdomforge/kingdom-server-go/internal/game"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// JournalRepository stores transition records. It implements
// game.TransitionSink.
type JournalRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewJournalRepository creates a journal repository.
func NewJournalRepository(pool *pgxpool.Pool, logger *zap.Logger) *JournalRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JournalRepository{pool: pool, logger: logger}
}

// Append implements game.TransitionSink. Re-appending a stored sequence
// number is a no-op.
func (r *JournalRepository) Append(ctx context.Context, rec game.TransitionRecord) error {
	payload, err := EncodeRecord(rec)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO match_journal (match_id, seq, kind, payload, recorded_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (match_id, seq) DO NOTHING
	`, rec.MatchID, int64(rec.Seq), string(rec.Kind), payload, rec.At)
	if err != nil {
		return fmt.Errorf("failed to append journal record %s/%d: %w", rec.MatchID, rec.Seq, err)
	}
	return nil
}

// Load returns a match's records in sequence order.
func (r *JournalRepository) Load(ctx context.Context, matchID string) ([]game.TransitionRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT payload FROM match_journal WHERE match_id = $1 ORDER BY seq
	`, matchID)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (game.TransitionRecord, error) {
		var payload []byte
		if err := row.Scan(&payload); err != nil {
			return game.TransitionRecord{}, err
		}
		return DecodeRecord(payload)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read journal of match %s: %w", matchID, err)
	}
	r.logger.Debug("loaded journal",
		zap.String("match_id", matchID),
		zap.Int("record_count", len(records)),
	)
	return records, nil
}

// Delete removes a match's journal.
func (r *JournalRepository) Delete(ctx context.Context, matchID string) error {
	if _, err := r.pool.Exec(ctx, "DELETE FROM match_journal WHERE match_id = $1", matchID); err != nil {
		return fmt.Errorf("failed to delete journal: %w", err)
	}
	return nil
}

// EncodeRecord serializes a record as a protobuf Struct built from its JSON
// form.
func EncodeRecord(rec game.TransitionRecord) ([]byte, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}
	return proto.Marshal(s)
}

// DecodeRecord reverses EncodeRecord.
func DecodeRecord(payload []byte) (game.TransitionRecord, error) {
	var rec game.TransitionRecord
	s := &structpb.Struct{}
	if err := proto.Unmarshal(payload, s); err != nil {
		return rec, fmt.Errorf("failed to decode record: %w", err)
	}
	raw, err := json.Marshal(s.AsMap())
	if err != nil {
		return rec, fmt.Errorf("failed to decode record: %w", err)
	}
	if err := json.Unmarshal(raw, &rec); err != nil {
		return rec, fmt.Errorf("failed to decode record: %w", err)
	}
	return rec, nil
}
