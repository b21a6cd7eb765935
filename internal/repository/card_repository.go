package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kingdomforge/kingdom-server-go/internal/game/cards"
	"go.uber.org/zap"
)

const importBatchSize = 500

// CardRepository stores card definitions. It implements cards.Loader.
type CardRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewCardRepository creates a card repository.
func NewCardRepository(pool *pgxpool.Pool, logger *zap.Logger) *CardRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CardRepository{pool: pool, logger: logger}
}

// LoadCardDefinitions implements cards.Loader.
func (r *CardRepository) LoadCardDefinitions(ctx context.Context) ([]cards.Definition, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT key, name, coins, potions, debt, types, program, victory_points, expansion, mat
		FROM cards
		ORDER BY key
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query cards: %w", err)
	}

	defs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (cards.Definition, error) {
		var (
			def   cards.Definition
			types []string
		)
		err := row.Scan(
			&def.Key, &def.Name,
			&def.Cost.Coins, &def.Cost.Potions, &def.Cost.Debt,
			&types, &def.Program, &def.VictoryPoints, &def.Expansion, &def.Mat,
		)
		for _, t := range types {
			def.Types = append(def.Types, cards.Type(t))
		}
		return def, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan cards: %w", err)
	}

	r.logger.Debug("loaded card definitions", zap.Int("count", len(defs)))
	return defs, nil
}

// Import upserts definitions in batches, one transaction per batch.
func (r *CardRepository) Import(ctx context.Context, defs []cards.Definition) (int, error) {
	imported := 0
	for i := 0; i < len(defs); i += importBatchSize {
		end := min(i+importBatchSize, len(defs))
		if err := r.importBatch(ctx, defs[i:end]); err != nil {
			return imported, err
		}
		imported += end - i
	}
	r.logger.Info("imported card definitions", zap.Int("count", imported))
	return imported, nil
}

func (r *CardRepository) importBatch(ctx context.Context, defs []cards.Definition) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, def := range defs {
		types := make([]string, len(def.Types))
		for i, t := range def.Types {
			types[i] = string(t)
		}
		batch.Queue(`
			INSERT INTO cards (key, name, coins, potions, debt, types, program, victory_points, expansion, mat)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (key) DO UPDATE SET
				name = EXCLUDED.name,
				coins = EXCLUDED.coins,
				potions = EXCLUDED.potions,
				debt = EXCLUDED.debt,
				types = EXCLUDED.types,
				program = EXCLUDED.program,
				victory_points = EXCLUDED.victory_points,
				expansion = EXCLUDED.expansion,
				mat = EXCLUDED.mat
		`,
			def.Key, def.Name, def.Cost.Coins, def.Cost.Potions, def.Cost.Debt,
			types, def.Program, def.VictoryPoints, def.Expansion, def.Mat,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert cards: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit cards: %w", err)
	}
	return nil
}

// Count returns the number of stored definitions.
func (r *CardRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM cards").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count cards: %w", err)
	}
	return n, nil
}
