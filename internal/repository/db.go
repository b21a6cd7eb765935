// Package repository persists card definitions and match journals in
// PostgreSQL.
package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kingdomforge/kingdom-server-go/internal/config"
	"go.uber.org/zap"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS cards (
	key            TEXT PRIMARY KEY,
	name           TEXT NOT NULL,
	coins          INT  NOT NULL DEFAULT 0,
	potions        INT  NOT NULL DEFAULT 0,
	debt           INT  NOT NULL DEFAULT 0,
	types          TEXT[] NOT NULL,
	program        TEXT NOT NULL DEFAULT '',
	victory_points INT  NOT NULL DEFAULT 0,
	expansion      TEXT NOT NULL DEFAULT '',
	mat            TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS match_journal (
	match_id    TEXT   NOT NULL,
	seq         BIGINT NOT NULL,
	kind        TEXT   NOT NULL,
	payload     BYTEA  NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (match_id, seq)
);
CREATE INDEX IF NOT EXISTS idx_match_journal_kind ON match_journal(kind);
`

// NewDB opens a connection pool and verifies it with a ping.
func NewDB(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("connected to database",
		zap.String("host", poolCfg.ConnConfig.Host),
		zap.String("database", poolCfg.ConnConfig.Database),
		zap.Int32("max_conns", poolCfg.MaxConns),
	)
	return pool, nil
}

// Migrate creates the tables this package uses when they are missing.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
