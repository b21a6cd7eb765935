// Command import-cards loads a card CSV into the cards table.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kingdomforge/kingdom-server-go/internal/config"
	"github.com/kingdomforge/kingdom-server-go/internal/game/cards"
	"github.com/kingdomforge/kingdom-server-go/internal/repository"
	"go.uber.org/zap"
)

var (
	configPath = flag.String("config", "config/config.yaml", "path to configuration file")
	csvPath    = flag.String("csv", "", "card CSV file (defaults to game.card_data_path)")
)

func main() {
	flag.Parse()
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "import failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if !cfg.Database.Enabled() {
		return fmt.Errorf("database.url is not set")
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		return err
	}
	defer logger.Sync()

	path := *csvPath
	if path == "" {
		path = cfg.Game.CardDataPath
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to get absolute path: %w", err)
	}

	defs, err := cards.NewCSVLoader(absPath).LoadCardDefinitions(ctx)
	if err != nil {
		return err
	}
	lib := cards.NewLibrary()
	if err := lib.Register(defs...); err != nil {
		return fmt.Errorf("card data is inconsistent: %w", err)
	}
	logger.Info("parsed card data", zap.String("file", absPath), zap.Int("cards", len(defs)))

	db, err := repository.NewDB(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := repository.Migrate(ctx, db); err != nil {
		return err
	}

	repo := repository.NewCardRepository(db, logger)
	start := time.Now()
	imported, err := repo.Import(ctx, defs)
	if err != nil {
		return err
	}
	total, err := repo.Count(ctx)
	if err != nil {
		return err
	}

	duration := time.Since(start)
	logger.Info("import complete",
		zap.Int("imported", imported),
		zap.Int64("total_in_database", total),
		zap.Duration("duration", duration),
	)
	return nil
}
