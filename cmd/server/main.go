package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kingdomforge/kingdom-server-go/internal/config"
	"github.com/kingdomforge/kingdom-server-go/internal/game"
	"github.com/kingdomforge/kingdom-server-go/internal/game/cards"
	"github.com/kingdomforge/kingdom-server-go/internal/game/effects"
	"github.com/kingdomforge/kingdom-server-go/internal/game/expansion"
	"github.com/kingdomforge/kingdom-server-go/internal/game/prompt"
	"github.com/kingdomforge/kingdom-server-go/internal/repository"
	"github.com/kingdomforge/kingdom-server-go/internal/server"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	configPath = flag.String("config", "config/config.yaml", "path to configuration file")
	version    = "dev" // set via ldflags during build
)

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := initLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting kingdom server",
		zap.String("version", version),
		zap.String("config", *configPath),
	)

	// Create context that is cancelled on shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Initialize database
	var db *pgxpool.Pool
	if cfg.Database.Enabled() {
		db, err = repository.NewDB(ctx, cfg.Database, logger)
		if err != nil {
			logger.Fatal("failed to connect to database", zap.Error(err))
		}
		defer db.Close()
		if err := repository.Migrate(ctx, db); err != nil {
			logger.Fatal("failed to migrate database", zap.Error(err))
		}
		// Log database stats
		stats := db.Stat()
		logger.Info("database connection pool initialized",
			zap.Int32("total_conns", stats.TotalConns()),
			zap.Int32("idle_conns", stats.IdleConns()),
		)
	} else {
		logger.Warn("database not configured; journals are kept in memory only")
	}

	// Load card library
	lib, err := loadLibrary(ctx, cfg.Game, db, logger)
	if err != nil {
		logger.Fatal("failed to load card library", zap.Error(err))
	}

	// Initialize expansions and effect interpreter
	composer := expansion.NewDefaultComposer()
	interp := effects.NewInterpreter()
	if err := effects.RegisterBasePrograms(interp); err != nil {
		logger.Fatal("failed to register programs", zap.Error(err))
	}
	if err := composer.Install(interp); err != nil {
		logger.Fatal("failed to install expansions", zap.Error(err))
	}
	interp.Seal()
	if err := interp.CheckLibrary(lib); err != nil {
		logger.Fatal("card library references unknown programs", zap.Error(err))
	}
	logger.Info("effect interpreter initialized",
		zap.Strings("expansions", composer.IDs()),
		zap.Int("cards", lib.Len()),
	)

	// Initialize authentication and WebSocket hub
	auth, err := server.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	if err != nil {
		logger.Fatal("failed to initialize authentication", zap.Error(err))
	}
	hub := server.NewHub(auth, cfg.Server.WebSocket, logger.Named("hub"))

	// Initialize prompt broker
	broker := prompt.NewBroker(hub, logger.Named("prompt"),
		prompt.WithDefaultTimeout(cfg.Game.PromptTimeout),
	)

	// Initialize journal sinks
	recorder := game.NewRecorder(logger.Named("journal"), cfg.Game.ReplayDir)
	sinks := game.MultiSink{recorder}
	if db != nil {
		sinks = append(sinks, repository.NewJournalRepository(db, logger.Named("journal")))
	}

	// Initialize rules engine
	engine := game.NewEngine(lib, composer, interp, broker, logger.Named("engine"),
		game.WithSink(sinks),
		game.WithGracePeriod(cfg.Game.DisconnectGrace),
		game.WithDefaultExpansions(cfg.Game.DefaultExpansions),
		game.WithMaxEffectDepth(cfg.Game.MaxEffectDepth),
	)
	hub.Attach(engine)
	// Archive journals of finished matches. The hub has closed the match
	// by the time HandleNotification returns.
	engine.SetNotificationHandler(func(n game.Notification) {
		hub.HandleNotification(n)
		if n.Type == game.NotifyGameOver {
			if err := recorder.Save(n.MatchID); err != nil {
				logger.Warn("failed to save journal", zap.String("match_id", n.MatchID), zap.Error(err))
				return
			}
			recorder.Clear(n.MatchID)
		}
	})

	// Start gRPC server
	grpcServer := server.NewGRPCServer(cfg.Server.GRPC, logger.Named("grpc"))
	lis, err := net.Listen("tcp", cfg.Server.GRPC.Address)
	if err != nil {
		logger.Fatal("failed to listen", zap.Error(err))
	}
	go func() {
		if serveErr := grpcServer.Serve(lis); serveErr != nil {
			logger.Error("gRPC server error", zap.Error(serveErr))
		}
	}()

	// Start WebSocket server
	httpServer := server.NewHTTPServer(cfg.Server.WebSocket, hub)
	go func() {
		logger.Info("starting WebSocket server", zap.String("address", cfg.Server.WebSocket.Address))
		if wsErr := httpServer.ListenAndServe(); wsErr != nil && !errors.Is(wsErr, http.ErrServerClosed) {
			logger.Error("WebSocket server error", zap.Error(wsErr))
		}
	}()

	grpcServer.SetServing(true)
	logger.Info("kingdom server initialized",
		zap.String("version", version),
		zap.String("grpc_address", cfg.Server.GRPC.Address),
		zap.String("websocket_address", cfg.Server.WebSocket.Address),
	)

	// Wait for termination signal
	sig := <-sigChan
	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	// Graceful shutdown
	logger.Info("shutting down gracefully...")
	grpcServer.SetServing(false)
	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("WebSocket server shutdown", zap.Error(err))
	}
	// Close all active matches
	hub.CloseAll()
	for _, id := range engine.MatchIDs() {
		if err := engine.Close(shutdownCtx, id); err != nil {
			logger.Warn("failed to close match", zap.String("match_id", id), zap.Error(err))
		}
	}
	grpcServer.GracefulStop()

	logger.Info("kingdom server stopped")
}

func loadLibrary(ctx context.Context, cfg config.GameConfig, db *pgxpool.Pool, logger *zap.Logger) (*cards.Library, error) {
	var loader cards.Loader
	switch cfg.CardSource {
	case "database":
		loader = repository.NewCardRepository(db, logger.Named("cards"))
	default:
		loader = cards.NewCSVLoader(cfg.CardDataPath)
	}
	defs, err := loader.LoadCardDefinitions(ctx)
	if err != nil {
		return nil, err
	}
	lib := cards.NewLibrary()
	if err := lib.Register(defs...); err != nil {
		return nil, err
	}
	lib.Seal()
	logger.Info("card library loaded",
		zap.String("source", cfg.CardSource),
		zap.Int("cards", lib.Len()),
	)
	return lib, nil
}

// initLogger initializes the zap logger based on configuration
func initLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
