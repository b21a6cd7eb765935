// Package config loads server configuration from a YAML file, a .env file
// and KINGDOM_ environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. KINGDOM_DATABASE_URL.
const EnvPrefix = "KINGDOM"

// Config is the root configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Database DatabaseConfig `mapstructure:"database"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Game     GameConfig     `mapstructure:"game"`
}

// ServerConfig holds listener settings.
type ServerConfig struct {
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	GRPC      GRPCConfig      `mapstructure:"grpc"`
}

// WebSocketConfig configures the player-facing WebSocket listener.
type WebSocketConfig struct {
	Address        string        `mapstructure:"address"`
	Path           string        `mapstructure:"path"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	PongTimeout    time.Duration `mapstructure:"pong_timeout"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

// GRPCConfig configures the health-check listener.
type GRPCConfig struct {
	Address              string `mapstructure:"address"`
	MaxConcurrentStreams int    `mapstructure:"max_concurrent_streams"`
}

// LoggingConfig selects the zap level and encoding.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DatabaseConfig configures the PostgreSQL pool. An empty URL disables
// persistence.
type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// Enabled reports whether a database is configured.
func (c DatabaseConfig) Enabled() bool {
	return c.URL != ""
}

// AuthConfig holds the shared secret used to verify player tokens.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

// GameConfig tunes the rules engine.
type GameConfig struct {
	// CardSource is "csv" or "database".
	CardSource        string        `mapstructure:"card_source"`
	CardDataPath      string        `mapstructure:"card_data_path"`
	PromptTimeout     time.Duration `mapstructure:"prompt_timeout"`
	DisconnectGrace   time.Duration `mapstructure:"disconnect_grace"`
	DefaultExpansions []string      `mapstructure:"default_expansions"`
	MaxEffectDepth    int           `mapstructure:"max_effect_depth"`
	ReplayDir         string        `mapstructure:"replay_dir"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.websocket.address", ":8080")
	v.SetDefault("server.websocket.path", "/ws")
	v.SetDefault("server.websocket.max_message_size", 8192)
	v.SetDefault("server.websocket.write_timeout", 10*time.Second)
	v.SetDefault("server.websocket.pong_timeout", 60*time.Second)
	v.SetDefault("server.websocket.allowed_origins", []string{})
	v.SetDefault("server.grpc.address", ":17171")
	v.SetDefault("server.grpc.max_concurrent_streams", 100)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 1)
	v.SetDefault("database.max_conn_lifetime", time.Hour)
	v.SetDefault("database.max_conn_idle_time", 30*time.Minute)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "kingdom-server")

	v.SetDefault("game.card_source", "csv")
	v.SetDefault("game.card_data_path", "data/cards.csv")
	v.SetDefault("game.prompt_timeout", 60*time.Second)
	v.SetDefault("game.disconnect_grace", 2*time.Minute)
	v.SetDefault("game.default_expansions", []string{"alchemy", "prosperity", "seaside"})
	v.SetDefault("game.max_effect_depth", 32)
	v.SetDefault("game.replay_dir", "replays")
}

// Load reads the configuration file at path. A missing file is not an error;
// defaults and environment overrides still apply. A .env file in the working
// directory is loaded first when present.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that have no safe fallback.
func (c *Config) Validate() error {
	switch c.Game.CardSource {
	case "csv":
		if c.Game.CardDataPath == "" {
			return fmt.Errorf("game.card_data_path is required when game.card_source is csv")
		}
	case "database":
		if !c.Database.Enabled() {
			return fmt.Errorf("database.url is required when game.card_source is database")
		}
	default:
		return fmt.Errorf("unknown game.card_source %q", c.Game.CardSource)
	}
	if c.Game.PromptTimeout < 0 {
		return fmt.Errorf("game.prompt_timeout must not be negative")
	}
	if c.Game.DisconnectGrace < 0 {
		return fmt.Errorf("game.disconnect_grace must not be negative")
	}
	if c.Game.MaxEffectDepth <= 0 {
		return fmt.Errorf("game.max_effect_depth must be positive")
	}
	return nil
}
