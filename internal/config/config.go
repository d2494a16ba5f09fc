// Package config loads engine settings: defaults, then an optional TOML
// file, then environment variables.
package config

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"

	"github.com/KirkDiggler/rpg-skill-engine/internal/errors"
)

// Config is the full process configuration
type Config struct {
	Server      ServerConfig      `toml:"server"`
	Redis       RedisConfig       `toml:"redis"`
	Backup      BackupConfig      `toml:"backup"`
	Catalog     CatalogConfig     `toml:"catalog"`
	Permissions PermissionsConfig `toml:"permissions"`
	Engine      EngineConfig      `toml:"engine"`
	Telemetry   TelemetryConfig   `toml:"telemetry"`
	Logging     LoggingConfig     `toml:"logging"`
}

// ServerConfig configures the gRPC listener
type ServerConfig struct {
	Port            int           `toml:"port" env:"SKILLS_PORT"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout" env:"SKILLS_SHUTDOWN_TIMEOUT"`
}

// RedisConfig configures the primary session store. An empty Addr and no
// sentinels keeps sessions in memory.
type RedisConfig struct {
	Addr       string        `toml:"addr" env:"REDIS_ADDR"`
	Password   string        `toml:"password" env:"REDIS_PASSWORD"`
	DB         int           `toml:"db" env:"REDIS_DB"`
	TTL        time.Duration `toml:"ttl" env:"REDIS_TTL"`
	MasterName string        `toml:"master_name" env:"REDIS_MASTER_NAME"`
	Sentinels  []string      `toml:"sentinels" env:"REDIS_SENTINELS" envSeparator:","`
	UseTLS     bool          `toml:"use_tls" env:"REDIS_USE_TLS"`
}

// Enabled reports whether a redis store is configured
func (r RedisConfig) Enabled() bool {
	return r.Addr != "" || len(r.Sentinels) > 0
}

// BackupConfig configures the SQLite backup store. Empty disables it.
type BackupConfig struct {
	SQLitePath string `toml:"sqlite_path" env:"SKILLS_BACKUP_PATH"`
}

// CatalogConfig points at a skill catalog file. Empty uses the built in heroes.
type CatalogConfig struct {
	Path string `toml:"path" env:"SKILLS_CATALOG_PATH"`
}

// PermissionsConfig points at the permission rules file
type PermissionsConfig struct {
	Path string `toml:"path" env:"SKILLS_PERMISSIONS_PATH"`
}

// EngineConfig tunes the round controller
type EngineConfig struct {
	OneSkillPerOwner bool          `toml:"one_skill_per_owner" env:"SKILLS_ONE_SKILL_PER_OWNER"`
	AutosaveInterval time.Duration `toml:"autosave_interval" env:"SKILLS_AUTOSAVE_INTERVAL"`
	ScriptTimeout    time.Duration `toml:"script_timeout" env:"SKILLS_SCRIPT_TIMEOUT"`
	// DeterministicIDs uses sequential ids instead of UUIDs
	DeterministicIDs bool `toml:"deterministic_ids" env:"SKILLS_DETERMINISTIC_IDS"`
}

// TelemetryConfig configures tracing export. Empty endpoint disables it.
type TelemetryConfig struct {
	ServiceName  string `toml:"service_name" env:"OTEL_SERVICE_NAME"`
	OTLPEndpoint string `toml:"otlp_endpoint" env:"OTEL_EXPORTER_OTLP_TRACES_ENDPOINT"`
}

// LoggingConfig selects log level and encoding
type LoggingConfig struct {
	Level  string `toml:"level" env:"LOG_LEVEL"`
	Format string `toml:"format" env:"LOG_FORMAT"` // "json" or "console"
}

// Defaults returns the configuration used when nothing overrides it
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            50051,
			ShutdownTimeout: 30 * time.Second,
		},
		Redis: RedisConfig{
			TTL: 24 * time.Hour,
		},
		Engine: EngineConfig{
			OneSkillPerOwner: true,
			AutosaveInterval: 30 * time.Second,
			ScriptTimeout:    50 * time.Millisecond,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "rpg-skill-engine",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads the TOML file at path over the defaults, applies environment
// overrides and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read config %s", path)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, errors.InvalidArgumentf("failed to parse config %s: %v", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, errors.InvalidArgumentf("failed to parse environment: %v", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	return cfg, nil
}

// Validate checks ranges and enumerations
func (c *Config) Validate() error {
	vb := errors.NewValidationBuilder()

	errors.ValidateRange("server.port", c.Server.Port, 1, 65535, vb)
	errors.ValidateNonNegative("server.shutdown_timeout", int(c.Server.ShutdownTimeout), vb)
	errors.ValidateNonNegative("redis.db", c.Redis.DB, vb)
	errors.ValidateNonNegative("redis.ttl", int(c.Redis.TTL), vb)
	if c.Redis.MasterName != "" && len(c.Redis.Sentinels) == 0 {
		vb.Field("redis.sentinels", "required when master_name is set")
	}
	errors.ValidateNonNegative("engine.autosave_interval", int(c.Engine.AutosaveInterval), vb)
	errors.ValidateNonNegative("engine.script_timeout", int(c.Engine.ScriptTimeout), vb)
	errors.ValidateEnum("logging.level", strings.ToLower(c.Logging.Level), []string{"debug", "info", "warn", "error"}, vb)
	errors.ValidateEnum("logging.format", strings.ToLower(c.Logging.Format), []string{"json", "console"}, vb)

	return vb.Build()
}

// SlogLevel maps the configured level onto slog
func (l LoggingConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
