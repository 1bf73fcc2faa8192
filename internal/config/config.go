// Package config loads server configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the full server configuration. All knobs come from the
// environment; thresholds default to the standard policy posture.
type Config struct {
	HTTPPort string `env:"CASTELLAN_HTTP_PORT" envDefault:"8080"`
	LogLevel string `env:"CASTELLAN_LOG_LEVEL" envDefault:"info"`

	// APIKey protects the request and audit endpoints. Empty disables
	// auth (local development only). AdminKey protects retention expiry
	// and policy reload; empty disables those endpoints entirely.
	APIKey   string `env:"CASTELLAN_API_KEY"`
	AdminKey string `env:"CASTELLAN_ADMIN_KEY"`

	// AuditSQLitePath and MemorySQLitePath select durable embedded
	// storage. Empty falls back to in-memory stores.
	AuditSQLitePath  string `env:"CASTELLAN_AUDIT_SQLITE_PATH"`
	MemorySQLitePath string `env:"CASTELLAN_MEMORY_SQLITE_PATH"`

	// PostgresDSN, when set, replaces the SQLite memory librarian with
	// the shared Postgres deployment.
	PostgresDSN string `env:"POSTGRES_DSN"`

	// ClickHouseDSN, when set, mirrors audit events into ClickHouse for
	// analytics. The mirror is best effort and never the store of record.
	ClickHouseDSN string `env:"CLICKHOUSE_DSN"`

	// DeterminismSeed switches the ID provider to seeded mode for replay
	// testing. Nil means real randomness and wall-clock time.
	DeterminismSeed *int64 `env:"CASTELLAN_DETERMINISM_SEED"`

	// Policy thresholds.
	MediumAmount         float64 `env:"CASTELLAN_MEDIUM_AMOUNT" envDefault:"100"`
	HighAmount           float64 `env:"CASTELLAN_HIGH_AMOUNT" envDefault:"1000"`
	MaxPositionSize      float64 `env:"CASTELLAN_MAX_POSITION_SIZE" envDefault:"10000"`
	ConfirmationsEnabled bool    `env:"CASTELLAN_CONFIRMATIONS_ENABLED" envDefault:"true"`

	// ContextLimit caps memory items retrieved per request.
	ContextLimit int `env:"CASTELLAN_CONTEXT_LIMIT" envDefault:"20"`

	ShutdownTimeout time.Duration `env:"CASTELLAN_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Load parses the environment into a Config.
func Load() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if cfg.MediumAmount > cfg.HighAmount {
		return Config{}, fmt.Errorf("medium amount threshold %.2f exceeds high threshold %.2f", cfg.MediumAmount, cfg.HighAmount)
	}
	return cfg, nil
}
