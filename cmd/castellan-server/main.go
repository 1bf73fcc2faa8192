package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/castellan-ai/castellan/internal/api"
	"github.com/castellan-ai/castellan/internal/audit"
	"github.com/castellan-ai/castellan/internal/auth"
	"github.com/castellan-ai/castellan/internal/config"
	"github.com/castellan-ai/castellan/internal/connector"
	"github.com/castellan-ai/castellan/internal/ids"
	"github.com/castellan-ai/castellan/internal/kernel"
	"github.com/castellan-ai/castellan/internal/memory"
	"github.com/castellan-ai/castellan/internal/policy"
	"github.com/castellan-ai/castellan/internal/policy/rules"
	"github.com/castellan-ai/castellan/internal/programs"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := mustBuildLogger(cfg.LogLevel)
	defer logger.Sync() //nolint:errcheck // best-effort flush

	logger.Info("starting castellan server",
		zap.String("http_port", cfg.HTTPPort),
		zap.Bool("confirmations_enabled", cfg.ConfirmationsEnabled),
		zap.Bool("determinism", cfg.DeterminismSeed != nil),
	)

	// ID provider: seeded only for replay testing.
	provider := ids.NewProvider()
	if cfg.DeterminismSeed != nil {
		provider = ids.NewSeededProvider(*cfg.DeterminismSeed, nil)
		logger.Warn("determinism mode enabled, identifiers are reproducible",
			zap.Int64("seed", *cfg.DeterminismSeed))
	}

	// Audit log: SQLite when a path is set, in-memory otherwise.
	var (
		auditLog  audit.Log
		retention audit.Retention
		closeLog  func() error
	)
	if cfg.AuditSQLitePath != "" {
		sqliteLog, err := audit.OpenSQLiteLog(cfg.AuditSQLitePath)
		if err != nil {
			logger.Fatal("failed to open audit db", zap.Error(err))
		}
		auditLog, retention, closeLog = sqliteLog, sqliteLog, sqliteLog.Close
		logger.Info("audit log on sqlite", zap.String("path", cfg.AuditSQLitePath))
	} else {
		memLog := audit.NewInMemoryLog()
		auditLog, retention, closeLog = memLog, memLog, func() error { return nil }
		logger.Info("audit log in memory, events are lost on restart")
	}
	defer closeLog() //nolint:errcheck

	// ClickHouse mirror is best effort; LogWriter keeps the analytics
	// stream visible in development.
	var mirror audit.EventWriter
	if cfg.ClickHouseDSN != "" {
		chMirror, err := audit.NewClickHouseMirror(cfg.ClickHouseDSN, logger)
		if err != nil {
			logger.Warn("clickhouse connection failed, falling back to log writer", zap.Error(err))
			mirror = audit.NewLogWriter(logger)
		} else {
			mirror = chMirror
			logger.Info("clickhouse mirror connected")
		}
	} else {
		mirror = audit.NewLogWriter(logger)
		logger.Info("no CLICKHOUSE_DSN set, mirroring audit events to logs")
	}
	defer mirror.Close()
	switch l := auditLog.(type) {
	case *audit.SQLiteLog:
		l.SetMirror(mirror)
	case *audit.InMemoryLog:
		l.SetMirror(mirror)
	}

	// Memory librarian: Postgres > SQLite > in-memory.
	var librarian memory.Librarian
	switch {
	case cfg.PostgresDSN != "":
		pg, err := memory.OpenPostgresLibrarian(context.Background(), cfg.PostgresDSN)
		if err != nil {
			logger.Fatal("failed to open postgres librarian", zap.Error(err))
		}
		defer pg.Close() //nolint:errcheck
		if err := pg.EnsureSchema(context.Background()); err != nil {
			logger.Fatal("failed to ensure memory schema", zap.Error(err))
		}
		librarian = pg
		logger.Info("memory librarian on postgres")
	case cfg.MemorySQLitePath != "":
		sl, err := memory.OpenSQLiteLibrarian(cfg.MemorySQLitePath)
		if err != nil {
			logger.Fatal("failed to open memory db", zap.Error(err))
		}
		defer sl.Close() //nolint:errcheck
		librarian = sl
		logger.Info("memory librarian on sqlite", zap.String("path", cfg.MemorySQLitePath))
	default:
		librarian = memory.NewInMemoryLibrarian()
		logger.Info("memory librarian in memory")
	}

	// Connectors: stubs until real bank/brokerage integrations land.
	registry := connector.NewRegistry()
	registry.Register(connector.NewMock("bank"))
	registry.Register(connector.NewMock("brokerage"))

	k := kernel.New(kernel.Config{
		Guardian:     policy.NewGuardian(rules.Default()),
		State:        defaultPolicyState(cfg),
		Librarian:    librarian,
		Log:          auditLog,
		Connectors:   registry,
		Programs:     programs.NewRegistry(),
		IDs:          provider,
		Logger:       logger,
		ContextLimit: cfg.ContextLimit,
	})

	deps := &api.Dependencies{
		Kernel:    k,
		Log:       auditLog,
		Retention: retention,
		Auth:      auth.New(cfg.APIKey, cfg.AdminKey),
		Logger:    logger,
	}
	httpServer := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      api.NewRouter(deps),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("http server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received signal, shutting down", zap.String("signal", sig.String()))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", zap.Error(err))
	}

	logger.Info("castellan server stopped")
}

// defaultPolicyState is the standard posture: an explicit allow-set with
// confirmation demanded for every irreversible tool, and argument schemas
// on the money-moving calls.
func defaultPolicyState(cfg config.Config) policy.State {
	return policy.State{
		Version: "v1",
		AllowedTools: map[string]policy.ToolGrant{
			"transfer_funds":  {Tier: policy.TierWrite, Irreversible: true, RequiresConfirm: true},
			"submit_trade":    {Tier: policy.TierWrite, RequiresConfirm: true},
			"fetch_balance":   {Tier: policy.TierRead},
			"fetch_positions": {Tier: policy.TierRead},
		},
		ConfirmationsEnabled: cfg.ConfirmationsEnabled,
		MediumAmount:         cfg.MediumAmount,
		HighAmount:           cfg.HighAmount,
		MaxPositionSize:      cfg.MaxPositionSize,
		ArgumentSchemas: map[string]any{
			"transfer_funds": map[string]any{
				"type":     "object",
				"required": []any{"amount", "reason"},
				"properties": map[string]any{
					"amount": map[string]any{"type": "number", "minimum": 0.0},
					"reason": map[string]any{"type": "string", "minLength": 1.0},
				},
			},
			"submit_trade": map[string]any{
				"type":     "object",
				"required": []any{"symbol", "quantity", "side", "reason"},
				"properties": map[string]any{
					"symbol":   map[string]any{"type": "string", "minLength": 1.0},
					"quantity": map[string]any{"type": "number", "minimum": 0.0},
					"side":     map[string]any{"enum": []any{"buy", "sell"}},
					"reason":   map[string]any{"type": "string", "minLength": 1.0},
				},
			},
		},
	}
}

func mustBuildLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	zapCfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := zapCfg.Build()
	if err != nil {
		panic("failed to build logger: " + err.Error())
	}
	return logger
}
