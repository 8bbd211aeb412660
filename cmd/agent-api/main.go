package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/NopparootSuree/AI-Agent/internal/agent"
	"github.com/NopparootSuree/AI-Agent/internal/api"
	"github.com/NopparootSuree/AI-Agent/internal/auth"
	"github.com/NopparootSuree/AI-Agent/internal/config"
	"github.com/NopparootSuree/AI-Agent/internal/database"
	"github.com/NopparootSuree/AI-Agent/internal/mcpserver"
	"github.com/NopparootSuree/AI-Agent/internal/nl2sql"
	"github.com/NopparootSuree/AI-Agent/internal/observability"
	"github.com/NopparootSuree/AI-Agent/internal/query/sqldb"
	"github.com/NopparootSuree/AI-Agent/internal/schema"
	"github.com/NopparootSuree/AI-Agent/internal/sqlguard"
)

var version = "dev"

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to read .env file", slog.Any("error", err))
	}

	cfg, err := config.LoadFromEnv("agent-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)

	desc, err := schema.Load(cfg.Schema.File)
	if err != nil {
		logger.Error("failed to load schema descriptor", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("opening database",
		slog.String("driver", cfg.Database.Driver),
		slog.String("dsn", config.MaskDSN(cfg.Database.DSN)),
	)
	db, err := database.Open(context.Background(), database.DBConfig{
		Driver:          cfg.Database.Driver,
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		logger.Error("failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	embedded := strings.EqualFold(cfg.Database.Driver, database.DriverDuckDB)
	engine := sqldb.NewEngine(db, sqldb.Config{
		MaxRows:      cfg.Query.MaxRows,
		QueryTimeout: cfg.Query.Timeout,
		ReadOnlyTx:   !embedded,
	})
	// DuckDB keeps tables in its own default schema, so drift checks there
	// match the table in any schema.
	driftNamespace := desc.Namespace()
	if embedded {
		driftNamespace = ""
	}

	completer, err := nl2sql.New(cfg.Model.Provider, nl2sql.ClientConfig{
		BaseURL:       cfg.Model.BaseURL,
		APIKey:        cfg.Model.APIKey,
		Model:         cfg.Model.Name,
		Timeout:       cfg.Model.Timeout,
		Deterministic: cfg.Model.Deterministic,
		Temperature:   cfg.Model.Temperature,
		Seed:          cfg.Model.Seed,
		RetryBackoff:  cfg.Model.RetryBackoff,
	})
	if err != nil {
		logger.Error("failed to initialize completion client", slog.Any("error", err))
		os.Exit(1)
	}

	service := &agent.Service{
		Schema:    desc,
		Completer: completer,
		Guard:     sqlguard.New(desc),
		Engine:    engine,
		Dialect:   cfg.Schema.Dialect,
		Logger:    logger,
	}

	deps := api.Dependencies{
		Logger: logger,
		Agent:  service,
		Schema: desc,
		HealthChecks: map[string]api.HealthCheck{
			"database": api.CheckPing(engine),
			"model":    api.CheckPing(completer),
			"schema":   api.CheckSchemaDrift(engine, driftNamespace, desc),
		},
		HealthTimeout: cfg.Health.Timeout,
	}
	if cfg.MCP.Enabled {
		deps.MCP = mcpserver.Handler(mcpserver.New(service, desc, version))
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		if validator.Len() == 0 {
			logger.Warn("auth is required but no static keys are configured; every protected request will be rejected")
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server",
			slog.String("addr", cfg.HTTP.Address),
			slog.String("table", desc.TableName()),
			slog.String("model_provider", completer.Provider()),
			slog.String("model", completer.Model()),
			slog.Bool("deterministic", cfg.Model.Deterministic),
			slog.Bool("mcp", cfg.MCP.Enabled),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}
