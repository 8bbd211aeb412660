package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/NopparootSuree/AI-Agent/internal/agent"
	"github.com/NopparootSuree/AI-Agent/internal/config"
	"github.com/NopparootSuree/AI-Agent/internal/failure"
	"github.com/NopparootSuree/AI-Agent/internal/observability"
	"github.com/NopparootSuree/AI-Agent/internal/schema"
)

// Asker answers one natural-language question.
type Asker interface {
	Ask(ctx context.Context, question string) (agent.Answer, error)
}

type Dependencies struct {
	Logger         *slog.Logger
	Agent          Asker
	Schema         *schema.Descriptor
	HealthChecks   map[string]HealthCheck
	HealthTimeout  time.Duration
	AuthMiddleware func(http.Handler) http.Handler
	MCP            http.Handler
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, _ *http.Request) {
		handleBanner(cfg, deps, w)
	})
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		handleHealth(cfg, deps, w, r)
	})
	mux.HandleFunc("GET /schema", func(w http.ResponseWriter, r *http.Request) {
		handleSchema(deps, w, r)
	})
	mux.Handle("GET /metrics", promhttp.Handler())

	protected := http.NewServeMux()
	protected.HandleFunc("POST /query", func(w http.ResponseWriter, r *http.Request) {
		handleQuery(deps, w, r)
	})
	mcpEnabled := cfg.MCP.Enabled && deps.MCP != nil
	if mcpEnabled {
		protected.Handle("/mcp", deps.MCP)
	}

	var protectedHandler http.Handler = protected
	if cfg.Auth.Required {
		if deps.AuthMiddleware == nil {
			if deps.Logger != nil {
				deps.Logger.Error("auth required but auth middleware missing")
			}
			protectedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeFailure(r.Context(), w, failure.New(failure.Internal, "auth middleware is required by configuration"))
			})
		} else {
			protectedHandler = deps.AuthMiddleware(protectedHandler)
		}
	}
	mux.Handle("POST /query", protectedHandler)
	if mcpEnabled {
		mux.Handle("/mcp", protectedHandler)
	}

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	middlewares = append(middlewares, observability.RecoverMiddleware(deps.Logger))
	return chain(mux, middlewares...)
}

func handleBanner(cfg config.Config, deps Dependencies, w http.ResponseWriter) {
	table := ""
	if deps.Schema != nil {
		table = deps.Schema.TableName()
	}
	endpoints := []string{"GET /health", "GET /schema", "POST /query", "GET /metrics"}
	if cfg.MCP.Enabled && deps.MCP != nil {
		endpoints = append(endpoints, "POST /mcp")
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"service":   cfg.Service.Name,
		"message":   "Ask questions about the " + table + " table in Thai or English",
		"table":     table,
		"endpoints": endpoints,
	})
}

func handleSchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Schema == nil {
		writeFailure(r.Context(), w, failure.New(failure.Internal, "schema is not configured"))
		return
	}
	writeJSON(w, http.StatusOK, deps.Schema)
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// StatusFor maps a failure reason to its HTTP status.
func StatusFor(reason failure.Reason) int {
	switch reason {
	case failure.EmptyQuestion, failure.InvalidRequest:
		return http.StatusBadRequest
	case failure.NoStatementFound, failure.MultipleStatements, failure.ForbiddenStatementKind,
		failure.UnauthorizedTable, failure.UnsupportedSyntax, failure.QueryExecutionError:
		return http.StatusUnprocessableEntity
	case failure.ModelUnavailable, failure.DatabaseUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeFailure(ctx context.Context, w http.ResponseWriter, err error) {
	reason := failure.ReasonOf(err)
	body := observability.ErrorBody{Reason: string(reason), Detail: "internal error"}
	var failed *failure.Error
	if errors.As(err, &failed) {
		if reason != failure.Internal {
			body.Detail = failed.Detail
		}
		body.SQL = failed.SQL
	}
	observability.WriteError(ctx, w, StatusFor(reason), body)
}
