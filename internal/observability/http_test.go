package observability

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestTraceMiddlewarePreservesIncomingTraceID(t *testing.T) {
	h := TraceMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := TraceIDFromContext(r.Context()); got != "trace-1" {
			t.Fatalf("TraceIDFromContext() = %q", got)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(traceHeader, "trace-1")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if got := rr.Header().Get(traceHeader); got != "trace-1" {
		t.Fatalf("trace header = %q", got)
	}
}

func TestTraceMiddlewareGeneratesTraceID(t *testing.T) {
	h := TraceMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if TraceIDFromContext(r.Context()) == "" {
			t.Fatal("expected generated trace id")
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rr.Header().Get(traceHeader) == "" {
		t.Fatal("expected X-Trace-ID header")
	}
}

func TestTraceIDContextHelpers(t *testing.T) {
	ctx := ContextWithTraceID(context.Background(), "abc123")
	if got := TraceIDFromContext(ctx); got != "abc123" {
		t.Fatalf("TraceIDFromContext() = %q", got)
	}
}

func TestLoggingMiddlewareDoesNotPanic(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	h := LoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))
}

func TestTraceMiddlewareGeneratesUUID(t *testing.T) {
	rr := httptest.NewRecorder()
	TraceMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).
		ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	if _, err := uuid.Parse(rr.Header().Get(traceHeader)); err != nil {
		t.Fatalf("trace id %q is not a uuid: %v", rr.Header().Get(traceHeader), err)
	}
}

func TestRecoverMiddlewareWritesInternalError(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	h := TraceMiddleware(RecoverMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})))

	req := httptest.NewRequest(http.MethodPost, "/query", nil)
	req.Header.Set(traceHeader, "trace-9")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["reason"] != "Internal" || body["trace_id"] != "trace-9" {
		t.Fatalf("body = %#v", body)
	}
	if strings.Contains(rr.Body.String(), "boom") {
		t.Fatalf("panic value leaked into response: %s", rr.Body.String())
	}
}

func TestWriteErrorFillsStatusAndTrace(t *testing.T) {
	rr := httptest.NewRecorder()
	ctx := ContextWithTraceID(context.Background(), "trace-3")
	WriteError(ctx, rr, http.StatusUnprocessableEntity, ErrorBody{
		Status: "ignored",
		Reason: "UnauthorizedTable",
		Detail: "table secrets is not permitted",
		SQL:    "SELECT * FROM secrets",
	})

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", rr.Code)
	}
	if got := rr.Header().Get("Content-Type"); got != "application/json" {
		t.Fatalf("Content-Type = %q", got)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "error" || body["trace_id"] != "trace-3" || body["sql"] != "SELECT * FROM secrets" {
		t.Fatalf("body = %#v", body)
	}
}

func TestPipelineObserversAcceptValues(t *testing.T) {
	ObserveQuestion("ok", 120*time.Millisecond)
	ObserveQuestion("ForbiddenStatementKind", 80*time.Millisecond)
	ObserveModelCall(2, time.Second)
	ObserveQueryRows(500, true)
	ObserveAuthFailure("unknown_key")
}
