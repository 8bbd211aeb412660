package nl2sql

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/NopparootSuree/AI-Agent/internal/failure"
)

func testPrompt() Prompt {
	return Prompt{System: "system text", User: "user text"}
}

func TestOllamaCompleteSendsDeterministicRequest(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/generate" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"model":"qwen3:8b","response":"SQL:\nSELECT 1\n\nEXPLANATION:\nx","done":true}`))
	}))
	defer server.Close()

	client, err := NewOllamaClient(ClientConfig{BaseURL: server.URL + "/", Deterministic: true, Timeout: time.Second})
	if err != nil {
		t.Fatalf("NewOllamaClient() error = %v", err)
	}
	completion, err := client.Complete(context.Background(), testPrompt())
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if completion.Text != "SQL:\nSELECT 1\n\nEXPLANATION:\nx" {
		t.Fatalf("Text = %q", completion.Text)
	}
	if completion.Provider != ProviderOllama || completion.Model != "qwen3:8b" || completion.Attempts != 1 {
		t.Fatalf("completion = %#v", completion)
	}

	if got["model"] != "qwen3:8b" || got["system"] != "system text" || got["prompt"] != "user text" || got["stream"] != false {
		t.Fatalf("request body = %#v", got)
	}
	options, ok := got["options"].(map[string]any)
	if !ok {
		t.Fatalf("options missing: %#v", got)
	}
	if options["temperature"] != float64(0) || options["seed"] != float64(defaultSeed) {
		t.Fatalf("options = %#v", options)
	}
}

func TestOllamaCompleteSampledModeOmitsSeed(t *testing.T) {
	var got struct {
		Options map[string]any `json:"options"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"response":"SELECT 1"}`))
	}))
	defer server.Close()

	client, err := NewOllamaClient(ClientConfig{BaseURL: server.URL, Temperature: 0.7})
	if err != nil {
		t.Fatalf("NewOllamaClient() error = %v", err)
	}
	if _, err := client.Complete(context.Background(), testPrompt()); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if got.Options["temperature"] != 0.7 {
		t.Fatalf("temperature = %#v", got.Options["temperature"])
	}
	if _, ok := got.Options["seed"]; ok {
		t.Fatalf("seed sent in sampled mode: %#v", got.Options)
	}
}

func TestOllamaCompleteDoesNotRetryStatusErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":"model not found"}`, http.StatusNotFound)
	}))
	defer server.Close()

	client, err := NewOllamaClient(ClientConfig{BaseURL: server.URL, Timeout: time.Second, RetryBackoff: time.Millisecond})
	if err != nil {
		t.Fatalf("NewOllamaClient() error = %v", err)
	}
	completion, err := client.Complete(context.Background(), testPrompt())
	if !failure.Is(err, failure.ModelUnavailable) {
		t.Fatalf("Complete() error = %v, want ModelUnavailable", err)
	}
	if calls.Load() != 1 || completion.Attempts != 1 {
		t.Fatalf("calls = %d attempts = %d, want 1", calls.Load(), completion.Attempts)
	}
}

func TestOllamaCompleteRejectsEmptyResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"response":"   "}`))
	}))
	defer server.Close()

	client, err := NewOllamaClient(ClientConfig{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewOllamaClient() error = %v", err)
	}
	if _, err := client.Complete(context.Background(), testPrompt()); !failure.Is(err, failure.ModelUnavailable) {
		t.Fatalf("Complete() error = %v, want ModelUnavailable", err)
	}
}

func TestOllamaCompleteRetriesOnceAfterTimeout(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	t.Cleanup(server.Close)
	t.Cleanup(func() { close(release) })

	timeout := 150 * time.Millisecond
	client, err := NewOllamaClient(ClientConfig{BaseURL: server.URL, Timeout: timeout, RetryBackoff: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewOllamaClient() error = %v", err)
	}

	started := time.Now()
	completion, err := client.Complete(context.Background(), testPrompt())
	elapsed := time.Since(started)

	if !failure.Is(err, failure.ModelUnavailable) {
		t.Fatalf("Complete() error = %v, want ModelUnavailable", err)
	}
	if completion.Attempts != 2 || calls.Load() != 2 {
		t.Fatalf("attempts = %d calls = %d, want exactly one retry", completion.Attempts, calls.Load())
	}
	if elapsed > 2*timeout+100*time.Millisecond {
		t.Fatalf("elapsed = %s, want at most twice the per-call timeout", elapsed)
	}
}

func TestOllamaCompleteRetriesDroppedConnection(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			conn, _, err := w.(http.Hijacker).Hijack()
			if err != nil {
				t.Errorf("hijack: %v", err)
				return
			}
			_ = conn.Close()
			return
		}
		_, _ = w.Write([]byte(`{"response":"SELECT 1"}`))
	}))
	defer server.Close()

	client, err := NewOllamaClient(ClientConfig{BaseURL: server.URL, Timeout: time.Second, RetryBackoff: time.Millisecond})
	if err != nil {
		t.Fatalf("NewOllamaClient() error = %v", err)
	}
	completion, err := client.Complete(context.Background(), testPrompt())
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if completion.Attempts != 2 || completion.Text != "SELECT 1" {
		t.Fatalf("completion = %#v", completion)
	}
}

func TestOllamaCompleteStopsWhenCallerCancels(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		<-r.Context().Done()
	}))
	defer server.Close()

	client, err := NewOllamaClient(ClientConfig{BaseURL: server.URL, Timeout: time.Second, RetryBackoff: time.Millisecond})
	if err != nil {
		t.Fatalf("NewOllamaClient() error = %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := client.Complete(ctx, testPrompt()); !failure.Is(err, failure.ModelUnavailable) {
		t.Fatalf("Complete() error = %v, want ModelUnavailable", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}
}

func TestOllamaPing(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusOK)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.WriteHeader(int(status.Load()))
		_, _ = w.Write([]byte(`{"models":[]}`))
	}))
	defer server.Close()

	client, err := NewOllamaClient(ClientConfig{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewOllamaClient() error = %v", err)
	}
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	status.Store(http.StatusServiceUnavailable)
	if err := client.Ping(context.Background()); !failure.Is(err, failure.ModelUnavailable) {
		t.Fatalf("Ping() error = %v, want ModelUnavailable", err)
	}
}

func TestNewOllamaClientRequiresBaseURL(t *testing.T) {
	if _, err := NewOllamaClient(ClientConfig{}); err == nil {
		t.Fatalf("expected error")
	}
}
