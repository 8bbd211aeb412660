// Package nl2sql builds prompts for the language model and talks to the
// completion service that turns them into SQL text.
package nl2sql

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"

	defaultTimeout      = 30 * time.Second
	defaultRetryBackoff = 250 * time.Millisecond
	defaultSeed         = 42
)

// Completion is the raw text the model returned plus bookkeeping.
type Completion struct {
	Text     string `json:"text"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
	Attempts int    `json:"attempts"`
}

// Completer sends a prompt to a language model. Implementations report every
// failure as failure.ModelUnavailable.
type Completer interface {
	Complete(ctx context.Context, prompt Prompt) (Completion, error)
	Ping(ctx context.Context) error
	Provider() string
	Model() string
}

type ClientConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	// Timeout bounds a single attempt. A call with its retry never takes
	// longer than twice this value.
	Timeout       time.Duration
	Deterministic bool
	Temperature   float64
	Seed          int
	RetryBackoff  time.Duration
	HTTPClient    *http.Client
}

// samplingOptions resolves temperature and seed. Deterministic mode pins
// temperature to zero and always sends a seed.
func (c ClientConfig) samplingOptions() (float64, *int) {
	if c.Deterministic {
		seed := c.Seed
		if seed == 0 {
			seed = defaultSeed
		}
		return 0, &seed
	}
	return c.Temperature, nil
}

func (c ClientConfig) policy() retryPolicy {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	wait := c.RetryBackoff
	if wait < 0 {
		wait = 0
	}
	if c.RetryBackoff == 0 {
		wait = defaultRetryBackoff
	}
	return retryPolicy{timeout: timeout, backoff: wait}
}

func (c ClientConfig) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	// Attempts are bounded through their contexts.
	return &http.Client{}
}

func trimBaseURL(raw string) string {
	return strings.TrimRight(strings.TrimSpace(raw), "/")
}

// New builds the completer for the named provider.
func New(provider string, cfg ClientConfig) (Completer, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "", ProviderOllama:
		return NewOllamaClient(cfg)
	case ProviderOpenAI:
		return NewOpenAIClient(cfg)
	default:
		return nil, fmt.Errorf("unsupported model provider %q", provider)
	}
}
