package nl2sql

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/NopparootSuree/AI-Agent/internal/failure"
)

const defaultOllamaModel = "qwen3:8b"

// OllamaClient talks to a local Ollama server through /api/generate.
type OllamaClient struct {
	baseURL     string
	model       string
	temperature float64
	seed        *int
	policy      retryPolicy
	client      *http.Client
}

func NewOllamaClient(cfg ClientConfig) (*OllamaClient, error) {
	baseURL := trimBaseURL(cfg.BaseURL)
	if baseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultOllamaModel
	}
	temperature, seed := cfg.samplingOptions()
	return &OllamaClient{
		baseURL:     baseURL,
		model:       model,
		temperature: temperature,
		seed:        seed,
		policy:      cfg.policy(),
		client:      cfg.httpClient(),
	}, nil
}

func (c *OllamaClient) Provider() string { return ProviderOllama }
func (c *OllamaClient) Model() string    { return c.model }

func (c *OllamaClient) Complete(ctx context.Context, prompt Prompt) (Completion, error) {
	options := map[string]any{"temperature": c.temperature}
	if c.seed != nil {
		options["seed"] = *c.seed
	}
	body, err := json.Marshal(map[string]any{
		"model":   c.model,
		"system":  prompt.System,
		"prompt":  prompt.User,
		"stream":  false,
		"options": options,
	})
	if err != nil {
		return Completion{}, failure.Wrap(failure.ModelUnavailable, err, "encode generate request")
	}

	text, attempts, err := completeWithRetry(ctx, c.policy, func(ctx context.Context) (string, error) {
		return c.generate(ctx, body)
	})
	if err != nil {
		return Completion{Provider: ProviderOllama, Model: c.model, Attempts: attempts}, err
	}
	return Completion{Text: text, Provider: ProviderOllama, Model: c.model, Attempts: attempts}, nil
}

func (c *OllamaClient) generate(ctx context.Context, body []byte) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build generate request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", transport(fmt.Errorf("request generate: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	rawRespBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", transport(fmt.Errorf("read generate response body: %w", err))
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("generate failed status=%d body=%s", resp.StatusCode, truncateBody(rawRespBody))
	}

	var parsed struct {
		Response string `json:"response"`
		Error    string `json:"error"`
	}
	if err := json.Unmarshal(rawRespBody, &parsed); err != nil {
		return "", fmt.Errorf("decode generate response: %w", err)
	}
	if parsed.Error != "" {
		return "", fmt.Errorf("generate returned error: %s", parsed.Error)
	}
	if strings.TrimSpace(parsed.Response) == "" {
		return "", fmt.Errorf("model returned empty text")
	}
	return parsed.Response, nil
}

// Ping checks that the Ollama server answers and lists models.
func (c *OllamaClient) Ping(ctx context.Context) error {
	return ping(ctx, c.client, c.baseURL+"/api/tags", "")
}

func ping(ctx context.Context, client *http.Client, url, apiKey string) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build ping request: %w", err)
	}
	if apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return failure.Wrap(failure.ModelUnavailable, err, "completion service unreachable")
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 400 {
		return failure.Newf(failure.ModelUnavailable, "completion service returned status %d", resp.StatusCode)
	}
	return nil
}

func truncateBody(body []byte) string {
	const limit = 512
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}
