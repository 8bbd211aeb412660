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

// OpenAIClient talks to OpenAI-compatible chat servers such as llama.cpp,
// vLLM or LM Studio running next to the service.
type OpenAIClient struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	seed        *int
	policy      retryPolicy
	client      *http.Client
}

func NewOpenAIClient(cfg ClientConfig) (*OpenAIClient, error) {
	baseURL := trimBaseURL(cfg.BaseURL)
	if baseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		return nil, fmt.Errorf("model is required")
	}
	temperature, seed := cfg.samplingOptions()
	return &OpenAIClient{
		baseURL:     baseURL,
		apiKey:      strings.TrimSpace(cfg.APIKey),
		model:       model,
		temperature: temperature,
		seed:        seed,
		policy:      cfg.policy(),
		client:      cfg.httpClient(),
	}, nil
}

func (c *OpenAIClient) Provider() string { return ProviderOpenAI }
func (c *OpenAIClient) Model() string    { return c.model }

func (c *OpenAIClient) Complete(ctx context.Context, prompt Prompt) (Completion, error) {
	body, err := json.Marshal(buildChatPayload(c.model, c.temperature, c.seed, prompt))
	if err != nil {
		return Completion{}, failure.Wrap(failure.ModelUnavailable, err, "encode chat request")
	}

	text, attempts, err := completeWithRetry(ctx, c.policy, func(ctx context.Context) (string, error) {
		return c.chat(ctx, body)
	})
	if err != nil {
		return Completion{Provider: ProviderOpenAI, Model: c.model, Attempts: attempts}, err
	}
	return Completion{Text: text, Provider: ProviderOpenAI, Model: c.model, Attempts: attempts}, nil
}

func (c *OpenAIClient) chat(ctx context.Context, body []byte) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", transport(fmt.Errorf("request chat completion: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	rawRespBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", transport(fmt.Errorf("read chat response body: %w", err))
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("chat completion failed status=%d body=%s", resp.StatusCode, truncateBody(rawRespBody))
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(rawRespBody, &parsed); err != nil {
		return "", fmt.Errorf("decode chat completion response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("empty chat completion choices")
	}
	content := parsed.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("model returned empty text")
	}
	return content, nil
}

// Ping lists models, which every OpenAI-compatible server exposes.
func (c *OpenAIClient) Ping(ctx context.Context) error {
	return ping(ctx, c.client, c.baseURL+"/v1/models", c.apiKey)
}

func buildChatPayload(model string, temperature float64, seed *int, prompt Prompt) map[string]any {
	payload := map[string]any{
		"model": model,
		"messages": []map[string]string{
			{"role": "system", "content": prompt.System},
			{"role": "user", "content": prompt.User},
		},
		"temperature": temperature,
	}
	if seed != nil {
		payload["seed"] = *seed
	}
	return payload
}
