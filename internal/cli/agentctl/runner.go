// Package agentctl is the operator CLI for the question agent HTTP API.
package agentctl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

type Options struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
}

// requestError marks failures that happened after argument parsing, which
// exit with status 1 rather than the usage status 2.
type requestError struct {
	err error
}

func (e *requestError) Error() string { return e.err.Error() }
func (e *requestError) Unwrap() error { return e.err }

type runner struct {
	baseURL string
	apiKey  string
	timeout time.Duration
	asJSON  bool
	client  *http.Client
	stdout  io.Writer
	stderr  io.Writer
}

// Run executes one agentctl invocation and returns its exit code.
func Run(ctx context.Context, args []string, defaults Options) int {
	r := &runner{
		stdout: writerOr(defaults.Stdout),
		stderr: writerOr(defaults.Stderr),
		client: defaults.HTTPClient,
	}
	root := r.rootCommand(defaults)
	root.SetArgs(args)
	root.SetOut(r.stdout)
	root.SetErr(r.stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintln(r.stderr, err)
		var reqErr *requestError
		if errors.As(err, &reqErr) {
			return 1
		}
		_, _ = fmt.Fprintln(r.stderr, root.UsageString())
		return 2
	}
	return 0
}

func (r *runner) rootCommand(defaults Options) *cobra.Command {
	root := &cobra.Command{
		Use:           "agentctl",
		Short:         "Ask questions and inspect the question agent API",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().StringVar(&r.baseURL, "base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8000"), "agent API base URL")
	root.PersistentFlags().StringVar(&r.apiKey, "api-key", defaults.APIKey, "API key for authenticated requests")
	root.PersistentFlags().DurationVar(&r.timeout, "timeout", durationOr(defaults.Timeout, 90*time.Second), "HTTP timeout (e.g. 30s)")
	root.PersistentFlags().BoolVar(&r.asJSON, "json", false, "print the raw JSON response")

	root.AddCommand(&cobra.Command{
		Use:   "ask <question...>",
		Short: "Ask a question in Thai or English",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.ask(cmd.Context(), strings.Join(args, " "))
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "health",
		Short: "Show dependency health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return r.health(cmd.Context())
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "schema",
		Short: "Show the table schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return r.schema(cmd.Context())
		},
	})
	return root
}

func (r *runner) ask(ctx context.Context, question string) error {
	payload, err := json.Marshal(map[string]string{"question": question})
	if err != nil {
		return &requestError{err: err}
	}
	code, body, err := r.do(ctx, http.MethodPost, "/query", payload)
	if err != nil {
		return err
	}
	if r.asJSON {
		r.printJSON(body)
		return statusError(code, nil)
	}
	if code >= 400 {
		return statusError(code, body)
	}
	rendered, err := renderAnswer(body)
	if err != nil {
		return &requestError{err: err}
	}
	_, _ = fmt.Fprint(r.stdout, rendered)
	return nil
}

func (r *runner) health(ctx context.Context) error {
	code, body, err := r.do(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return err
	}
	if r.asJSON {
		r.printJSON(body)
		return statusError(code, nil)
	}
	rendered, renderErr := renderHealth(body)
	if renderErr != nil {
		return statusError(code, body)
	}
	_, _ = fmt.Fprint(r.stdout, rendered)
	return statusError(code, nil)
}

func (r *runner) schema(ctx context.Context) error {
	code, body, err := r.do(ctx, http.MethodGet, "/schema", nil)
	if err != nil {
		return err
	}
	if r.asJSON || code >= 400 {
		if code >= 400 {
			return statusError(code, body)
		}
		r.printJSON(body)
		return nil
	}
	rendered, err := renderSchema(body)
	if err != nil {
		return &requestError{err: err}
	}
	_, _ = fmt.Fprint(r.stdout, rendered)
	return nil
}

func (r *runner) do(ctx context.Context, method, path string, payload []byte) (int, []byte, error) {
	client := r.client
	if client == nil {
		client = &http.Client{Timeout: r.timeout}
	}
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(r.baseURL, "/")+path, reader)
	if err != nil {
		return 0, nil, &requestError{err: err}
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if key := strings.TrimSpace(r.apiKey); key != "" {
		req.Header.Set("X-API-Key", key)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, &requestError{err: fmt.Errorf("request failed: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, &requestError{err: fmt.Errorf("read response: %w", err)}
	}
	return resp.StatusCode, body, nil
}

func (r *runner) printJSON(body []byte) {
	if pretty, ok := prettyJSON(body); ok {
		_, _ = fmt.Fprintln(r.stdout, pretty)
		return
	}
	if len(body) > 0 {
		_, _ = fmt.Fprintln(r.stdout, string(body))
	}
}

// statusError returns nil for successful status codes. The body, when
// given, is summarised into the error message.
func statusError(code int, body []byte) error {
	if code < 400 {
		return nil
	}
	var failure struct {
		Reason string `json:"reason"`
		Detail string `json:"detail"`
		SQL    string `json:"sql"`
	}
	if len(body) > 0 && json.Unmarshal(body, &failure) == nil && failure.Reason != "" {
		message := fmt.Sprintf("http %d: %s: %s", code, failure.Reason, failure.Detail)
		if failure.SQL != "" {
			message += "\nattempted SQL: " + failure.SQL
		}
		return &requestError{err: errors.New(message)}
	}
	if trimmed := strings.TrimSpace(string(body)); trimmed != "" {
		return &requestError{err: fmt.Errorf("http %d: %s", code, trimmed)}
	}
	return &requestError{err: fmt.Errorf("http %d", code)}
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func writerOr(w io.Writer) io.Writer {
	if w == nil {
		return io.Discard
	}
	return w
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

func durationOr(value, fallback time.Duration) time.Duration {
	if value > 0 {
		return value
	}
	return fallback
}
