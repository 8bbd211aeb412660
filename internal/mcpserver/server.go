// Package mcpserver exposes the question agent as Model Context Protocol
// tools so assistants can query the table directly.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/NopparootSuree/AI-Agent/internal/agent"
	"github.com/NopparootSuree/AI-Agent/internal/failure"
	"github.com/NopparootSuree/AI-Agent/internal/schema"
)

type Asker interface {
	Ask(ctx context.Context, question string) (agent.Answer, error)
}

type AskInput struct {
	Question string `json:"question" jsonschema:"Question about the table, in Thai or English"`
}

type Tools struct {
	Agent  Asker
	Schema *schema.Descriptor
}

// New creates an MCP server with the ask and describe tools registered.
// Tool names carry the lower-cased table name, e.g. ask_joborder.
func New(asker Asker, desc *schema.Descriptor, version string) *mcp.Server {
	tools := &Tools{Agent: asker, Schema: desc}
	table := strings.ToLower(desc.TableName())

	srv := mcp.NewServer(&mcp.Implementation{
		Name:    "agent-mcp",
		Version: version,
	}, nil)

	mcp.AddTool(srv, &mcp.Tool{
		Name: "ask_" + table,
		Description: fmt.Sprintf("Answer a question about the %s table. A single read-only SELECT is generated, "+
			"validated and executed; the SQL, an explanation and the rows are returned.", desc.TableName()),
	}, tools.Ask)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "describe_" + table + "_schema",
		Description: fmt.Sprintf("Describe the columns of the %s table with types and example values.", desc.TableName()),
	}, tools.DescribeSchema)

	return srv
}

// Handler serves srv over streamable HTTP.
func Handler(srv *mcp.Server) http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return srv
	}, nil)
}

func (t *Tools) Ask(ctx context.Context, _ *mcp.CallToolRequest, input AskInput) (*mcp.CallToolResult, any, error) {
	answer, err := t.Agent.Ask(ctx, input.Question)
	if err != nil {
		return toolFailure(err), nil, nil
	}
	return toolJSON(struct {
		Status string `json:"status"`
		agent.Answer
	}{Status: "ok", Answer: answer})
}

func (t *Tools) DescribeSchema(_ context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, any, error) {
	return toolJSON(t.Schema)
}

func toolJSON(v any) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return toolError(fmt.Sprintf("failed to marshal result: %v", err)), nil, nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil, nil
}

func toolError(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}
}

func toolFailure(err error) *mcp.CallToolResult {
	body := map[string]any{
		"status": "error",
		"reason": string(failure.ReasonOf(err)),
		"detail": "internal error",
	}
	var failed *failure.Error
	if errors.As(err, &failed) {
		if failed.Reason != failure.Internal {
			body["detail"] = failed.Detail
		}
		if failed.SQL != "" {
			body["sql"] = failed.SQL
		}
	}
	data, _ := json.MarshalIndent(body, "", "  ")
	return toolError(string(data))
}
