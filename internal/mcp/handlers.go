package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// errorResult creates an MCP error result.
func errorResult(message string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(message),
		},
		IsError: true,
	}
}

// textResult renders a decoded response body as a single indented JSON text
// block. RawText bodies are emitted as they arrived.
func textResult(body any) (*mcp.CallToolResult, error) {
	if raw, ok := body.(RawText); ok {
		return &mcp.CallToolResult{Content: []mcp.Content{mcp.NewTextContent(string(raw))}}, nil
	}
	data, err := json.MarshalIndent(body, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return &mcp.CallToolResult{Content: []mcp.Content{mcp.NewTextContent(string(data))}}, nil
}

// ToolHandler routes an MCP tool call for name through the dispatcher.
// Every failure is returned as an error result, never as a protocol error.
func ToolHandler(d *Dispatcher, name string) server.ToolHandlerFunc {
	return func(ctx context.Context, r mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if CorrelationID(ctx) == "" {
			ctx = WithCorrelationID(ctx, uuid.New().String())
		}

		result, err := d.Execute(ctx, name, r.GetArguments())
		if err != nil {
			return errorResult(fmt.Sprintf("Error: %v", err)), nil
		}

		out, err := textResult(result)
		if err != nil {
			return errorResult(fmt.Sprintf("Error: %v", err)), nil
		}
		return out, nil
	}
}
