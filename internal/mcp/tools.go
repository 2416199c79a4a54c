package mcp

import (
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/bobmcallan/powerstore-mcp/internal/tools"
)

// BuildMCPTool converts a generated tool into an mcp.Tool carrying its
// input schema verbatim.
func BuildMCPTool(t tools.Tool) (mcp.Tool, error) {
	schema, err := t.RawSchema()
	if err != nil {
		return mcp.Tool{}, err
	}
	return mcp.NewToolWithRawSchema(t.Name, t.Description, schema), nil
}

// RegisterTools registers every catalog tool on s, routed through d.
// It returns the number of tools registered.
func RegisterTools(s *server.MCPServer, d *Dispatcher) (int, error) {
	catalog := d.Catalog()
	for _, t := range catalog.Tools() {
		tool, err := BuildMCPTool(t)
		if err != nil {
			return 0, fmt.Errorf("failed to register tool %s: %w", t.Name, err)
		}
		s.AddTool(tool, ToolHandler(d, t.Name))
	}
	return catalog.Len(), nil
}
