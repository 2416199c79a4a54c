// Package tools synthesizes MCP tool descriptors from an OpenAPI document:
// one read-only tool per GET endpoint, with a closed input schema and a
// description enriched from the document's type definitions.
package tools

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/invopop/jsonschema"

	"github.com/bobmcallan/powerstore-mcp/internal/common"
	"github.com/bobmcallan/powerstore-mcp/internal/openapi"
)

// Tool is one generated tool descriptor plus the endpoint it calls.
type Tool struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	InputSchema *jsonschema.Schema `json:"inputSchema"`
	Method      string             `json:"method"`
	Path        string             `json:"path"`
	Resource    string             `json:"resource,omitempty"`
	Collection  bool               `json:"collection"`
}

// RawSchema returns the input schema as JSON for protocol registration.
func (t Tool) RawSchema() (json.RawMessage, error) {
	data, err := json.Marshal(t.InputSchema)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal input schema for %s: %w", t.Name, err)
	}
	return data, nil
}

// Catalog is the ordered set of generated tools and the name→path index.
// It is not modified after Generate returns and is safe for concurrent reads.
type Catalog struct {
	tools []Tool
	index map[string]int
}

// Tools returns the tools in document order.
func (c *Catalog) Tools() []Tool {
	out := make([]Tool, len(c.tools))
	copy(out, c.tools)
	return out
}

// Len returns the number of tools.
func (c *Catalog) Len() int { return len(c.tools) }

// Names returns the tool names in document order.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.tools))
	for i, t := range c.tools {
		names[i] = t.Name
	}
	return names
}

// Lookup returns the tool registered under name.
func (c *Catalog) Lookup(name string) (Tool, bool) {
	i, ok := c.index[name]
	if !ok {
		return Tool{}, false
	}
	return c.tools[i], true
}

// PathFor resolves a tool name back to its source endpoint path.
func (c *Catalog) PathFor(name string) (string, bool) {
	t, ok := c.Lookup(name)
	if !ok {
		return "", false
	}
	return t.Path, true
}

// Generate builds the catalog for doc. Endpoints without a GET operation are
// ignored; a malformed GET operation is logged and skipped. Calling Generate
// twice on the same document yields identical catalogs.
func Generate(doc *openapi.Document, logger *common.Logger) *Catalog {
	if logger == nil {
		logger = common.NewSilentLogger()
	}

	catalog := &Catalog{index: make(map[string]int)}
	names := newNameRegistry()

	for _, ep := range doc.Endpoints() {
		if !ep.HasMethod(http.MethodGet) {
			continue
		}

		tool, err := buildTool(doc, ep, names)
		if err != nil {
			logger.Warn().
				Str("method", http.MethodGet).
				Str("path", ep.Path).
				Err(err).
				Msg("tool generation skipped")
			continue
		}

		catalog.index[tool.Name] = len(catalog.tools)
		catalog.tools = append(catalog.tools, tool)
	}

	logger.Info().Int("tool_count", catalog.Len()).Str("methods", http.MethodGet).Msg("Generated MCP tools from OpenAPI spec")
	return catalog
}

func buildTool(doc *openapi.Document, ep openapi.Endpoint, names *nameRegistry) (Tool, error) {
	op, err := ep.Operation(doc, http.MethodGet)
	if err != nil {
		return Tool{}, err
	}

	name := op.OperationID
	if name == "" {
		name = generateToolName(ep.Path, http.MethodGet)
	}
	name = names.unique(name, ep.Path)

	base := op.Summary
	if base == "" {
		base = op.Description
	}
	if base == "" {
		base = http.MethodGet + " " + ep.Path
	}

	collection := isCollection(ep.Path)
	resource := resourceName(ep.Path)

	return Tool{
		Name:        name,
		Description: describe(doc, base, resource, collection),
		InputSchema: inputSchema(op, collection),
		Method:      http.MethodGet,
		Path:        ep.Path,
		Resource:    resource,
		Collection:  collection,
	}, nil
}
