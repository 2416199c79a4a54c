package handlers

import (
	"net/http"

	"github.com/bobmcallan/powerstore-mcp/internal/common"
	"github.com/bobmcallan/powerstore-mcp/internal/tools"
)

// CatalogSource provides the generated tool catalog.
type CatalogSource interface {
	Catalog() []tools.Tool
}

// ToolsHandler lists the generated MCP tools.
type ToolsHandler struct {
	logger *common.Logger
	source CatalogSource
}

// NewToolsHandler creates a new tools listing handler.
func NewToolsHandler(logger *common.Logger, source CatalogSource) *ToolsHandler {
	return &ToolsHandler{logger: logger, source: source}
}

type toolsResponse struct {
	Count int          `json:"count"`
	Tools []tools.Tool `json:"tools"`
}

// ServeHTTP handles GET /api/tools.
// An optional ?resource= filter restricts the listing to one resource.
func (h *ToolsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	all := h.source.Catalog()
	resource := r.URL.Query().Get("resource")

	listed := make([]tools.Tool, 0, len(all))
	for _, t := range all {
		if resource != "" && t.Resource != resource {
			continue
		}
		listed = append(listed, t)
	}

	if err := WriteJSON(w, http.StatusOK, toolsResponse{Count: len(listed), Tools: listed}); err != nil && h.logger != nil {
		h.logger.Warn().Err(err).Msg("Failed to write tools listing")
	}
}
