package mcp

import (
	"context"
	"io"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/bobmcallan/powerstore-mcp/internal/common"
	"github.com/bobmcallan/powerstore-mcp/internal/tools"
)

// Handler is the HTTP handler for the MCP endpoint.
// It wraps mcp-go's StreamableHTTPServer and delegates to it, and also
// exposes the SSE transport and the stdio loop over the same MCP server.
type Handler struct {
	mcp        *mcpserver.MCPServer
	streamable *mcpserver.StreamableHTTPServer
	sse        *mcpserver.SSEServer
	dispatcher *Dispatcher
	logger     *common.Logger
}

// NewHandler creates the MCP server, registers one tool per catalog entry
// and prepares the HTTP transports.
func NewHandler(name, version string, d *Dispatcher, logger *common.Logger) (*Handler, error) {
	mcpSrv := mcpserver.NewMCPServer(
		name,
		version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithRecovery(),
	)

	toolCount, err := RegisterTools(mcpSrv, d)
	if err != nil {
		return nil, err
	}

	streamable := mcpserver.NewStreamableHTTPServer(mcpSrv,
		mcpserver.WithStateLess(true),
		mcpserver.WithHTTPContextFunc(propagateCorrelationID),
	)
	sse := mcpserver.NewSSEServer(mcpSrv,
		mcpserver.WithSSEEndpoint("/sse"),
		mcpserver.WithMessageEndpoint("/message"),
		mcpserver.WithKeepAlive(true),
		mcpserver.WithKeepAliveInterval(30*time.Second),
		mcpserver.WithSSEContextFunc(propagateCorrelationID),
	)

	logger.Info().
		Int("tools", toolCount).
		Str("server", name).
		Str("version", version).
		Msg("MCP handler initialized")

	return &Handler{
		mcp:        mcpSrv,
		streamable: streamable,
		sse:        sse,
		dispatcher: d,
		logger:     logger,
	}, nil
}

// propagateCorrelationID copies the request's correlation header into the
// tool-call context.
func propagateCorrelationID(ctx context.Context, r *http.Request) context.Context {
	if CorrelationID(ctx) != "" {
		return ctx
	}
	if id := r.Header.Get("X-Correlation-ID"); id != "" {
		return WithCorrelationID(ctx, id)
	}
	if id := r.Header.Get("X-Request-ID"); id != "" {
		return WithCorrelationID(ctx, id)
	}
	return ctx
}

// Catalog returns a copy of the generated tools.
func (h *Handler) Catalog() []tools.Tool {
	return h.dispatcher.Catalog().Tools()
}

// MCPServer returns the underlying MCP server.
func (h *Handler) MCPServer() *mcpserver.MCPServer {
	return h.mcp
}

// ServeHTTP delegates to the stateless streamable HTTP transport.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.streamable.ServeHTTP(w, r)
}

// SSEHandler serves the SSE event stream.
func (h *Handler) SSEHandler() http.Handler {
	return h.sse.SSEHandler()
}

// MessageHandler receives JSON-RPC messages for SSE sessions.
func (h *Handler) MessageHandler() http.Handler {
	return h.sse.MessageHandler()
}

// ServeStdio runs the stdio transport until ctx is done or in is closed.
func (h *Handler) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	h.logger.Info().Int("tools", h.dispatcher.Catalog().Len()).Msg("Serving MCP over stdio")
	return mcpserver.NewStdioServer(h.mcp).Listen(ctx, in, out)
}
