package server

import "net/http"

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// MCP streamable HTTP endpoint (JSON-RPC)
	if s.app.MCPHandler != nil {
		mux.Handle("/mcp", s.app.MCPHandler)

		// SSE transport for clients that do not speak streamable HTTP
		mux.Handle("/sse", RouteByMethod(MethodRouter{
			http.MethodGet: s.app.MCPHandler.SSEHandler(),
		}))
		mux.Handle("/message", RouteByMethod(MethodRouter{
			http.MethodPost: s.app.MCPHandler.MessageHandler(),
		}))
	}

	mux.HandleFunc("/health", s.app.HealthHandler.ServeHTTP)
	mux.HandleFunc("/api/health", s.app.HealthHandler.ServeHTTP)
	mux.HandleFunc("/api/version", s.app.VersionHandler.ServeHTTP)
	mux.HandleFunc("/api/tools", s.app.ToolsHandler.ServeHTTP)

	if s.app.Metrics != nil {
		mux.Handle("/metrics", s.app.Metrics.Handler())
	}

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.handleNotFound)

	return mux
}

// handleNotFound returns a JSON 404 for unmatched API routes.
func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	w.Write([]byte(`{"error":"Not Found","message":"The requested endpoint does not exist"}`))
}
