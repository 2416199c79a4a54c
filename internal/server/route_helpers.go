package server

import "net/http"

// MethodRouter maps HTTP methods to handlers.
type MethodRouter map[string]http.Handler

// RouteByMethod routes requests based on HTTP method.
func RouteByMethod(routes MethodRouter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		handler, ok := routes[r.Method]
		if !ok {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		handler.ServeHTTP(w, r)
	}
}
