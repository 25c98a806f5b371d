package api

import "net/http"

func methods(allowed map[string]http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h, ok := allowed[r.Method]; ok {
			h(w, r)
			return
		}
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func RegisterRoutes(mux *http.ServeMux, h *Handler) http.Handler {
	// KV APIs
	mux.HandleFunc("/kv/", methods(map[string]http.HandlerFunc{
		http.MethodPut:    h.SetKey,
		http.MethodGet:    h.GetKey,
		http.MethodDelete: h.DeleteKey,
	}))
	mux.HandleFunc("/kv", methods(map[string]http.HandlerFunc{
		http.MethodDelete: h.Clear,
	}))

	// Admin APIs
	mux.HandleFunc("/admin/cleanup", methods(map[string]http.HandlerFunc{
		http.MethodPost: h.Cleanup,
	}))
	mux.HandleFunc("/admin/logs", h.GetLogs)

	// Observability APIs
	mux.HandleFunc("/metrics", h.GetMetrics)
	mux.HandleFunc("/health", h.GetHealth)

	// Middlewares
	return Chain(
		mux,
		RequestIDMiddleware,
		RecoveryMiddleware(h.logger, h.metrics),
		LoggingMiddleware(h.logger, h.metrics),
	)
}
