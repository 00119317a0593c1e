package server

import (
	"log/slog"
	"net/http"
)

// Config contains server configuration options.
type Config struct {
	// AllowedOrigins is the list of allowed CORS origins.
	AllowedOrigins []string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		AllowedOrigins: []string{"*"},
	}
}

// NewRouter creates a new HTTP router with all routes configured.
// It uses Go 1.22+ ServeMux with method-based routing.
func NewRouter(h *Handlers, logger *slog.Logger, cfg Config) http.Handler {
	mux := http.NewServeMux()

	// Register routes with method-based patterns (Go 1.22+)
	mux.HandleFunc("GET /health", h.Health)

	mux.HandleFunc("GET /credential", h.GetCredential)
	mux.HandleFunc("POST /credential", h.SelectCredential)

	mux.HandleFunc("POST /sessions", h.CreateSession)
	mux.HandleFunc("GET /sessions", h.ListSessions)
	mux.HandleFunc("GET /sessions/{id}", h.GetSession)
	mux.HandleFunc("DELETE /sessions/{id}", h.DeleteSession)
	mux.HandleFunc("POST /sessions/{id}/image", h.CreateImage)
	mux.HandleFunc("GET /sessions/{id}/image", h.GetImage)
	mux.HandleFunc("POST /sessions/{id}/animation", h.CreateAnimation)
	mux.HandleFunc("GET /sessions/{id}/video", h.GetVideo)
	mux.HandleFunc("POST /sessions/{id}/cancel", h.CancelGeneration)
	mux.HandleFunc("POST /sessions/{id}/publish", h.Publish)
	mux.HandleFunc("GET /sessions/{id}/events", h.Events)

	// Apply middleware chain
	chain := ChainMiddleware(
		RecoveryMiddleware(logger),
		LoggingMiddleware(logger),
		CORSMiddleware(cfg.AllowedOrigins),
	)

	return chain(mux)
}
