// Package api serves the scripture engine over HTTP with a websocket feed
// of import progress.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/FocuswithJustin/JuniperScripture/internal/library"
	"github.com/FocuswithJustin/JuniperScripture/internal/logging"
)

// Server is the HTTP front end of a Library.
type Server struct {
	lib     *library.Library
	hub     *Hub
	cfg     Config
	started time.Time
}

// New creates a server. hub should be the one wired into the library's
// callbacks so clients see its events.
func New(lib *library.Library, hub *Hub, cfg Config) *Server {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUpload
	}
	return &Server{lib: lib, hub: hub, cfg: cfg, started: time.Now()}
}

// Handler returns the routes wrapped in the middleware chain, outermost
// first: request id and logging, CORS, security headers.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.setupRoutes()
	h = securityHeaders(h)
	h = corsMiddleware(s.cfg.AllowedOrigins, h)
	return logging.CombinedMiddleware(h)
}

func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /versions", s.handleVersions)
	mux.HandleFunc("DELETE /versions/{id}", s.handleUninstall)
	mux.HandleFunc("GET /books", s.handleBooks)
	mux.HandleFunc("POST /imports", s.handleImport)
	mux.HandleFunc("GET /imports/active", s.handleActiveImport)
	mux.HandleFunc("GET /reference", s.handleReference)
	mux.HandleFunc("GET /suggest", s.handleSuggest)
	mux.HandleFunc("GET /lookup", s.handleLookup)
	mux.HandleFunc("GET /slides", s.handleSlides)
	mux.HandleFunc("POST /output", s.handleOutput)
	mux.HandleFunc("POST /service", s.handleService)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.HandleFunc("/", s.handleNotFound)

	return mux
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if len(s.cfg.AllowedOrigins) > 0 {
		logging.SecurityEvent("cors_configured", "api", "mode", "restricted",
			"allowed_origins_count", len(s.cfg.AllowedOrigins))
	} else {
		logging.SecurityEvent("cors_configured", "api", "mode", "permissive")
	}
	logging.ServerStartup("rest_api", "http", s.cfg.Port, "websocket_path", "/ws")

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
