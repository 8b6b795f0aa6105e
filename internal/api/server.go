// Package api provides the JSON HTTP API for the document and chat services.
//
// Endpoints:
//
//	GET  /health                         liveness probe
//	GET  /ready                          readiness probe (checks DB when pooled)
//
//	POST   /api/documents                create a document
//	GET    /api/documents                list all documents
//	GET    /api/documents/active         list active documents
//	GET    /api/documents/{id}           get one document
//	PUT    /api/documents/{id}           update a document (reindexes)
//	DELETE /api/documents/{id}           delete a document and its vectors
//	PUT    /api/documents/{id}/active    toggle retrieval eligibility
//	POST   /api/documents/{id}/reprocess reindex a document
//	GET    /api/documents/{id}/chunks    list a document's chunks
//
//	POST /api/chat                       send a message, get the reply
//	GET  /api/chat/history               list a session's messages (by token or id)
//	POST /api/chat/feedback              flag an assistant message helpful or not
//	POST /api/chat/end                   close a session
//
//	GET  /api/search                     raw similarity search
//
// File structure:
//   - server.go: server setup, routing, lifecycle
//   - middleware.go: recovery and request logging
//   - ratelimit.go: per-IP token bucket rate limiting
//   - documents.go: document CRUD and reindexing handlers
//   - chat.go: chat session handlers
//   - search.go: similarity search handler
//   - health.go: probe endpoints
//   - response.go: JSON helpers and error mapping
package api

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/net/netutil"

	"ragserver/internal/chat"
	"ragserver/internal/document"
	"ragserver/internal/retrieval"
)

const (
	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout bounds header reads to prevent Slowloris attacks.
	ReadHeaderTimeout = 10 * time.Second

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout = 30 * time.Second

	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout = 60 * time.Second

	// IdleTimeout applies to keep-alive connections.
	IdleTimeout = 120 * time.Second

	// DefaultMaxConnections caps concurrent connections accepted by Run.
	DefaultMaxConnections = 256
)

// ServerConfig contains dependencies for creating the API server.
type ServerConfig struct {
	Logger    *slog.Logger
	Documents *document.Service  // Required
	Retrieval *retrieval.Service // Required
	Chat      *chat.Orchestrator // Required
	Pool      *pgxpool.Pool      // Optional: nil skips DB ping in /ready

	// RateLimitRPS and RateLimitBurst configure the per-IP token bucket.
	// Zero values fall back to 50 rps / 100 burst.
	RateLimitRPS   int
	RateLimitBurst int

	// MaxConnections caps concurrent TCP connections (0 = DefaultMaxConnections).
	MaxConnections int
}

// Server is the JSON API HTTP server.
type Server struct {
	mux     *http.ServeMux
	logger  *slog.Logger
	maxConn int
}

// NewServer creates a new API server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Documents == nil {
		return nil, errors.New("document service is required")
	}
	if cfg.Retrieval == nil {
		return nil, errors.New("retrieval service is required")
	}
	if cfg.Chat == nil {
		return nil, errors.New("chat orchestrator is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	dh := &documentHandler{service: cfg.Documents, logger: logger}
	ch := &chatHandler{orchestrator: cfg.Chat, logger: logger}
	sh := &searchHandler{service: cfg.Retrieval, logger: logger}

	mux := http.NewServeMux()

	// Documents
	mux.HandleFunc("POST /api/documents", dh.create)
	mux.HandleFunc("GET /api/documents", dh.list)
	mux.HandleFunc("GET /api/documents/active", dh.listActive)
	mux.HandleFunc("GET /api/documents/{id}", dh.get)
	mux.HandleFunc("PUT /api/documents/{id}", dh.update)
	mux.HandleFunc("DELETE /api/documents/{id}", dh.delete)
	mux.HandleFunc("PUT /api/documents/{id}/active", dh.setActive)
	mux.HandleFunc("POST /api/documents/{id}/reprocess", dh.reprocess)
	mux.HandleFunc("GET /api/documents/{id}/chunks", dh.chunks)

	// Chat
	mux.HandleFunc("POST /api/chat", ch.send)
	mux.HandleFunc("GET /api/chat/history", ch.history)
	mux.HandleFunc("POST /api/chat/feedback", ch.feedback)
	mux.HandleFunc("POST /api/chat/end", ch.end)

	// Search
	mux.HandleFunc("GET /api/search", sh.search)

	rps := cfg.RateLimitRPS
	if rps <= 0 {
		rps = 50
	}
	burst := cfg.RateLimitBurst
	if burst <= 0 {
		burst = 100
	}
	rl := newRateLimiter(float64(rps), burst)

	// Middleware stack (outermost first): Recovery → Logging → RateLimit → Routes
	var handler http.Handler = mux
	handler = rateLimitMiddleware(rl, logger)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = recoveryMiddleware(logger)(handler)

	// Health probes bypass the middleware stack so monitoring traffic is
	// never rate limited.
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", health)
	topMux.Handle("GET /ready", readiness(cfg.Pool, logger))
	topMux.Handle("/", handler)

	maxConn := cfg.MaxConnections
	if maxConn <= 0 {
		maxConn = DefaultMaxConnections
	}

	return &Server{mux: topMux, logger: logger, maxConn: maxConn}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Run starts the HTTP server and blocks until the context is cancelled.
// The listener is capped at the configured connection limit.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	ln = netutil.LimitListener(ln, s.maxConn)

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", addr, "max_connections", s.maxConn)
		errCh <- srv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
