package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/sandevgo/parley/internal/config"
	"github.com/sandevgo/parley/internal/service/chat"
	"github.com/sandevgo/parley/pkg/log"
)

// Server exposes the session and turn API over HTTP. Turn endpoints have no
// write timeout because generation streams for as long as the model talks.
type Server struct {
	cfg          *config.AppConfig
	sessions     *chat.SessionService
	orchestrator *chat.Orchestrator
	httpSrv      *http.Server
}

func NewServer(sessions *chat.SessionService, orchestrator *chat.Orchestrator, cfg *config.AppConfig) *Server {
	s := &Server{
		cfg:          cfg,
		sessions:     sessions,
		orchestrator: orchestrator,
	}

	s.httpSrv = &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("POST /sessions", s.handleCreateSession)
	mux.HandleFunc("GET /sessions", s.handleListSessions)
	mux.HandleFunc("GET /sessions/{id}", s.handleGetSession)
	mux.HandleFunc("DELETE /sessions/{id}", s.handleDeleteSession)
	mux.HandleFunc("GET /sessions/{id}/messages", s.handleListMessages)

	// Posting a message runs one full turn of the pipeline.
	mux.HandleFunc("POST /sessions/{id}/messages", s.handleTurn)
	mux.HandleFunc("POST /sessions/{id}/messages/stream", s.handleTurnStream)

	return s.withLogging(mux)
}

func (s *Server) Start(ctx context.Context) error {
	logger := log.FromCtx(ctx)
	logger.Info().Str("addr", s.httpSrv.Addr).Msg("http server listening")

	// Hand request handlers a context carrying the process logger.
	s.httpSrv.BaseContext = func(net.Listener) context.Context { return ctx }

	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpSrv.Shutdown(shutdownCtx)
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.FromCtx(r.Context()).Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("took", time.Since(start)).
			Msg("http request")
	})
}
