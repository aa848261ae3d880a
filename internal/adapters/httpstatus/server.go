// Package httpstatus expone liveness y contadores del motor por HTTP.
package httpstatus

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/jose-valero/slashkit/internal/app/dispatch"
	"github.com/jose-valero/slashkit/internal/app/session"
	"github.com/jose-valero/slashkit/internal/app/worker"
)

// Snapshot es el body de /debug/engine.
type Snapshot struct {
	Sessions session.Stats           `json:"sessions"`
	Waiting  int                     `json:"waiting"`
	Pools    map[string]worker.Stats `json:"pools"`
	Recent   []dispatch.Record       `json:"recent"`
}

// Source arma un snapshot con hasta recent registros del historial.
type Source func(recent int) Snapshot

type Server struct {
	router chi.Router
	src    Source
	ready  func() bool
}

// New arma el server; ready puede ser nil (siempre listo).
func New(src Source, ready func() bool) *Server {
	s := &Server{router: chi.NewRouter(), src: src, ready: ready}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/debug/engine", s.handleEngine)
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if s.ready != nil && !s.ready() {
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleEngine(w http.ResponseWriter, r *http.Request) {
	n := 20
	if raw := r.URL.Query().Get("recent"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			http.Error(w, "bad recent", http.StatusBadRequest)
			return
		}
		n = v
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.src(n)); err != nil {
		log.Warn().Err(err).Msg("encode engine snapshot")
	}
}

// ListenAndServe sirve hasta que ctx se cancela.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	log.Info().Str("addr", addr).Msg("status server listening")

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
