package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MikeSquared-Agency/herald/internal/session"
	"github.com/MikeSquared-Agency/herald/internal/store"
)

// AuditReader lists settled campaign launches.
type AuditReader interface {
	ListLaunches(ctx context.Context, limit int) ([]store.LaunchRecord, error)
}

type Server struct {
	router   *chi.Mux
	sessions *session.Registry
	audit    AuditReader
	logger   *slog.Logger
	http     *http.Server
}

// NewServer builds the HTTP surface. audit may be nil when no database is configured.
func NewServer(port int, apiToken string, sessions *session.Registry, audit AuditReader, logger *slog.Logger) *Server {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router:   router,
		sessions: sessions,
		audit:    audit,
		logger:   logger,
		http: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}

	router.Get("/health", s.health)

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(BearerAuthMiddleware(apiToken))

		r.Post("/sessions", s.createSession)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Delete("/", s.closeSession)
			r.Post("/messages", s.postMessage)
			r.Get("/messages", s.listMessages)
			r.Post("/messages/{messageID}/launch", s.launchCampaign)
			r.Get("/launches", s.listLaunching)
		})
		r.Get("/campaigns", s.listCampaigns)
	})

	return s
}

func (s *Server) Handler() http.Handler { return s.router }

// Start serves until Shutdown. It returns nil once the server is shut down,
// including when Shutdown ran first.
func (s *Server) Start() error {
	s.logger.Info("API server starting", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"agent":    "herald",
		"sessions": len(s.sessions.IDs()),
		"audit":    s.audit != nil,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
