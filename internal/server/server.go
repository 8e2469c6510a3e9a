package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ziadkadry99/cineforum/internal/audit"
	"github.com/ziadkadry99/cineforum/internal/chat"
	"github.com/ziadkadry99/cineforum/internal/content"
	"github.com/ziadkadry99/cineforum/internal/db"
	"github.com/ziadkadry99/cineforum/internal/events"
	"github.com/ziadkadry99/cineforum/internal/games"
	"github.com/ziadkadry99/cineforum/internal/gamification"
	"github.com/ziadkadry99/cineforum/internal/httpx"
	"github.com/ziadkadry99/cineforum/internal/leaderboard"
	"github.com/ziadkadry99/cineforum/internal/logging"
	"github.com/ziadkadry99/cineforum/internal/movies"
	"github.com/ziadkadry99/cineforum/internal/realtime"
	"github.com/ziadkadry99/cineforum/internal/similar"
	"github.com/ziadkadry99/cineforum/internal/users"
)

// Config holds server configuration.
type Config struct {
	Port           int
	AllowedOrigins []string // "*" allows every origin
}

// Services are the feature services whose routes the server mounts. Only
// Users and DB are required; nil services are left unmounted.
type Services struct {
	DB          *db.DB
	Users       *users.Service
	Engine      *gamification.Engine
	Movies      *movies.Service
	Events      *events.Service
	Leaderboard *leaderboard.Store
	Chat        *chat.Service
	Games       *games.Service
	Content     *content.Service
	Similar     *similar.Index
	Audit       *audit.Store
	Hub         *realtime.Hub
}

// Server is the cineforum HTTP API.
type Server struct {
	cfg        Config
	svc        Services
	router     chi.Router
	httpServer *http.Server
}

// New creates a server and mounts every configured feature.
func New(cfg Config, svc Services) *Server {
	s := &Server{cfg: cfg, svc: svc}
	if svc.Hub != nil && svc.Chat != nil {
		svc.Hub.Authorize(svc.Chat.CanFollow)
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.RequestLogger)
	r.Use(middleware.Recoverer)

	origins := s.cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:*", "http://127.0.0.1:*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(s.svc.Users.Authenticator)

		// The websocket stream must not be cut by the request timeout.
		if s.svc.Hub != nil {
			realtime.RegisterRoutes(r, s.svc.Hub)
		}

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))
			s.mountAPI(r)
		})
	})

	return r
}

func (s *Server) mountAPI(r chi.Router) {
	users.RegisterRoutes(r, s.svc.Users)
	if s.svc.Engine != nil {
		gamification.RegisterRoutes(r, s.svc.Engine)
	}
	if s.svc.Movies != nil {
		movies.RegisterRoutes(r, s.svc.Movies)
		// Mounted even when disabled so clients get a 503 instead of a 404.
		similar.RegisterRoutes(r, s.svc.Similar)
	}
	if s.svc.Events != nil {
		events.RegisterRoutes(r, s.svc.Events)
	}
	if s.svc.Leaderboard != nil {
		leaderboard.RegisterRoutes(r, s.svc.Leaderboard)
	}
	if s.svc.Chat != nil {
		chat.RegisterRoutes(r, s.svc.Chat)
	}
	if s.svc.Games != nil {
		games.RegisterRoutes(r, s.svc.Games)
	}
	if s.svc.Content != nil {
		content.RegisterRoutes(r, s.svc.Content)
	}
	if s.svc.Audit != nil {
		audit.RegisterRoutes(r, s.svc.Audit)
	}
}

type healthResponse struct {
	Status   string          `json:"status"`
	Features map[string]bool `json:"features"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DB.PingContext(r.Context()); err != nil {
		httpx.WriteJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "database unavailable"})
		return
	}
	httpx.WriteJSON(w, http.StatusOK, healthResponse{
		Status: "ok",
		Features: map[string]bool{
			"catalog": s.svc.Movies != nil && s.svc.Movies.CatalogEnabled(),
			"ai":      s.svc.Content != nil && s.svc.Content.Enabled(),
			"similar": s.svc.Similar.Enabled(),
		},
	})
}

// Router returns the chi router.
func (s *Server) Router() chi.Router { return s.router }

// Start begins listening on the configured port.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logging.Info().Str("addr", addr).Msg("cineforum server listening")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
