// Package server exposes the HTTP surface for the companion client: item and
// project CRUD, task views, search and user settings. Ingestion does not go
// through HTTP; it stays on the chat transport.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/neuralinbox/neuralinbox/internal/search"
	"github.com/neuralinbox/neuralinbox/internal/storage"
	"github.com/neuralinbox/neuralinbox/internal/tools"
)

// Config carries the server wiring.
type Config struct {
	// BotToken signs the transport auth tokens presented by the client.
	BotToken string
	// AllowedOrigins for CORS; empty means same-origin only.
	AllowedOrigins []string
	// Assistant serves the conversational management endpoints. Optional;
	// when nil those endpoints answer 503.
	Assistant *tools.Loop
}

// Server handles the companion-client API.
type Server struct {
	store     storage.Storage
	engine    *search.Engine
	assistant *tools.Loop
	auth      *authenticator
	router    chi.Router
}

// New builds the server and mounts all routes.
func New(store storage.Storage, engine *search.Engine, cfg Config) *Server {
	s := &Server{
		store:     store,
		engine:    engine,
		assistant: cfg.Assistant,
		auth:      newAuthenticator(cfg.BotToken),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", initDataHeader},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	r.Get("/api/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(s.auth.middleware)

		r.Route("/api/items", func(r chi.Router) {
			r.Get("/", s.handleListItems)
			r.Get("/{itemID}", s.handleGetItem)
			r.Patch("/{itemID}", s.handleUpdateItem)
			r.Delete("/{itemID}", s.handleDeleteItem)
			r.Patch("/{itemID}/complete", s.handleCompleteItem)
			r.Patch("/{itemID}/move", s.handleMoveItem)
			r.Get("/{itemID}/related", s.handleRelatedItems)
		})

		r.Route("/api/tasks", func(r chi.Router) {
			r.Get("/", s.handleListTasks)
			r.Get("/calendar", s.handleCalendar)
		})

		r.Route("/api/projects", func(r chi.Router) {
			r.Get("/", s.handleListProjects)
			r.Post("/", s.handleCreateProject)
			r.Get("/{projectID}", s.handleGetProject)
			r.Patch("/{projectID}", s.handleUpdateProject)
			r.Delete("/{projectID}", s.handleDeleteProject)
		})

		r.Get("/api/search", s.handleSearch)

		r.Route("/api/assistant", func(r chi.Router) {
			r.Post("/message", s.handleAssistantMessage)
			r.Post("/confirm", s.handleAssistantConfirm)
		})

		r.Route("/api/user", func(r chi.Router) {
			r.Get("/settings", s.handleGetSettings)
			r.Patch("/settings", s.handleUpdateSettings)
			r.Post("/onboarding/complete", s.handleCompleteOnboarding)
		})
	})

	s.router = r
	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
