// Package api exposes the story service over an HTTP JSON API.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	apperrors "github.com/emberleaf/emberleaf/internal/errors"
	"github.com/emberleaf/emberleaf/internal/platform/timeouts"
	"github.com/emberleaf/emberleaf/internal/services/story/engine"
)

// Server routes HTTP requests to the engine.
type Server struct {
	engine   *engine.Engine
	sessions *Sessions
	hub      *EventsHub
}

// NewServer wires the engine to the HTTP surface and subscribes the SSE
// hub to engine events.
func NewServer(eng *engine.Engine, sessions *Sessions) *Server {
	s := &Server{
		engine:   eng,
		sessions: sessions,
		hub:      NewEventsHub(),
	}
	eng.Subscribe(s.hub.Broadcast)
	return s
}

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeouts.Request))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/session/guest", s.handleGuestSession)

		r.Group(func(r chi.Router) {
			r.Use(s.sessions.Middleware)

			r.Get("/me", s.handleMe)
			r.Post("/me/login", s.handleLogin)
			r.Get("/wallet", s.handleWallet)
			r.Get("/wallet/transactions", s.handleTransactions)
			r.Get("/achievements", s.handleAchievements)
			r.Post("/achievements/{achievementID}/unlock", s.handleUnlockAchievement)
			r.Get("/events", s.handleEvents)

			r.Get("/stories", s.handleListStories)
			r.Route("/stories/{storyID}", func(r chi.Router) {
				r.Post("/start", s.handleStartStory)
				r.Get("/playthrough", s.handleGetPlaythrough)
				r.Post("/choices/{choiceID}", s.handleSelectChoice)
				r.Post("/skip", s.handleSkipSegment)
				r.Post("/replay", s.handleReplayNode)
				r.Post("/restart", s.handleRestart)
				r.Post("/rating", s.handleRateStory)
				r.Post("/favorite", s.handleToggleFavorite)
			})
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a plain JSON error outside the coded-error path.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{"message": msg},
	})
}

// writeDomainError maps a coded error to its HTTP status and localized body.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := apperrors.HandleError(err, r.Header.Get("Accept-Language"))
	writeJSON(w, status, map[string]any{"error": resp})
}
