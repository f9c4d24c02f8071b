// internal/api/api.go
// HTTP surface of the game server: the websocket endpoint, health, metrics and the read-only
// REST API over rooms, comments and recorded games.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/erilali/gameroom/internal/chat"
	"github.com/erilali/gameroom/internal/game"
	"github.com/erilali/gameroom/internal/hub"
	"github.com/erilali/gameroom/internal/logger"
	"github.com/erilali/gameroom/internal/metrics"
	"github.com/erilali/gameroom/internal/records"
	"github.com/erilali/gameroom/internal/room"
)

// Version is reported by /health.
const Version = "1.0.0"

const apiTimeout = 10 * time.Second

// Deps are the services the HTTP layer reads from. Events may be nil.
type Deps struct {
	Hub     *hub.Hub
	Rooms   *room.Registry
	Engines game.Registry
	Chat    *chat.Service
	Store   records.Store
	Events  *hub.Events
	Metrics *metrics.Metrics
}

// Server bundles the router and its dependencies.
type Server struct {
	r       *chi.Mux
	hub     *hub.Hub
	rooms   *room.Registry
	engines game.Registry
	chat    *chat.Service
	store   records.Store
	events  *hub.Events
	metrics *metrics.Metrics
	logger  *logger.Logger
	started time.Time
}

// NewServer installs middleware and registers every route.
func NewServer(deps Deps, log *logger.Logger) *Server {
	if log == nil {
		log = logger.NewNop()
	}
	if deps.Store == nil {
		deps.Store = records.NopStore{}
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	s := &Server{
		r:       chi.NewRouter(),
		hub:     deps.Hub,
		rooms:   deps.Rooms,
		engines: deps.Engines,
		chat:    deps.Chat,
		store:   deps.Store,
		events:  deps.Events,
		metrics: deps.Metrics,
		logger:  log,
		started: time.Now(),
	}

	s.r.Use(chimw.RequestID)
	s.r.Use(chimw.RealIP)
	s.r.Use(requestLogger(log))
	s.r.Use(chimw.Recoverer)

	if s.hub != nil {
		s.r.Get("/ws", s.hub.ServeWs)
	}
	s.r.Handle("/metrics", s.metrics.Handler())

	s.r.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(apiTimeout))
		r.Use(jsonContentType)

		r.Get("/health", s.handleHealth)
		r.Post("/save_game", s.handleSaveGame)

		r.Route("/api", func(r chi.Router) {
			r.Get("/stats", s.handleStats)
			r.Route("/rooms", func(r chi.Router) {
				r.Get("/", s.handleListRooms)
				r.Get("/{id}", s.handleRoom)
				r.Get("/{id}/comments", s.handleComments)
				r.Get("/{id}/archive", s.handleArchive)
			})
			r.Route("/games", func(r chi.Router) {
				r.Get("/", s.handleListGames)
				r.Get("/stats", s.handleGameStats)
				r.Get("/{id}", s.handleGame)
			})
		})
	})

	s.r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "no route for "+r.URL.Path)
	})
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.r }

// Router exposes the internal router (useful for tests).
func (s *Server) Router() chi.Router { return s.r }

// jsonContentType sets a default JSON Content-Type header on all responses.
func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		next.ServeHTTP(w, r)
	})
}

// requestLogger logs one line per request at debug level, and at warn level for 5xx.
func requestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			entry := log.WithFields(map[string]interface{}{
				"request_id": chimw.GetReqID(r.Context()),
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     ww.Status(),
				"bytes":      ww.BytesWritten(),
				"duration":   time.Since(start).String(),
			})
			if ww.Status() >= http.StatusInternalServerError {
				entry.Warn("Request failed")
				return
			}
			entry.Debug("Request served")
		})
	}
}
