// Package server provides the HTTP and socket surface of the agentdeck
// messaging core.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/agentdeck-ai/agentdeck/internal/event"
	"github.com/agentdeck-ai/agentdeck/internal/room"
	"github.com/agentdeck-ai/agentdeck/internal/session"
)

// Config holds server configuration.
type Config struct {
	Host         string
	Port         int
	EnableCORS   bool
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns default server configuration.
func DefaultConfig() *Config {
	return &Config{
		Host:        "127.0.0.1",
		Port:        3000,
		EnableCORS:  true,
		ReadTimeout: 30 * time.Second,
		// No write timeout: socket connections are long-lived.
		WriteTimeout: 0,
	}
}

// Server is the HTTP server.
type Server struct {
	config   *Config
	router   *chi.Mux
	httpSrv  *http.Server
	sessions *session.Service
	bus      *event.Bus
	rooms    *room.Registry

	unsubBridge func()
}

// New creates a Server. The bus must be the same instance the session
// service publishes on: the server bridges every bus event into the
// room its session maps to.
func New(cfg *Config, sessions *session.Service, bus *event.Bus) *Server {
	s := &Server{
		config:   cfg,
		router:   chi.NewRouter(),
		sessions: sessions,
		bus:      bus,
		rooms:    room.NewRegistry(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	// Fan-out bridge: session events reach every endpoint currently in
	// the session's room. Delivery per member is independent and
	// best-effort.
	s.unsubBridge = bus.SubscribeAll(func(ev event.Event) {
		s.rooms.Broadcast(ev.SessionID, ev)
	})

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)

	if s.config.EnableCORS {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Rooms exposes the room registry.
func (s *Server) Rooms() *room.Registry {
	return s.rooms
}

// Start begins listening. Blocks until the server stops.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.unsubBridge != nil {
		s.unsubBridge()
	}
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}
