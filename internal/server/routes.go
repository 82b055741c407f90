package server

import (
	"github.com/go-chi/chi/v5"
)

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	r := s.router

	// Session records: the collaborator reads viewers perform at
	// session open and after a reconnect resync.
	r.Route("/session", func(r chi.Router) {
		r.Get("/", s.listSessions)
		r.Post("/", s.createSession)

		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", s.getSession)
			r.Delete("/", s.deleteSession)
			r.Get("/message", s.getMessages)
		})
	})

	// Live event stream (WebSocket).
	r.Get("/socket", s.handleSocket)
}
