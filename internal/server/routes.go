package server

import (
	"expvar"

	"github.com/go-chi/chi/v5"
)

func (s *Server) registerRoutes(r chi.Router) {
	h := s.handlers

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)
		r.Handle("/metrics", expvar.Handler())

		// Events
		r.Post("/events", h.SubmitEvent)
		r.Get("/events", h.ListEvents)

		// Strategies
		r.Post("/strategies", h.RegisterStrategy)
		r.Get("/strategies/{strategyID}", h.GetStrategy)
		r.Post("/strategies/{strategyID}/dispatch", h.DispatchStrategy)
		r.Get("/strategies/{strategyID}/executions", h.ListExecutions)
	})
}
