package web

import (
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kozaktomas/face-attendance/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	reportsHandler := handlers.NewReportsHandler(s.deps.Ledger, s.deps.Roster, s.deps.Reports)
	sessionsHandler := handlers.NewSessionsHandler(s.config, s.deps.Ledger, s.deps.Recognizer, s.jobManager, s.deps.Metrics)
	usersHandler := handlers.NewUsersHandler(s.deps.Registry, s.deps.Gallery, s.deps.Index, s.jobManager)

	s.router.Get("/api/v1/health", handlers.HealthCheck)
	if s.deps.Gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))
	}

	s.router.Route("/api/v1", func(r chi.Router) {
		// Session events are long-lived, everything else gets a deadline.
		r.Get("/sessions/{jobId}/events", sessionsHandler.Events)

		r.Group(func(r chi.Router) {
			r.Use(chiMiddleware.Timeout(5 * time.Minute))

			// Reports
			r.Get("/dates", reportsHandler.Dates)
			r.Get("/reports/{date}", reportsHandler.Get)
			r.Get("/reports/{date}/text", reportsHandler.Text)
			r.Get("/reports/{date}/xlsx", reportsHandler.Export)

			// Capture sessions
			r.Get("/sessions", sessionsHandler.List)
			r.Post("/sessions", sessionsHandler.Start)
			r.Get("/sessions/{jobId}", sessionsHandler.Status)
			r.Delete("/sessions/{jobId}", sessionsHandler.Cancel)

			// Users
			r.Get("/users", usersHandler.List)
			r.Post("/users", usersHandler.Create)
			r.Get("/users/{name}", usersHandler.Get)
			r.Put("/users/{name}", usersHandler.Update)
			r.Delete("/users/{name}", usersHandler.Delete)
			r.Post("/users/{name}/photos", usersHandler.Enroll)

			// Gallery
			r.Get("/gallery", usersHandler.Gallery)
			r.Post("/gallery/reload", usersHandler.ReloadGallery)
		})
	})
}
