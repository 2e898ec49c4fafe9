package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter creates a new router with all routes configured
func NewRouter(h *Handler, login *LoginRateLimiter) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware (all routes)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware)
	r.Use(RecoveryMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		// Public routes
		r.Get("/health", h.Health)
		r.With(login.Middleware).Post("/login", h.Login)
		r.Post("/logout", h.Logout)

		// Session routes
		r.Group(func(r chi.Router) {
			r.Use(SessionMiddleware(h.svc))
			r.Get("/profile", h.Profile)
			r.Get("/progress", h.GetProgress)
			r.Post("/progress", h.SaveProgress)
			r.Delete("/progress", h.ResetProgress)
			r.Post("/progress/toggle", h.Toggle)
			r.Get("/progress/summary", h.Summary)
			r.Get("/analytics", h.Analytics)
			r.Get("/suggestions", h.Suggestions)
			r.Get("/report", h.Report)

			r.Route("/admin", func(r chi.Router) {
				r.Use(AdminOnly)
				r.Get("/all-progress", h.AllProgress)
				r.Get("/users", h.ListUsers)
			})
		})
	})

	return r
}
