package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/tomvergara/fabricd/internal/api/middleware"
	"github.com/tomvergara/fabricd/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	HealthHandler http.HandlerFunc

	SubmitJobHandler http.HandlerFunc
	ListJobsHandler  http.HandlerFunc
	GetJobHandler    http.HandlerFunc
	JobLogsHandler   http.HandlerFunc
	DeleteJobHandler http.HandlerFunc

	ValidateHandler          http.HandlerFunc
	ValidateMultiSiteHandler http.HandlerFunc

	ListTemplatesHandler http.HandlerFunc
	GetTemplateHandler   http.HandlerFunc

	StatsHandler      http.HandlerFunc
	RecentLogsHandler http.HandlerFunc

	CreateKeyHandler http.HandlerFunc
	ListKeysHandler  http.HandlerFunc
	RevokeKeyHandler http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Public health check
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Post("/api/v1/jobs", orNotImplemented(deps.SubmitJobHandler))
		r.Get("/api/v1/jobs", orNotImplemented(deps.ListJobsHandler))
		r.Get("/api/v1/jobs/{id}", orNotImplemented(deps.GetJobHandler))
		r.Get("/api/v1/jobs/{id}/logs", orNotImplemented(deps.JobLogsHandler))
		r.Delete("/api/v1/jobs/{id}", orNotImplemented(deps.DeleteJobHandler))

		r.Post("/api/v1/validate", orNotImplemented(deps.ValidateHandler))
		r.Post("/api/v1/multisite/validate", orNotImplemented(deps.ValidateMultiSiteHandler))

		r.Get("/api/v1/templates", orNotImplemented(deps.ListTemplatesHandler))
		r.Get("/api/v1/templates/{id}", orNotImplemented(deps.GetTemplateHandler))

		r.Get("/api/v1/stats", orNotImplemented(deps.StatsHandler))
		r.Get("/api/v1/logs/recent", orNotImplemented(deps.RecentLogsHandler))

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope("admin"))

			r.Post("/api/v1/admin/keys", orNotImplemented(deps.CreateKeyHandler))
			r.Get("/api/v1/admin/keys", orNotImplemented(deps.ListKeysHandler))
			r.Delete("/api/v1/admin/keys/{id}", orNotImplemented(deps.RevokeKeyHandler))
		})
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
