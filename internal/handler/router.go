package handler

import (
	"net/http"

	"github.com/Shivanand-hulikatti/slot-registration/internal/identity"
	"github.com/Shivanand-hulikatti/slot-registration/internal/metrics"
	"github.com/Shivanand-hulikatti/slot-registration/internal/ratelimit"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// RouterConfig collects what NewRouter wires together.
type RouterConfig struct {
	Events   *EventHandler
	Videos   *VideoHandler
	Verifier *identity.Verifier
	Limiter  *ratelimit.Store // nil disables throttling
	Log      *zap.Logger
}

// NewRouter builds the HTTP API.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware stack
	r.Use(chimiddleware.Recoverer) // recover from panics, return 500
	r.Use(chimiddleware.RequestID) // attach request IDs
	r.Use(chimiddleware.RealIP)    // trust X-Forwarded-For
	r.Use(Logger(cfg.Log))         // structured access log
	r.Use(CORS)
	r.Use(metrics.Middleware)
	r.Use(identity.Middleware(cfg.Verifier))

	r.Get("/health", HealthCheck)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	throttle := func(next http.Handler) http.Handler { return next }
	if cfg.Limiter != nil {
		throttle = ratelimit.Middleware(cfg.Limiter)
	}

	r.Route("/events", func(r chi.Router) {
		r.Get("/", cfg.Events.ListEvents)
		r.Get("/{id}", cfg.Events.GetEvent)
		r.Post("/{id}/slots/check", cfg.Events.CheckSlots)

		r.Group(func(r chi.Router) {
			r.Use(identity.RequireAdmin)
			r.Post("/", cfg.Events.CreateEvent)
			r.Delete("/{id}", cfg.Events.DeleteEvent)
			r.Post("/{id}/slots", cfg.Events.AddSlots)
			r.Delete("/{id}/slots", cfg.Events.DeleteSlot)
			r.Post("/{id}/slots/unassign", cfg.Events.UnassignSlot)
		})
	})

	r.Route("/videos", func(r chi.Router) {
		r.Use(identity.RequireAuth)
		r.Post("/check", cfg.Videos.CheckUnlinked)
		r.With(throttle).Post("/", cfg.Videos.Register)
		r.Get("/{id}", cfg.Videos.GetVideo)
		r.Delete("/{id}", cfg.Videos.DeleteVideo)

		r.Group(func(r chi.Router) {
			r.Use(identity.RequireAdmin)
			r.Post("/{id}/approve", cfg.Videos.ApproveVideo)
			r.Patch("/{id}", cfg.Videos.UpdateVideo)
			r.Post("/{id}/restore", cfg.Videos.RestoreVideo)
			r.Delete("/{id}/purge", cfg.Videos.PurgeVideo)
		})
	})

	r.With(identity.RequireAuth).Get("/members", cfg.Videos.SuggestMembers)

	return r
}
