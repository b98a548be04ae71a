package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"inapp-message-engine/internal/observability"
)

func Router(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(observability.Measure)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Second))

	r.Post("/v1/events", h.Event)
	r.Get("/v1/messages/eligible", h.Eligible)
	r.Post("/v1/messages/show", h.Show)
	r.Post("/v1/messages/{id}/dismiss", h.Dismiss)
	r.Post("/v1/messages/{id}/click", h.Click)
	r.Post("/v1/identify", h.Identify)
	r.Post("/v1/anonymize", h.Anonymize)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", observability.MetricsHandler())
	return r
}
