// Package api exposes sync documents, line listings and timetable
// generation over HTTP.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mytimetablemaker/transit-sync/internal/api/handlers"
)

// Handlers groups the route handlers mounted by NewRouter
type Handlers struct {
	Health     *handlers.HealthHandler
	Documents  *handlers.DocumentHandler
	Timetables *handlers.TimetableHandler
}

// NewRouter builds the HTTP routes
func NewRouter(h Handlers) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.Health.GetHealth)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/documents/{route}", h.Documents.GetDocument)
		r.Put("/documents/{route}", h.Documents.PutDocument)

		r.Get("/operators/{operator}/lines", h.Timetables.GetLines)
		r.Post("/timetables", h.Timetables.GenerateTimetable)
		r.Get("/timetables/{route}/{index}", h.Timetables.GetTimetable)
	})
	return r
}
