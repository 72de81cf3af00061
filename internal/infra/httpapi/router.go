// Package httpapi serves the reward cycle use cases over HTTP.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"reward_cycle_bot/internal/app"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

// CycleCheckRunner runs a status pass on demand; ran is false when one is already running.
type CycleCheckRunner interface {
	RunNow(ctx context.Context) (report app.TickReport, ran bool, err error)
}

type API struct {
	Cycles app.CycleService
	Runner CycleCheckRunner
	Logger *logrus.Entry
}

func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(a.loggingMiddleware)

	r.Get("/health", a.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))
		r.Route("/teams/{teamID}/cycle", func(r chi.Router) {
			r.Get("/", a.handleGetCurrentCycle)
			r.Put("/", a.handleSetCycle)
			r.Post("/publish", a.handlePublish)
			r.Get("/published", a.handleGetPublishedCycle)
		})
		r.Post("/cycles/evaluate", a.handleEvaluate)
	})

	return r
}

func (a *API) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		a.Logger.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"duration":   time.Since(start).String(),
			"request_id": middleware.GetReqID(r.Context()),
		}).Debug("HTTP request")
	})
}
