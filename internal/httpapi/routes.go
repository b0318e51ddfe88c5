package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/DoyleJ11/seetheplay/internal/directory"
	"github.com/DoyleJ11/seetheplay/internal/hub"
	"github.com/DoyleJ11/seetheplay/internal/ws"
)

type Options struct {
	ConnectTimeout time.Duration
	SnapshotBuffer int
}

func SetupRoutes(h *hub.Hub, dir directory.Directory, opts Options, logger *zap.Logger) http.Handler {
	a := &handlers{
		hub:            h,
		directory:      dir,
		connectTimeout: opts.ConnectTimeout,
		log:            logger.Sugar().Named("http"),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	// Public routes
	r.Get("/healthz", Healthz)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws", ws.Handler(h, opts.SnapshotBuffer, logger))

	r.Route("/api", func(r chi.Router) {
		r.Get("/teams", a.Teams)
		r.Get("/teams/{id}/players", a.TeamPlayers)
		r.Get("/scenarios", a.ListScenarios)

		r.Post("/sessions", a.CreateSession)
		r.Route("/sessions/{code}", func(r chi.Router) {
			r.Get("/", a.GetSession)
			r.Delete("/", a.DeleteSession)
			r.Post("/connect", a.Connect)
			r.Post("/select", a.SelectPlayer)
			r.Post("/scenario", a.TriggerScenario)
			r.Post("/questions", a.AskQuestion)

			r.Delete("/lineup", a.ResetLineup)
			r.Post("/lineup/evaluate", a.EvaluateLineup)
			r.Put("/lineup/{side}/{position}", a.AssignPlayer)
			r.Delete("/lineup/{side}/{position}", a.ClearSlot)
		})
	})
	return r
}
