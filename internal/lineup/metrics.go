package lineup

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	evaluations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "seetheplay_lineup_evaluations_total",
		Help: "Lineup evaluations, by the path that produced the result",
	}, []string{"source"})

	evaluationsSuperseded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "seetheplay_lineup_evaluations_superseded_total",
		Help: "Lineup evaluations discarded because a newer request was issued",
	})
)
