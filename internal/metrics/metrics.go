// Package metrics exposes the engine's Prometheus instrumentation:
// scheduler throughput, sink health, and player transport state, scraped
// by the control surface's /metrics endpoint.
//
// Grounded on the teacher's prometheus/client_golang wiring idiom
// (package-level collectors registered against the default registry,
// promhttp.Handler mounted by the HTTP surface).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TicksTotal counts every scheduler tick (mixer.ComeOut call) served.
	TicksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "talkgraph",
		Name:      "ticks_total",
		Help:      "Total number of scheduler ticks processed.",
	})

	// TickDurationSeconds observes the wall-clock cost of one tick.
	TickDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "talkgraph",
		Name:      "tick_duration_seconds",
		Help:      "Time spent computing one scheduler tick end to end.",
		Buckets:   prometheus.ExponentialBuckets(0.00005, 2, 16),
	})

	// XrunsTotal counts output-sink buffer underruns.
	XrunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "talkgraph",
		Name:      "sink_xruns_total",
		Help:      "Total number of output sink buffer underruns.",
	})

	// PlayerTick reports the player's current tick as a gauge, so a
	// dashboard can show transport position without polling the API.
	PlayerTick = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "talkgraph",
		Name:      "player_tick",
		Help:      "Current player tick position.",
	})

	// PlayerState reports the player's transport state as a labeled
	// gauge set (1 for the active state, 0 for the others).
	PlayerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "talkgraph",
		Name:      "player_state",
		Help:      "Current player transport state (1 = active).",
	}, []string{"state"})
)

// SetPlayerState zeroes every known state label then sets the active one,
// so a dashboard query always sees exactly one state at 1.
func SetPlayerState(states []string, active string) {
	for _, s := range states {
		v := 0.0
		if s == active {
			v = 1.0
		}
		PlayerState.WithLabelValues(s).Set(v)
	}
}
