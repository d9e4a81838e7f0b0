/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fairplay"

var (
	// Loader
	TrackLoadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "track_loads_total",
		Help:      "Track load requests by result.",
	}, []string{"result"})

	TrackLoadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "track_load_duration_seconds",
		Help:      "Time spent opening and probing a track.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	})

	// Selector
	SelectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "selections_total",
		Help:      "Tracks picked by the fair selector.",
	})

	LibraryTracks = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "library_tracks",
		Help:      "Eligible tracks under the current root.",
	})

	// Orchestrator
	QueueTracks = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_tracks",
		Help:      "Tracks queued in the player or being loaded.",
	}, []string{"state"})

	CommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "commands_total",
		Help:      "Commands handled by the orchestrator.",
	}, []string{"command"})

	ActorRestartsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "actor_restarts_total",
		Help:      "Actor restarts after a crash or unexpected exit.",
	}, []string{"actor"})

	// Player
	PlayerEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "player_events_total",
		Help:      "Events emitted by the player engine.",
	}, []string{"event"})

	PlaybackState = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "playback_state",
		Help:      "0 empty, 1 playing, 2 paused.",
	})

	// API
	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "api_requests_total",
		Help:      "HTTP requests by method, route and status.",
	}, []string{"method", "endpoint", "status"})

	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "api_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "endpoint", "status"})

	APIActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "api_active_connections",
		Help:      "In-flight HTTP requests.",
	})

	APIWebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "api_websocket_connections",
		Help:      "Open event stream websockets.",
	})
)

// Handler exposes metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
