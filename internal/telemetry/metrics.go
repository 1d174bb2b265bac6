/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// APIActiveConnections tracks in-flight HTTP requests.
	APIActiveConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "signalcore_api_active_connections",
		Help: "Number of in-flight HTTP requests.",
	})

	// APIRequestDuration tracks HTTP request latency.
	APIRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "signalcore_api_request_duration_seconds",
		Help:    "HTTP request latency in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	// APIRequestsTotal counts HTTP requests.
	APIRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "signalcore_api_requests_total",
		Help: "Total HTTP requests handled.",
	}, []string{"method", "route", "status"})

	// RoomsActive, MembersActive, PeersActive, PeersStartedTotal and
	// PeersFailedTotal are registered and exported, but no code path
	// updates them, so they stay at zero.

	// RoomsActive tracks the number of rooms currently open.
	RoomsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "signalcore_rooms_active",
		Help: "Number of rooms currently open.",
	})

	// MembersActive tracks connected members across all rooms.
	MembersActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "signalcore_members_active",
		Help: "Number of members with an established RPC connection.",
	})

	// PeersActive tracks peer connections currently in a non-terminal state.
	PeersActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "signalcore_peers_active",
		Help: "Number of peer connections currently active.",
	})

	// PeersStartedTotal counts peers that reached the Started state.
	PeersStartedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "signalcore_peers_started_total",
		Help: "Total peer connections that reached the started state.",
	})

	// PeersFailedTotal counts peers that transitioned to Failed.
	PeersFailedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "signalcore_peers_failed_total",
		Help: "Total peer connections that transitioned to failed.",
	})

	// CallbackDeliveriesTotal counts HTTP callback delivery attempts by outcome.
	CallbackDeliveriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "signalcore_callback_deliveries_total",
		Help: "Total callback delivery attempts by outcome.",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(
		APIActiveConnections,
		APIRequestDuration,
		APIRequestsTotal,
		RoomsActive,
		MembersActive,
		PeersActive,
		PeersStartedTotal,
		PeersFailedTotal,
		CallbackDeliveriesTotal,
	)
}

// Handler exposes the Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordCallbackDelivery increments the delivery counter for outcome.
func RecordCallbackDelivery(outcome string) {
	CallbackDeliveriesTotal.WithLabelValues(outcome).Inc()
}
