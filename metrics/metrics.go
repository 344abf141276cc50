// Package metrics provides Prometheus instrumentation for the listing notifier.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Cycles counts completed polling cycles by result.
	Cycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "listing",
			Name:      "cycles_total",
			Help:      "Polling cycles by result.",
		},
		[]string{"result"},
	)

	// Notifications counts delivery attempts by result.
	Notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "listing",
			Name:      "notifications_total",
			Help:      "Notification deliveries by result.",
		},
		[]string{"result"},
	)

	// FetchErrors counts failed page fetches.
	FetchErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "listing",
			Name:      "fetch_errors_total",
			Help:      "Failed page fetches.",
		},
	)

	// TenantsRunning tracks per-tenant polling loops currently running.
	TenantsRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "listing",
			Name:      "tenants_running",
			Help:      "Per-tenant polling loops currently running.",
		},
	)
)
