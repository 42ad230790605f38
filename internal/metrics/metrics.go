// Package metrics defines the Prometheus metrics exported by the server.
// Metrics register with the default registry at package load; the HTTP
// layer exposes them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "spaces"

// ConnectionsOpen tracks the number of live websocket connections, by
// endpoint ("chat" or "notifications").
var ConnectionsOpen = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "connections_open",
		Help:      "Current number of registered websocket connections.",
	},
	[]string{"endpoint"},
)

// DeliveriesTotal counts frames handed to a connection, by fan-out kind
// ("channel", "user", "scoped", "all").
var DeliveriesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "deliveries_total",
		Help:      "Total number of frames delivered to connections.",
	},
	[]string{"kind"},
)

// DeliveryFailuresTotal counts per-connection send failures. Failures are
// swallowed by the fan-out engine, so this counter is the only place they
// surface besides debug logs.
var DeliveryFailuresTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "delivery_failures_total",
		Help:      "Total number of frames dropped due to send errors.",
	},
	[]string{"kind"},
)

// PresenceOnline tracks the size of the derived online-user set.
var PresenceOnline = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "presence_online_users",
		Help:      "Current number of users with at least one connection.",
	},
)
