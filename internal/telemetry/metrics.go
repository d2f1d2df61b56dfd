// Package telemetry exposes Prometheus metrics for BlinkDB.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Registry = prometheus.NewRegistry()

	CommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "blinkdb",
			Name:      "commands_total",
			Help:      "Total number of commands processed.",
		},
		[]string{"command", "status"},
	)

	ConnectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "blinkdb",
			Name:      "connections_active",
			Help:      "Current number of open client connections.",
		},
	)

	ConnectionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "blinkdb",
			Name:      "connections_total",
			Help:      "Total number of accepted client connections.",
		},
	)

	ConnectionsRejected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "blinkdb",
			Name:      "connections_rejected_total",
			Help:      "Connections closed at accept because the cap was reached.",
		},
	)

	KeysStored = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "blinkdb",
			Name:      "keys_stored",
			Help:      "Current number of live keys.",
		},
	)

	MemoryUsedBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "blinkdb",
			Name:      "memory_used_bytes",
			Help:      "Bytes accounted to live entries (key plus value sizes).",
		},
	)

	KeysEvictedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "blinkdb",
			Name:      "keys_evicted_total",
			Help:      "Keys removed by LRU eviction to stay under the memory budget.",
		},
	)

	KeysExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "blinkdb",
			Name:      "keys_expired_total",
			Help:      "Keys removed because their TTL passed.",
		},
	)

	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "blinkdb",
			Name:      "build_info",
			Help:      "Build info (constant 1, labeled by version and commit).",
		},
		[]string{"version", "commit"},
	)

	startTime = time.Now()
	uptime    = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: "blinkdb",
			Name:      "uptime_seconds",
			Help:      "Process uptime in seconds.",
		},
		func() float64 { return time.Since(startTime).Seconds() },
	)
)

func init() {
	Registry.MustRegister(
		CommandsTotal,
		ConnectionsActive,
		ConnectionsTotal,
		ConnectionsRejected,
		KeysStored,
		MemoryUsedBytes,
		KeysEvictedTotal,
		KeysExpiredTotal,
		buildInfo,
		uptime,
	)
}

// MetricsHandler exposes /metrics for the optional metrics listener.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// SetBuildInfo should be called once at startup with ldflags-provided values.
func SetBuildInfo(version, commit string) {
	buildInfo.WithLabelValues(version, commit).Set(1)
}
