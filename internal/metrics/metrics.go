package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/autopeer-io/carprober/internal/core"
)

// Registry holds every car-prober metric plus the Go and process collectors.
// It is served on /metrics.
var Registry = prometheus.NewRegistry()

var (
	// ConnectionStatus is 1 while a head unit is connected, 0 otherwise.
	ConnectionStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "carprober_connection_status",
			Help: "Head-unit connection status (1=connected, 0=disconnected) per brand.",
		},
		[]string{"brand"},
	)

	// ProbeTotal counts per-port outcomes of search passes.
	ProbeTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carprober_probe_total",
			Help: "Total number of port probes by outcome.",
		},
		[]string{"outcome"}, // port_closed, not_ready, handshake_failed, connected
	)

	// KeepaliveFailures counts keepalive pings that dropped the connection.
	KeepaliveFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "carprober_keepalive_failures_total",
			Help: "Total number of keepalive pings that failed and forced a reconnect.",
		},
	)

	// RPCLatency records successful RPC round trips (capabilities query and ping).
	RPCLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "carprober_rpc_latency_seconds",
			Help:    "Latency of successful RPC calls to the head unit.",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		ConnectionStatus,
		ProbeTotal,
		KeepaliveFailures,
		RPCLatency,
	)
}

// RecordConnection is a registry listener that mirrors the connection state
// into ConnectionStatus.
func RecordConnection(state core.ConnectionState) {
	for _, b := range core.Brands {
		v := 0.0
		if state.Connected && state.Brand == b {
			v = 1
		}
		ConnectionStatus.WithLabelValues(b.String()).Set(v)
	}
}

// RegisterAverage exposes a running average, in seconds, as a gauge.
func RegisterAverage(avg func() float64) error {
	return Registry.Register(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "carprober_rpc_latency_average_seconds",
			Help: "Running average of successful RPC latency since start.",
		},
		avg,
	))
}
