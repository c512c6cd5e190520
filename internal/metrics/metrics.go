// internal/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Initiation result labels.
const (
	ResultAccepted = "accepted"
	ResultRejected = "rejected"
	ResultInvalid  = "invalid"
	ResultError    = "error"
)

// Callback outcome labels.
const (
	OutcomePaid    = "paid"
	OutcomeFailed  = "failed"
	OutcomeIgnored = "ignored"
	OutcomeEmpty   = "empty"
)

// Metrics holds the service's Prometheus collectors. Handlers and services
// receive it by injection so tests can run against a throwaway registry.
type Metrics struct {
	Initiations     *prometheus.CounterVec
	GatewayDuration *prometheus.HistogramVec
	Callbacks       *prometheus.CounterVec
	CallbackReplays prometheus.Counter
	StoreFailures   *prometheus.CounterVec
	StreamClients   prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		Initiations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "payments_stk_initiations_total",
			Help: "STK push initiation attempts by result.",
		}, []string{"result"}),
		GatewayDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "payments_gateway_request_duration_seconds",
			Help:    "Latency of outbound gateway calls.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		Callbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "payments_callbacks_total",
			Help: "Gateway callbacks received by outcome.",
		}, []string{"outcome"}),
		CallbackReplays: factory.NewCounter(prometheus.CounterOpts{
			Name: "payments_callback_replays_total",
			Help: "Callbacks matching an already-reconciled record.",
		}),
		StoreFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "payments_store_failures_total",
			Help: "Persistence failures by operation.",
		}, []string{"op"}),
		StreamClients: factory.NewGauge(prometheus.GaugeOpts{
			Name: "payments_stream_clients",
			Help: "Connected payment status stream clients.",
		}),
	}
}
