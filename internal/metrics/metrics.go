// Package metrics provides Prometheus metrics for the wallet core.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	TokensIssuedTotal   prometheus.Counter
	TokensDividedTotal  prometheus.Counter
	TokensRedeemedTotal prometheus.Counter
	SyncItemsTotal      *prometheus.CounterVec
	ConflictsTotal      prometheus.Counter
	GatewayDuration     *prometheus.HistogramVec
	ErrorsTotal         *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates and registers all metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		TokensIssuedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "vault_tokens_issued_total",
				Help: "Total number of bearer tokens issued, including division children.",
			},
		),
		TokensDividedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "vault_tokens_divided_total",
				Help: "Total number of token divisions.",
			},
		),
		TokensRedeemedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "vault_tokens_redeemed_total",
				Help: "Total number of tokens redeemed.",
			},
		),
		SyncItemsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vault_sync_items_total",
				Help: "Total offline sync items by outcome.",
			},
			[]string{"outcome"},
		),
		ConflictsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "vault_conflicts_total",
				Help: "Total double-spend conflicts resolved server wins.",
			},
		),
		GatewayDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vault_gateway_duration_seconds",
				Help:    "Blockchain gateway call duration by operation.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vault_errors_total",
				Help: "Total errors by module and kind.",
			},
			[]string{"module", "kind"},
		),
		registry: reg,
	}

	reg.MustRegister(m.TokensIssuedTotal)
	reg.MustRegister(m.TokensDividedTotal)
	reg.MustRegister(m.TokensRedeemedTotal)
	reg.MustRegister(m.SyncItemsTotal)
	reg.MustRegister(m.ConflictsTotal)
	reg.MustRegister(m.GatewayDuration)
	reg.MustRegister(m.ErrorsTotal)

	return m
}

// Handler returns an http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordSyncItem increments the per-outcome sync counter.
func (m *Metrics) RecordSyncItem(outcome string) {
	m.SyncItemsTotal.WithLabelValues(outcome).Inc()
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(module, kind string) {
	m.ErrorsTotal.WithLabelValues(module, kind).Inc()
}

// ObserveGateway records a gateway call duration.
func (m *Metrics) ObserveGateway(operation string, seconds float64) {
	m.GatewayDuration.WithLabelValues(operation).Observe(seconds)
}
