// ABOUTME: Prometheus collectors for dispatches, failures and webhook traffic
// ABOUTME: Registered on a private registry served by the gateway's /metrics route

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "concierge"

// Metrics holds the concierge's collectors. It implements
// conversation.Observer.
type Metrics struct {
	registry *prometheus.Registry

	dispatches *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	failures   *prometheus.CounterVec
	webhook    *prometheus.CounterVec
	outbound   *prometheus.CounterVec
}

// New creates and registers all collectors, plus the Go runtime and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatches_total",
			Help:      "Inbound messages dispatched, by route and outcome.",
		}, []string{"route", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Time to produce a reply for one inbound message.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"route"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failures_total",
			Help:      "Backend failures seen while dispatching, by backend kind and operation.",
		}, []string{"kind", "op"}),
		webhook: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_messages_total",
			Help:      "Webhook messages received, by result.",
		}, []string{"result"}),
		outbound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbound_replies_total",
			Help:      "Replies sent to the messaging channel, by reply kind and result.",
		}, []string{"kind", "result"}),
	}

	m.registry.MustRegister(
		m.dispatches,
		m.latency,
		m.failures,
		m.webhook,
		m.outbound,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveDispatch records one completed dispatch.
func (m *Metrics) ObserveDispatch(route, outcome string, elapsed time.Duration) {
	m.dispatches.WithLabelValues(route, outcome).Inc()
	m.latency.WithLabelValues(route).Observe(elapsed.Seconds())
}

// ObserveFailure counts a session ("session") or record store ("upstream") failure.
func (m *Metrics) ObserveFailure(kind, op string) {
	m.failures.WithLabelValues(kind, op).Inc()
}

// WebhookMessage counts a webhook message by result, e.g. "dispatched",
// "duplicate", "ignored", "rate_limited".
func (m *Metrics) WebhookMessage(result string) {
	m.webhook.WithLabelValues(result).Inc()
}

// OutboundReply counts a reply handed to the channel sender.
func (m *Metrics) OutboundReply(kind string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.outbound.WithLabelValues(kind, result).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
