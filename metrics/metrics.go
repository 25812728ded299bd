// Package metrics holds the Prometheus collectors for the store bot.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "storebot"

type Metrics struct {
	registry *prometheus.Registry

	Transitions    *prometheus.CounterVec
	Rejections     *prometheus.CounterVec
	TicketEvents   *prometheus.CounterVec
	NotifyFailures *prometheus.CounterVec
	Updates        *prometheus.CounterVec
	HandleLatency  *prometheus.HistogramVec
}

// New creates the collectors in a private registry, together with the
// Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orders",
			Name:      "transitions_total",
			Help:      "Order status transitions applied.",
		}, []string{"from", "to"}),
		Rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejected_actions_total",
			Help:      "User or admin actions rejected with a corrective reply.",
		}, []string{"reason"}),
		TicketEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tickets",
			Name:      "events_total",
			Help:      "Support ticket events.",
		}, []string{"event"}),
		NotifyFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_failures_total",
			Help:      "Outbound notifications that could not be delivered.",
		}, []string{"key"}),
		Updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "updates_total",
			Help:      "Inbound events handled, by event type.",
		}, []string{"event"}),
		HandleLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "handle_duration_ms",
			Help:      "Inbound event handling latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"event"}),
	}
	m.registry.MustRegister(
		m.Transitions, m.Rejections, m.TicketEvents, m.NotifyFailures,
		m.Updates, m.HandleLatency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Transition(from, to string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) Rejected(reason string) {
	if m == nil {
		return
	}
	m.Rejections.WithLabelValues(reason).Inc()
}

func (m *Metrics) Ticket(event string) {
	if m == nil {
		return
	}
	m.TicketEvents.WithLabelValues(event).Inc()
}

func (m *Metrics) NotifyFailed(key string) {
	if m == nil {
		return
	}
	m.NotifyFailures.WithLabelValues(key).Inc()
}

func (m *Metrics) Handled(event string, ms float64) {
	if m == nil {
		return
	}
	m.Updates.WithLabelValues(event).Inc()
	m.HandleLatency.WithLabelValues(event).Observe(ms)
}
