package hub

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const metricsNamespace = "backup_source"

// Metrics holds the Prometheus collectors for the hub.
type Metrics struct {
	registry *prometheus.Registry

	refreshes     *prometheus.CounterVec
	publishes     *prometheus.CounterVec
	publishErrors *prometheus.CounterVec
	selected      *prometheus.GaugeVec
	events        prometheus.Counter
}

// NewMetrics creates the hub collectors on a private registry that also
// carries the Go runtime and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "refreshes_total",
			Help:      "Source selections run per backup entity.",
		}, []string{"entity"}),
		publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "publishes_total",
			Help:      "States written to Home Assistant per backup entity.",
		}, []string{"entity"}),
		publishErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "publish_errors_total",
			Help:      "Failed state writes per backup entity.",
		}, []string{"entity"}),
		selected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "selected_index",
			Help:      "Index of the adopted source, -1 when no source had a usable value.",
		}, []string{"entity"}),
		events: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "events_total",
			Help:      "state_changed events received from Home Assistant.",
		}),
	}

	m.registry.MustRegister(
		m.refreshes,
		m.publishes,
		m.publishErrors,
		m.selected,
		m.events,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Gatherer returns the registry to expose over HTTP.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

func (m *Metrics) observeRefresh(entityID string, selected int) {
	m.refreshes.WithLabelValues(entityID).Inc()
	m.selected.WithLabelValues(entityID).Set(float64(selected))
}

func (m *Metrics) observePublish(entityID string, err error) {
	if err != nil {
		m.publishErrors.WithLabelValues(entityID).Inc()
		return
	}
	m.publishes.WithLabelValues(entityID).Inc()
}

func (m *Metrics) observeEvent() {
	m.events.Inc()
}
