// Package metrics instruments the SOS core with Prometheus counters and gauges.
//
// Every method is safe to call on a nil *Metrics, so components can run uninstrumented in tests.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "civicsos"

// Metrics holds the plugin's collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	gestureEvents        *prometheus.CounterVec
	phraseSessions       *prometheus.CounterVec
	sosActivations       *prometheus.CounterVec
	sosActivationFailure prometheus.Counter
	syncPolls            *prometheus.CounterVec
	notifications        *prometheus.CounterVec
	dataflowTransitions  *prometheus.CounterVec
	activeSessions       prometheus.Gauge
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		gestureEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gesture_events_total",
			Help:      "Gesture events emitted by the motion detector, by kind.",
		}, []string{"kind"}),
		phraseSessions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "phrase_sessions_total",
			Help:      "Secret phrase listening sessions, by outcome.",
		}, []string{"outcome"}),
		sosActivations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sos_activations_total",
			Help:      "SOS alerts created by the alert lifecycle controller, by trigger.",
		}, []string{"trigger"}),
		sosActivationFailure: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sos_activation_failures_total",
			Help:      "SOS activations that failed to write to the ledger.",
		}),
		syncPolls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_polls_total",
			Help:      "Sync engine poll cycles, by result.",
		}, []string{"result"}),
		notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notifications dispatched, by kind.",
		}, []string{"kind"}),
		dataflowTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dataflow_transitions_total",
			Help:      "Dataflow item status transitions, by target status.",
		}, []string{"status"}),
		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Client sessions currently registered.",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveGesture(kind string) {
	if m == nil {
		return
	}
	m.gestureEvents.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObservePhraseSession(outcome string) {
	if m == nil {
		return
	}
	m.phraseSessions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveActivation(trigger string) {
	if m == nil {
		return
	}
	m.sosActivations.WithLabelValues(trigger).Inc()
}

func (m *Metrics) ObserveActivationFailure() {
	if m == nil {
		return
	}
	m.sosActivationFailure.Inc()
}

func (m *Metrics) ObservePoll(result string) {
	if m == nil {
		return
	}
	m.syncPolls.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveNotification(kind string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveDataflowTransition(status string) {
	if m == nil {
		return
	}
	m.dataflowTransitions.WithLabelValues(status).Inc()
}

func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(n))
}
