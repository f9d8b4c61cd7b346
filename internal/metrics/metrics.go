package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "lanchat"

// Metrics groups every collector the service exports. Each instance owns
// its registry so tests can build as many as they like.
type Metrics struct {
	Registry *prometheus.Registry

	Connections     prometheus.Gauge
	EventsDelivered *prometheus.CounterVec
	EventsDropped   *prometheus.CounterVec
	Mutations       *prometheus.CounterVec
	CacheFallbacks  prometheus.Counter
	ActiveCalls     prometheus.Gauge
	ReapedMessages  prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_connections",
			Help:      "Live event channel connections.",
		}),
		EventsDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_events_delivered_total",
			Help:      "Events enqueued to live connections.",
		}, []string{"event"}),
		EventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_events_dropped_total",
			Help:      "Events that could not be enqueued.",
		}, []string{"reason"}),
		Mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_mutations_total",
			Help:      "Conversation and message mutations by outcome.",
		}, []string{"op", "result"}),
		CacheFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_fallbacks_total",
			Help:      "Cache calls served by the in-process fallback.",
		}),
		ActiveCalls: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "calls_active",
			Help:      "Call pairings currently ringing or connected.",
		}),
		ReapedMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_reaped_total",
			Help:      "Expired messages purged by the reaper.",
		}),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Connections,
		m.EventsDelivered,
		m.EventsDropped,
		m.Mutations,
		m.CacheFallbacks,
		m.ActiveCalls,
		m.ReapedMessages,
	)
	return m
}

// Mutation records the outcome of a store operation.
func (m *Metrics) Mutation(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Mutations.WithLabelValues(op, result).Inc()
}
