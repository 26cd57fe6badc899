package adafri

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts realtime and store activity. A nil *Metrics records nothing.
type Metrics struct {
	events     *prometheus.CounterVec
	echoes     prometheus.Counter
	operations *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg when it is non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "adafri",
			Name:      "realtime_events_total",
			Help:      "Inbound realtime events applied to the stores, by event type.",
		}, []string{"type"}),
		echoes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "adafri",
			Name:      "sender_echo_suppressed_total",
			Help:      "new_message events dropped because the current user sent them.",
		}),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "adafri",
			Name:      "store_operations_total",
			Help:      "Completed store operations, by operation and outcome.",
		}, []string{"operation", "outcome"}),
	}
	if reg != nil {
		reg.MustRegister(m.events, m.echoes, m.operations)
	}
	return m
}

func (m *Metrics) observeEvent(t EventType) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(string(t)).Inc()
}

func (m *Metrics) observeEcho() {
	if m == nil {
		return
	}
	m.echoes.Inc()
}

func (m *Metrics) observeOperation(op, outcome string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, outcome).Inc()
}
