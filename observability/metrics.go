package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the relay's Prometheus collectors.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	sessionsActive  prometheus.Gauge
	sessionsEvicted prometheus.Counter
	tickets         *prometheus.CounterVec
	eventsReceived  *prometheus.CounterVec
	eventsDropped   *prometheus.CounterVec
	deliveries      *prometheus.CounterVec
	framesDropped   prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "relay",
			Name:      "sessions_active",
			Help:      "Number of admitted sessions currently registered.",
		}),
		sessionsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "sessions_evicted_total",
			Help:      "Sessions closed because the same user connected again.",
		}),
		tickets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "tickets_total",
			Help:      "Tickets by outcome (issued, unauthorized, accepted, rejected).",
		}, []string{"result"}),
		eventsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "events_received_total",
			Help:      "Inbound client events by name.",
		}, []string{"event"}),
		eventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "events_dropped_total",
			Help:      "Inbound client events discarded without effect.",
		}, []string{"event", "reason"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "deliveries_total",
			Help:      "Outbound frames handed to client transports by event name.",
		}, []string{"event"}),
		framesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "frames_dropped_total",
			Help:      "Outbound frames lost because a client send buffer was full.",
		}),
	}
	reg.MustRegister(
		m.sessionsActive, m.sessionsEvicted, m.tickets,
		m.eventsReceived, m.eventsDropped, m.deliveries, m.framesDropped,
	)
	return m
}

func (m *Metrics) SetSessionsActive(n int) {
	if m == nil {
		return
	}
	m.sessionsActive.Set(float64(n))
}

func (m *Metrics) SessionEvicted() {
	if m == nil {
		return
	}
	m.sessionsEvicted.Inc()
}

func (m *Metrics) Ticket(result string) {
	if m == nil {
		return
	}
	m.tickets.WithLabelValues(result).Inc()
}

func (m *Metrics) EventReceived(event string) {
	if m == nil {
		return
	}
	m.eventsReceived.WithLabelValues(event).Inc()
}

func (m *Metrics) EventDropped(event, reason string) {
	if m == nil {
		return
	}
	m.eventsDropped.WithLabelValues(event, reason).Inc()
}

func (m *Metrics) Delivered(event string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.deliveries.WithLabelValues(event).Add(float64(n))
}

func (m *Metrics) FrameDropped() {
	if m == nil {
		return
	}
	m.framesDropped.Inc()
}
