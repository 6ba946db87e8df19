// Package metrics holds the Prometheus collectors of the appointment engine.
// Every method is safe on a nil *Metrics so tests can skip registration.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	sequencesIssued  *prometheus.CounterVec
	operations       *prometheus.CounterVec
	lockContention   *prometheus.CounterVec
	notifications    *prometheus.CounterVec
	noShowsSwept     prometheus.Counter
	httpDuration     *prometheus.HistogramVec
	availabilitySize *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		sequencesIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hospital",
			Subsystem: "sequence",
			Name:      "issued_total",
			Help:      "Identifiers issued per sequence type",
		}, []string{"sequence_type"}),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hospital",
			Subsystem: "appointment",
			Name:      "operations_total",
			Help:      "Appointment operations by name and outcome",
		}, []string{"operation", "outcome"}),
		lockContention: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hospital",
			Subsystem: "appointment",
			Name:      "slot_lock_contention_total",
			Help:      "Slot lock acquisitions that lost to another holder",
		}, []string{"operation"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hospital",
			Subsystem: "notify",
			Name:      "published_total",
			Help:      "Appointment events published",
		}, []string{"event", "status"}),
		noShowsSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hospital",
			Subsystem: "appointment",
			Name:      "no_shows_swept_total",
			Help:      "Appointments marked no-show by the sweeper",
		}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "hospital",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route and status",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		availabilitySize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "hospital",
			Subsystem: "availability",
			Name:      "slots_returned",
			Help:      "Number of free slots returned per availability query",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}, []string{"scope"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.sequencesIssued,
		m.operations,
		m.lockContention,
		m.notifications,
		m.noShowsSwept,
		m.httpDuration,
		m.availabilitySize,
	)
	return m
}

func (m *Metrics) ObserveSequenceIssued(sequenceType string) {
	if m == nil {
		return
	}
	m.sequencesIssued.WithLabelValues(sequenceType).Inc()
}

// ObserveOperation records one appointment operation. outcome is "ok" or an error kind.
func (m *Metrics) ObserveOperation(operation, outcome string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) ObserveLockContention(operation string) {
	if m == nil {
		return
	}
	m.lockContention.WithLabelValues(operation).Inc()
}

func (m *Metrics) ObserveNotification(event string, ok bool) {
	if m == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "error"
	}
	m.notifications.WithLabelValues(event, status).Inc()
}

func (m *Metrics) ObserveNoShows(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.noShowsSwept.Add(float64(n))
}

func (m *Metrics) ObserveHTTP(method, route, status string, seconds float64) {
	if m == nil {
		return
	}
	m.httpDuration.WithLabelValues(method, route, status).Observe(seconds)
}

func (m *Metrics) ObserveAvailability(scope string, slots int) {
	if m == nil {
		return
	}
	m.availabilitySize.WithLabelValues(scope).Observe(float64(slots))
}
