package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveSequenceIssued("appointment")
	m.ObserveOperation("book", "ok")
	m.ObserveLockContention("book")
	m.ObserveNotification("booked", true)
	m.ObserveNoShows(3)
	m.ObserveHTTP("GET", "/fees", "200", 0.01)
	m.ObserveAvailability("doctor", 6)
}

func TestCountersIncrement(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveSequenceIssued("appointment")
	m.ObserveSequenceIssued("appointment")
	m.ObserveOperation("cancel", "invalid_state")
	m.ObserveNotification("booked", false)
	m.ObserveNoShows(2)
	m.ObserveNoShows(0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.sequencesIssued.WithLabelValues("appointment")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("cancel", "invalid_state")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.notifications.WithLabelValues("booked", "error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.noShowsSwept))
}
