package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCountersIncrement(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.IncrementResolution("success")
	m.IncrementResolution("success")
	m.IncrementResolution("card_absent")
	m.IncrementProbeOutcome("no_reader")
	m.IncrementDirectoryLookup("disabled")
	m.IncrementDirectoryFilterFailure("displayName")
	m.IncrementRateLimited()
	m.IncrementAuditDropped()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Resolutions.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Resolutions.WithLabelValues("card_absent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProbeOutcomes.WithLabelValues("no_reader")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DirectoryLookups.WithLabelValues("disabled")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DirectoryFilterErr.WithLabelValues("displayName")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RateLimited))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuditDropped))
}

func TestHistogramsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveStep("probe", time.Now().Add(-50*time.Millisecond))
	m.ObserveRequest("GET", "/api/cac-data", time.Now())

	assert.Equal(t, 1, testutil.CollectAndCount(m.StepDuration))
	assert.Equal(t, 1, testutil.CollectAndCount(m.RequestDuration))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncrementResolution("success")
		m.IncrementProbeOutcome("tool_missing")
		m.ObserveStep("probe", time.Now())
		m.IncrementDirectoryLookup("found")
		m.IncrementDirectoryFilterFailure("cn")
		m.IncrementRateLimited()
		m.IncrementAuditDropped()
		m.ObserveRequest("GET", "/", time.Now())
	})
}

func TestNewOnSeparateRegistriesDoesNotPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}
