package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var stepBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15}

// Metrics holds all Prometheus metrics for the application.
// Every method is safe to call on a nil *Metrics so optional wiring stays terse.
type Metrics struct {
	Resolutions        *prometheus.CounterVec
	ProbeOutcomes      *prometheus.CounterVec
	StepDuration       *prometheus.HistogramVec
	DirectoryLookups   *prometheus.CounterVec
	DirectoryFilterErr *prometheus.CounterVec
	DirectoryCircuit   prometheus.Gauge
	RateLimited        prometheus.Counter
	AuditDropped       prometheus.Counter
	RequestDuration    *prometheus.HistogramVec
}

// New creates and registers all Prometheus metrics against reg. Tests pass a
// fresh prometheus.NewRegistry(); main passes prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Resolutions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mfr_identity_resolutions_total",
			Help: "Identity resolutions by result (success or error category)",
		}, []string{"result"}),
		ProbeOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mfr_smartcard_probe_outcomes_total",
			Help: "Reader probe outcomes",
		}, []string{"outcome"}),
		StepDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mfr_identity_step_duration_seconds",
			Help:    "Duration of each resolution step (probe, extract, directory)",
			Buckets: stepBuckets,
		}, []string{"step"}),
		DirectoryLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mfr_directory_lookups_total",
			Help: "Directory lookups by result (found, not_found, error, disabled, skipped, circuit_open)",
		}, []string{"result"}),
		DirectoryFilterErr: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mfr_directory_filter_failures_total",
			Help: "Directory search attempts that failed, by filter attribute",
		}, []string{"attribute"}),
		DirectoryCircuit: f.NewGauge(prometheus.GaugeOpts{
			Name: "mfr_directory_circuit_open",
			Help: "1 while directory lookups are short-circuited after repeated failures",
		}),
		RateLimited: f.NewCounter(prometheus.CounterOpts{
			Name: "mfr_http_rate_limited_total",
			Help: "Requests rejected by the per-client rate limiter",
		}),
		AuditDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "mfr_audit_events_dropped_total",
			Help: "Audit events dropped because the worker queue was full",
		}),
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mfr_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: stepBuckets,
		}, []string{"method", "route"}),
	}
}

// IncrementResolution records a finished resolution under its result label.
func (m *Metrics) IncrementResolution(result string) {
	if m == nil {
		return
	}
	m.Resolutions.WithLabelValues(result).Inc()
}

// IncrementProbeOutcome records a reader probe outcome.
func (m *Metrics) IncrementProbeOutcome(outcome string) {
	if m == nil {
		return
	}
	m.ProbeOutcomes.WithLabelValues(outcome).Inc()
}

// ObserveStep records the duration of a resolution step.
// Call with time.Now() at the start of the step.
func (m *Metrics) ObserveStep(step string, start time.Time) {
	if m == nil {
		return
	}
	m.StepDuration.WithLabelValues(step).Observe(time.Since(start).Seconds())
}

// IncrementDirectoryLookup records the result of one directory lookup.
func (m *Metrics) IncrementDirectoryLookup(result string) {
	if m == nil {
		return
	}
	m.DirectoryLookups.WithLabelValues(result).Inc()
}

// IncrementDirectoryFilterFailure records one failed search attempt.
func (m *Metrics) IncrementDirectoryFilterFailure(attribute string) {
	if m == nil {
		return
	}
	m.DirectoryFilterErr.WithLabelValues(attribute).Inc()
}

// SetDirectoryCircuitOpen exports the directory breaker position.
func (m *Metrics) SetDirectoryCircuitOpen(open bool) {
	if m == nil {
		return
	}
	v := 0.0
	if open {
		v = 1
	}
	m.DirectoryCircuit.Set(v)
}

func (m *Metrics) IncrementRateLimited() {
	if m == nil {
		return
	}
	m.RateLimited.Inc()
}

func (m *Metrics) IncrementAuditDropped() {
	if m == nil {
		return
	}
	m.AuditDropped.Inc()
}

// ObserveRequest records the latency of an HTTP request.
func (m *Metrics) ObserveRequest(method, route string, start time.Time) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
}
