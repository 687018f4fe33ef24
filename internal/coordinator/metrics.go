package coordinator

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rendis/actiondesk/pkg/schema"
)

// Metrics exposes Prometheus collectors for request and action activity.
type Metrics struct {
	requests        *prometheus.CounterVec
	outcomes        *prometheus.CounterVec
	actionDuration  *prometheus.HistogramVec
	credentialSaves *prometheus.CounterVec
	inflight        prometheus.Gauge
}

var (
	defaultMetricsOnce sync.Once
	sharedMetrics      *Metrics
)

// DefaultMetrics returns the instance registered with the global registry.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		sharedMetrics = MustNewMetrics(prometheus.DefaultRegisterer)
	})
	return sharedMetrics
}

// MustNewMetrics registers the collectors with reg and panics on a
// registration conflict. Tests pass a fresh prometheus.NewRegistry().
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "actiondesk",
			Subsystem: "coordinator",
			Name:      "requests_total",
			Help:      "Chat requests processed, by phase and response status.",
		}, []string{"phase", "status"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "actiondesk",
			Subsystem: "coordinator",
			Name:      "action_outcomes_total",
			Help:      "Executed actions, by kind and outcome status.",
		}, []string{"kind", "status"}),
		actionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "actiondesk",
			Subsystem: "coordinator",
			Name:      "action_duration_seconds",
			Help:      "Time spent extracting and executing one action.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		credentialSaves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "actiondesk",
			Subsystem: "coordinator",
			Name:      "credential_saves_total",
			Help:      "Refreshed credentials persisted, by result.",
		}, []string{"result"}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "actiondesk",
			Subsystem: "coordinator",
			Name:      "requests_inflight",
			Help:      "Requests currently in the execution phase.",
		}),
	}
	reg.MustRegister(m.requests, m.outcomes, m.actionDuration, m.credentialSaves, m.inflight)
	return m
}

func (m *Metrics) request(phase string, status schema.ResponseStatus) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(phase, string(status)).Inc()
}

func (m *Metrics) outcome(o schema.Outcome, d time.Duration) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(string(o.Kind), string(o.Status)).Inc()
	m.actionDuration.WithLabelValues(string(o.Kind)).Observe(d.Seconds())
}

func (m *Metrics) credentialSaved(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.credentialSaves.WithLabelValues(result).Inc()
}

func (m *Metrics) executing(delta float64) {
	if m == nil {
		return
	}
	m.inflight.Add(delta)
}
