// Package metrics exposes the Prometheus metrics of a box.
//
// Metrics exposed:
//   - enerbox_requests_total: handled requests, by whether the allocation ran
//   - enerbox_local_cost_milliseconds: histogram of observed local costs
//   - enerbox_remote_call_seconds: histogram of downstream call latency
//   - enerbox_remote_calls_total: downstream calls by remote and outcome
//   - enerbox_objective: last objective allotted to each service
//   - enerbox_allocation_ready: 1 when every service has data
//   - enerbox_local_samples: local samples held
//   - enerbox_errors_total: errors by component and reason
//
// All metrics carry the service label of the box.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics of a box.
type Metrics struct {
	RequestsTotal     *prometheus.CounterVec
	LocalCostMillis   prometheus.Histogram
	RemoteCallSeconds prometheus.Histogram
	RemoteCallsTotal  *prometheus.CounterVec
	Objective         *prometheus.GaugeVec
	AllocationReady   prometheus.Gauge
	LocalSamples      prometheus.Gauge
	ErrorsTotal       *prometheus.CounterVec
}

// New creates the metrics and registers them with reg, or with the default
// registry when reg is nil.
func New(service string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	labels := prometheus.Labels{"service": service}

	return &Metrics{
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "enerbox_requests_total",
			Help:        "Handled requests by whether the allocation was triggered",
			ConstLabels: labels,
		}, []string{"triggered"}),

		LocalCostMillis: factory.NewHistogram(prometheus.HistogramOpts{
			Name:        "enerbox_local_cost_milliseconds",
			Help:        "Observed cost of local executions",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(1, 2, 14),
		}),

		RemoteCallSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:        "enerbox_remote_call_seconds",
			Help:        "Latency of downstream calls",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}),

		RemoteCallsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "enerbox_remote_calls_total",
			Help:        "Downstream calls by remote and outcome",
			ConstLabels: labels,
		}, []string{"remote", "outcome"}),

		Objective: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "enerbox_objective",
			Help:        "Last objective allotted to each service (-1 when unknown)",
			ConstLabels: labels,
		}, []string{"target"}),

		AllocationReady: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "enerbox_allocation_ready",
			Help:        "1 when the local service and every remote have data",
			ConstLabels: labels,
		}),

		LocalSamples: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "enerbox_local_samples",
			Help:        "Local cost samples held",
			ConstLabels: labels,
		}),

		ErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "enerbox_errors_total",
			Help:        "Total number of errors by component and reason",
			ConstLabels: labels,
		}, []string{"component", "reason"}),
	}
}

// RecordRequest counts a handled request.
func (m *Metrics) RecordRequest(triggered bool) {
	label := "false"
	if triggered {
		label = "true"
	}
	m.RequestsTotal.WithLabelValues(label).Inc()
}

// RecordLocalCost records the observed cost of a local execution.
func (m *Metrics) RecordLocalCost(millis float64) {
	m.LocalCostMillis.Observe(millis)
}

// RecordRemoteCall records a downstream call.
func (m *Metrics) RecordRemoteCall(remote string, seconds float64, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.RemoteCallSeconds.Observe(seconds)
	m.RemoteCallsTotal.WithLabelValues(remote, outcome).Inc()
}

// SetObjectives records the objectives of the last allocation.
func (m *Metrics) SetObjectives(objectives map[string]float64) {
	for target, v := range objectives {
		m.Objective.WithLabelValues(target).Set(v)
	}
}

// SetReady sets the readiness gauge.
func (m *Metrics) SetReady(ready bool) {
	if ready {
		m.AllocationReady.Set(1)
		return
	}
	m.AllocationReady.Set(0)
}

// SetLocalSamples sets the number of local samples held.
func (m *Metrics) SetLocalSamples(n int) {
	m.LocalSamples.Set(float64(n))
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(component, reason string) {
	m.ErrorsTotal.WithLabelValues(component, reason).Inc()
}
