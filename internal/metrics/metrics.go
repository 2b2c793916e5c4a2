// Package metrics holds the prometheus collectors for the pipeline. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	jobRuns       *prometheus.CounterVec
	jobDuration   *prometheus.HistogramVec
	pipeline      *prometheus.CounterVec
	providerCalls *prometheus.CounterVec
	cache         *prometheus.CounterVec
	copyOrders    *prometheus.CounterVec
	notifications *prometheus.CounterVec
	transitions   *prometheus.CounterVec
	streamClients prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalflow_job_runs_total",
			Help: "Scheduled job ticks by outcome (ok, skipped, panic).",
		}, []string{"job", "outcome"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "signalflow_job_duration_seconds",
			Help:    "Wall time of completed job ticks.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"job"}),
		pipeline: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalflow_pipeline_signals_total",
			Help: "Signals seen at each analysis stage.",
		}, []string{"stage"}),
		providerCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalflow_provider_calls_total",
			Help: "Upstream provider calls by outcome.",
		}, []string{"provider", "outcome"}),
		cache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalflow_candle_cache_requests_total",
			Help: "Candle cache lookups by result (hit, miss, stale, unavailable).",
		}, []string{"result"}),
		copyOrders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalflow_copy_orders_total",
			Help: "Copy-trade records by ingestion result.",
		}, []string{"result"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalflow_notifications_total",
			Help: "Outbox notifications by result.",
		}, []string{"result"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalflow_signal_transitions_total",
			Help: "Lifecycle transitions by target status.",
		}, []string{"status"}),
		streamClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signalflow_stream_clients",
			Help: "Connected websocket stream clients.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.jobRuns,
			m.jobDuration,
			m.pipeline,
			m.providerCalls,
			m.cache,
			m.copyOrders,
			m.notifications,
			m.transitions,
			m.streamClients,
		)
	}
	return m
}

func (m *Metrics) JobRun(job, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job, outcome).Inc()
	if outcome == "ok" {
		m.jobDuration.WithLabelValues(job).Observe(took.Seconds())
	}
}

func (m *Metrics) Stage(stage string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.pipeline.WithLabelValues(stage).Add(float64(n))
}

func (m *Metrics) ProviderCall(provider string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.providerCalls.WithLabelValues(provider, outcome).Inc()
}

func (m *Metrics) Cache(result string) {
	if m == nil {
		return
	}
	m.cache.WithLabelValues(result).Inc()
}

func (m *Metrics) CopyOrder(result string) {
	if m == nil {
		return
	}
	m.copyOrders.WithLabelValues(result).Inc()
}

func (m *Metrics) Notification(result string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(result).Inc()
}

func (m *Metrics) Transition(status string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(status).Inc()
}

func (m *Metrics) StreamClients(delta float64) {
	if m == nil {
		return
	}
	m.streamClients.Add(delta)
}
