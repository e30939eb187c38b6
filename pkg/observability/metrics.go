package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Run metrics
	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dataflow_runs_total",
			Help: "Total number of runs",
		},
		[]string{"runner", "status"},
	)

	runDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dataflow_run_duration_seconds",
			Help:    "Run duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"runner"},
	)

	activeRuns = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dataflow_active_runs",
			Help: "Number of runs in progress",
		},
	)

	// Scheduling metrics
	epochsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dataflow_epochs_total",
			Help: "Total number of completed epochs",
		},
		[]string{"runner"},
	)

	waveSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dataflow_wave_size",
			Help:    "Number of agents executed concurrently per wave",
			Buckets: []float64{1, 2, 4, 8, 16, 32, 64},
		},
	)

	// Agent metrics
	agentExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dataflow_agent_executions_total",
			Help: "Total number of agent lifecycle calls",
		},
		[]string{"agent", "phase", "status"},
	)

	agentExecutionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dataflow_agent_execution_duration_seconds",
			Help:    "Agent execute duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"agent"},
	)

	// Streaming metrics
	streamItemsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dataflow_stream_items_total",
			Help: "Total number of streamed items pushed downstream",
		},
		[]string{"agent"},
	)

	initOnce sync.Once
)

// InitMetrics registers the metrics with the default Prometheus registry.
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			runsTotal,
			runDuration,
			activeRuns,
			epochsTotal,
			waveSize,
			agentExecutionsTotal,
			agentExecutionDuration,
			streamItemsTotal,
		)
	})
}

// MetricsHandler returns an HTTP handler for Prometheus metrics
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// RunStarted marks a run as in progress and makes it the run reported by
// /health.
func RunStarted(runner string) {
	activeRuns.Inc()
	runs.started(runner)
}

// RecordRun records a finished run. status is "ok", "error" or "cancelled".
func RecordRun(runner, status string, duration time.Duration) {
	activeRuns.Dec()
	runsTotal.WithLabelValues(runner, status).Inc()
	runDuration.WithLabelValues(runner).Observe(duration.Seconds())
	runs.finished(status)
}

// RecordEpoch records a completed epoch.
func RecordEpoch(runner string) {
	epochsTotal.WithLabelValues(runner).Inc()
	runs.epoch()
}

// RecordWave records the size of an executed wave.
func RecordWave(size int) {
	waveSize.Observe(float64(size))
}

// RecordAgentCall records an agent lifecycle call.
func RecordAgentCall(agent, phase, status string) {
	agentExecutionsTotal.WithLabelValues(agent, phase, status).Inc()
}

// RecordAgentExecution records agent execution metrics
func RecordAgentExecution(agent string, duration time.Duration) {
	agentExecutionDuration.WithLabelValues(agent).Observe(duration.Seconds())
}

// RecordStreamItem records an item pushed by a streaming agent.
func RecordStreamItem(agent string) {
	streamItemsTotal.WithLabelValues(agent).Inc()
}
