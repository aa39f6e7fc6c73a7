package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	researchRunsTotal     *prometheus.CounterVec
	researchAttemptsTotal *prometheus.CounterVec
	nodeDuration          *prometheus.HistogramVec
	loopIterations        prometheus.Histogram

	toolExecutionTotal    *prometheus.CounterVec
	toolExecutionDuration *prometheus.HistogramVec

	modelCallsTotal    *prometheus.CounterVec
	modelCallDuration  *prometheus.HistogramVec
	modelTokensTotal   *prometheus.CounterVec
	checkpointWrites   *prometheus.CounterVec
	checkpointDuration *prometheus.HistogramVec
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			researchRunsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "research_runs_total",
					Help: "Total research requests by profile and status.",
				},
				[]string{"profile", "status"},
			),
			researchAttemptsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "research_attempts_total",
					Help: "Total research attempts by status.",
				},
				[]string{"status"},
			),
			nodeDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "research_node_duration_seconds",
					Help:    "Research node execution duration in seconds by node.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"node"},
			),
			loopIterations: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "research_loop_iterations",
					Help:    "Planner passes per completed attempt.",
					Buckets: []float64{1, 2, 3, 4, 6, 8, 12, 16},
				},
			),
			toolExecutionTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tool_execution_total",
					Help: "Total tool executions by tool and status.",
				},
				[]string{"tool", "status"},
			),
			toolExecutionDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "tool_execution_duration_seconds",
					Help:    "Tool execution duration in seconds by tool.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"tool"},
			),
			modelCallsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "model_calls_total",
					Help: "Total language model calls by provider, mode and status.",
				},
				[]string{"provider", "mode", "status"},
			),
			modelCallDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "model_call_duration_seconds",
					Help:    "Language model call duration in seconds by provider.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"provider"},
			),
			modelTokensTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "model_tokens_total",
					Help: "Total tokens consumed by provider and direction.",
				},
				[]string{"provider", "direction"},
			),
			checkpointWrites: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "checkpoint_writes_total",
					Help: "Total checkpoint writes by backend and status.",
				},
				[]string{"backend", "status"},
			),
			checkpointDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "checkpoint_write_duration_seconds",
					Help:    "Checkpoint write duration in seconds by backend.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"backend"},
			),
		}

		prometheus.MustRegister(
			m.researchRunsTotal,
			m.researchAttemptsTotal,
			m.nodeDuration,
			m.loopIterations,
			m.toolExecutionTotal,
			m.toolExecutionDuration,
			m.modelCallsTotal,
			m.modelCallDuration,
			m.modelTokensTotal,
			m.checkpointWrites,
			m.checkpointDuration,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

func RecordResearchRun(profile string, success bool) {
	getMetrics().researchRunsTotal.WithLabelValues(profile, statusLabel(success)).Inc()
}

// RecordAttempt counts one attempt; status is success, retry or fatal.
func RecordAttempt(status string) {
	getMetrics().researchAttemptsTotal.WithLabelValues(status).Inc()
}

func RecordNode(node string, duration time.Duration) {
	getMetrics().nodeDuration.WithLabelValues(node).Observe(duration.Seconds())
}

func RecordLoopIterations(iterations int) {
	getMetrics().loopIterations.Observe(float64(iterations))
}

func RecordToolExecution(tool string, duration time.Duration, success bool) {
	m := getMetrics()
	m.toolExecutionTotal.WithLabelValues(tool, statusLabel(success)).Inc()
	m.toolExecutionDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

// RecordModelCall counts a provider call; mode is tools or plain.
func RecordModelCall(provider, mode string, duration time.Duration, success bool) {
	m := getMetrics()
	m.modelCallsTotal.WithLabelValues(provider, mode, statusLabel(success)).Inc()
	m.modelCallDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

func RecordTokens(provider string, input, output int) {
	m := getMetrics()
	m.modelTokensTotal.WithLabelValues(provider, "input").Add(float64(input))
	m.modelTokensTotal.WithLabelValues(provider, "output").Add(float64(output))
}

func RecordCheckpointWrite(backend string, duration time.Duration, success bool) {
	m := getMetrics()
	m.checkpointWrites.WithLabelValues(backend, statusLabel(success)).Inc()
	m.checkpointDuration.WithLabelValues(backend).Observe(duration.Seconds())
}
