// Package metrics exposes workflow- and node-execution metrics as
// prometheus collectors, replacing the teacher's hand-rolled in-memory
// MetricsCollector (monitoring/metrics.go) with the same ecosystem
// library the Size Governor (internal/governor) already registers
// against, and the same workflow/node/LLM metric taxonomy the teacher's
// collector tracked.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector is the set of prometheus collectors registered for one
// process. All fields are safe for concurrent use (prometheus vectors
// are internally synchronized).
type Collector struct {
	ExecutionsTotal   *prometheus.CounterVec
	ExecutionDuration *prometheus.HistogramVec

	NodeExecutionsTotal   *prometheus.CounterVec
	NodeExecutionDuration *prometheus.HistogramVec
	NodeRetriesTotal      *prometheus.CounterVec

	LLMRequestsTotal *prometheus.CounterVec
	LLMTokensTotal   *prometheus.CounterVec
}

// New builds a Collector and registers it against reg (pass nil in tests
// that don't care about registration).
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		ExecutionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "workflow_core", Subsystem: "orchestrator",
			Name: "executions_total", Help: "Total workflow executions by terminal outcome.",
		}, []string{"outcome"}),
		ExecutionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "workflow_core", Subsystem: "orchestrator",
			Name: "execution_duration_seconds", Help: "Wall-clock duration of a workflow execution.",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),
		NodeExecutionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "workflow_core", Subsystem: "dispatch",
			Name: "node_executions_total", Help: "Total node executions by node kind and outcome.",
		}, []string{"kind", "outcome"}),
		NodeExecutionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "workflow_core", Subsystem: "dispatch",
			Name: "node_execution_duration_seconds", Help: "Duration of a single node execution, across all of its attempts.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		NodeRetriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "workflow_core", Subsystem: "dispatch",
			Name: "node_retries_total", Help: "Total retry attempts issued by the retry policy.",
		}, []string{"kind"}),
		LLMRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "workflow_core", Subsystem: "llm",
			Name: "requests_total", Help: "Total LLM node requests by model and outcome.",
		}, []string{"model", "outcome"}),
		LLMTokensTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "workflow_core", Subsystem: "llm",
			Name: "tokens_total", Help: "Total LLM tokens consumed, by model and token kind (prompt/completion).",
		}, []string{"model", "kind"}),
	}
	if reg != nil {
		reg.MustRegister(
			c.ExecutionsTotal, c.ExecutionDuration,
			c.NodeExecutionsTotal, c.NodeExecutionDuration, c.NodeRetriesTotal,
			c.LLMRequestsTotal, c.LLMTokensTotal,
		)
	}
	return c
}

// ObserveExecution records one completed workflow execution.
func (c *Collector) ObserveExecution(outcome string, d time.Duration) {
	c.ExecutionsTotal.WithLabelValues(outcome).Inc()
	c.ExecutionDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// ObserveNode records one node execution's terminal outcome and its
// duration across all of its attempts.
func (c *Collector) ObserveNode(kind, outcome string, d time.Duration) {
	c.NodeExecutionsTotal.WithLabelValues(kind, outcome).Inc()
	c.NodeExecutionDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// ObserveRetry records one retry attempt issued for a node kind.
func (c *Collector) ObserveRetry(kind string) {
	c.NodeRetriesTotal.WithLabelValues(kind).Inc()
}

// ObserveLLM records one LLM call's outcome and token usage.
func (c *Collector) ObserveLLM(model, outcome string, promptTokens, completionTokens int) {
	c.LLMRequestsTotal.WithLabelValues(model, outcome).Inc()
	c.LLMTokensTotal.WithLabelValues(model, "prompt").Add(float64(promptTokens))
	c.LLMTokensTotal.WithLabelValues(model, "completion").Add(float64(completionTokens))
}
