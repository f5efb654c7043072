// Package metrics provides internal Prometheus metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds the engine's Prometheus metrics.
type Collector struct {
	stepsTotal         *prometheus.CounterVec
	stepDuration       *prometheus.HistogramVec
	decisionsTotal     *prometheus.CounterVec
	toolRunsTotal      *prometheus.CounterVec
	workflowsTotal     *prometheus.CounterVec
	logAppendsTotal    *prometheus.CounterVec
	suspendedWorkflows prometheus.Gauge
}

// NewCollector registers the engine metrics on reg. Pass
// prometheus.DefaultRegisterer in production; tests use a private
// registry so parallel tests do not collide.
func NewCollector(namespace string, reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		stepsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_steps_total",
			Help:      "Workflow steps executed, by agent and outcome.",
		}, []string{"agent_id", "outcome"}),
		stepDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "workflow_step_duration_seconds",
			Help:      "Wall time of one agent turn including generation.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"agent_id"}),
		decisionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "strategy_decisions_total",
			Help:      "Routing decisions, by strategy and decision kind.",
		}, []string{"strategy", "kind"}),
		toolRunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_runs_total",
			Help:      "Tool run state transitions.",
		}, []string{"state"}),
		workflowsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflows_total",
			Help:      "Workflows reaching a terminal status.",
		}, []string{"status"}),
		logAppendsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "log_appends_total",
			Help:      "Event log appends, by result.",
		}, []string{"result"}),
		suspendedWorkflows: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workflows_suspended",
			Help:      "Workflows currently suspended for approval.",
		}),
	}
}

// RecordStep counts one executed step.
func (c *Collector) RecordStep(agentID, outcome string, duration time.Duration) {
	if c == nil {
		return
	}
	c.stepsTotal.WithLabelValues(agentID, outcome).Inc()
	c.stepDuration.WithLabelValues(agentID).Observe(duration.Seconds())
}

// RecordDecision counts one strategy decision.
func (c *Collector) RecordDecision(strategy, kind string) {
	if c == nil {
		return
	}
	c.decisionsTotal.WithLabelValues(strategy, kind).Inc()
}

// RecordToolRun counts one tool run transition.
func (c *Collector) RecordToolRun(state string) {
	if c == nil {
		return
	}
	c.toolRunsTotal.WithLabelValues(state).Inc()
}

// RecordWorkflow counts one workflow reaching a terminal status.
func (c *Collector) RecordWorkflow(status string) {
	if c == nil {
		return
	}
	c.workflowsTotal.WithLabelValues(status).Inc()
}

// RecordLogAppend counts one log append attempt.
func (c *Collector) RecordLogAppend(ok bool) {
	if c == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	c.logAppendsTotal.WithLabelValues(result).Inc()
}

// SetSuspended moves the suspended-workflow gauge.
func (c *Collector) SetSuspended(delta float64) {
	if c == nil {
		return
	}
	c.suspendedWorkflows.Add(delta)
}
