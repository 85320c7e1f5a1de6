// Package metrics exposes Prometheus metrics derived from the event
// stream. The collector is a plain subscriber: it tails the global
// publisher stream and counts, so it adds no write-path coupling.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/foundrydev/foundry/internal/events"
)

// Collector turns foundry events into Prometheus metrics.
type Collector struct {
	registry *prometheus.Registry

	eventsTotal    *prometheus.CounterVec
	gatesApproved  *prometheus.CounterVec
	gatesRejected  prometheus.Counter
	tasksCompleted prometheus.Counter
	tasksFailed    prometheus.Counter
	proofsFailed   prometheus.Counter
	llmTokens      *prometheus.CounterVec
	agentDuration  *prometheus.HistogramVec
}

// NewCollector creates a collector with its own registry.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "foundry_events_total",
			Help: "Events appended to the truth store, by type.",
		}, []string{"type"}),
		gatesApproved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "foundry_gates_approved_total",
			Help: "Gate approvals, by gate.",
		}, []string{"gate"}),
		gatesRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "foundry_gates_rejected_total",
			Help: "Gate rejections.",
		}),
		tasksCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "foundry_tasks_completed_total",
			Help: "Tasks completed successfully.",
		}),
		tasksFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "foundry_tasks_failed_total",
			Help: "Task executions that failed.",
		}),
		proofsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "foundry_proof_integrity_violations_total",
			Help: "Proof artifacts that failed hash verification.",
		}),
		llmTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "foundry_llm_tokens_total",
			Help: "Tokens spent by agent executions, by model and direction.",
		}, []string{"model", "direction"}),
		agentDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "foundry_agent_execution_seconds",
			Help:    "Wall time of agent spawns from start to completion.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"agent"}),
	}
	c.registry.MustRegister(c.eventsTotal, c.gatesApproved, c.gatesRejected,
		c.tasksCompleted, c.tasksFailed, c.proofsFailed, c.llmTokens, c.agentDuration)
	return c
}

// Handler serves the metrics endpoint.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Run tails the publisher's global stream until ctx is done.
func (c *Collector) Run(ctx context.Context, pub events.Publisher) {
	ch := pub.Subscribe(events.GlobalProjectID)
	defer pub.Unsubscribe(events.GlobalProjectID, ch)

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			c.Observe(e)
		}
	}
}

// Observe records one event.
func (c *Collector) Observe(e events.Event) {
	c.eventsTotal.WithLabelValues(string(e.Type)).Inc()

	switch e.Type {
	case events.TypeGateApproved, events.TypeGateSkipped:
		c.gatesApproved.WithLabelValues(e.Str("gate")).Inc()
	case events.TypeGateRejected:
		c.gatesRejected.Inc()
	case events.TypeTaskCompleted:
		c.tasksCompleted.Inc()
	case events.TypeTaskFailed:
		c.tasksFailed.Inc()
	case events.TypeIntegrityViolation:
		c.proofsFailed.Inc()
	case events.TypeAgentCompleted, events.TypeAgentFailed:
		if secs, ok := e.Payload["duration_seconds"].(float64); ok {
			c.agentDuration.WithLabelValues(e.Str("agent")).Observe(secs)
		}
		usage, ok := e.Payload["token_usage"].(map[string]any)
		if !ok {
			return
		}
		model, _ := usage["model"].(string)
		if in, ok := usage["input_tokens"].(float64); ok {
			c.llmTokens.WithLabelValues(model, "input").Add(in)
		}
		if out, ok := usage["output_tokens"].(float64); ok {
			c.llmTokens.WithLabelValues(model, "output").Add(out)
		}
	}
}
