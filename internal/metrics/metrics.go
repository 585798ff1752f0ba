// Package metrics holds the Prometheus collectors for the automation pipeline.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "wacrm"

type Pipeline struct {
	queueItems        *prometheus.CounterVec
	queuePassDuration prometheus.Histogram
	rulesEvaluated    *prometheus.CounterVec
	actions           *prometheus.CounterVec
	deliveries        *prometheus.CounterVec
	deliveryDuration  *prometheus.HistogramVec
	inboundMessages   *prometheus.CounterVec
	cacheLookups      *prometheus.CounterVec
}

var (
	pipelineOnce sync.Once
	pipeline     *Pipeline
)

// Default returns the process-wide collectors registered on the default registry.
func Default() *Pipeline {
	pipelineOnce.Do(func() {
		pipeline = New(prometheus.DefaultRegisterer)
	})
	return pipeline
}

// New registers a fresh set of collectors. Tests pass their own registry.
func New(registerer prometheus.Registerer) *Pipeline {
	p := &Pipeline{
		queueItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "automation",
			Name:      "queue_items_total",
			Help:      "Queue items processed by outcome.",
		}, []string{"outcome"}),
		queuePassDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "automation",
			Name:      "queue_pass_duration_seconds",
			Help:      "Duration of a queue consumer pass.",
			Buckets:   prometheus.DefBuckets,
		}),
		rulesEvaluated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "automation",
			Name:      "rules_evaluated_total",
			Help:      "Rules evaluated by trigger and match result.",
		}, []string{"trigger", "matched"}),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "automation",
			Name:      "actions_total",
			Help:      "Actions executed by type and result.",
		}, []string{"type", "result"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "delivery_attempts_total",
			Help:      "Webhook delivery attempts by resulting status.",
		}, []string{"status"}),
		deliveryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "delivery_duration_seconds",
			Help:      "HTTP duration of webhook delivery attempts.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"event"}),
		inboundMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "inbound",
			Name:      "messages_total",
			Help:      "Provider messages ingested, split into created and duplicate.",
		}, []string{"result"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Cache lookups by source and hit/miss.",
		}, []string{"source", "result"}),
	}

	if registerer != nil {
		registerer.MustRegister(
			p.queueItems,
			p.queuePassDuration,
			p.rulesEvaluated,
			p.actions,
			p.deliveries,
			p.deliveryDuration,
			p.inboundMessages,
			p.cacheLookups,
		)
	}
	return p
}

func (p *Pipeline) QueueItem(outcome string) {
	if p == nil {
		return
	}
	p.queueItems.WithLabelValues(outcome).Inc()
}

func (p *Pipeline) ObservePass(d time.Duration) {
	if p == nil {
		return
	}
	p.queuePassDuration.Observe(d.Seconds())
}

func (p *Pipeline) RuleEvaluated(trigger string, matched bool) {
	if p == nil {
		return
	}
	p.rulesEvaluated.WithLabelValues(trigger, boolLabel(matched)).Inc()
}

func (p *Pipeline) ActionExecuted(actionType string, success bool) {
	if p == nil {
		return
	}
	result := "success"
	if !success {
		result = "error"
	}
	p.actions.WithLabelValues(actionType, result).Inc()
}

func (p *Pipeline) DeliveryAttempt(status string, event string, d time.Duration) {
	if p == nil {
		return
	}
	p.deliveries.WithLabelValues(status).Inc()
	p.deliveryDuration.WithLabelValues(event).Observe(d.Seconds())
}

func (p *Pipeline) InboundMessage(created bool) {
	if p == nil {
		return
	}
	result := "duplicate"
	if created {
		result = "created"
	}
	p.inboundMessages.WithLabelValues(result).Inc()
}

func (p *Pipeline) CacheLookup(source string, hit bool) {
	if p == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	p.cacheLookups.WithLabelValues(source, result).Inc()
}

func boolLabel(v bool) string {
	if v {
		return "true"
	}
	return "false"
}
