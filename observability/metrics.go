// Package observability exposes the engine's prometheus collectors.
package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// EngineMetrics aggregates the collectors recorded by the operation facade.
type EngineMetrics struct {
	Operations  *prometheus.CounterVec
	RunDuration prometheus.Histogram
	CyclesFound prometheus.Counter
	Selected    prometheus.Counter
	Transitions *prometheus.CounterVec
	Webhooks    *prometheus.CounterVec
}

var (
	engineOnce     sync.Once
	engineRegistry *EngineMetrics
)

// Engine returns the lazily-initialised engine metrics, registered with the
// default prometheus registry.
func Engine() *EngineMetrics {
	engineOnce.Do(func() {
		engineRegistry = &EngineMetrics{
			Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "swapring",
				Subsystem: "engine",
				Name:      "operations_total",
				Help:      "Engine operations segmented by operation id and outcome code.",
			}, []string{"operation", "outcome"}),
			RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "swapring",
				Subsystem: "matching",
				Name:      "run_duration_seconds",
				Help:      "Wall time of matching runs.",
				Buckets:   prometheus.DefBuckets,
			}),
			CyclesFound: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "swapring",
				Subsystem: "matching",
				Name:      "cycles_enumerated_total",
				Help:      "Simple cycles enumerated across matching runs.",
			}),
			Selected: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "swapring",
				Subsystem: "matching",
				Name:      "proposals_selected_total",
				Help:      "Disjoint proposals selected across matching runs.",
			}),
			Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "swapring",
				Subsystem: "settlement",
				Name:      "transitions_total",
				Help:      "Settlement state transitions segmented by target state.",
			}, []string{"to_state"}),
			Webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "swapring",
				Subsystem: "delivery",
				Name:      "webhook_envelopes_total",
				Help:      "Webhook envelopes segmented by ingest result.",
			}, []string{"result"}),
		}
		prometheus.MustRegister(
			engineRegistry.Operations,
			engineRegistry.RunDuration,
			engineRegistry.CyclesFound,
			engineRegistry.Selected,
			engineRegistry.Transitions,
			engineRegistry.Webhooks,
		)
	})
	return engineRegistry
}

// ObserveRun records one matching run.
func (m *EngineMetrics) ObserveRun(start time.Time, cycles, selected int) {
	if m == nil {
		return
	}
	m.RunDuration.Observe(time.Since(start).Seconds())
	m.CyclesFound.Add(float64(cycles))
	m.Selected.Add(float64(selected))
}
