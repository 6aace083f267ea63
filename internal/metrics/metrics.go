// Package metrics defines the Prometheus instrumentation for the rule
// engine. All collectors are registered at init via promauto and exposed on
// the API server's /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Evaluations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "autopilot_rule_evaluations_total",
		Help: "Total rule evaluations, labelled by origin (scheduled or manual).",
	}, []string{"origin"})

	Triggers = promauto.NewCounter(prometheus.CounterOpts{
		Name: "autopilot_rule_triggers_total",
		Help: "Total evaluations whose condition fired.",
	})

	Actions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "autopilot_actions_total",
		Help: "Total actions executed, labelled by type and outcome.",
	}, []string{"action_type", "outcome"})

	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "autopilot_notifications_total",
		Help: "Total notification sends, labelled by channel and status.",
	}, []string{"channel", "status"})

	ConcurrencySkips = promauto.NewCounter(prometheus.CounterOpts{
		Name: "autopilot_evaluation_skips_total",
		Help: "Evaluations skipped because the rule was already being evaluated.",
	})

	MetricFetchFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "autopilot_metric_fetch_failures_total",
		Help: "Metric source calls that failed or timed out (treated as metric unavailable).",
	})

	DueRules = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "autopilot_due_rules",
		Help: "Number of rules due in the most recent tick.",
	})

	TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "autopilot_tick_duration_seconds",
		Help:    "Wall time of one full evaluation tick.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})
)
