// Package engine implements the campaign automation rule engine: condition
// evaluation, due-instant scheduling, action execution, and the orchestrating
// tick loop with per-rule mutual exclusion.
package engine

import (
	"fmt"
	"strconv"

	"github.com/ignite/campaign-autopilot/internal/domain"
)

// Evaluation is the outcome of checking one condition against one metrics
// snapshot. Detail is a human-readable explanation carried into execution
// records and test-condition responses.
type Evaluation struct {
	WouldTrigger bool   `json:"would_trigger"`
	Detail       string `json:"detail"`
}

// Evaluate is a pure function: it checks the condition against the snapshot
// and never touches external state, so it is safe for both the live
// evaluation path and the dry-run/test path.
//
// A metric missing from the snapshot never satisfies a condition; it yields
// WouldTrigger=false with an explicit "unavailable" detail.
func Evaluate(c domain.Condition, snapshot map[string]float64) Evaluation {
	switch c.Type {
	case domain.ConditionMetricThreshold:
		v, ok := snapshot[string(c.Metric)]
		if !ok {
			return unavailable(string(c.Metric))
		}
		return Evaluation{
			WouldTrigger: compare(c.Operator, v, c.Value),
			Detail:       fmt.Sprintf("%s=%s %s %s", c.Metric, ftoa(v), c.Operator, ftoa(c.Value)),
		}

	case domain.ConditionROIBased:
		roi, ok := snapshot[string(domain.MetricROI)]
		if !ok {
			return unavailable(string(domain.MetricROI))
		}
		return Evaluation{
			WouldTrigger: roi < c.Value,
			Detail:       fmt.Sprintf("roi=%s%% floor=%s%%", ftoa(roi), ftoa(c.Value)),
		}

	case domain.ConditionBudgetDepleted:
		spend, haveSpend := snapshot[string(domain.MetricSpend)]
		allocated, haveBudget := snapshot[string(domain.MetricAllocatedBudget)]
		if !haveSpend {
			return unavailable(string(domain.MetricSpend))
		}
		if !haveBudget || allocated <= 0 {
			return unavailable(string(domain.MetricAllocatedBudget))
		}
		ratio := spend / allocated
		return Evaluation{
			WouldTrigger: ratio >= domain.BudgetDepletedRatio,
			Detail:       fmt.Sprintf("budget consumed %.1f%% of %s", ratio*100, ftoa(allocated)),
		}

	case domain.ConditionTimeBased:
		// The scheduler only invokes this at due instants.
		return Evaluation{WouldTrigger: true, Detail: "scheduled time reached"}

	default:
		// Unknown types are rejected at creation; reaching here means a bad
		// row was written around the service layer. Fail closed.
		return Evaluation{WouldTrigger: false, Detail: fmt.Sprintf("unknown condition type %q", c.Type)}
	}
}

// compare applies the operator to the live metric value and the threshold.
// Comparisons use the operand values directly; eq is exact and only
// meaningful for metrics that are themselves exact (counts).
func compare(op domain.Operator, value, threshold float64) bool {
	switch op {
	case domain.OpGT:
		return value > threshold
	case domain.OpLT:
		return value < threshold
	case domain.OpEQ:
		return value == threshold
	case domain.OpGTE:
		return value >= threshold
	case domain.OpLTE:
		return value <= threshold
	default:
		return false
	}
}

func unavailable(metric string) Evaluation {
	return Evaluation{WouldTrigger: false, Detail: fmt.Sprintf("metric %s unavailable", metric)}
}

func ftoa(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
