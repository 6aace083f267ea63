package domain

import (
	"time"

	"github.com/google/uuid"
)

// ActionOutcome enumerates the result of applying an action.
type ActionOutcome string

const (
	OutcomeSuccess ActionOutcome = "success"
	OutcomeFailure ActionOutcome = "failure"
	// OutcomeNotApplicable is used when no campaign mutation was attempted:
	// notify actions, dry-run records, and non-triggering manual runs.
	OutcomeNotApplicable ActionOutcome = "not_applicable"
)

// ExecutionRecord is an immutable audit entry for one rule evaluation that
// triggered, or that was explicitly requested via run-now. Records are
// append-only: corrections are made by appending a superseding record,
// never by mutating history.
type ExecutionRecord struct {
	ID              uuid.UUID          `json:"id"`
	RuleID          uuid.UUID          `json:"rule_id"`
	CampaignID      uuid.UUID          `json:"campaign_id"`
	TriggeredAt     time.Time          `json:"triggered_at"`
	MetricsSnapshot map[string]float64 `json:"metrics_snapshot"`
	Triggered       bool               `json:"triggered"`
	ActionOutcome   ActionOutcome      `json:"action_outcome"`
	Manual          bool               `json:"manual"`
	Detail          string             `json:"detail,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
}
