package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ignite/campaign-autopilot/internal/domain"
	"github.com/ignite/campaign-autopilot/internal/pkg/logger"
)

// CampaignControl is the engine's view of the external campaign control
// service. Pause and Resume are idempotent on the remote side; the executor
// still short-circuits no-op transitions to avoid pointless calls.
type CampaignControl interface {
	Get(ctx context.Context, campaignID uuid.UUID) (*domain.Campaign, error)
	Pause(ctx context.Context, campaignID uuid.UUID) error
	Resume(ctx context.Context, campaignID uuid.UUID) error
	SetBudget(ctx context.Context, campaignID uuid.UUID, dailyBudget float64) error
}

// Executor applies a rule's action to its campaign. Failures are reported as
// an outcome, never as an error: a failed action still produces an execution
// record, and notification delivery is independent of it.
type Executor struct {
	control     CampaignControl
	budgetFloor float64
}

// NewExecutor creates an executor. budgetFloor is the minimum daily budget an
// adjust_budget action may leave a campaign with; 0 disables the floor
// (the non-positive check still applies).
func NewExecutor(control CampaignControl, budgetFloor float64) *Executor {
	return &Executor{control: control, budgetFloor: budgetFloor}
}

// Execute applies the action and returns the outcome plus a human-readable
// detail for the execution record. A notify action touches no campaign state
// and reports not_applicable; delivery happens elsewhere.
func (e *Executor) Execute(ctx context.Context, r *domain.Rule) (domain.ActionOutcome, string) {
	switch r.Action.Type {
	case domain.ActionPauseCampaign:
		return e.pause(ctx, r.CampaignID)
	case domain.ActionResumeCampaign:
		return e.resume(ctx, r.CampaignID)
	case domain.ActionAdjustBudget:
		return e.adjustBudget(ctx, r.CampaignID, r.Action.Value)
	case domain.ActionNotify:
		return domain.OutcomeNotApplicable, "notification only"
	default:
		return domain.OutcomeFailure, fmt.Sprintf("unknown action type %q", r.Action.Type)
	}
}

func (e *Executor) pause(ctx context.Context, campaignID uuid.UUID) (domain.ActionOutcome, string) {
	c, err := e.control.Get(ctx, campaignID)
	if err != nil {
		return e.controlFailure(campaignID, "fetch campaign", err)
	}
	if c.State == domain.CampaignPaused {
		return domain.OutcomeSuccess, "campaign already paused"
	}
	if c.State == domain.CampaignEnded {
		return domain.OutcomeFailure, "campaign has ended"
	}
	if err := e.control.Pause(ctx, campaignID); err != nil {
		return e.controlFailure(campaignID, "pause campaign", err)
	}
	return domain.OutcomeSuccess, "paused campaign"
}

func (e *Executor) resume(ctx context.Context, campaignID uuid.UUID) (domain.ActionOutcome, string) {
	c, err := e.control.Get(ctx, campaignID)
	if err != nil {
		return e.controlFailure(campaignID, "fetch campaign", err)
	}
	if c.State == domain.CampaignRunning {
		return domain.OutcomeSuccess, "campaign already running"
	}
	if c.State == domain.CampaignEnded {
		return domain.OutcomeFailure, "campaign has ended"
	}
	if err := e.control.Resume(ctx, campaignID); err != nil {
		return e.controlFailure(campaignID, "resume campaign", err)
	}
	return domain.OutcomeSuccess, "resumed campaign"
}

func (e *Executor) adjustBudget(ctx context.Context, campaignID uuid.UUID, pct float64) (domain.ActionOutcome, string) {
	c, err := e.control.Get(ctx, campaignID)
	if err != nil {
		return e.controlFailure(campaignID, "fetch campaign", err)
	}

	next := c.DailyBudget * (1 + pct/100)
	if next <= 0 {
		return domain.OutcomeFailure, fmt.Sprintf(
			"adjust_budget %+.0f%% would set a non-positive budget; budget unchanged at %.2f", pct, c.DailyBudget)
	}
	if e.budgetFloor > 0 && next < e.budgetFloor {
		return domain.OutcomeFailure, fmt.Sprintf(
			"adjust_budget %+.0f%% would drop budget below floor %.2f; budget unchanged at %.2f",
			pct, e.budgetFloor, c.DailyBudget)
	}

	if err := e.control.SetBudget(ctx, campaignID, next); err != nil {
		return e.controlFailure(campaignID, "set budget", err)
	}
	return domain.OutcomeSuccess, fmt.Sprintf("adjusted daily budget %.2f -> %.2f (%+.0f%%)", c.DailyBudget, next, pct)
}

func (e *Executor) controlFailure(campaignID uuid.UUID, op string, err error) (domain.ActionOutcome, string) {
	logger.Warn("campaign control call failed",
		"campaign_id", campaignID.String(), "op", op, "error", err)
	return domain.OutcomeFailure, fmt.Sprintf("%s: %v", op, err)
}
