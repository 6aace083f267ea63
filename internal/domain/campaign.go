package domain

import (
	"github.com/google/uuid"
)

// CampaignState enumerates the control states reported by the external
// campaign control service. Buying and serving campaigns is out of scope;
// this is only the view the rule engine needs.
type CampaignState string

const (
	CampaignRunning CampaignState = "running"
	CampaignPaused  CampaignState = "paused"
	CampaignEnded   CampaignState = "ended"
)

// Campaign is the read model returned by the campaign control service.
type Campaign struct {
	ID          uuid.UUID     `json:"id"`
	Name        string        `json:"name"`
	State       CampaignState `json:"state"`
	DailyBudget float64       `json:"daily_budget"`
	Spend       float64       `json:"spend"`
}
