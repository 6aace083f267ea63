// Package history implements the append-only execution history log.
//
// Records are written once and never updated or deleted; corrections are
// made by appending a superseding record. This keeps the audit trail safe
// under concurrent readers without any locking.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/campaign-autopilot/internal/domain"
)

// Repository defines the data access contract for execution records.
// There is deliberately no update or delete operation.
type Repository interface {
	// Append persists a new record.
	Append(ctx context.Context, rec *domain.ExecutionRecord) error

	// ListForRule returns records for a rule, most recent first.
	ListForRule(ctx context.Context, ruleID uuid.UUID, limit, offset int) ([]domain.ExecutionRecord, error)

	// ListForCampaign returns records for a campaign, most recent first.
	ListForCampaign(ctx context.Context, campaignID uuid.UUID, limit, offset int) ([]domain.ExecutionRecord, error)
}

// Service wraps a Repository with defaulting and bounds.
type Service struct {
	repo Repository
}

// NewService creates an execution history service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Append persists a record, assigning an ID and created_at if unset.
func (s *Service) Append(ctx context.Context, rec *domain.ExecutionRecord) error {
	if rec.RuleID == uuid.Nil {
		return fmt.Errorf("execution record requires a rule_id")
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if rec.TriggeredAt.IsZero() {
		rec.TriggeredAt = rec.CreatedAt
	}
	return s.repo.Append(ctx, rec)
}

// ListForRule returns a rule's records, most recent first.
func (s *Service) ListForRule(ctx context.Context, ruleID uuid.UUID, limit, offset int) ([]domain.ExecutionRecord, error) {
	return s.repo.ListForRule(ctx, ruleID, clampLimit(limit), offset)
}

// ListForCampaign returns a campaign's records, most recent first.
func (s *Service) ListForCampaign(ctx context.Context, campaignID uuid.UUID, limit, offset int) ([]domain.ExecutionRecord, error) {
	return s.repo.ListForCampaign(ctx, campaignID, clampLimit(limit), offset)
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return 50
	}
	return limit
}
