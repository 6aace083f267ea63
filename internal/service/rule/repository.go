package rule

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/campaign-autopilot/internal/domain"
)

// Repository defines the data access contract for automation rules.
// Implementations must be safe for concurrent use. The repository is the
// single write-owner of the rule aggregate (condition, action, schedule,
// notification config included).
type Repository interface {
	// Get returns a single rule. Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, id uuid.UUID) (*domain.Rule, error)

	// List returns rules matching the given filter, ordered by created_at
	// DESC, plus the unpaginated total.
	List(ctx context.Context, f ListFilter) ([]domain.Rule, int, error)

	// ListActive returns every rule with status=active, for the engine's
	// per-tick due computation.
	ListActive(ctx context.Context) ([]domain.Rule, error)

	// Create inserts a new rule aggregate.
	Create(ctx context.Context, r *domain.Rule) error

	// Update replaces the mutable parts of a rule aggregate.
	Update(ctx context.Context, r *domain.Rule) error

	// Delete removes a rule. Execution history is retained (audit trail).
	Delete(ctx context.Context, id uuid.UUID) error

	// UpdateStatus transitions a rule's status.
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.RuleStatus) error

	// TouchLastTriggered records the instant of the rule's latest trigger.
	TouchLastTriggered(ctx context.Context, id uuid.UUID, at time.Time) error
}

// ListFilter controls pagination and filtering for rule lists.
type ListFilter struct {
	CampaignID uuid.UUID
	Status     string
	Limit      int
	Offset     int
}
