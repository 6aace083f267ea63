package rule

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/campaign-autopilot/internal/domain"
)

// Service implements rule business logic. All public methods are safe for
// concurrent use if the underlying repository is concurrency-safe.
type Service struct {
	repo Repository
	now  func() time.Time
	loc  *time.Location
}

// NewService creates a rule service backed by the given repository.
// loc is the timezone in which one_time and recurring schedule instants
// are interpreted; nil means UTC.
func NewService(repo Repository, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{repo: repo, now: time.Now, loc: loc}
}

// CreateInput holds the fields for a new rule.
type CreateInput struct {
	CampaignID   uuid.UUID                  `json:"campaign_id"`
	Name         string                     `json:"name"`
	Description  string                     `json:"description"`
	Condition    domain.Condition           `json:"condition"`
	Action       domain.Action              `json:"action"`
	Schedule     domain.Schedule            `json:"schedule"`
	Notification *domain.NotificationConfig `json:"notification,omitempty"`
	Active       bool                       `json:"active"`
}

// Create validates and persists a new rule. New rules start inactive unless
// Active is set.
func (s *Service) Create(ctx context.Context, input CreateInput) (*domain.Rule, error) {
	r := &domain.Rule{
		ID:           uuid.New(),
		CampaignID:   input.CampaignID,
		Name:         input.Name,
		Description:  input.Description,
		Status:       domain.RuleInactive,
		Condition:    input.Condition,
		Action:       input.Action,
		Schedule:     input.Schedule,
		Notification: input.Notification,
	}
	if input.Active {
		r.Status = domain.RuleActive
	}

	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if r.Schedule.Type == domain.ScheduleOneTime {
		at, err := r.Schedule.OneTimeAt(s.loc)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		if !at.After(s.now()) {
			return nil, fmt.Errorf("%w: one_time schedule instant %s is in the past", ErrInvalid, at.Format(time.RFC3339))
		}
	}

	if err := s.repo.Create(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// UpdateInput holds the mutable fields for a rule update.
// Nil fields are not applied.
type UpdateInput struct {
	Name         *string                    `json:"name,omitempty"`
	Description  *string                    `json:"description,omitempty"`
	Condition    *domain.Condition          `json:"condition,omitempty"`
	Action       *domain.Action             `json:"action,omitempty"`
	Schedule     *domain.Schedule           `json:"schedule,omitempty"`
	Notification *domain.NotificationConfig `json:"notification,omitempty"`
}

// Update applies a partial update to a rule. Completed rules are immutable.
func (s *Service) Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*domain.Rule, error) {
	r, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.IsTerminal() {
		return nil, ErrCompleted
	}

	if input.Name != nil {
		r.Name = *input.Name
	}
	if input.Description != nil {
		r.Description = *input.Description
	}
	if input.Condition != nil {
		r.Condition = *input.Condition
	}
	if input.Action != nil {
		r.Action = *input.Action
	}
	if input.Schedule != nil {
		r.Schedule = *input.Schedule
	}
	if input.Notification != nil {
		r.Notification = input.Notification
	}

	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	if err := s.repo.Update(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// Get returns a single rule.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*domain.Rule, error) {
	return s.repo.Get(ctx, id)
}

// List returns rules matching the filter.
func (s *Service) List(ctx context.Context, f ListFilter) ([]domain.Rule, int, error) {
	return s.repo.List(ctx, f)
}

// ListActive returns every active rule. Used by the engine each tick.
func (s *Service) ListActive(ctx context.Context) ([]domain.Rule, error) {
	return s.repo.ListActive(ctx)
}

// Delete removes a rule. Its execution history is retained.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

// Activate transitions a rule to active. Completed rules stay completed.
func (s *Service) Activate(ctx context.Context, id uuid.UUID) error {
	return s.transition(ctx, id, domain.RuleActive)
}

// Deactivate transitions a rule to inactive. Completed rules stay completed.
func (s *Service) Deactivate(ctx context.Context, id uuid.UUID) error {
	return s.transition(ctx, id, domain.RuleInactive)
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, to domain.RuleStatus) error {
	r, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if r.IsTerminal() {
		return ErrCompleted
	}
	if r.Status == to {
		return nil
	}
	return s.repo.UpdateStatus(ctx, id, to)
}

// MarkCompleted moves a rule to its terminal state. Called by the engine
// after a one_time schedule's evaluation attempt, and by explicit user
// action.
func (s *Service) MarkCompleted(ctx context.Context, id uuid.UUID) error {
	return s.repo.UpdateStatus(ctx, id, domain.RuleCompleted)
}

// TouchLastTriggered records the instant of the rule's latest trigger.
func (s *Service) TouchLastTriggered(ctx context.Context, id uuid.UUID, at time.Time) error {
	return s.repo.TouchLastTriggered(ctx, id, at)
}

// SetNotification replaces a rule's notification config. Passing nil
// removes it.
func (s *Service) SetNotification(ctx context.Context, id uuid.UUID, cfg *domain.NotificationConfig) (*domain.Rule, error) {
	r, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.IsTerminal() {
		return nil, ErrCompleted
	}
	if cfg != nil {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("%w: notification: %v", ErrInvalid, err)
		}
	}
	r.Notification = cfg
	if err := s.repo.Update(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}
