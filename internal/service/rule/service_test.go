package rule_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/campaign-autopilot/internal/domain"
	"github.com/ignite/campaign-autopilot/internal/service/rule"
)

// memRepo is an in-memory rule repository for unit testing.
type memRepo struct {
	mu    sync.Mutex
	rules map[uuid.UUID]*domain.Rule
}

func newMemRepo() *memRepo {
	return &memRepo{rules: make(map[uuid.UUID]*domain.Rule)}
}

func (m *memRepo) Get(_ context.Context, id uuid.UUID) (*domain.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[id]
	if !ok {
		return nil, rule.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memRepo) List(_ context.Context, f rule.ListFilter) ([]domain.Rule, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Rule
	for _, r := range m.rules {
		if f.Status != "" && string(r.Status) != f.Status {
			continue
		}
		if f.CampaignID != uuid.Nil && r.CampaignID != f.CampaignID {
			continue
		}
		out = append(out, *r)
	}
	return out, len(out), nil
}

func (m *memRepo) ListActive(_ context.Context) ([]domain.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Rule
	for _, r := range m.rules {
		if r.Status == domain.RuleActive {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *memRepo) Create(_ context.Context, r *domain.Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.rules[cp.ID] = &cp
	return nil
}

func (m *memRepo) Update(_ context.Context, r *domain.Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rules[r.ID]; !ok {
		return rule.ErrNotFound
	}
	cp := *r
	m.rules[cp.ID] = &cp
	return nil
}

func (m *memRepo) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rules[id]; !ok {
		return rule.ErrNotFound
	}
	delete(m.rules, id)
	return nil
}

func (m *memRepo) UpdateStatus(_ context.Context, id uuid.UUID, status domain.RuleStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[id]
	if !ok {
		return rule.ErrNotFound
	}
	r.Status = status
	return nil
}

func (m *memRepo) TouchLastTriggered(_ context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[id]
	if !ok {
		return rule.ErrNotFound
	}
	r.LastTriggeredAt = &at
	return nil
}

func validInput() rule.CreateInput {
	return rule.CreateInput{
		CampaignID: uuid.New(),
		Name:       "pause on high cpa",
		Condition: domain.Condition{
			Type:     domain.ConditionMetricThreshold,
			Metric:   domain.MetricCPA,
			Operator: domain.OpGT,
			Value:    50,
		},
		Action:   domain.Action{Type: domain.ActionPauseCampaign},
		Schedule: domain.Schedule{Type: domain.ScheduleContinuous},
		Active:   true,
	}
}

func TestCreateValidRule(t *testing.T) {
	svc := rule.NewService(newMemRepo(), nil)

	r, err := svc.Create(context.Background(), validInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if r.Status != domain.RuleActive {
		t.Errorf("status = %s, want active", r.Status)
	}
	if r.ID == uuid.Nil {
		t.Error("expected generated id")
	}
}

func TestCreateRejectsInvalid(t *testing.T) {
	svc := rule.NewService(newMemRepo(), nil)
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*rule.CreateInput)
	}{
		{"missing name", func(in *rule.CreateInput) { in.Name = "" }},
		{"missing campaign", func(in *rule.CreateInput) { in.CampaignID = uuid.Nil }},
		{"unknown metric", func(in *rule.CreateInput) { in.Condition.Metric = "bounce_rate" }},
		{"unknown operator", func(in *rule.CreateInput) { in.Condition.Operator = "neq" }},
		{"budget wipeout", func(in *rule.CreateInput) {
			in.Action = domain.Action{Type: domain.ActionAdjustBudget, Value: -150}
		}},
		{"empty recurring days", func(in *rule.CreateInput) {
			in.Schedule = domain.Schedule{Type: domain.ScheduleRecurring, Time: "09:00"}
		}},
		{"bad recurring time", func(in *rule.CreateInput) {
			in.Schedule = domain.Schedule{Type: domain.ScheduleRecurring, Days: []domain.Weekday{domain.Monday}, Time: "9am"}
		}},
		{"time_based on continuous", func(in *rule.CreateInput) {
			in.Condition = domain.Condition{Type: domain.ConditionTimeBased}
		}},
		{"empty recipients", func(in *rule.CreateInput) {
			in.Notification = &domain.NotificationConfig{Channel: domain.ChannelEmail, MessageTemplate: "hi"}
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := validInput()
			tc.mutate(&in)
			_, err := svc.Create(ctx, in)
			if !errors.Is(err, rule.ErrInvalid) {
				t.Errorf("err = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestCreateRejectsPastOneTime(t *testing.T) {
	svc := rule.NewService(newMemRepo(), nil)

	in := validInput()
	in.Condition = domain.Condition{Type: domain.ConditionTimeBased}
	in.Schedule = domain.Schedule{
		Type:      domain.ScheduleOneTime,
		StartDate: "2020-01-01",
		Time:      "09:00",
	}

	_, err := svc.Create(context.Background(), in)
	if !errors.Is(err, rule.ErrInvalid) {
		t.Fatalf("err = %v, want ErrInvalid", err)
	}
}

func TestCompletedIsTerminal(t *testing.T) {
	repo := newMemRepo()
	svc := rule.NewService(repo, nil)
	ctx := context.Background()

	r, err := svc.Create(ctx, validInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.MarkCompleted(ctx, r.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}

	if err := svc.Activate(ctx, r.ID); !errors.Is(err, rule.ErrCompleted) {
		t.Errorf("activate err = %v, want ErrCompleted", err)
	}
	if _, err := svc.Update(ctx, r.ID, rule.UpdateInput{}); !errors.Is(err, rule.ErrCompleted) {
		t.Errorf("update err = %v, want ErrCompleted", err)
	}

	active, err := svc.ListActive(ctx)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != 0 {
		t.Errorf("completed rule still listed as active")
	}
}

func TestActivateDeactivate(t *testing.T) {
	svc := rule.NewService(newMemRepo(), nil)
	ctx := context.Background()

	in := validInput()
	in.Active = false
	r, err := svc.Create(ctx, in)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := svc.Activate(ctx, r.ID); err != nil {
		t.Fatalf("activate: %v", err)
	}
	got, _ := svc.Get(ctx, r.ID)
	if got.Status != domain.RuleActive {
		t.Errorf("status = %s, want active", got.Status)
	}

	if err := svc.Deactivate(ctx, r.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	got, _ = svc.Get(ctx, r.ID)
	if got.Status != domain.RuleInactive {
		t.Errorf("status = %s, want inactive", got.Status)
	}
}

func TestSetNotification(t *testing.T) {
	svc := rule.NewService(newMemRepo(), nil)
	ctx := context.Background()

	r, err := svc.Create(ctx, validInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	cfg := &domain.NotificationConfig{
		Channel:         domain.ChannelChat,
		Recipients:      []string{"#ad-ops"},
		MessageTemplate: "{{ rule_name }} fired on {{ campaign_name }}",
	}
	updated, err := svc.SetNotification(ctx, r.ID, cfg)
	if err != nil {
		t.Fatalf("set notification: %v", err)
	}
	if updated.Notification == nil || updated.Notification.Channel != domain.ChannelChat {
		t.Error("notification not stored")
	}

	// Removing the config is allowed.
	updated, err = svc.SetNotification(ctx, r.ID, nil)
	if err != nil {
		t.Fatalf("clear notification: %v", err)
	}
	if updated.Notification != nil {
		t.Error("notification not cleared")
	}

	// Empty recipients rejected.
	_, err = svc.SetNotification(ctx, r.ID, &domain.NotificationConfig{Channel: domain.ChannelEmail})
	if !errors.Is(err, rule.ErrInvalid) {
		t.Errorf("err = %v, want ErrInvalid", err)
	}
}
