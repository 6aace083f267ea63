package rediscache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/campaign-autopilot/internal/domain"
	"github.com/ignite/campaign-autopilot/internal/service/rule"
)

// countingRepo tracks how often the durable store is hit.
type countingRepo struct {
	rules       map[uuid.UUID]*domain.Rule
	getCalls    int
	activeCalls int
}

func newCountingRepo() *countingRepo {
	return &countingRepo{rules: make(map[uuid.UUID]*domain.Rule)}
}

func (m *countingRepo) Get(_ context.Context, id uuid.UUID) (*domain.Rule, error) {
	m.getCalls++
	r, ok := m.rules[id]
	if !ok {
		return nil, rule.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *countingRepo) ListActive(_ context.Context) ([]domain.Rule, error) {
	m.activeCalls++
	var out []domain.Rule
	for _, r := range m.rules {
		if r.Status == domain.RuleActive {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *countingRepo) List(_ context.Context, _ rule.ListFilter) ([]domain.Rule, int, error) {
	return nil, 0, nil
}

func (m *countingRepo) Create(_ context.Context, r *domain.Rule) error {
	cp := *r
	m.rules[cp.ID] = &cp
	return nil
}

func (m *countingRepo) Update(_ context.Context, r *domain.Rule) error {
	cp := *r
	m.rules[cp.ID] = &cp
	return nil
}

func (m *countingRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.rules, id)
	return nil
}

func (m *countingRepo) UpdateStatus(_ context.Context, id uuid.UUID, status domain.RuleStatus) error {
	m.rules[id].Status = status
	return nil
}

func (m *countingRepo) TouchLastTriggered(_ context.Context, id uuid.UUID, at time.Time) error {
	m.rules[id].LastTriggeredAt = &at
	return nil
}

func newCache(t *testing.T) (*RuleCache, *countingRepo) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	repo := newCountingRepo()
	return New(repo, client, time.Minute), repo
}

func activeRule() *domain.Rule {
	return &domain.Rule{
		ID:         uuid.New(),
		CampaignID: uuid.New(),
		Name:       "r",
		Status:     domain.RuleActive,
		Condition:  domain.Condition{Type: domain.ConditionBudgetDepleted},
		Action:     domain.Action{Type: domain.ActionNotify},
		Schedule:   domain.Schedule{Type: domain.ScheduleContinuous},
	}
}

func TestGetReadsThroughOnce(t *testing.T) {
	cache, repo := newCache(t)
	ctx := context.Background()

	r := activeRule()
	require.NoError(t, cache.Create(ctx, r))

	for i := 0; i < 3; i++ {
		got, err := cache.Get(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, r.ID, got.ID)
	}
	assert.Equal(t, 1, repo.getCalls, "second and third Get should be served from cache")
}

func TestWritesInvalidateActiveSet(t *testing.T) {
	cache, repo := newCache(t)
	ctx := context.Background()

	r := activeRule()
	require.NoError(t, cache.Create(ctx, r))

	active, err := cache.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, 1, repo.activeCalls)

	// Cached now.
	_, err = cache.ListActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, repo.activeCalls)

	// Deactivation must invalidate the cached active set, not mutate it.
	require.NoError(t, cache.UpdateStatus(ctx, r.ID, domain.RuleInactive))

	active, err = cache.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
	assert.Equal(t, 2, repo.activeCalls)
}

func TestGetMissPropagatesNotFound(t *testing.T) {
	cache, _ := newCache(t)
	_, err := cache.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, rule.ErrNotFound)
}
