// Package rediscache provides a read-through Redis cache in front of the
// rule repository. The cache is never an independent copy of the data: every
// write goes to the underlying repository first and invalidates the affected
// keys, and any Redis failure silently degrades to the durable store.
package rediscache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/campaign-autopilot/internal/domain"
	"github.com/ignite/campaign-autopilot/internal/pkg/logger"
	"github.com/ignite/campaign-autopilot/internal/service/rule"
)

const (
	ruleKeyPrefix = "rulecache:rule:"
	activeSetKey  = "rulecache:active"
)

// RuleCache decorates a rule.Repository with read-through caching for the
// two hot reads: Get (per-rule) and ListActive (per-tick).
type RuleCache struct {
	inner  rule.Repository
	client *redis.Client
	ttl    time.Duration
}

// New wraps repo with a Redis cache. TTL bounds staleness if an invalidation
// is ever lost (e.g. a write from a process that crashed mid-sequence).
func New(repo rule.Repository, client *redis.Client, ttl time.Duration) *RuleCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RuleCache{inner: repo, client: client, ttl: ttl}
}

func (c *RuleCache) Get(ctx context.Context, id uuid.UUID) (*domain.Rule, error) {
	key := ruleKeyPrefix + id.String()
	if data, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var r domain.Rule
		if err := json.Unmarshal(data, &r); err == nil {
			return &r, nil
		}
		// Corrupt entry: drop it and fall through to the store.
		c.client.Del(ctx, key)
	}

	r, err := c.inner.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, r)
	return r, nil
}

func (c *RuleCache) ListActive(ctx context.Context) ([]domain.Rule, error) {
	if data, err := c.client.Get(ctx, activeSetKey).Bytes(); err == nil {
		var rules []domain.Rule
		if err := json.Unmarshal(data, &rules); err == nil {
			return rules, nil
		}
		c.client.Del(ctx, activeSetKey)
	}

	rules, err := c.inner.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	c.store(ctx, activeSetKey, rules)
	return rules, nil
}

// List is not cached: it is a paginated management-surface read, not a hot path.
func (c *RuleCache) List(ctx context.Context, f rule.ListFilter) ([]domain.Rule, int, error) {
	return c.inner.List(ctx, f)
}

func (c *RuleCache) Create(ctx context.Context, r *domain.Rule) error {
	if err := c.inner.Create(ctx, r); err != nil {
		return err
	}
	c.invalidate(ctx, r.ID)
	return nil
}

func (c *RuleCache) Update(ctx context.Context, r *domain.Rule) error {
	if err := c.inner.Update(ctx, r); err != nil {
		return err
	}
	c.invalidate(ctx, r.ID)
	return nil
}

func (c *RuleCache) Delete(ctx context.Context, id uuid.UUID) error {
	if err := c.inner.Delete(ctx, id); err != nil {
		return err
	}
	c.invalidate(ctx, id)
	return nil
}

func (c *RuleCache) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.RuleStatus) error {
	if err := c.inner.UpdateStatus(ctx, id, status); err != nil {
		return err
	}
	c.invalidate(ctx, id)
	return nil
}

func (c *RuleCache) TouchLastTriggered(ctx context.Context, id uuid.UUID, at time.Time) error {
	if err := c.inner.TouchLastTriggered(ctx, id, at); err != nil {
		return err
	}
	c.invalidate(ctx, id)
	return nil
}

func (c *RuleCache) store(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		logger.Debug("rule cache set failed", "key", key, "error", err)
	}
}

func (c *RuleCache) invalidate(ctx context.Context, id uuid.UUID) {
	if err := c.client.Del(ctx, ruleKeyPrefix+id.String(), activeSetKey).Err(); err != nil {
		logger.Warn("rule cache invalidation failed", "rule_id", fmt.Sprint(id), "error", err)
	}
}
