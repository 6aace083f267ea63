package engine

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/ignite/campaign-autopilot/internal/domain"
	"github.com/ignite/campaign-autopilot/internal/pkg/logger"
)

// Scheduler decides, for every active rule, whether "now" falls on a due
// instant of the rule's schedule. It is stateful only to the extent of
// remembering which instant it last handed out per rule, so a recurring or
// one_time schedule cannot re-fire within the same tick window.
type Scheduler struct {
	tick time.Duration
	loc  *time.Location

	mu    sync.Mutex
	fired map[uuid.UUID]time.Time // last due instant handed out, per rule
}

// NewScheduler creates a scheduler with the given tick granularity.
// loc is the timezone in which schedule instants are interpreted; nil
// means UTC.
func NewScheduler(tick time.Duration, loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		tick:  tick,
		loc:   loc,
		fired: make(map[uuid.UUID]time.Time),
	}
}

// Due returns the subset of rules whose schedule fires at or before now
// since the previous tick. Callers pass only active rules; completed and
// inactive rules are filtered defensively anyway.
func (s *Scheduler) Due(now time.Time, rules []domain.Rule) []domain.Rule {
	now = now.In(s.loc)

	var due []domain.Rule
	for _, r := range rules {
		if r.Status != domain.RuleActive {
			continue
		}
		if s.isDue(now, &r) {
			due = append(due, r)
		}
	}

	s.prune(now, rules)
	return due
}

func (s *Scheduler) isDue(now time.Time, r *domain.Rule) bool {
	switch r.Schedule.Type {
	case domain.ScheduleContinuous:
		return true

	case domain.ScheduleOneTime:
		at, err := r.Schedule.OneTimeAt(s.loc)
		if err != nil {
			logger.Warn("one_time schedule unparseable, skipping", "rule_id", r.ID.String(), "error", err)
			return false
		}
		if now.Before(at) {
			return false
		}
		return s.claim(r.ID, at)

	case domain.ScheduleRecurring:
		spec, err := r.Schedule.CronSpec()
		if err != nil {
			logger.Warn("recurring schedule unparseable, skipping", "rule_id", r.ID.String(), "error", err)
			return false
		}
		sched, err := cron.ParseStandard(spec)
		if err != nil {
			logger.Warn("cron spec rejected, skipping", "rule_id", r.ID.String(), "spec", spec, "error", err)
			return false
		}
		// The most recent due instant is the first one strictly after the
		// start of the current tick window.
		instant := sched.Next(now.Add(-s.tick))
		if instant.After(now) {
			return false
		}
		return s.claim(r.ID, instant)

	default:
		return false
	}
}

// claim records the instant as handed out and reports whether it was new.
// A rule is never due twice for the same instant.
func (s *Scheduler) claim(id uuid.UUID, instant time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.fired[id]; ok && prev.Equal(instant) {
		return false
	}
	s.fired[id] = instant
	return true
}

// prune drops firing state for rules that no longer exist or are no longer
// active, so the map cannot grow unboundedly across rule churn.
func (s *Scheduler) prune(now time.Time, rules []domain.Rule) {
	live := make(map[uuid.UUID]bool, len(rules))
	for _, r := range rules {
		if r.Status == domain.RuleActive {
			live[r.ID] = true
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, at := range s.fired {
		if !live[id] && now.Sub(at) > 24*time.Hour {
			delete(s.fired, id)
		}
	}
}
