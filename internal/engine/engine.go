package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/campaign-autopilot/internal/domain"
	"github.com/ignite/campaign-autopilot/internal/metrics"
	"github.com/ignite/campaign-autopilot/internal/notify"
	"github.com/ignite/campaign-autopilot/internal/pkg/distlock"
	"github.com/ignite/campaign-autopilot/internal/pkg/logger"
	"github.com/ignite/campaign-autopilot/internal/service/rule"
)

// ErrConcurrentEvaluation is returned when a rule is already being evaluated.
// The caller skips; the overlapping attempt is never queued.
var ErrConcurrentEvaluation = errors.New("rule is already being evaluated")

// RuleStore is the engine's view of rule persistence.
type RuleStore interface {
	ListActive(ctx context.Context) ([]domain.Rule, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.Rule, error)
	MarkCompleted(ctx context.Context, id uuid.UUID) error
	TouchLastTriggered(ctx context.Context, id uuid.UUID, at time.Time) error
}

// HistoryLog appends execution records. Triggered evaluations and manual runs
// are recorded; scheduled evaluations that do not trigger are not.
type HistoryLog interface {
	Append(ctx context.Context, rec *domain.ExecutionRecord) error
}

// MetricSource fetches the live metrics snapshot for a campaign. A failed or
// timed-out fetch is not an evaluation error; it makes every metric
// unavailable for that evaluation.
type MetricSource interface {
	GetMetrics(ctx context.Context, campaignID uuid.UUID) (map[string]float64, error)
}

// Notifier delivers trigger events. Dispatch blocks until delivery settles,
// so the engine invokes it from a goroutine.
type Notifier interface {
	Dispatch(ctx context.Context, cfg *domain.NotificationConfig, ev notify.Event)
}

// LockFactory builds a distributed lock for the given key. A nil factory
// disables cross-host locking; the in-process guard still applies.
type LockFactory func(key string) distlock.DistLock

// Options configures an Engine.
type Options struct {
	Rules    RuleStore
	History  HistoryLog
	Source   MetricSource
	Control  CampaignControl
	Notifier Notifier

	// Tick is the evaluation interval and scheduling granularity.
	Tick time.Duration
	// Workers bounds concurrent rule evaluations per tick.
	Workers int
	// ExternalTimeout bounds each metric source and campaign control call.
	ExternalTimeout time.Duration
	// BudgetFloor is the minimum daily budget adjust_budget may leave.
	BudgetFloor float64
	// Location is the timezone for schedule instants. Nil means UTC.
	Location *time.Location
	// Locks enables cross-host mutual exclusion per rule. Optional.
	Locks LockFactory
}

// Engine runs the evaluation loop: every tick it computes the due subset of
// active rules, snapshots their campaigns' metrics, evaluates conditions, and
// applies actions. Each rule evaluates under mutual exclusion; an instant
// that finds the rule busy is skipped, not queued.
type Engine struct {
	rules    RuleStore
	history  HistoryLog
	source   MetricSource
	control  CampaignControl
	notifier Notifier

	scheduler  *Scheduler
	executor   *Executor
	locks      LockFactory
	tick       time.Duration
	workers    int
	extTimeout time.Duration
	loc        *time.Location
	now        func() time.Time

	inflight sync.Map // uuid.UUID -> struct{}

	mu       sync.Mutex
	lastTick time.Time
}

// New creates an engine. It does not start the loop; call Run.
func New(opts Options) *Engine {
	if opts.Tick <= 0 {
		opts.Tick = time.Minute
	}
	if opts.Workers <= 0 {
		opts.Workers = 8
	}
	if opts.ExternalTimeout <= 0 {
		opts.ExternalTimeout = 10 * time.Second
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Engine{
		rules:      opts.Rules,
		history:    opts.History,
		source:     opts.Source,
		control:    opts.Control,
		notifier:   opts.Notifier,
		scheduler:  NewScheduler(opts.Tick, opts.Location),
		executor:   NewExecutor(opts.Control, opts.BudgetFloor),
		locks:      opts.Locks,
		tick:       opts.Tick,
		workers:    opts.Workers,
		extTimeout: opts.ExternalTimeout,
		loc:        opts.Location,
		now:        time.Now,
	}
}

// Run executes ticks until ctx is cancelled. The first tick runs immediately.
func (e *Engine) Run(ctx context.Context) {
	logger.Info("engine started",
		"tick", e.tick.String(), "workers", e.workers, "timezone", e.loc.String())

	ticker := time.NewTicker(e.tick)
	defer ticker.Stop()

	e.runTick(ctx)
	for {
		select {
		case <-ctx.Done():
			logger.Info("engine stopped")
			return
		case <-ticker.C:
			e.runTick(ctx)
		}
	}
}

func (e *Engine) runTick(ctx context.Context) {
	start := e.now()
	defer func() {
		metrics.TickDuration.Observe(time.Since(start).Seconds())
	}()

	active, err := e.rules.ListActive(ctx)
	if err != nil {
		logger.Error("listing active rules failed, tick skipped", "error", err)
		return
	}

	due := e.scheduler.Due(start, active)
	metrics.DueRules.Set(float64(len(due)))
	if len(due) > 0 {
		logger.Debug("tick", "active_rules", len(active), "due_rules", len(due))
	}

	sem := make(chan struct{}, e.workers)
	var wg sync.WaitGroup
	for i := range due {
		r := due[i]
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			e.evaluateScheduled(ctx, &r)
		}()
	}
	wg.Wait()

	e.mu.Lock()
	e.lastTick = e.now()
	e.mu.Unlock()
}

// evaluateScheduled runs one due evaluation. Non-triggering scheduled
// evaluations leave no execution record; a one_time rule still completes
// after its single attempt either way.
func (e *Engine) evaluateScheduled(ctx context.Context, r *domain.Rule) {
	release, err := e.acquire(ctx, r.ID)
	if err != nil {
		metrics.ConcurrencySkips.Inc()
		logger.Debug("evaluation skipped, rule busy", "rule_id", r.ID.String())
		return
	}
	defer release()

	metrics.Evaluations.WithLabelValues("scheduled").Inc()

	snapshot := e.snapshot(ctx, r.CampaignID)
	ev := Evaluate(r.Condition, snapshot)

	if ev.WouldTrigger {
		e.fire(ctx, r, ev, snapshot, false)
	}

	if r.Schedule.Type == domain.ScheduleOneTime {
		if err := e.rules.MarkCompleted(ctx, r.ID); err != nil {
			logger.Error("marking one_time rule completed failed", "rule_id", r.ID.String(), "error", err)
		}
	}
}

// RunNow evaluates a rule immediately, bypassing its schedule. The evaluation
// is always recorded, triggered or not. A completed rule cannot run.
func (e *Engine) RunNow(ctx context.Context, id uuid.UUID) (*domain.ExecutionRecord, error) {
	r, err := e.rules.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.IsTerminal() {
		return nil, rule.ErrCompleted
	}

	release, err := e.acquire(ctx, r.ID)
	if err != nil {
		metrics.ConcurrencySkips.Inc()
		return nil, ErrConcurrentEvaluation
	}
	defer release()

	metrics.Evaluations.WithLabelValues("manual").Inc()

	snapshot := e.snapshot(ctx, r.CampaignID)
	ev := Evaluate(r.Condition, snapshot)

	if ev.WouldTrigger {
		return e.fire(ctx, r, ev, snapshot, true), nil
	}

	rec := &domain.ExecutionRecord{
		ID:              uuid.New(),
		RuleID:          r.ID,
		CampaignID:      r.CampaignID,
		TriggeredAt:     e.now().UTC(),
		MetricsSnapshot: snapshot,
		Triggered:       false,
		ActionOutcome:   domain.OutcomeNotApplicable,
		Manual:          true,
		Detail:          ev.Detail,
	}
	if err := e.history.Append(ctx, rec); err != nil {
		logger.Error("appending manual execution record failed", "rule_id", r.ID.String(), "error", err)
	}
	return rec, nil
}

// TestResult is the outcome of a dry-run evaluation.
type TestResult struct {
	WouldTrigger bool               `json:"would_trigger"`
	Detail       string             `json:"detail"`
	Snapshot     map[string]float64 `json:"metrics_snapshot"`
}

// TestRule dry-runs a persisted rule's condition against live metrics.
// No action is applied and no record is written.
func (e *Engine) TestRule(ctx context.Context, id uuid.UUID) (*TestResult, error) {
	r, err := e.rules.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return e.TestCondition(ctx, r.CampaignID, r.Condition), nil
}

// TestCondition dry-runs an arbitrary condition against a campaign's live
// metrics, for previewing a rule before it is saved.
func (e *Engine) TestCondition(ctx context.Context, campaignID uuid.UUID, c domain.Condition) *TestResult {
	snapshot := e.snapshot(ctx, campaignID)
	ev := Evaluate(c, snapshot)
	return &TestResult{WouldTrigger: ev.WouldTrigger, Detail: ev.Detail, Snapshot: snapshot}
}

// fire applies the rule's action, records the execution, and dispatches
// notifications. Notification delivery is asynchronous and its failure never
// reverses the action.
func (e *Engine) fire(ctx context.Context, r *domain.Rule, ev Evaluation, snapshot map[string]float64, manual bool) *domain.ExecutionRecord {
	metrics.Triggers.Inc()
	triggeredAt := e.now().UTC()

	// The executor makes at most two control calls; bound them together.
	ectx, cancel := context.WithTimeout(ctx, 2*e.extTimeout)
	outcome, actionDetail := e.executor.Execute(ectx, r)
	cancel()
	metrics.Actions.WithLabelValues(string(r.Action.Type), string(outcome)).Inc()

	logger.Info("rule triggered",
		"rule_id", r.ID.String(), "rule", r.Name, "campaign_id", r.CampaignID.String(),
		"condition", ev.Detail, "action", string(r.Action.Type), "outcome", string(outcome), "manual", manual)

	rec := &domain.ExecutionRecord{
		ID:              uuid.New(),
		RuleID:          r.ID,
		CampaignID:      r.CampaignID,
		TriggeredAt:     triggeredAt,
		MetricsSnapshot: snapshot,
		Triggered:       true,
		ActionOutcome:   outcome,
		Manual:          manual,
		Detail:          ev.Detail + "; " + actionDetail,
	}
	if err := e.history.Append(ctx, rec); err != nil {
		logger.Error("appending execution record failed", "rule_id", r.ID.String(), "error", err)
	}
	if err := e.rules.TouchLastTriggered(ctx, r.ID, triggeredAt); err != nil {
		logger.Error("updating last_triggered_at failed", "rule_id", r.ID.String(), "error", err)
	}

	if e.notifier != nil && r.Notification != nil {
		event := notify.Event{
			RuleName:         r.Name,
			CampaignName:     e.campaignName(ctx, r.CampaignID),
			TriggerCondition: r.Condition.Describe(),
			ActionTaken:      actionDetail,
			At:               triggeredAt,
			Metrics:          snapshot,
		}
		cfg := *r.Notification
		go e.notifier.Dispatch(context.WithoutCancel(ctx), &cfg, event)
	}
	return rec
}

// snapshot fetches the campaign's metrics. Failures degrade to an empty
// snapshot: every metric reads as unavailable and no condition can fire on
// stale or missing data.
func (e *Engine) snapshot(ctx context.Context, campaignID uuid.UUID) map[string]float64 {
	cctx, cancel := context.WithTimeout(ctx, e.extTimeout)
	defer cancel()

	snap, err := e.source.GetMetrics(cctx, campaignID)
	if err != nil {
		metrics.MetricFetchFailures.Inc()
		logger.Warn("metrics snapshot unavailable", "campaign_id", campaignID.String(), "error", err)
		return nil
	}
	return snap
}

func (e *Engine) campaignName(ctx context.Context, campaignID uuid.UUID) string {
	cctx, cancel := context.WithTimeout(ctx, e.extTimeout)
	defer cancel()

	c, err := e.control.Get(cctx, campaignID)
	if err != nil {
		return campaignID.String()
	}
	return c.Name
}

// acquire takes the per-rule mutual exclusion: first the in-process guard,
// then the distributed lock if configured. The returned release undoes both.
func (e *Engine) acquire(ctx context.Context, id uuid.UUID) (func(), error) {
	if _, busy := e.inflight.LoadOrStore(id, struct{}{}); busy {
		return nil, ErrConcurrentEvaluation
	}
	release := func() { e.inflight.Delete(id) }

	if e.locks == nil {
		return release, nil
	}

	l := e.locks(distlock.RuleKey(id))
	ok, err := l.Acquire(ctx)
	if err != nil {
		logger.Warn("distributed lock acquire failed", "rule_id", id.String(), "error", err)
		release()
		return nil, ErrConcurrentEvaluation
	}
	if !ok {
		release()
		return nil, ErrConcurrentEvaluation
	}
	return func() {
		if err := l.Release(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("distributed lock release failed", "rule_id", id.String(), "error", err)
		}
		release()
	}, nil
}

// IsHealthy reports whether the loop has ticked recently. Used by /health.
func (e *Engine) IsHealthy() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lastTick.IsZero() {
		return false
	}
	return e.now().Sub(e.lastTick) < 3*e.tick
}

// LastTickAt returns the completion time of the most recent tick.
func (e *Engine) LastTickAt() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastTick
}
