// Package notify implements notification rendering and delivery for rule
// trigger events. Messages are Liquid templates; delivery goes through
// channel adapters (email, SMS, in-app, chat) with bounded exponential
// backoff per recipient. A permanently failed send is logged and counted but
// never reverses the already-applied action.
package notify

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/osteele/liquid"

	"github.com/ignite/campaign-autopilot/internal/domain"
	"github.com/ignite/campaign-autopilot/internal/metrics"
	"github.com/ignite/campaign-autopilot/internal/pkg/logger"
)

// Event carries everything a notification template can reference about a
// rule trigger.
type Event struct {
	RuleName         string
	CampaignName     string
	TriggerCondition string
	ActionTaken      string
	At               time.Time
	Metrics          map[string]float64
}

// Channel is the uniform send contract implemented by each delivery backend.
type Channel interface {
	// Send delivers one rendered message to one recipient.
	Send(ctx context.Context, recipient, message string) error

	// Type returns the channel this adapter serves.
	Type() domain.Channel
}

// DefaultTemplate is used when a notification config has no template.
const DefaultTemplate = `Automation rule "{{ rule_name }}" fired for campaign "{{ campaign_name }}": {{ trigger_condition }}. Action: {{ action_taken }}. ({{ date }}) Metrics: {{ metrics }}`

// Dispatcher renders trigger events and routes them to channel adapters.
type Dispatcher struct {
	engine      *liquid.Engine
	channels    map[domain.Channel]Channel
	maxAttempts int
	baseDelay   time.Duration
}

// NewDispatcher creates a dispatcher over the given channel adapters.
// maxAttempts bounds delivery attempts per recipient (minimum 1);
// baseDelay is the first backoff interval.
func NewDispatcher(maxAttempts int, baseDelay time.Duration, channels ...Channel) *Dispatcher {
	if maxAttempts < 1 {
		maxAttempts = 3
	}
	if baseDelay <= 0 {
		baseDelay = 500 * time.Millisecond
	}
	byType := make(map[domain.Channel]Channel, len(channels))
	for _, ch := range channels {
		byType[ch.Type()] = ch
	}
	return &Dispatcher{
		engine:      liquid.NewEngine(),
		channels:    byType,
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
	}
}

// Render substitutes the event into the template. Placeholders without a
// value render as empty strings rather than failing the dispatch.
func (d *Dispatcher) Render(tmpl string, ev Event) (string, error) {
	if strings.TrimSpace(tmpl) == "" {
		tmpl = DefaultTemplate
	}
	bindings := map[string]interface{}{
		"rule_name":         ev.RuleName,
		"campaign_name":     ev.CampaignName,
		"trigger_condition": ev.TriggerCondition,
		"action_taken":      ev.ActionTaken,
		"date":              ev.At.Format("2006-01-02 15:04 MST"),
		"metrics":           formatMetrics(ev.Metrics),
	}
	out, err := d.engine.ParseAndRenderString(tmpl, bindings)
	if err != nil {
		return "", fmt.Errorf("render notification template: %w", err)
	}
	return out, nil
}

// Dispatch renders the event and delivers it to every configured recipient.
// It blocks until all recipients have either succeeded or exhausted their
// retries; callers on the evaluation path should invoke it from a goroutine.
func (d *Dispatcher) Dispatch(ctx context.Context, cfg *domain.NotificationConfig, ev Event) {
	if cfg == nil {
		return
	}
	ch, ok := d.channels[cfg.Channel]
	if !ok {
		logger.Error("no adapter for notification channel", "channel", string(cfg.Channel), "rule", ev.RuleName)
		metrics.Notifications.WithLabelValues(string(cfg.Channel), "unroutable").Inc()
		return
	}

	message, err := d.Render(cfg.MessageTemplate, ev)
	if err != nil {
		// A broken template should not silence the alert entirely.
		logger.Warn("notification template render failed, using default", "rule", ev.RuleName, "error", err)
		if message, err = d.Render(DefaultTemplate, ev); err != nil {
			logger.Error("default notification template render failed", "error", err)
			return
		}
	}

	for _, recipient := range cfg.Recipients {
		d.sendWithRetry(ctx, ch, recipient, message, ev.RuleName)
	}
}

func (d *Dispatcher) sendWithRetry(ctx context.Context, ch Channel, recipient, message, ruleName string) {
	var lastErr error
	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return
		}
		if attempt > 1 {
			timer := time.NewTimer(d.backoff(attempt))
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return
			}
		}

		if lastErr = ch.Send(ctx, recipient, message); lastErr == nil {
			metrics.Notifications.WithLabelValues(string(ch.Type()), "sent").Inc()
			logger.Debug("notification delivered",
				"channel", string(ch.Type()), "recipient", recipient, "rule", ruleName)
			return
		}
		metrics.Notifications.WithLabelValues(string(ch.Type()), "retry").Inc()
	}

	metrics.Notifications.WithLabelValues(string(ch.Type()), "failed").Inc()
	logger.Error("notification permanently failed",
		"channel", string(ch.Type()), "recipient", recipient, "rule", ruleName, "error", lastErr)
}

// backoff returns the delay before the given attempt (attempt >= 2),
// exponential with jitter.
func (d *Dispatcher) backoff(attempt int) time.Duration {
	exp := float64(d.baseDelay) * math.Pow(2, float64(attempt-2))
	return time.Duration(exp/2 + rand.Float64()*exp/2)
}

func formatMetrics(m map[string]float64) string {
	if len(m) == 0 {
		return ""
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+strconv.FormatFloat(m[k], 'f', -1, 64))
	}
	return strings.Join(parts, ", ")
}
