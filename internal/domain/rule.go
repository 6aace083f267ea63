package domain

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RuleStatus enumerates the lifecycle states of an automation rule.
type RuleStatus string

const (
	RuleActive   RuleStatus = "active"
	RuleInactive RuleStatus = "inactive"
	// RuleCompleted is terminal. A completed rule is never evaluated again;
	// re-activating one requires creating a new rule.
	RuleCompleted RuleStatus = "completed"
)

// ConditionType discriminates the Condition union.
type ConditionType string

const (
	ConditionMetricThreshold ConditionType = "metric_threshold"
	ConditionTimeBased       ConditionType = "time_based"
	ConditionBudgetDepleted  ConditionType = "budget_depleted"
	ConditionROIBased        ConditionType = "roi_based"
)

// Metric enumerates the campaign performance metrics a condition can test.
type Metric string

const (
	MetricCTR         Metric = "ctr"
	MetricCPC         Metric = "cpc"
	MetricCPA         Metric = "cpa"
	MetricROAS        Metric = "roas"
	MetricSpend       Metric = "spend"
	MetricImpressions Metric = "impressions"
	MetricClicks      Metric = "clicks"
	MetricConversions Metric = "conversions"

	// MetricROI is not user-selectable in metric_threshold conditions; it is
	// the snapshot key consulted by roi_based conditions.
	MetricROI Metric = "roi"

	// MetricAllocatedBudget is the snapshot key consulted, together with
	// spend, by budget_depleted conditions.
	MetricAllocatedBudget Metric = "allocated_budget"
)

// KnownMetrics lists the metrics accepted in metric_threshold conditions.
var KnownMetrics = []Metric{
	MetricCTR, MetricCPC, MetricCPA, MetricROAS,
	MetricSpend, MetricImpressions, MetricClicks, MetricConversions,
}

// Operator enumerates comparison operators for metric_threshold conditions.
type Operator string

const (
	OpGT  Operator = "gt"
	OpLT  Operator = "lt"
	OpEQ  Operator = "eq"
	OpGTE Operator = "gte"
	OpLTE Operator = "lte"
)

// BudgetDepletedRatio is the consumed/allocated ratio at which a
// budget_depleted condition fires.
const BudgetDepletedRatio = 0.90

// Condition is a predicate over campaign metrics or time. The Type field
// discriminates which of the remaining fields are meaningful:
//
//	metric_threshold: Metric, Operator, Value
//	roi_based:        Value (ROI percentage floor; fires when roi < Value)
//	budget_depleted:  no parameters (fires at spend/allocated_budget >= 0.90)
//	time_based:       no parameters (fires at its schedule's due instants)
type Condition struct {
	Type     ConditionType `json:"condition_type"`
	Metric   Metric        `json:"metric,omitempty"`
	Operator Operator      `json:"operator,omitempty"`
	Value    float64       `json:"value,omitempty"`
}

// Validate rejects malformed conditions before persistence.
func (c Condition) Validate() error {
	switch c.Type {
	case ConditionMetricThreshold:
		if !isKnownMetric(c.Metric) {
			return fmt.Errorf("unknown metric %q", c.Metric)
		}
		switch c.Operator {
		case OpGT, OpLT, OpEQ, OpGTE, OpLTE:
		default:
			return fmt.Errorf("unknown operator %q", c.Operator)
		}
		return nil
	case ConditionROIBased:
		return nil
	case ConditionBudgetDepleted, ConditionTimeBased:
		if c.Metric != "" || c.Operator != "" {
			return fmt.Errorf("%s condition takes no metric or operator", c.Type)
		}
		return nil
	default:
		return fmt.Errorf("unknown condition type %q", c.Type)
	}
}

// Describe returns a human-readable form of the condition, used for the
// trigger_condition notification placeholder and execution detail.
func (c Condition) Describe() string {
	switch c.Type {
	case ConditionMetricThreshold:
		return fmt.Sprintf("%s %s %s", c.Metric, c.Operator, trimFloat(c.Value))
	case ConditionROIBased:
		return fmt.Sprintf("roi below %s%%", trimFloat(c.Value))
	case ConditionBudgetDepleted:
		return fmt.Sprintf("budget %.0f%% consumed", BudgetDepletedRatio*100)
	case ConditionTimeBased:
		return "scheduled time reached"
	default:
		return string(c.Type)
	}
}

func isKnownMetric(m Metric) bool {
	for _, k := range KnownMetrics {
		if m == k {
			return true
		}
	}
	return false
}

func trimFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ActionType discriminates the Action union.
type ActionType string

const (
	ActionPauseCampaign  ActionType = "pause_campaign"
	ActionResumeCampaign ActionType = "resume_campaign"
	ActionAdjustBudget   ActionType = "adjust_budget"
	ActionNotify         ActionType = "notify"
)

// Action is the effect applied to a campaign when a rule fires.
// Value is a signed percentage and only meaningful for adjust_budget
// (e.g. -20 decreases the budget by 20%).
type Action struct {
	Type  ActionType `json:"action_type"`
	Value float64    `json:"action_value,omitempty"`
}

// Validate rejects malformed actions before persistence.
func (a Action) Validate() error {
	switch a.Type {
	case ActionPauseCampaign, ActionResumeCampaign, ActionNotify:
		if a.Value != 0 {
			return fmt.Errorf("%s action takes no action_value", a.Type)
		}
		return nil
	case ActionAdjustBudget:
		if a.Value <= -100 {
			return fmt.Errorf("adjust_budget of %s%% would zero or negate the budget", trimFloat(a.Value))
		}
		if a.Value == 0 {
			return fmt.Errorf("adjust_budget requires a non-zero action_value")
		}
		return nil
	default:
		return fmt.Errorf("unknown action type %q", a.Type)
	}
}

// Describe returns a human-readable form of the action, used for the
// action_taken notification placeholder.
func (a Action) Describe() string {
	switch a.Type {
	case ActionPauseCampaign:
		return "paused campaign"
	case ActionResumeCampaign:
		return "resumed campaign"
	case ActionAdjustBudget:
		if a.Value > 0 {
			return fmt.Sprintf("increased budget by %s%%", trimFloat(a.Value))
		}
		return fmt.Sprintf("decreased budget by %s%%", trimFloat(-a.Value))
	case ActionNotify:
		return "sent notification"
	default:
		return string(a.Type)
	}
}

// ScheduleType discriminates the Schedule union.
type ScheduleType string

const (
	ScheduleContinuous ScheduleType = "continuous"
	ScheduleOneTime    ScheduleType = "one_time"
	ScheduleRecurring  ScheduleType = "recurring"
)

// Weekday names accepted in recurring schedules, lowercase.
type Weekday string

const (
	Monday    Weekday = "monday"
	Tuesday   Weekday = "tuesday"
	Wednesday Weekday = "wednesday"
	Thursday  Weekday = "thursday"
	Friday    Weekday = "friday"
	Saturday  Weekday = "saturday"
	Sunday    Weekday = "sunday"
)

var weekdayCron = map[Weekday]string{
	Monday: "MON", Tuesday: "TUE", Wednesday: "WED", Thursday: "THU",
	Friday: "FRI", Saturday: "SAT", Sunday: "SUN",
}

var weekdayOrder = map[Weekday]int{
	Monday: 1, Tuesday: 2, Wednesday: 3, Thursday: 4,
	Friday: 5, Saturday: 6, Sunday: 7,
}

// Schedule is the temporal policy governing when a rule is evaluated.
//
//	continuous: every engine tick while the rule is active
//	one_time:   exactly one due instant at StartDate+Time; the rule
//	            transitions to completed after its evaluation attempt
//	recurring:  each listed weekday at Time, until deactivated
type Schedule struct {
	Type      ScheduleType `json:"schedule_type"`
	StartDate string       `json:"start_date,omitempty"` // YYYY-MM-DD, one_time only
	Time      string       `json:"time,omitempty"`       // HH:MM, one_time and recurring
	Days      []Weekday    `json:"days,omitempty"`       // recurring only
}

// Validate rejects malformed schedules before persistence. Invalid recurring
// day sets are a creation-time error, never an evaluation-time one.
func (s Schedule) Validate() error {
	switch s.Type {
	case ScheduleContinuous:
		return nil
	case ScheduleOneTime:
		if _, err := time.Parse("2006-01-02", s.StartDate); err != nil {
			return fmt.Errorf("one_time schedule requires start_date as YYYY-MM-DD: %w", err)
		}
		if _, err := parseTimeOfDay(s.Time); err != nil {
			return err
		}
		return nil
	case ScheduleRecurring:
		if len(s.Days) == 0 {
			return fmt.Errorf("recurring schedule requires a non-empty days set")
		}
		seen := map[Weekday]bool{}
		for _, d := range s.Days {
			if _, ok := weekdayCron[d]; !ok {
				return fmt.Errorf("unknown weekday %q", d)
			}
			if seen[d] {
				return fmt.Errorf("duplicate weekday %q", d)
			}
			seen[d] = true
		}
		if _, err := parseTimeOfDay(s.Time); err != nil {
			return err
		}
		return nil
	default:
		return fmt.Errorf("unknown schedule type %q", s.Type)
	}
}

// OneTimeAt returns the single due instant of a one_time schedule in loc.
func (s Schedule) OneTimeAt(loc *time.Location) (time.Time, error) {
	if s.Type != ScheduleOneTime {
		return time.Time{}, fmt.Errorf("schedule is %s, not one_time", s.Type)
	}
	h, m, err := splitTimeOfDay(s.Time)
	if err != nil {
		return time.Time{}, err
	}
	d, err := time.ParseInLocation("2006-01-02", s.StartDate, loc)
	if err != nil {
		return time.Time{}, err
	}
	return d.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute), nil
}

// CronSpec renders a recurring schedule as a standard 5-field cron
// expression, e.g. days={monday,wednesday} time=09:00 -> "0 9 * * MON,WED".
func (s Schedule) CronSpec() (string, error) {
	if s.Type != ScheduleRecurring {
		return "", fmt.Errorf("schedule is %s, not recurring", s.Type)
	}
	h, m, err := splitTimeOfDay(s.Time)
	if err != nil {
		return "", err
	}
	days := append([]Weekday(nil), s.Days...)
	sort.Slice(days, func(i, j int) bool { return weekdayOrder[days[i]] < weekdayOrder[days[j]] })
	toks := make([]string, 0, len(days))
	for _, d := range days {
		toks = append(toks, weekdayCron[d])
	}
	return fmt.Sprintf("%d %d * * %s", m, h, strings.Join(toks, ",")), nil
}

func parseTimeOfDay(v string) (time.Time, error) {
	t, err := time.Parse("15:04", v)
	if err != nil {
		return time.Time{}, fmt.Errorf("time must be HH:MM: %w", err)
	}
	return t, nil
}

func splitTimeOfDay(v string) (hour, minute int, err error) {
	t, err := parseTimeOfDay(v)
	if err != nil {
		return 0, 0, err
	}
	return t.Hour(), t.Minute(), nil
}

// Channel enumerates notification delivery channels.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelInApp Channel = "in_app"
	ChannelChat  Channel = "chat"
)

// NotificationConfig describes how a rule's trigger events are delivered.
// At most one config exists per rule. MessageTemplate is a Liquid template
// with the placeholders rule_name, campaign_name, trigger_condition,
// action_taken, date, and metrics.
type NotificationConfig struct {
	Channel         Channel  `json:"channel"`
	Recipients      []string `json:"recipients"`
	MessageTemplate string   `json:"message_template"`
}

// Validate rejects malformed notification configs before persistence.
func (n NotificationConfig) Validate() error {
	switch n.Channel {
	case ChannelEmail, ChannelSMS, ChannelInApp, ChannelChat:
	default:
		return fmt.Errorf("unknown channel %q", n.Channel)
	}
	if len(n.Recipients) == 0 {
		return fmt.Errorf("notification config requires at least one recipient")
	}
	for _, r := range n.Recipients {
		if strings.TrimSpace(r) == "" {
			return fmt.Errorf("notification recipient must not be blank")
		}
	}
	return nil
}

// Rule is a persisted automation unit pairing one condition, one action, and
// one schedule for a campaign, plus an optional notification config.
type Rule struct {
	ID              uuid.UUID           `json:"id"`
	CampaignID      uuid.UUID           `json:"campaign_id"`
	Name            string              `json:"name"`
	Description     string              `json:"description"`
	Status          RuleStatus          `json:"status"`
	Condition       Condition           `json:"condition"`
	Action          Action              `json:"action"`
	Schedule        Schedule            `json:"schedule"`
	Notification    *NotificationConfig `json:"notification,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
	LastTriggeredAt *time.Time          `json:"last_triggered_at,omitempty"`
}

// Validate rejects malformed rules before persistence.
func (r *Rule) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if r.CampaignID == uuid.Nil {
		return fmt.Errorf("campaign_id is required")
	}
	if err := r.Condition.Validate(); err != nil {
		return fmt.Errorf("condition: %w", err)
	}
	if err := r.Action.Validate(); err != nil {
		return fmt.Errorf("action: %w", err)
	}
	if err := r.Schedule.Validate(); err != nil {
		return fmt.Errorf("schedule: %w", err)
	}
	// A time_based condition has no predicate of its own; it only makes
	// sense on a schedule with discrete due instants.
	if r.Condition.Type == ConditionTimeBased && r.Schedule.Type == ScheduleContinuous {
		return fmt.Errorf("time_based condition requires a one_time or recurring schedule")
	}
	if r.Notification != nil {
		if err := r.Notification.Validate(); err != nil {
			return fmt.Errorf("notification: %w", err)
		}
	}
	return nil
}

// IsTerminal returns true if the rule can never evaluate again.
func (r *Rule) IsTerminal() bool { return r.Status == RuleCompleted }
