package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/campaign-autopilot/internal/domain"
)

// fakeChannel records sends and fails the first failUntil attempts per recipient.
type fakeChannel struct {
	mu        sync.Mutex
	kind      domain.Channel
	failUntil int
	attempts  map[string]int
	delivered []string
}

func newFakeChannel(kind domain.Channel, failUntil int) *fakeChannel {
	return &fakeChannel{kind: kind, failUntil: failUntil, attempts: map[string]int{}}
}

func (f *fakeChannel) Type() domain.Channel { return f.kind }

func (f *fakeChannel) Send(_ context.Context, recipient, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts[recipient]++
	if f.attempts[recipient] <= f.failUntil {
		return errors.New("gateway unavailable")
	}
	f.delivered = append(f.delivered, recipient+": "+message)
	return nil
}

func sampleEvent() Event {
	return Event{
		RuleName:         "pause on high cpa",
		CampaignName:     "Summer Sale",
		TriggerCondition: "cpa gt 50",
		ActionTaken:      "paused campaign",
		At:               time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
		Metrics:          map[string]float64{"cpa": 62, "spend": 910.5},
	}
}

func TestRenderSubstitutesAllPlaceholders(t *testing.T) {
	d := NewDispatcher(1, time.Millisecond)

	out, err := d.Render(
		`{{ rule_name }} / {{ campaign_name }} / {{ trigger_condition }} / {{ action_taken }} / {{ date }} / {{ metrics }}`,
		sampleEvent(),
	)
	require.NoError(t, err)

	assert.Contains(t, out, "pause on high cpa")
	assert.Contains(t, out, "Summer Sale")
	assert.Contains(t, out, "cpa gt 50")
	assert.Contains(t, out, "paused campaign")
	assert.Contains(t, out, "2026-03-14")
	assert.Contains(t, out, "cpa=62, spend=910.5")
}

func TestRenderMissingValuesAreEmpty(t *testing.T) {
	d := NewDispatcher(1, time.Millisecond)

	ev := sampleEvent()
	ev.Metrics = nil
	ev.CampaignName = ""

	out, err := d.Render(`[{{ campaign_name }}][{{ metrics }}][{{ nonexistent }}]`, ev)
	require.NoError(t, err)
	assert.Equal(t, "[][][]", out)
}

func TestRenderEmptyTemplateUsesDefault(t *testing.T) {
	d := NewDispatcher(1, time.Millisecond)

	out, err := d.Render("  ", sampleEvent())
	require.NoError(t, err)
	assert.Contains(t, out, "pause on high cpa")
	assert.Contains(t, out, "Summer Sale")
}

func TestDispatchRetriesThenSucceeds(t *testing.T) {
	ch := newFakeChannel(domain.ChannelChat, 2)
	d := NewDispatcher(3, time.Millisecond, ch)

	cfg := &domain.NotificationConfig{
		Channel:         domain.ChannelChat,
		Recipients:      []string{"#ad-ops"},
		MessageTemplate: "{{ rule_name }}",
	}
	d.Dispatch(context.Background(), cfg, sampleEvent())

	assert.Equal(t, 3, ch.attempts["#ad-ops"])
	require.Len(t, ch.delivered, 1)
	assert.Equal(t, "#ad-ops: pause on high cpa", ch.delivered[0])
}

func TestDispatchGivesUpAfterMaxAttempts(t *testing.T) {
	ch := newFakeChannel(domain.ChannelSMS, 100)
	d := NewDispatcher(2, time.Millisecond, ch)

	cfg := &domain.NotificationConfig{
		Channel:    domain.ChannelSMS,
		Recipients: []string{"+15551234567"},
	}
	d.Dispatch(context.Background(), cfg, sampleEvent())

	assert.Equal(t, 2, ch.attempts["+15551234567"])
	assert.Empty(t, ch.delivered)
}

func TestDispatchAllRecipients(t *testing.T) {
	ch := newFakeChannel(domain.ChannelEmail, 0)
	d := NewDispatcher(3, time.Millisecond, ch)

	cfg := &domain.NotificationConfig{
		Channel:    domain.ChannelEmail,
		Recipients: []string{"a@example.com", "b@example.com"},
	}
	d.Dispatch(context.Background(), cfg, sampleEvent())

	assert.Len(t, ch.delivered, 2)
}

func TestDispatchUnroutableChannel(t *testing.T) {
	d := NewDispatcher(3, time.Millisecond) // no adapters registered

	cfg := &domain.NotificationConfig{
		Channel:    domain.ChannelEmail,
		Recipients: []string{"a@example.com"},
	}
	// Must not panic or block.
	d.Dispatch(context.Background(), cfg, sampleEvent())
}

func TestDispatchNilConfigIsNoop(t *testing.T) {
	d := NewDispatcher(3, time.Millisecond)
	d.Dispatch(context.Background(), nil, sampleEvent())
}
