package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/campaign-autopilot/internal/domain"
	"github.com/ignite/campaign-autopilot/internal/engine"
	"github.com/ignite/campaign-autopilot/internal/service/history"
	"github.com/ignite/campaign-autopilot/internal/service/rule"
)

// memRules is an in-memory rule.Repository.
type memRules struct {
	mu    sync.Mutex
	rules map[uuid.UUID]*domain.Rule
}

func newMemRules() *memRules { return &memRules{rules: map[uuid.UUID]*domain.Rule{}} }

func (m *memRules) Get(_ context.Context, id uuid.UUID) (*domain.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[id]
	if !ok {
		return nil, rule.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memRules) List(_ context.Context, f rule.ListFilter) ([]domain.Rule, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Rule
	for _, r := range m.rules {
		if f.CampaignID != uuid.Nil && r.CampaignID != f.CampaignID {
			continue
		}
		if f.Status != "" && string(r.Status) != f.Status {
			continue
		}
		out = append(out, *r)
	}
	return out, len(out), nil
}

func (m *memRules) ListActive(_ context.Context) ([]domain.Rule, error) {
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

func (m *memRules) Create(_ context.Context, r *domain.Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.rules[r.ID] = &cp
	return nil
}

func (m *memRules) Update(_ context.Context, r *domain.Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rules[r.ID]; !ok {
		return rule.ErrNotFound
	}
	cp := *r
	m.rules[r.ID] = &cp
	return nil
}

func (m *memRules) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rules[id]; !ok {
		return rule.ErrNotFound
	}
	delete(m.rules, id)
	return nil
}

func (m *memRules) UpdateStatus(_ context.Context, id uuid.UUID, status domain.RuleStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[id]
	if !ok {
		return rule.ErrNotFound
	}
	r.Status = status
	return nil
}

func (m *memRules) TouchLastTriggered(_ context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[id]
	if !ok {
		return rule.ErrNotFound
	}
	r.LastTriggeredAt = &at
	return nil
}

// memHistory is an in-memory history.Repository.
type memHistory struct {
	mu   sync.Mutex
	recs []domain.ExecutionRecord
}

func (m *memHistory) Append(_ context.Context, rec *domain.ExecutionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, *rec)
	return nil
}

func (m *memHistory) ListForRule(_ context.Context, ruleID uuid.UUID, _, _ int) ([]domain.ExecutionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.ExecutionRecord
	for _, r := range m.recs {
		if r.RuleID == ruleID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memHistory) ListForCampaign(_ context.Context, campaignID uuid.UUID, _, _ int) ([]domain.ExecutionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.ExecutionRecord
	for _, r := range m.recs {
		if r.CampaignID == campaignID {
			out = append(out, r)
		}
	}
	return out, nil
}

// memInbox is an in-memory api.Inbox.
type memInbox struct {
	mu    sync.Mutex
	items map[uuid.UUID]*domain.InAppNotification
}

func newMemInbox() *memInbox { return &memInbox{items: map[uuid.UUID]*domain.InAppNotification{}} }

func (m *memInbox) List(_ context.Context, userID string, _, _ int) ([]domain.InAppNotification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.InAppNotification
	for _, n := range m.items {
		if n.UserID == userID {
			out = append(out, *n)
		}
	}
	return out, nil
}

func (m *memInbox) MarkRead(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.items[id]
	if !ok {
		return sql.ErrNoRows
	}
	if n.ReadAt == nil {
		now := time.Now().UTC()
		n.ReadAt = &now
	}
	return nil
}

// stubEvaluator returns canned engine results.
type stubEvaluator struct {
	testResult *engine.TestResult
	runRecord  *domain.ExecutionRecord
	runErr     error
	healthy    bool
}

func (s *stubEvaluator) TestRule(context.Context, uuid.UUID) (*engine.TestResult, error) {
	return s.testResult, nil
}

func (s *stubEvaluator) TestCondition(context.Context, uuid.UUID, domain.Condition) *engine.TestResult {
	return s.testResult
}

func (s *stubEvaluator) RunNow(context.Context, uuid.UUID) (*domain.ExecutionRecord, error) {
	return s.runRecord, s.runErr
}

func (s *stubEvaluator) IsHealthy() bool { return s.healthy }

func (s *stubEvaluator) LastTickAt() time.Time {
	return time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
}

type testEnv struct {
	repo  *memRules
	hist  *memHistory
	eval  *stubEvaluator
	inbox *memInbox
	srv   *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	repo := newMemRules()
	hist := &memHistory{}
	inbox := newMemInbox()
	eval := &stubEvaluator{healthy: true, testResult: &engine.TestResult{WouldTrigger: true, Detail: "cpa=60 gt 50"}}
	h := NewHandlers(rule.NewService(repo, time.UTC), history.NewService(hist), eval, inbox)
	srv := httptest.NewServer(Routes(h))
	t.Cleanup(srv.Close)
	return &testEnv{repo: repo, hist: hist, eval: eval, inbox: inbox, srv: srv}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func validCreateBody(campaignID uuid.UUID) map[string]any {
	return map[string]any{
		"campaign_id": campaignID,
		"name":        "pause on high cpa",
		"condition":   map[string]any{"condition_type": "metric_threshold", "metric": "cpa", "operator": "gt", "value": 50},
		"action":      map[string]any{"action_type": "pause_campaign"},
		"schedule":    map[string]any{"schedule_type": "continuous"},
		"active":      true,
	}
}

func TestCreateAndGetRule(t *testing.T) {
	env := newTestEnv(t)
	campaignID := uuid.New()

	resp := env.do(t, http.MethodPost, "/api/v1/rules", validCreateBody(campaignID))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeBody[domain.Rule](t, resp)
	assert.Equal(t, domain.RuleActive, created.Status)

	resp = env.do(t, http.MethodGet, "/api/v1/rules/"+created.ID.String(), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decodeBody[domain.Rule](t, resp)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "pause on high cpa", got.Name)
}

func TestCreateRuleValidationError(t *testing.T) {
	env := newTestEnv(t)
	body := validCreateBody(uuid.New())
	body["condition"] = map[string]any{"condition_type": "metric_threshold", "metric": "bogus", "operator": "gt", "value": 1}

	resp := env.do(t, http.MethodPost, "/api/v1/rules", body)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetRuleNotFound(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodGet, "/api/v1/rules/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetRuleBadID(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodGet, "/api/v1/rules/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestActivateDeactivateRule(t *testing.T) {
	env := newTestEnv(t)
	body := validCreateBody(uuid.New())
	body["active"] = false

	resp := env.do(t, http.MethodPost, "/api/v1/rules", body)
	created := decodeBody[domain.Rule](t, resp)
	require.Equal(t, domain.RuleInactive, created.Status)

	resp = env.do(t, http.MethodPost, "/api/v1/rules/"+created.ID.String()+"/activate", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, domain.RuleActive, decodeBody[domain.Rule](t, resp).Status)

	resp = env.do(t, http.MethodPost, "/api/v1/rules/"+created.ID.String()+"/deactivate", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, domain.RuleInactive, decodeBody[domain.Rule](t, resp).Status)
}

func TestActivateCompletedRuleConflicts(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodPost, "/api/v1/rules", validCreateBody(uuid.New()))
	created := decodeBody[domain.Rule](t, resp)
	require.NoError(t, env.repo.UpdateStatus(context.Background(), created.ID, domain.RuleCompleted))

	resp = env.do(t, http.MethodPost, "/api/v1/rules/"+created.ID.String()+"/activate", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestUpdateRule(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodPost, "/api/v1/rules", validCreateBody(uuid.New()))
	created := decodeBody[domain.Rule](t, resp)

	resp = env.do(t, http.MethodPut, "/api/v1/rules/"+created.ID.String(), map[string]any{
		"name": "renamed",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "renamed", decodeBody[domain.Rule](t, resp).Name)
}

func TestDeleteRule(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodPost, "/api/v1/rules", validCreateBody(uuid.New()))
	created := decodeBody[domain.Rule](t, resp)

	resp = env.do(t, http.MethodDelete, "/api/v1/rules/"+created.ID.String(), nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/v1/rules/"+created.ID.String(), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListRulesFilter(t *testing.T) {
	env := newTestEnv(t)
	campaignA, campaignB := uuid.New(), uuid.New()
	env.do(t, http.MethodPost, "/api/v1/rules", validCreateBody(campaignA))
	env.do(t, http.MethodPost, "/api/v1/rules", validCreateBody(campaignB))

	resp := env.do(t, http.MethodGet, "/api/v1/rules?campaign_id="+campaignA.String(), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decodeBody[ruleListResponse](t, resp)
	require.Len(t, list.Rules, 1)
	assert.Equal(t, campaignA, list.Rules[0].CampaignID)
}

func TestNotificationRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodPost, "/api/v1/rules", validCreateBody(uuid.New()))
	created := decodeBody[domain.Rule](t, resp)

	resp = env.do(t, http.MethodGet, "/api/v1/rules/"+created.ID.String()+"/notification", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "no config yet")

	resp = env.do(t, http.MethodPut, "/api/v1/rules/"+created.ID.String()+"/notification", map[string]any{
		"channel":          "email",
		"recipients":       []string{"ops@example.com"},
		"message_template": "{{ rule_name }} fired",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/v1/rules/"+created.ID.String()+"/notification", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	cfg := decodeBody[domain.NotificationConfig](t, resp)
	assert.Equal(t, domain.ChannelEmail, cfg.Channel)
}

func TestSetNotificationInvalidChannel(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodPost, "/api/v1/rules", validCreateBody(uuid.New()))
	created := decodeBody[domain.Rule](t, resp)

	resp = env.do(t, http.MethodPut, "/api/v1/rules/"+created.ID.String()+"/notification", map[string]any{
		"channel":    "carrier_pigeon",
		"recipients": []string{"x"},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTestRuleEndpoint(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodPost, "/api/v1/rules", validCreateBody(uuid.New()))
	created := decodeBody[domain.Rule](t, resp)

	resp = env.do(t, http.MethodPost, "/api/v1/rules/"+created.ID.String()+"/test", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res := decodeBody[engine.TestResult](t, resp)
	assert.True(t, res.WouldTrigger)
}

func TestTestDraftConditionEndpoint(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodPost, "/api/v1/rules/test", map[string]any{
		"campaign_id": uuid.New(),
		"condition":   map[string]any{"condition_type": "budget_depleted"},
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestTestDraftConditionRejectsInvalid(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodPost, "/api/v1/rules/test", map[string]any{
		"campaign_id": uuid.New(),
		"condition":   map[string]any{"condition_type": "nope"},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRunNowConflict(t *testing.T) {
	env := newTestEnv(t)
	env.eval.runErr = engine.ErrConcurrentEvaluation

	resp := env.do(t, http.MethodPost, "/api/v1/rules/"+uuid.NewString()+"/run", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestRunNowReturnsRecord(t *testing.T) {
	env := newTestEnv(t)
	env.eval.runRecord = &domain.ExecutionRecord{
		ID: uuid.New(), RuleID: uuid.New(), Triggered: true, Manual: true,
		ActionOutcome: domain.OutcomeSuccess,
	}
	resp := env.do(t, http.MethodPost, "/api/v1/rules/"+uuid.NewString()+"/run", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rec := decodeBody[domain.ExecutionRecord](t, resp)
	assert.True(t, rec.Manual)
}

func TestExecutionHistoryEndpoints(t *testing.T) {
	env := newTestEnv(t)
	ruleID, campaignID := uuid.New(), uuid.New()
	require.NoError(t, env.hist.Append(context.Background(), &domain.ExecutionRecord{
		ID: uuid.New(), RuleID: ruleID, CampaignID: campaignID, Triggered: true,
		ActionOutcome: domain.OutcomeSuccess,
	}))

	resp := env.do(t, http.MethodGet, "/api/v1/rules/"+ruleID.String()+"/executions", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decodeBody[executionListResponse](t, resp)
	require.Len(t, list.Executions, 1)

	resp = env.do(t, http.MethodGet, "/api/v1/campaigns/"+campaignID.String()+"/executions", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list = decodeBody[executionListResponse](t, resp)
	require.Len(t, list.Executions, 1)
}

func TestInboxListAndMarkRead(t *testing.T) {
	env := newTestEnv(t)
	n := &domain.InAppNotification{ID: uuid.New(), UserID: "user-7", Message: "rule fired", CreatedAt: time.Now().UTC()}
	env.inbox.items[n.ID] = n

	resp := env.do(t, http.MethodGet, "/api/v1/inbox?user_id=user-7", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decodeBody[inboxResponse](t, resp)
	require.Len(t, list.Notifications, 1)
	assert.Nil(t, list.Notifications[0].ReadAt)

	resp = env.do(t, http.MethodPost, "/api/v1/inbox/"+n.ID.String()+"/read", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.NotNil(t, env.inbox.items[n.ID].ReadAt)
}

func TestInboxRequiresUserID(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodGet, "/api/v1/inbox", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestInboxMarkReadUnknown(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodPost, "/api/v1/inbox/"+uuid.NewString()+"/read", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	h := decodeBody[healthResponse](t, resp)
	assert.Equal(t, "ok", h.Status)
	assert.Equal(t, "ok", h.Engine)
}

func TestMetricsEndpointExposed(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
