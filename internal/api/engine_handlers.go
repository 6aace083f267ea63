package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ignite/campaign-autopilot/internal/domain"
	"github.com/ignite/campaign-autopilot/internal/pkg/httputil"
)

// TestRule dry-runs a persisted rule's condition against live metrics.
// No action is applied and nothing is recorded.
func (h *Handlers) TestRule(w http.ResponseWriter, r *http.Request) {
	if !h.requireEvaluator(w) {
		return
	}
	id, ok := ruleID(w, r)
	if !ok {
		return
	}
	res, err := h.evaluator.TestRule(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, res)
}

// testDraftRequest carries an unsaved condition to evaluate.
type testDraftRequest struct {
	CampaignID uuid.UUID        `json:"campaign_id"`
	Condition  domain.Condition `json:"condition"`
}

// TestDraftCondition dry-runs a condition that has not been saved yet,
// for previewing a rule in the builder UI.
func (h *Handlers) TestDraftCondition(w http.ResponseWriter, r *http.Request) {
	if !h.requireEvaluator(w) {
		return
	}
	var req testDraftRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.CampaignID == uuid.Nil {
		httputil.BadRequest(w, "campaign_id is required")
		return
	}
	if err := req.Condition.Validate(); err != nil {
		httputil.BadRequest(w, "condition: "+err.Error())
		return
	}
	httputil.OK(w, h.evaluator.TestCondition(r.Context(), req.CampaignID, req.Condition))
}

// RunRuleNow evaluates a rule immediately, bypassing its schedule. The
// evaluation is recorded whether or not it triggers.
func (h *Handlers) RunRuleNow(w http.ResponseWriter, r *http.Request) {
	if !h.requireEvaluator(w) {
		return
	}
	id, ok := ruleID(w, r)
	if !ok {
		return
	}
	rec, err := h.evaluator.RunNow(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, rec)
}

// requireEvaluator writes a 503 when the engine is not running.
func (h *Handlers) requireEvaluator(w http.ResponseWriter) bool {
	if h.evaluator == nil {
		httputil.Error(w, http.StatusServiceUnavailable, "rule engine is disabled")
		return false
	}
	return true
}

// executionListResponse is the execution history envelope.
type executionListResponse struct {
	Executions []domain.ExecutionRecord `json:"executions"`
	Limit      int                      `json:"limit"`
	Offset     int                      `json:"offset"`
}

// ListRuleExecutions returns a rule's execution history, most recent first.
func (h *Handlers) ListRuleExecutions(w http.ResponseWriter, r *http.Request) {
	id, ok := ruleID(w, r)
	if !ok {
		return
	}
	limit, offset := queryInt(r, "limit"), queryInt(r, "offset")
	recs, err := h.history.ListForRule(r.Context(), id, limit, offset)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if recs == nil {
		recs = []domain.ExecutionRecord{}
	}
	httputil.OK(w, executionListResponse{Executions: recs, Limit: limit, Offset: offset})
}

// ListCampaignExecutions returns a campaign's execution history across all
// its rules, most recent first.
func (h *Handlers) ListCampaignExecutions(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "campaignID"))
	if err != nil {
		httputil.BadRequest(w, "invalid campaign id")
		return
	}
	limit, offset := queryInt(r, "limit"), queryInt(r, "offset")
	recs, err := h.history.ListForCampaign(r.Context(), id, limit, offset)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if recs == nil {
		recs = []domain.ExecutionRecord{}
	}
	httputil.OK(w, executionListResponse{Executions: recs, Limit: limit, Offset: offset})
}

// healthResponse reports process and engine-loop liveness.
type healthResponse struct {
	Status     string    `json:"status"`
	Engine     string    `json:"engine"`
	LastTickAt time.Time `json:"last_tick_at,omitempty"`
	Time       time.Time `json:"time"`
}

// Health reports liveness. The process is healthy even while the engine loop
// is still warming up; the engine field distinguishes the two.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{Status: "ok", Engine: "ok", Time: time.Now().UTC()}
	if h.evaluator != nil {
		resp.LastTickAt = h.evaluator.LastTickAt()
		if !h.evaluator.IsHealthy() {
			resp.Engine = "stalled"
		}
	} else {
		resp.Engine = "disabled"
	}
	httputil.OK(w, resp)
}
