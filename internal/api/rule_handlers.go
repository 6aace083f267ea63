package api

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/ignite/campaign-autopilot/internal/domain"
	"github.com/ignite/campaign-autopilot/internal/pkg/httputil"
	"github.com/ignite/campaign-autopilot/internal/service/rule"
)

// ruleListResponse is the paginated rule list envelope.
type ruleListResponse struct {
	Rules  []domain.Rule `json:"rules"`
	Total  int           `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

// ListRules returns rules, optionally filtered by campaign_id and status.
func (h *Handlers) ListRules(w http.ResponseWriter, r *http.Request) {
	f := rule.ListFilter{
		Status: r.URL.Query().Get("status"),
		Limit:  queryInt(r, "limit"),
		Offset: queryInt(r, "offset"),
	}
	if v := r.URL.Query().Get("campaign_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			httputil.BadRequest(w, "invalid campaign_id")
			return
		}
		f.CampaignID = id
	}
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 50
	}

	rules, total, err := h.rules.List(r.Context(), f)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if rules == nil {
		rules = []domain.Rule{}
	}
	httputil.OK(w, ruleListResponse{Rules: rules, Total: total, Limit: f.Limit, Offset: f.Offset})
}

// CreateRule creates a new automation rule.
func (h *Handlers) CreateRule(w http.ResponseWriter, r *http.Request) {
	var input rule.CreateInput
	if !httputil.Decode(w, r, &input) {
		return
	}
	created, err := h.rules.Create(r.Context(), input)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.Created(w, created)
}

// GetRule returns a single rule.
func (h *Handlers) GetRule(w http.ResponseWriter, r *http.Request) {
	id, ok := ruleID(w, r)
	if !ok {
		return
	}
	found, err := h.rules.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, found)
}

// UpdateRule applies a partial update. Completed rules are immutable.
func (h *Handlers) UpdateRule(w http.ResponseWriter, r *http.Request) {
	id, ok := ruleID(w, r)
	if !ok {
		return
	}
	var input rule.UpdateInput
	if !httputil.Decode(w, r, &input) {
		return
	}
	updated, err := h.rules.Update(r.Context(), id, input)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, updated)
}

// DeleteRule removes a rule. Its execution history is retained.
func (h *Handlers) DeleteRule(w http.ResponseWriter, r *http.Request) {
	id, ok := ruleID(w, r)
	if !ok {
		return
	}
	if err := h.rules.Delete(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.NoContent(w)
}

// ActivateRule transitions a rule to active.
func (h *Handlers) ActivateRule(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.rules.Activate)
}

// DeactivateRule transitions a rule to inactive.
func (h *Handlers) DeactivateRule(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.rules.Deactivate)
}

func (h *Handlers) transition(w http.ResponseWriter, r *http.Request, fn func(context.Context, uuid.UUID) error) {
	id, ok := ruleID(w, r)
	if !ok {
		return
	}
	if err := fn(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	updated, err := h.rules.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, updated)
}

// GetNotification returns a rule's notification config.
func (h *Handlers) GetNotification(w http.ResponseWriter, r *http.Request) {
	id, ok := ruleID(w, r)
	if !ok {
		return
	}
	found, err := h.rules.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if found.Notification == nil {
		httputil.NotFound(w, "rule has no notification config")
		return
	}
	httputil.OK(w, found.Notification)
}

// SetNotification replaces a rule's notification config. A null body removes
// it.
func (h *Handlers) SetNotification(w http.ResponseWriter, r *http.Request) {
	id, ok := ruleID(w, r)
	if !ok {
		return
	}
	var cfg *domain.NotificationConfig
	if !httputil.Decode(w, r, &cfg) {
		return
	}
	updated, err := h.rules.SetNotification(r.Context(), id, cfg)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, updated)
}
