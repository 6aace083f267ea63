package api

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ignite/campaign-autopilot/internal/domain"
	"github.com/ignite/campaign-autopilot/internal/pkg/httputil"
)

// inboxResponse is the in-app inbox envelope.
type inboxResponse struct {
	Notifications []domain.InAppNotification `json:"notifications"`
}

// ListInbox returns a user's in-app notifications, most recent first.
func (h *Handlers) ListInbox(w http.ResponseWriter, r *http.Request) {
	if h.inbox == nil {
		httputil.Error(w, http.StatusServiceUnavailable, "in-app inbox is disabled")
		return
	}
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		httputil.BadRequest(w, "user_id is required")
		return
	}
	items, err := h.inbox.List(r.Context(), userID, queryInt(r, "limit"), queryInt(r, "offset"))
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if items == nil {
		items = []domain.InAppNotification{}
	}
	httputil.OK(w, inboxResponse{Notifications: items})
}

// MarkInboxRead stamps a notification as read.
func (h *Handlers) MarkInboxRead(w http.ResponseWriter, r *http.Request) {
	if h.inbox == nil {
		httputil.Error(w, http.StatusServiceUnavailable, "in-app inbox is disabled")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "notificationID"))
	if err != nil {
		httputil.BadRequest(w, "invalid notification id")
		return
	}
	if err := h.inbox.MarkRead(r.Context(), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			httputil.NotFound(w, "notification not found")
			return
		}
		httputil.InternalError(w, err)
		return
	}
	httputil.NoContent(w)
}
