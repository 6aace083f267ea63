package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ignite/campaign-autopilot/internal/domain"
	"github.com/ignite/campaign-autopilot/internal/engine"
	"github.com/ignite/campaign-autopilot/internal/pkg/httputil"
	"github.com/ignite/campaign-autopilot/internal/service/history"
	"github.com/ignite/campaign-autopilot/internal/service/rule"
)

// Evaluator is the slice of the engine the API needs: dry runs, manual runs,
// and loop health.
type Evaluator interface {
	TestRule(ctx context.Context, id uuid.UUID) (*engine.TestResult, error)
	TestCondition(ctx context.Context, campaignID uuid.UUID, c domain.Condition) *engine.TestResult
	RunNow(ctx context.Context, id uuid.UUID) (*domain.ExecutionRecord, error)
	IsHealthy() bool
	LastTickAt() time.Time
}

// Inbox reads the in-app notification inbox.
type Inbox interface {
	List(ctx context.Context, userID string, limit, offset int) ([]domain.InAppNotification, error)
	MarkRead(ctx context.Context, id uuid.UUID) error
}

// Handlers holds the services backing the HTTP endpoints.
type Handlers struct {
	rules     *rule.Service
	history   *history.Service
	evaluator Evaluator
	inbox     Inbox
}

// NewHandlers creates the handler set. evaluator and inbox may be nil; their
// endpoints then report unavailable.
func NewHandlers(rules *rule.Service, hist *history.Service, evaluator Evaluator, inbox Inbox) *Handlers {
	return &Handlers{rules: rules, history: hist, evaluator: evaluator, inbox: inbox}
}

// writeServiceError maps service errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, rule.ErrInvalid):
		httputil.BadRequest(w, err.Error())
	case errors.Is(err, rule.ErrNotFound):
		httputil.NotFound(w, "rule not found")
	case errors.Is(err, rule.ErrCompleted):
		httputil.Conflict(w, "rule is completed and can no longer change")
	case errors.Is(err, engine.ErrConcurrentEvaluation):
		httputil.Conflict(w, "rule is already being evaluated")
	default:
		httputil.InternalError(w, err)
	}
}

func ruleID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "ruleID"))
	if err != nil {
		httputil.BadRequest(w, "invalid rule id")
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(r *http.Request, key string) int {
	v, _ := strconv.Atoi(r.URL.Query().Get(key))
	return v
}
