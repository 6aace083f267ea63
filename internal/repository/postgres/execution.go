package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/ignite/campaign-autopilot/internal/domain"
)

// ExecutionRepo implements history.Repository against PostgreSQL.
// The rule_executions table is append-only: this type deliberately has no
// update or delete methods, and none exist elsewhere.
type ExecutionRepo struct{ db *sql.DB }

// NewExecutionRepo creates a Postgres-backed execution history repository.
func NewExecutionRepo(db *sql.DB) *ExecutionRepo { return &ExecutionRepo{db: db} }

func (r *ExecutionRepo) Append(ctx context.Context, rec *domain.ExecutionRecord) error {
	snapJSON, err := json.Marshal(rec.MetricsSnapshot)
	if err != nil {
		return fmt.Errorf("marshal metrics snapshot: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO rule_executions
			(id, rule_id, campaign_id, triggered_at, metrics_snapshot, triggered, action_outcome, manual, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, rec.ID, rec.RuleID, rec.CampaignID, rec.TriggeredAt, snapJSON,
		rec.Triggered, rec.ActionOutcome, rec.Manual, rec.Detail, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("append execution record: %w", err)
	}
	return nil
}

const executionColumns = `id, rule_id, campaign_id, triggered_at, metrics_snapshot,
	triggered, action_outcome, manual, COALESCE(detail,''), created_at`

func (r *ExecutionRepo) ListForRule(ctx context.Context, ruleID uuid.UUID, limit, offset int) ([]domain.ExecutionRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+executionColumns+`
		FROM rule_executions
		WHERE rule_id = $1
		ORDER BY triggered_at DESC
		LIMIT $2 OFFSET $3
	`, ruleID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list executions for rule: %w", err)
	}
	return collectExecutions(rows)
}

func (r *ExecutionRepo) ListForCampaign(ctx context.Context, campaignID uuid.UUID, limit, offset int) ([]domain.ExecutionRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+executionColumns+`
		FROM rule_executions
		WHERE campaign_id = $1
		ORDER BY triggered_at DESC
		LIMIT $2 OFFSET $3
	`, campaignID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list executions for campaign: %w", err)
	}
	return collectExecutions(rows)
}

func collectExecutions(rows *sql.Rows) ([]domain.ExecutionRecord, error) {
	defer rows.Close()
	var out []domain.ExecutionRecord
	for rows.Next() {
		var rec domain.ExecutionRecord
		var snapJSON []byte
		if err := rows.Scan(
			&rec.ID, &rec.RuleID, &rec.CampaignID, &rec.TriggeredAt, &snapJSON,
			&rec.Triggered, &rec.ActionOutcome, &rec.Manual, &rec.Detail, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan execution record: %w", err)
		}
		if len(snapJSON) > 0 {
			if err := json.Unmarshal(snapJSON, &rec.MetricsSnapshot); err != nil {
				return nil, fmt.Errorf("unmarshal metrics snapshot: %w", err)
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
