// Package postgres implements the repository interfaces against PostgreSQL
// using database/sql and lib/pq. Nested rule aggregates (condition, action,
// schedule, notification) are stored as JSONB columns.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/campaign-autopilot/internal/domain"
	"github.com/ignite/campaign-autopilot/internal/service/rule"
)

// RuleRepo implements rule.Repository against PostgreSQL.
type RuleRepo struct{ db *sql.DB }

// NewRuleRepo creates a Postgres-backed rule repository.
func NewRuleRepo(db *sql.DB) *RuleRepo { return &RuleRepo{db: db} }

const ruleColumns = `id, campaign_id, name, COALESCE(description,''), status,
	condition, action, schedule, notification, created_at, updated_at, last_triggered_at`

func (r *RuleRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Rule, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+ruleColumns+`
		FROM automation_rules
		WHERE id = $1
	`, id)
	out, err := scanRule(row)
	if err == sql.ErrNoRows {
		return nil, rule.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get rule: %w", err)
	}
	return out, nil
}

func (r *RuleRepo) List(ctx context.Context, f rule.ListFilter) ([]domain.Rule, int, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	where := " WHERE 1=1"
	args := []interface{}{}
	idx := 1
	if f.CampaignID != uuid.Nil {
		where += fmt.Sprintf(" AND campaign_id = $%d", idx)
		args = append(args, f.CampaignID)
		idx++
	}
	if f.Status != "" {
		where += fmt.Sprintf(" AND status = $%d", idx)
		args = append(args, f.Status)
		idx++
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM automation_rules`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count rules: %w", err)
	}

	q := `SELECT ` + ruleColumns + ` FROM automation_rules` + where +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, limit, f.Offset)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	var out []domain.Rule
	for rows.Next() {
		ru, err := scanRule(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan rule: %w", err)
		}
		out = append(out, *ru)
	}
	return out, total, rows.Err()
}

func (r *RuleRepo) ListActive(ctx context.Context) ([]domain.Rule, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+ruleColumns+`
		FROM automation_rules
		WHERE status = 'active'
		ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("list active rules: %w", err)
	}
	defer rows.Close()

	var out []domain.Rule
	for rows.Next() {
		ru, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		out = append(out, *ru)
	}
	return out, rows.Err()
}

func (r *RuleRepo) Create(ctx context.Context, ru *domain.Rule) error {
	if ru.ID == uuid.Nil {
		ru.ID = uuid.New()
	}
	condJSON, actJSON, schedJSON, notifJSON, err := marshalAggregates(ru)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO automation_rules
			(id, campaign_id, name, description, status, condition, action, schedule, notification, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
	`, ru.ID, ru.CampaignID, ru.Name, ru.Description, ru.Status, condJSON, actJSON, schedJSON, notifJSON)
	if err != nil {
		return fmt.Errorf("create rule: %w", err)
	}
	return nil
}

func (r *RuleRepo) Update(ctx context.Context, ru *domain.Rule) error {
	condJSON, actJSON, schedJSON, notifJSON, err := marshalAggregates(ru)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE automation_rules
		SET name=$1, description=$2, condition=$3, action=$4, schedule=$5, notification=$6, updated_at=NOW()
		WHERE id = $7
	`, ru.Name, ru.Description, condJSON, actJSON, schedJSON, notifJSON, ru.ID)
	if err != nil {
		return fmt.Errorf("update rule: %w", err)
	}
	return requireRow(res)
}

func (r *RuleRepo) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM automation_rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	return requireRow(res)
}

func (r *RuleRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.RuleStatus) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE automation_rules SET status=$1, updated_at=NOW() WHERE id = $2
	`, status, id)
	if err != nil {
		return fmt.Errorf("update rule status: %w", err)
	}
	return requireRow(res)
}

func (r *RuleRepo) TouchLastTriggered(ctx context.Context, id uuid.UUID, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE automation_rules SET last_triggered_at=$1, updated_at=NOW() WHERE id = $2
	`, at, id)
	if err != nil {
		return fmt.Errorf("touch last_triggered_at: %w", err)
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return rule.ErrNotFound
	}
	return nil
}

func marshalAggregates(ru *domain.Rule) (cond, act, sched, notif []byte, err error) {
	if cond, err = json.Marshal(ru.Condition); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("marshal condition: %w", err)
	}
	if act, err = json.Marshal(ru.Action); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("marshal action: %w", err)
	}
	if sched, err = json.Marshal(ru.Schedule); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("marshal schedule: %w", err)
	}
	if ru.Notification != nil {
		if notif, err = json.Marshal(ru.Notification); err != nil {
			return nil, nil, nil, nil, fmt.Errorf("marshal notification: %w", err)
		}
	}
	return cond, act, sched, notif, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRule(row rowScanner) (*domain.Rule, error) {
	var ru domain.Rule
	var condJSON, actJSON, schedJSON []byte
	var notifJSON []byte // nil when the column is NULL
	var lastTriggered sql.NullTime

	err := row.Scan(
		&ru.ID, &ru.CampaignID, &ru.Name, &ru.Description, &ru.Status,
		&condJSON, &actJSON, &schedJSON, &notifJSON,
		&ru.CreatedAt, &ru.UpdatedAt, &lastTriggered,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(condJSON, &ru.Condition); err != nil {
		return nil, fmt.Errorf("unmarshal condition: %w", err)
	}
	if err := json.Unmarshal(actJSON, &ru.Action); err != nil {
		return nil, fmt.Errorf("unmarshal action: %w", err)
	}
	if err := json.Unmarshal(schedJSON, &ru.Schedule); err != nil {
		return nil, fmt.Errorf("unmarshal schedule: %w", err)
	}
	if len(notifJSON) > 0 {
		var cfg domain.NotificationConfig
		if err := json.Unmarshal(notifJSON, &cfg); err != nil {
			return nil, fmt.Errorf("unmarshal notification: %w", err)
		}
		ru.Notification = &cfg
	}
	if lastTriggered.Valid {
		t := lastTriggered.Time
		ru.LastTriggeredAt = &t
	}
	return &ru, nil
}
