package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/ignite/campaign-autopilot/internal/domain"
)

// InboxRepo reads the in-app inbox written by the in_app notification
// channel.
type InboxRepo struct{ db *sql.DB }

// NewInboxRepo creates a Postgres-backed inbox repository.
func NewInboxRepo(db *sql.DB) *InboxRepo { return &InboxRepo{db: db} }

// List returns a user's notifications, most recent first.
func (r *InboxRepo) List(ctx context.Context, userID string, limit, offset int) ([]domain.InAppNotification, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, message, read_at, created_at
		FROM in_app_notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list inbox: %w", err)
	}
	defer rows.Close()

	var out []domain.InAppNotification
	for rows.Next() {
		var n domain.InAppNotification
		var readAt sql.NullTime
		if err := rows.Scan(&n.ID, &n.UserID, &n.Message, &readAt, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan inbox entry: %w", err)
		}
		if readAt.Valid {
			t := readAt.Time
			n.ReadAt = &t
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkRead stamps a notification as read. Already-read entries keep their
// original read_at.
func (r *InboxRepo) MarkRead(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE in_app_notifications SET read_at = NOW() WHERE id = $1 AND read_at IS NULL
	`, id)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	// Idempotent: marking an already-read or missing entry is not an error
	// for the dashboard, but distinguish missing rows for the API.
	if n, _ := res.RowsAffected(); n == 0 {
		var exists bool
		if err := r.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM in_app_notifications WHERE id = $1)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("check notification: %w", err)
		}
		if !exists {
			return sql.ErrNoRows
		}
	}
	return nil
}
