package domain

import (
	"time"

	"github.com/google/uuid"
)

// InAppNotification is one entry in a user's in-app inbox, written by the
// in_app notification channel and read by the platform dashboard.
type InAppNotification struct {
	ID        uuid.UUID  `json:"id"`
	UserID    string     `json:"user_id"`
	Message   string     `json:"message"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}
