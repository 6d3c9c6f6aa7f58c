package repository

import (
	"context"
	"time"

	"turn-coordinator/internal/domain"
)

// SessionRepository stores logins and their last activity.
type SessionRepository interface {
	Create(ctx context.Context, session *domain.Session) error

	// Touch sets the session's activity time. Returns ErrSessionNotFound for
	// unknown or deleted sessions.
	Touch(ctx context.Context, id string, at time.Time) error

	Delete(ctx context.Context, id string) error

	// LastActivity is the latest activity over all of the user's sessions,
	// or the zero time if there are none.
	LastActivity(ctx context.Context, userID uint) (time.Time, error)
}
