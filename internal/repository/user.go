package repository

import (
	"context"
	"time"

	"turn-coordinator/internal/domain"
)

// UserRepository stores users.
type UserRepository interface {
	// FindByName looks a user up by display name.
	// Returns ErrUserNotFound if no user has that name.
	FindByName(ctx context.Context, name string) (*domain.User, error)

	// FindByID returns ErrUserNotFound if the user does not exist.
	FindByID(ctx context.Context, id uint) (*domain.User, error)

	// FindByIDs returns the users that exist among ids; missing ids are skipped.
	FindByIDs(ctx context.Context, ids []uint) ([]domain.User, error)

	// Save creates or updates a user.
	Save(ctx context.Context, user *domain.User) error

	// MarkNotified records that a turn email went out at the given time.
	MarkNotified(ctx context.Context, userID uint, at time.Time) error

	// SetNotificationsEnabled stores the user's email preference.
	SetNotificationsEnabled(ctx context.Context, userID uint, enabled bool) error
}
