package repository

import (
	"context"

	"turn-coordinator/internal/domain"
)

// ActionRepository is the append-only action log.
type ActionRepository interface {
	// Create appends one action. A second row with the same (GameID, ActionID)
	// fails with ErrDuplicateEntry.
	Create(ctx context.Context, action *domain.Action) error

	// CountByGame returns how many actions the game has.
	CountByGame(ctx context.Context, gameID uint) (int64, error)

	// ListByGame returns the game's actions ordered by ActionID.
	ListByGame(ctx context.Context, gameID uint) ([]domain.Action, error)
}
