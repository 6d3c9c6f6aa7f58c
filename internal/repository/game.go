package repository

import (
	"context"

	"turn-coordinator/internal/domain"
)

// GameFilter narrows the game list.
type GameFilter struct {
	ViewerID uint                // 0 for anonymous viewers
	Status   []domain.GameStatus // empty means any status
	Mine     bool                // only games ViewerID plays in
	Limit    int
	Offset   int
}

// GameRepository stores games and their player lists.
type GameRepository interface {
	// Create inserts the game (without associations).
	Create(ctx context.Context, game *domain.Game) error

	// FindByID loads a game with its owner and players (players in join order).
	// Returns ErrGameNotFound if it does not exist.
	FindByID(ctx context.Context, id uint) (*domain.Game, error)

	// UpdateState writes status, round, turn, acting and result.
	UpdateState(ctx context.Context, game *domain.Game) error

	// AddPlayer appends a user to the game's player list.
	AddPlayer(ctx context.Context, gameID, userID uint) error

	// RemovePlayer drops a user from the game's player list.
	RemovePlayer(ctx context.Context, gameID, userID uint) error

	// Delete removes the game, its players and its actions.
	Delete(ctx context.Context, id uint) error

	// List returns the games visible under filter, most recently updated first.
	List(ctx context.Context, filter GameFilter) ([]domain.Game, error)
}
