package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"turn-coordinator/internal/domain"
	"turn-coordinator/internal/repository"
)

// GameRepository is a mock of repository.GameRepository.
type GameRepository struct {
	mock.Mock
}

var _ repository.GameRepository = (*GameRepository)(nil)

func (m *GameRepository) Create(ctx context.Context, game *domain.Game) error {
	return m.Called(ctx, game).Error(0)
}

func (m *GameRepository) FindByID(ctx context.Context, id uint) (*domain.Game, error) {
	args := m.Called(ctx, id)
	game, _ := args.Get(0).(*domain.Game)
	return game, args.Error(1)
}

func (m *GameRepository) UpdateState(ctx context.Context, game *domain.Game) error {
	return m.Called(ctx, game).Error(0)
}

func (m *GameRepository) AddPlayer(ctx context.Context, gameID, userID uint) error {
	return m.Called(ctx, gameID, userID).Error(0)
}

func (m *GameRepository) RemovePlayer(ctx context.Context, gameID, userID uint) error {
	return m.Called(ctx, gameID, userID).Error(0)
}

func (m *GameRepository) Delete(ctx context.Context, id uint) error {
	return m.Called(ctx, id).Error(0)
}

func (m *GameRepository) List(ctx context.Context, filter repository.GameFilter) ([]domain.Game, error) {
	args := m.Called(ctx, filter)
	games, _ := args.Get(0).([]domain.Game)
	return games, args.Error(1)
}
