package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"turn-coordinator/internal/domain"
	"turn-coordinator/internal/repository"
)

// ActionRepository is a mock of repository.ActionRepository.
type ActionRepository struct {
	mock.Mock
}

var _ repository.ActionRepository = (*ActionRepository)(nil)

func (m *ActionRepository) Create(ctx context.Context, action *domain.Action) error {
	return m.Called(ctx, action).Error(0)
}

func (m *ActionRepository) CountByGame(ctx context.Context, gameID uint) (int64, error) {
	args := m.Called(ctx, gameID)
	n, _ := args.Get(0).(int64)
	return n, args.Error(1)
}

func (m *ActionRepository) ListByGame(ctx context.Context, gameID uint) ([]domain.Action, error) {
	args := m.Called(ctx, gameID)
	actions, _ := args.Get(0).([]domain.Action)
	return actions, args.Error(1)
}
