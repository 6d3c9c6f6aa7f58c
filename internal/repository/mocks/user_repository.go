// Package mocks holds testify mocks of the repository interfaces.
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"turn-coordinator/internal/domain"
	"turn-coordinator/internal/repository"
)

// UserRepository is a mock of repository.UserRepository.
type UserRepository struct {
	mock.Mock
}

var _ repository.UserRepository = (*UserRepository)(nil)

func (m *UserRepository) FindByName(ctx context.Context, name string) (*domain.User, error) {
	args := m.Called(ctx, name)
	user, _ := args.Get(0).(*domain.User)
	return user, args.Error(1)
}

func (m *UserRepository) FindByID(ctx context.Context, id uint) (*domain.User, error) {
	args := m.Called(ctx, id)
	user, _ := args.Get(0).(*domain.User)
	return user, args.Error(1)
}

func (m *UserRepository) FindByIDs(ctx context.Context, ids []uint) ([]domain.User, error) {
	args := m.Called(ctx, ids)
	users, _ := args.Get(0).([]domain.User)
	return users, args.Error(1)
}

func (m *UserRepository) Save(ctx context.Context, user *domain.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *UserRepository) MarkNotified(ctx context.Context, userID uint, at time.Time) error {
	return m.Called(ctx, userID, at).Error(0)
}

func (m *UserRepository) SetNotificationsEnabled(ctx context.Context, userID uint, enabled bool) error {
	return m.Called(ctx, userID, enabled).Error(0)
}
