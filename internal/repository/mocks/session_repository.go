package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"turn-coordinator/internal/domain"
	"turn-coordinator/internal/repository"
)

// SessionRepository is a mock of repository.SessionRepository.
type SessionRepository struct {
	mock.Mock
}

var _ repository.SessionRepository = (*SessionRepository)(nil)

func (m *SessionRepository) Create(ctx context.Context, session *domain.Session) error {
	return m.Called(ctx, session).Error(0)
}

func (m *SessionRepository) Touch(ctx context.Context, id string, at time.Time) error {
	return m.Called(ctx, id, at).Error(0)
}

func (m *SessionRepository) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *SessionRepository) LastActivity(ctx context.Context, userID uint) (time.Time, error) {
	args := m.Called(ctx, userID)
	at, _ := args.Get(0).(time.Time)
	return at, args.Error(1)
}
