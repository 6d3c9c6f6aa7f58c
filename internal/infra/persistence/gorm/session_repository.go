package gormpersistence

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"turn-coordinator/internal/domain"
	"turn-coordinator/internal/repository"
)

// GormSessionRepository implements repository.SessionRepository.
type GormSessionRepository struct {
	db *gorm.DB
}

var _ repository.SessionRepository = (*GormSessionRepository)(nil)

func NewGormSessionRepository(db *gorm.DB) *GormSessionRepository {
	if db == nil {
		panic("database connection cannot be nil for GormSessionRepository")
	}
	return &GormSessionRepository{db: db}
}

func (r *GormSessionRepository) Create(ctx context.Context, session *domain.Session) error {
	if err := dbFrom(ctx, r.db).Create(session).Error; err != nil {
		return wrapWrite(err, "create session for user %d", session.UserID)
	}
	return nil
}

func (r *GormSessionRepository) Touch(ctx context.Context, id string, at time.Time) error {
	res := dbFrom(ctx, r.db).Model(&domain.Session{}).
		Where("id = ?", id).
		UpdateColumn("updated_at", at)
	if res.Error != nil {
		return fmt.Errorf("gorm: touch session %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := dbFrom(ctx, r.db).Model(&domain.Session{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return fmt.Errorf("gorm: touch session %s: %w", id, err)
		}
		if count == 0 {
			return repository.ErrSessionNotFound
		}
	}
	return nil
}

func (r *GormSessionRepository) Delete(ctx context.Context, id string) error {
	if err := dbFrom(ctx, r.db).Delete(&domain.Session{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("gorm: delete session %s: %w", id, err)
	}
	return nil
}

func (r *GormSessionRepository) LastActivity(ctx context.Context, userID uint) (time.Time, error) {
	var session domain.Session
	res := dbFrom(ctx, r.db).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Limit(1).
		Find(&session)
	if res.Error != nil {
		return time.Time{}, fmt.Errorf("gorm: last activity of user %d: %w", userID, res.Error)
	}
	if res.RowsAffected == 0 {
		return time.Time{}, nil
	}
	return session.UpdatedAt, nil
}
