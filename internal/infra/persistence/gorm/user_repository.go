package gormpersistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"turn-coordinator/internal/domain"
	"turn-coordinator/internal/repository"
)

// GormUserRepository implements repository.UserRepository.
type GormUserRepository struct {
	db *gorm.DB
}

var _ repository.UserRepository = (*GormUserRepository)(nil)

func NewGormUserRepository(db *gorm.DB) *GormUserRepository {
	if db == nil {
		panic("database connection cannot be nil for GormUserRepository")
	}
	return &GormUserRepository{db: db}
}

func (r *GormUserRepository) FindByName(ctx context.Context, name string) (*domain.User, error) {
	var user domain.User
	err := dbFrom(ctx, r.db).Where("name = ?", name).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrUserNotFound
		}
		return nil, fmt.Errorf("gorm: find user by name '%s': %w", name, err)
	}
	return &user, nil
}

func (r *GormUserRepository) FindByID(ctx context.Context, id uint) (*domain.User, error) {
	var user domain.User
	err := dbFrom(ctx, r.db).First(&user, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrUserNotFound
		}
		return nil, fmt.Errorf("gorm: find user by id %d: %w", id, err)
	}
	return &user, nil
}

func (r *GormUserRepository) FindByIDs(ctx context.Context, ids []uint) ([]domain.User, error) {
	users := []domain.User{}
	if len(ids) == 0 {
		return users, nil
	}
	if err := dbFrom(ctx, r.db).Where("id IN ?", ids).Order("id").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("gorm: find users by ids: %w", err)
	}
	return users, nil
}

func (r *GormUserRepository) Save(ctx context.Context, user *domain.User) error {
	if err := dbFrom(ctx, r.db).Save(user).Error; err != nil {
		return wrapWrite(err, "save user '%s'", user.Name)
	}
	return nil
}

func (r *GormUserRepository) MarkNotified(ctx context.Context, userID uint, at time.Time) error {
	err := dbFrom(ctx, r.db).Model(&domain.User{}).
		Where("id = ?", userID).
		UpdateColumn("last_notified_at", at).Error
	if err != nil {
		return fmt.Errorf("gorm: mark user %d notified: %w", userID, err)
	}
	return nil
}

func (r *GormUserRepository) SetNotificationsEnabled(ctx context.Context, userID uint, enabled bool) error {
	res := dbFrom(ctx, r.db).Model(&domain.User{}).
		Where("id = ?", userID).
		Update("notifications_enabled", enabled)
	if res.Error != nil {
		return fmt.Errorf("gorm: set notifications for user %d: %w", userID, res.Error)
	}
	if res.RowsAffected == 0 {
		// MySQL reports zero affected rows when the value is unchanged.
		if _, err := r.FindByID(ctx, userID); err != nil {
			return err
		}
	}
	return nil
}
