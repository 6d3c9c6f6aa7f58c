package gormpersistence

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"turn-coordinator/internal/domain"
	"turn-coordinator/internal/repository"
)

// GormActionRepository implements repository.ActionRepository.
type GormActionRepository struct {
	db *gorm.DB
}

var _ repository.ActionRepository = (*GormActionRepository)(nil)

func NewGormActionRepository(db *gorm.DB) *GormActionRepository {
	if db == nil {
		panic("database connection cannot be nil for GormActionRepository")
	}
	return &GormActionRepository{db: db}
}

func (r *GormActionRepository) Create(ctx context.Context, action *domain.Action) error {
	if err := dbFrom(ctx, r.db).Create(action).Error; err != nil {
		return wrapWrite(err, "append action %d to game %d", action.ActionID, action.GameID)
	}
	return nil
}

func (r *GormActionRepository) CountByGame(ctx context.Context, gameID uint) (int64, error) {
	var count int64
	err := dbFrom(ctx, r.db).Model(&domain.Action{}).Where("game_id = ?", gameID).Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("gorm: count actions of game %d: %w", gameID, err)
	}
	return count, nil
}

func (r *GormActionRepository) ListByGame(ctx context.Context, gameID uint) ([]domain.Action, error) {
	actions := []domain.Action{}
	err := dbFrom(ctx, r.db).Where("game_id = ?", gameID).Order("action_id ASC").Find(&actions).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: list actions of game %d: %w", gameID, err)
	}
	return actions, nil
}
