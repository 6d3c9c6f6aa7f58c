package gormpersistence

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"turn-coordinator/internal/domain"
	"turn-coordinator/internal/repository"
)

// GormGameRepository implements repository.GameRepository.
type GormGameRepository struct {
	db *gorm.DB
}

var _ repository.GameRepository = (*GormGameRepository)(nil)

func NewGormGameRepository(db *gorm.DB) *GormGameRepository {
	if db == nil {
		panic("database connection cannot be nil for GormGameRepository")
	}
	return &GormGameRepository{db: db}
}

func (r *GormGameRepository) withPlayers(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Owner").
		Preload("Players", func(db *gorm.DB) *gorm.DB { return db.Order("game_players.id ASC") }).
		Preload("Players.User")
}

func (r *GormGameRepository) Create(ctx context.Context, game *domain.Game) error {
	if err := dbFrom(ctx, r.db).Omit(clause.Associations).Create(game).Error; err != nil {
		return wrapWrite(err, "create game '%s'", game.Title)
	}
	return nil
}

func (r *GormGameRepository) FindByID(ctx context.Context, id uint) (*domain.Game, error) {
	var game domain.Game
	err := r.withPlayers(dbFrom(ctx, r.db)).First(&game, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrGameNotFound
		}
		return nil, fmt.Errorf("gorm: find game by id %d: %w", id, err)
	}
	return &game, nil
}

func (r *GormGameRepository) UpdateState(ctx context.Context, game *domain.Game) error {
	err := dbFrom(ctx, r.db).Model(&domain.Game{ID: game.ID}).
		Updates(map[string]any{
			"status": game.Status,
			"round":  game.Round,
			"turn":   game.Turn,
			"acting": game.Acting,
			"result": game.Result,
		}).Error
	if err != nil {
		return fmt.Errorf("gorm: update state of game %d: %w", game.ID, err)
	}
	return nil
}

func (r *GormGameRepository) AddPlayer(ctx context.Context, gameID, userID uint) error {
	player := domain.GamePlayer{GameID: gameID, UserID: userID}
	if err := dbFrom(ctx, r.db).Omit(clause.Associations).Create(&player).Error; err != nil {
		return wrapWrite(err, "add user %d to game %d", userID, gameID)
	}
	return r.touch(ctx, gameID)
}

func (r *GormGameRepository) RemovePlayer(ctx context.Context, gameID, userID uint) error {
	err := dbFrom(ctx, r.db).
		Where("game_id = ? AND user_id = ?", gameID, userID).
		Delete(&domain.GamePlayer{}).Error
	if err != nil {
		return fmt.Errorf("gorm: remove user %d from game %d: %w", userID, gameID, err)
	}
	return r.touch(ctx, gameID)
}

func (r *GormGameRepository) touch(ctx context.Context, gameID uint) error {
	err := dbFrom(ctx, r.db).Model(&domain.Game{}).
		Where("id = ?", gameID).
		UpdateColumn("updated_at", gorm.Expr("CURRENT_TIMESTAMP")).Error
	if err != nil {
		return fmt.Errorf("gorm: touch game %d: %w", gameID, err)
	}
	return nil
}

func (r *GormGameRepository) Delete(ctx context.Context, id uint) error {
	db := dbFrom(ctx, r.db)
	if err := db.Where("game_id = ?", id).Delete(&domain.Action{}).Error; err != nil {
		return fmt.Errorf("gorm: delete actions of game %d: %w", id, err)
	}
	if err := db.Where("game_id = ?", id).Delete(&domain.GamePlayer{}).Error; err != nil {
		return fmt.Errorf("gorm: delete players of game %d: %w", id, err)
	}
	res := db.Delete(&domain.Game{}, id)
	if res.Error != nil {
		return fmt.Errorf("gorm: delete game %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return repository.ErrGameNotFound
	}
	return nil
}

func (r *GormGameRepository) List(ctx context.Context, filter repository.GameFilter) ([]domain.Game, error) {
	query := r.withPlayers(dbFrom(ctx, r.db)).Model(&domain.Game{})
	if len(filter.Status) > 0 {
		query = query.Where("status IN ?", filter.Status)
	}
	if filter.Mine {
		query = query.Where("id IN (?)",
			dbFrom(ctx, r.db).Model(&domain.GamePlayer{}).Select("game_id").Where("user_id = ?", filter.ViewerID))
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	games := []domain.Game{}
	if err := query.Order("updated_at DESC").Order("id DESC").Find(&games).Error; err != nil {
		return nil, fmt.Errorf("gorm: list games: %w", err)
	}
	return games, nil
}
