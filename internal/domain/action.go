package domain

import (
	"time"

	"gorm.io/datatypes"
)

// Action is one immutable entry of a game's action log.
// For a given GameID, ActionID runs 1..N without gaps.
type Action struct {
	ID        uint              `gorm:"primaryKey"`
	GameID    uint              `gorm:"not null;uniqueIndex:idx_game_action"`
	ActionID  int               `gorm:"not null;uniqueIndex:idx_game_action"`
	UserID    uint              `gorm:"index;not null"`
	Turn      int               `gorm:"not null"`
	Round     string            `gorm:"size:100"`
	Payload   datatypes.JSONMap // the action as accepted, without pin metadata
	CreatedAt time.Time         `gorm:"autoCreateTime"`
}
