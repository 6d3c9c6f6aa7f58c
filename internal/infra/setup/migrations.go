package setup

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"turn-coordinator/internal/domain"
)

// MigrateDB creates or updates every table the service uses.
func MigrateDB(db *gorm.DB, logger *logrus.Logger) error {
	if db == nil {
		return fmt.Errorf("cannot migrate database with nil DB connection")
	}

	err := db.AutoMigrate(
		&domain.User{},
		&domain.Session{},
		&domain.Game{},
		&domain.GamePlayer{},
		&domain.Action{},
	)
	if err != nil {
		logger.WithError(err).Error("Failed to auto-migrate tables")
		return fmt.Errorf("failed to auto-migrate tables: %w", err)
	}

	logger.Info("Database migration completed successfully")
	return nil
}
