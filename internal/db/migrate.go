package db

import (
	"scenariomarket/internal/models"
)

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil || db.SQL == nil {
		return nil
	}

	return db.Gorm.AutoMigrate(
		&models.User{},
		&models.Scenario{},
		&models.Holding{},
		&models.StealHistoryEntry{},
		&models.Pool{},
		&models.Shield{},
		&models.BalanceEntry{},
	)
}
