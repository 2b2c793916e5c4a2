package db

import (
	"signalflow/internal/models"
)

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil || db.SQL == nil {
		return nil
	}
	return db.Gorm.AutoMigrate(
		&models.Signal{},
		&models.CopyOrder{},
		&models.TraderWatch{},
		&models.NotificationOutbox{},
		&models.SystemSetting{},
	)
}
