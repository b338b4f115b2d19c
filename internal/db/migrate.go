package db

import (
	"fmt"

	"github.com/aipolabs/metering/internal/models"
	"gorm.io/gorm"
)

// Migrate applies schema migrations for all metering tables.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	return conn.AutoMigrate(
		&models.Project{},
		&models.ExecutionLog{},
		&models.ExecutionDetail{},
		&models.Setting{},
	)
}
