package bootstrap

import (
	"fmt"

	"gorm.io/gorm"

	"payportal/internal/models"
)

// Migrate ensures the service tables and their indexes exist. The unique
// index on ls_document_no is what makes transaction creation create-or-fail.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(allModels()...); err != nil {
		return fmt.Errorf("auto migrate failed: %w", err)
	}
	return nil
}

func allModels() []interface{} {
	return []interface{}{
		&models.PaymentTransaction{},
		&models.CronRun{},
	}
}
