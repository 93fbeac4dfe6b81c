package data

import (
	"fmt"

	"github.com/stake-plus/fitbet/src/shared/fit"
	"gorm.io/gorm"
)

// Migrate creates or updates every table the service owns.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(fit.Models()...); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
