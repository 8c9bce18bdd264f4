package database

import (
	"fmt"

	"scrollpress/common"
	"scrollpress/models"

	"gorm.io/gorm"
)

func RunMigrations(db *gorm.DB) error {
	common.Infow("migrations_start")

	if err := db.SetupJoinTable(&models.Post{}, "Tags", &models.PostTag{}); err != nil {
		return fmt.Errorf("setup post_tags join table: %w", err)
	}

	err := db.AutoMigrate(
		&models.Post{},
		&models.Tag{},
		&models.PostTag{},
		&models.Comment{},
	)
	if err != nil {
		common.Errorw("migrations_failed", "error", err)
		return err
	}

	common.Infow("migrations_done")
	return nil
}
