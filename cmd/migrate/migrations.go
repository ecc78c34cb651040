package main

import (
	"gorm.io/gorm"

	"github.com/rangeos/engine/internal/models"
)

// registerModels returns all models that need migration
func registerModels() []any {
	return []any{
		&models.UIState{},
	}
}

// runMigrations executes all database migrations
func runMigrations(db *gorm.DB) error {
	// gen_random_uuid() backs the UIState primary key.
	if err := enableUUIDExtension(db); err != nil {
		return err
	}

	if err := db.AutoMigrate(registerModels()...); err != nil {
		return err
	}

	return runCustomMigrations(db)
}

// runCustomMigrations handles schema changes AutoMigrate can't handle
func runCustomMigrations(db *gorm.DB) error {
	migrations := []func(*gorm.DB) error{
		addUIStateIndexes,
	}

	for _, migration := range migrations {
		if err := migration(db); err != nil {
			return err
		}
	}

	return nil
}

func enableUUIDExtension(db *gorm.DB) error {
	return db.Exec(`CREATE EXTENSION IF NOT EXISTS "pgcrypto"`).Error
}

// addUIStateIndexes speeds up the per-owner reset, which deletes every slice of one owner.
func addUIStateIndexes(db *gorm.DB) error {
	return db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_ui_states_owner
		ON ui_states(owner)
	`).Error
}
