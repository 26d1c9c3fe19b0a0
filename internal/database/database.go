package database

import (
	"fmt"
	"log/slog"

	"github.com/fleetwatch/fleetwatch/internal/config"
	"github.com/fleetwatch/fleetwatch/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func Connect(cfg *config.Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBSSLMode)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("Database connected", "host", cfg.DBHost, "db", cfg.DBName)
	return db, nil
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Device{},
		&models.Alert{},
		&models.WorkflowExecution{},
	); err != nil {
		return err
	}

	// Dedup invariant: at most one unresolved alert per (device, type, title),
	// enforced against concurrent creators.
	return db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_alerts_active_dedup
		ON alerts (device_id, type, title) WHERE resolved_at IS NULL`).Error
}
