// Package db provides database connection and cart snapshot persistence
package db

import (
	"fmt"

	// gorm and postgres driver for database operations
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"henry/internal/models"
	"henry/pkg/config"

	// logrus for structured logging
	"github.com/sirupsen/logrus"
)

// Setup opens the PostgreSQL connection described by the settings and runs migrations.
// The returned *gorm.DB is ready to be wrapped in a Store.
func Setup(s config.Settings) (*gorm.DB, error) {
	// Construct PostgreSQL connection string
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		s.DBHost, s.DBUser, s.DBPassword, s.DBName, s.DBPort)

	return Open(postgres.Open(dsn))
}

// Open initializes GORM on an arbitrary dialector and migrates the snapshot schema.
// Tests pass a dialector over sqlmock.
func Open(dialector gorm.Dialector) (*gorm.DB, error) {
	db, err := gorm.Open(dialector, &gorm.Config{SkipDefaultTransaction: true})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	// Auto-migrate database schema for all models
	// This creates tables if they don't exist and updates existing ones
	if err := db.AutoMigrate(
		&models.SessionRecord{}, // Browser sessions seen by the storefront
		&models.CartSnapshot{},  // Last-good cart per cart event
	); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	logrus.Info("Database initialized successfully")
	return db, nil
}
