package db

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"facegate/config"
	"facegate/internal/core/models"

	"github.com/glebarez/sqlite" // pure Go SQLite driver
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Initialize opens the SQLite database, configures the connection pool and
// runs migrations. The handle is returned to the caller; there is no
// package-level connection.
func Initialize(cfg *config.Config) (*gorm.DB, error) {
	if cfg.DB.File != "" {
		dbDir := filepath.Dir(cfg.DB.File)
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	gormLogger := logger.New(
		log.StandardLogger(),
		logger.Config{
			SlowThreshold:             time.Second * 2,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	log.Infof("Connecting to database: %s", cfg.DB.File)
	gormDB, err := gorm.Open(sqlite.Open(cfg.DB.File), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database connection: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	log.Info("Running database migrations...")
	if err := gormDB.AutoMigrate(
		&models.Person{},
		&models.Attendance{},
		&models.UnknownFace{},
	); err != nil {
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	log.Info("Database connection established successfully")
	return gormDB, nil
}
