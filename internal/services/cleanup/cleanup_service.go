package cleanup

import (
	"context"
	"fmt"
	"time"

	"facegate/config"
	"facegate/internal/core/models"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Service purges aged recognition data. Unknown-face rows carry JPEG blobs
// and grow without bound otherwise; closed attendance sessions are kept for
// the same retention period for reporting, then dropped.
type Service struct {
	db            *gorm.DB
	config        config.CleanupConfig
	checkInterval time.Duration
}

// NewService creates a cleanup service.
func NewService(db *gorm.DB, cfg config.CleanupConfig) *Service {
	return &Service{
		db:            db,
		config:        cfg,
		checkInterval: 24 * time.Hour,
	}
}

// Start runs the cleanup loop until the context is cancelled. An initial
// cleanup runs immediately.
func (s *Service) Start(ctx context.Context) {
	log.Info("Cleanup service started")

	if err := s.RunCleanup(ctx); err != nil {
		log.Errorf("Initial cleanup failed: %v", err)
	}

	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			log.Info("Running scheduled cleanup")
			if err := s.RunCleanup(ctx); err != nil {
				log.Errorf("Scheduled cleanup failed: %v", err)
			}
		case <-ctx.Done():
			log.Info("Cleanup service stopped")
			return
		}
	}
}

// RunCleanup performs one cleanup pass.
func (s *Service) RunCleanup(ctx context.Context) error {
	if s.config.RetentionDays <= 0 {
		log.Info("Cleanup disabled (retention days <= 0)")
		return nil
	}

	cutoff := time.Now().AddDate(0, 0, -s.config.RetentionDays)
	log.Infof("Cleaning up data older than %s", cutoff.Format("2006-01-02"))

	db := s.db.WithContext(ctx)

	result := db.Unscoped().Where("detected_at < ?", cutoff).Delete(&models.UnknownFace{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete old unknown faces: %w", result.Error)
	}
	unknownCount := result.RowsAffected

	// Open sessions are never purged, no matter how old their arrival is.
	result = db.Unscoped().
		Where("departure_time IS NOT NULL AND departure_time < ?", cutoff).
		Delete(&models.Attendance{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete old attendance sessions: %w", result.Error)
	}

	log.Infof("Cleanup completed: removed %d unknown faces, %d attendance sessions",
		unknownCount, result.RowsAffected)
	return nil
}
