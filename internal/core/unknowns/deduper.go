package unknowns

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"facegate/internal/core/models"
	"facegate/internal/core/similarity"

	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	// historicalThreshold is the near-duplicate bar for faces outside the
	// recent window. It is deliberately stricter than the recent-tier
	// threshold: only a practically identical embedding suppresses a new row.
	historicalThreshold = 0.90

	// recentWindow is how far back a sighting counts as "the same visit".
	recentWindow = 5 * time.Minute
)

// Deduper stores unknown-face sightings while collapsing duplicates.
//
// Matching is two-tiered. Faces saved within the recent window are compared
// at the configured (looser) threshold, so one lingering visitor produces one
// row rather than one per frame. All older rows are compared at the fixed
// historical threshold, which only suppresses true re-captures of the same
// shot.
type Deduper struct {
	db              *gorm.DB
	recentThreshold float64

	// One writer at a time; the check-then-insert must not race with itself.
	mu sync.Mutex
}

// NewDeduper creates a deduper with the given recent-tier threshold.
func NewDeduper(db *gorm.DB, recentThreshold float64) *Deduper {
	return &Deduper{db: db, recentThreshold: recentThreshold}
}

// DedupeOrCreate stores the unknown face unless it duplicates an existing
// row. It returns the id of the governing row and whether a new row was
// inserted. The crop is the JPEG-encoded face region, box its frame
// coordinates as [x, y, w, h].
func (d *Deduper) DedupeOrCreate(embedding []float32, crop []byte, box [4]int, now time.Time) (uint, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var existing []models.UnknownFace
	if err := d.db.Order("detected_at DESC").Find(&existing).Error; err != nil {
		return 0, false, fmt.Errorf("failed to load unknown faces: %w", err)
	}

	cutoff := now.Add(-recentWindow)
	for i := range existing {
		stored, err := models.DecodeEmbedding(existing[i].Embedding)
		if err != nil {
			log.Warnf("Skipping unknown face %d with undecodable embedding: %v", existing[i].ID, err)
			continue
		}
		score, err := similarity.Score(embedding, stored)
		if err != nil {
			log.Warnf("Skipping unknown face %d: %v", existing[i].ID, err)
			continue
		}

		threshold := historicalThreshold
		if !existing[i].DetectedAt.Before(cutoff) {
			threshold = d.recentThreshold
		}
		if score >= threshold {
			log.Debugf("Unknown face duplicates row %d (score %.3f)", existing[i].ID, score)
			return existing[i].ID, false, nil
		}
	}

	boxJSON, err := json.Marshal(box)
	if err != nil {
		return 0, false, fmt.Errorf("failed to marshal bounding box: %w", err)
	}
	face := models.UnknownFace{
		Embedding:   models.EncodeEmbedding(embedding),
		ImageData:   crop,
		BoundingBox: datatypes.JSON(boxJSON),
		DetectedAt:  now,
	}
	if err := d.db.Create(&face).Error; err != nil {
		return 0, false, fmt.Errorf("failed to save unknown face: %w", err)
	}
	log.Infof("Unknown face saved as row %d", face.ID)
	return face.ID, true, nil
}
