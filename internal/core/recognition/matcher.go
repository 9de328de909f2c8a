package recognition

import (
	"facegate/internal/core/models"
	"facegate/internal/core/similarity"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Result is the outcome of matching one detection embedding against the
// person registry.
type Result struct {
	// Known is true when the best score reached the similarity threshold.
	Known bool
	// Person is the best-matching person; nil when Known is false.
	Person *models.Person
	// Score is the best similarity seen, 0.0 for an empty registry. It is
	// carried on unmatched results for observability.
	Score float64
}

// Matcher classifies detection embeddings against a snapshot of enrolled
// persons. It performs a linear scan; enrollment volumes are small enough
// that an index is not worth the complexity.
type Matcher struct {
	threshold float64
}

// NewMatcher creates a matcher with the given similarity threshold.
func NewMatcher(threshold float64) *Matcher {
	return &Matcher{threshold: threshold}
}

// Match scores the embedding against every person in the snapshot and keeps
// the maximum. Ties keep the first person encountered in snapshot order, so
// results are deterministic for a given snapshot. Persons whose stored
// embedding cannot be scored (wrong dimension, zero norm) are skipped.
// Match has no side effects.
func (m *Matcher) Match(embedding []float32, people []models.Person) Result {
	var best *models.Person
	bestScore := 0.0
	scored := false

	for i := range people {
		stored, err := models.DecodeEmbedding(people[i].Embedding)
		if err != nil {
			log.Warnf("Skipping person %d with undecodable embedding: %v", people[i].ID, err)
			continue
		}
		score, err := similarity.Score(embedding, stored)
		if err != nil {
			log.Warnf("Skipping person %d: %v", people[i].ID, err)
			continue
		}
		// Strictly greater keeps the first person on ties.
		if !scored || score > bestScore {
			bestScore = score
			best = &people[i]
			scored = true
		}
	}

	if scored && bestScore >= m.threshold {
		return Result{Known: true, Person: best, Score: bestScore}
	}
	if !scored {
		bestScore = 0.0
	}
	return Result{Known: false, Score: bestScore}
}

// Snapshot loads the current non-deleted persons in registration order
// (ascending id). The ordering is part of the matching contract: it is what
// makes tie-breaking deterministic.
func Snapshot(db *gorm.DB) ([]models.Person, error) {
	var people []models.Person
	if err := db.Where("deleted = ?", false).Order("id ASC").Find(&people).Error; err != nil {
		return nil, err
	}
	return people, nil
}
