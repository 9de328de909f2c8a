package attendance

import (
	"fmt"
	"sync"
	"time"

	"facegate/internal/core/models"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Reconciler folds repeated sightings of a person into attendance sessions.
//
// A sighting within the rolling window of an open session (departure not set,
// arrival no older than the window) reuses that session; otherwise a new
// session is created. The window is anchored on the arrival time, so an open
// session eventually ages out no matter how often the person is re-seen.
type Reconciler struct {
	db     *gorm.DB
	window time.Duration

	// Per-person locks serialize concurrent check-then-insert for the same
	// identity across frames. The map only grows; person counts are small.
	mu    sync.Mutex
	locks map[uint]*sync.Mutex
}

// NewReconciler creates a reconciler with the given session window.
func NewReconciler(db *gorm.DB, window time.Duration) *Reconciler {
	return &Reconciler{
		db:     db,
		window: window,
		locks:  make(map[uint]*sync.Mutex),
	}
}

func (r *Reconciler) personLock(personID uint) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[personID]
	if !ok {
		l = &sync.Mutex{}
		r.locks[personID] = l
	}
	return l
}

// Reconcile records a sighting of the person at the given time. It returns
// the governing session and whether a new session was created. At most one
// open session exists per person at any time.
func (r *Reconciler) Reconcile(person *models.Person, now time.Time) (*models.Attendance, bool, error) {
	lock := r.personLock(person.ID)
	lock.Lock()
	defer lock.Unlock()

	var session models.Attendance
	created := false

	err := r.db.Transaction(func(tx *gorm.DB) error {
		cutoff := now.Add(-r.window)
		result := tx.Where("person_id = ? AND departure_time IS NULL AND arrival_time >= ?", person.ID, cutoff).
			Order("arrival_time DESC").
			Limit(1).
			Find(&session)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected > 0 {
			return nil
		}

		session = models.Attendance{
			PersonID:    person.ID,
			Name:        person.Name,
			Identifier:  person.Identifier,
			ArrivalTime: now,
			Auto:        true,
		}
		if err := tx.Create(&session).Error; err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to reconcile attendance for person %d: %w", person.ID, err)
	}

	if created {
		log.Infof("Attendance recorded: %s (%s) at %s", person.Name, person.Identifier, now.Format(time.RFC3339))
	}
	return &session, created, nil
}

// Depart closes an attendance session by setting its departure time. It is
// only ever triggered manually; the recognition pipeline never closes
// sessions. Closing an already closed session is an error.
func (r *Reconciler) Depart(sessionID uint, at time.Time) (*models.Attendance, error) {
	var session models.Attendance

	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&session, sessionID).Error; err != nil {
			return err
		}
		if session.DepartureTime != nil {
			return fmt.Errorf("session %d is already closed", sessionID)
		}
		session.DepartureTime = &at
		return tx.Save(&session).Error
	})
	if err != nil {
		return nil, err
	}
	return &session, nil
}
