package unknowns

import (
	"errors"
	"image"
	"testing"
	"time"

	"facegate/internal/core/models"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := db.AutoMigrate(&models.UnknownFace{}); err != nil {
		t.Fatalf("migration failed: %v", err)
	}
	return db
}

var testBox = [4]int{10, 10, 50, 50}

func TestDedupeOrCreateFirstSighting(t *testing.T) {
	d := NewDeduper(testDB(t), 0.5)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	id, created, err := d.DedupeOrCreate([]float32{1, 0, 0}, []byte{0xff}, testBox, now)
	if err != nil {
		t.Fatalf("DedupeOrCreate() error: %v", err)
	}
	if !created || id == 0 {
		t.Errorf("expected a new row, got created=%v id=%d", created, id)
	}
}

func TestDedupeOrCreateRecentTier(t *testing.T) {
	db := testDB(t)
	d := NewDeduper(db, 0.5)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	first, _, err := d.DedupeOrCreate([]float32{1, 0, 0}, []byte{0xff}, testBox, now)
	if err != nil {
		t.Fatalf("seed sighting: %v", err)
	}

	// Similar but not near-identical: above 0.5, well below 0.90.
	id, created, err := d.DedupeOrCreate([]float32{0.8, 0.6, 0}, []byte{0xff}, testBox, now.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("recent sighting: %v", err)
	}
	if created {
		t.Error("a loosely similar face within the recent window must be collapsed")
	}
	if id != first {
		t.Errorf("collapsed into row %d, want %d", id, first)
	}
}

func TestDedupeOrCreateHistoricalTierIsStricter(t *testing.T) {
	db := testDB(t)
	d := NewDeduper(db, 0.5)
	seeded := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	first, _, err := d.DedupeOrCreate([]float32{1, 0, 0}, []byte{0xff}, testBox, seeded)
	if err != nil {
		t.Fatalf("seed sighting: %v", err)
	}

	// Ten minutes later the same loosely similar face is a new row: the
	// historical tier only collapses near-identical embeddings.
	later := seeded.Add(10 * time.Minute)
	_, created, err := d.DedupeOrCreate([]float32{0.8, 0.6, 0}, []byte{0xff}, testBox, later)
	if err != nil {
		t.Fatalf("loose historical sighting: %v", err)
	}
	if !created {
		t.Error("a loosely similar face outside the recent window must create a new row")
	}

	// A practically identical embedding is still collapsed historically,
	// once every stored row is outside the recent window.
	id, created, err := d.DedupeOrCreate([]float32{0.99, 0.01, 0}, []byte{0xff}, testBox, later.Add(10*time.Minute))
	if err != nil {
		t.Fatalf("near-identical historical sighting: %v", err)
	}
	if created {
		t.Error("a near-identical face must be collapsed even outside the recent window")
	}
	if id != first {
		t.Errorf("collapsed into row %d, want %d", id, first)
	}
}

func TestDedupeOrCreateDistinctFaces(t *testing.T) {
	db := testDB(t)
	d := NewDeduper(db, 0.5)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	a, _, err := d.DedupeOrCreate([]float32{1, 0, 0}, []byte{0xff}, testBox, now)
	if err != nil {
		t.Fatalf("first face: %v", err)
	}
	b, created, err := d.DedupeOrCreate([]float32{0, 1, 0}, []byte{0xff}, testBox, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("second face: %v", err)
	}
	if !created || a == b {
		t.Errorf("dissimilar faces must get separate rows (created=%v, ids %d/%d)", created, a, b)
	}
}

func TestClampBox(t *testing.T) {
	tests := []struct {
		name    string
		box     [4]int
		w, h    int
		want    image.Rectangle
		wantErr bool
	}{
		{"fits entirely", [4]int{10, 20, 30, 40}, 100, 100, image.Rect(10, 20, 40, 60), false},
		{"clamped to right edge", [4]int{80, 10, 50, 20}, 100, 100, image.Rect(80, 10, 100, 30), false},
		{"clamped to bottom edge", [4]int{10, 90, 20, 50}, 100, 100, image.Rect(10, 90, 30, 100), false},
		{"negative x", [4]int{-5, 10, 20, 20}, 100, 100, image.Rectangle{}, true},
		{"negative y", [4]int{10, -1, 20, 20}, 100, 100, image.Rectangle{}, true},
		{"zero width", [4]int{10, 10, 0, 20}, 100, 100, image.Rectangle{}, true},
		{"negative height", [4]int{10, 10, 20, -3}, 100, 100, image.Rectangle{}, true},
		{"origin past frame", [4]int{120, 10, 20, 20}, 100, 100, image.Rectangle{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ClampBox(tt.box, tt.w, tt.h)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidBox) {
					t.Fatalf("ClampBox() error = %v, want ErrInvalidBox", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ClampBox() unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ClampBox() = %v, want %v", got, tt.want)
			}
		})
	}
}
