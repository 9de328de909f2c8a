package pipeline

import (
	"context"
	"testing"
	"time"

	"facegate/config"
	"facegate/internal/core/attendance"
	"facegate/internal/core/models"
	"facegate/internal/core/recognition"
	"facegate/internal/core/unknowns"
	"facegate/internal/integrations/insightface"

	"github.com/glebarez/sqlite"
	"gocv.io/x/gocv"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// fakeDetector returns a fixed set of detections for any image.
type fakeDetector struct {
	detections []insightface.Detection
	calls      int
}

func (f *fakeDetector) Detect(ctx context.Context, jpegData []byte) ([]insightface.Detection, error) {
	f.calls++
	return f.detections, nil
}

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := db.AutoMigrate(&models.Person{}, &models.Attendance{}, &models.UnknownFace{}); err != nil {
		t.Fatalf("migration failed: %v", err)
	}
	return db
}

func testConfig() config.RecognitionConfig {
	return config.RecognitionConfig{
		SimilarityThreshold:        0.6,
		AttendanceWindowMinutes:    30,
		UnknownSimilarityThreshold: 0.5,
		MinFaceSize:                30,
	}
}

func testPipeline(t *testing.T, db *gorm.DB, detector Detector) *Pipeline {
	t.Helper()
	cfg := testConfig()
	return New(cfg, db, detector,
		recognition.NewMatcher(cfg.SimilarityThreshold),
		attendance.NewReconciler(db, time.Duration(cfg.AttendanceWindowMinutes)*time.Minute),
		unknowns.NewDeduper(db, cfg.UnknownSimilarityThreshold),
		nil, nil)
}

func enroll(t *testing.T, db *gorm.DB, name string, embedding []float32) *models.Person {
	t.Helper()
	p := models.Person{
		Name:       name,
		Identifier: "ID-" + name,
		ImageData:  []byte{0xff},
		Embedding:  models.EncodeEmbedding(embedding),
	}
	if err := db.Create(&p).Error; err != nil {
		t.Fatalf("failed to enroll person: %v", err)
	}
	return &p
}

func testFrame(t *testing.T) gocv.Mat {
	t.Helper()
	frame := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	t.Cleanup(func() { frame.Close() })
	return frame
}

func TestProcessFrameKnownFaceRecordsAttendance(t *testing.T) {
	db := testDB(t)
	person := enroll(t, db, "alice", []float32{1, 0, 0})

	detector := &fakeDetector{detections: []insightface.Detection{
		{Box: [4]int{100, 100, 80, 80}, Score: 0.95, Embedding: []float32{1, 0, 0}},
	}}
	p := testPipeline(t, db, detector)

	result, err := p.ProcessFrame(context.Background(), "cam1", testFrame(t))
	if err != nil {
		t.Fatalf("ProcessFrame() error: %v", err)
	}
	if len(result.Faces) != 1 {
		t.Fatalf("expected 1 face, got %d", len(result.Faces))
	}

	face := result.Faces[0]
	if !face.Known || face.PersonID != person.ID {
		t.Errorf("expected a known match for alice, got %+v", face)
	}
	if !face.NewSession || face.AttendanceID == 0 {
		t.Errorf("expected a new attendance session, got %+v", face)
	}

	var sessions int64
	db.Model(&models.Attendance{}).Where("person_id = ?", person.ID).Count(&sessions)
	if sessions != 1 {
		t.Errorf("expected 1 attendance session, got %d", sessions)
	}
}

func TestProcessFrameUnknownFaceSaved(t *testing.T) {
	db := testDB(t)

	detector := &fakeDetector{detections: []insightface.Detection{
		{Box: [4]int{100, 100, 80, 80}, Score: 0.9, Embedding: []float32{0, 1, 0}},
	}}
	p := testPipeline(t, db, detector)

	result, err := p.ProcessFrame(context.Background(), "cam1", testFrame(t))
	if err != nil {
		t.Fatalf("ProcessFrame() error: %v", err)
	}
	if len(result.Faces) != 1 {
		t.Fatalf("expected 1 face, got %d", len(result.Faces))
	}

	face := result.Faces[0]
	if face.Known {
		t.Error("face must be unknown with an empty registry")
	}
	if !face.NewUnknown || face.UnknownID == 0 {
		t.Errorf("expected a new unknown row, got %+v", face)
	}

	var unknown models.UnknownFace
	if err := db.First(&unknown, face.UnknownID).Error; err != nil {
		t.Fatalf("unknown row not found: %v", err)
	}
	if len(unknown.ImageData) == 0 {
		t.Error("unknown row must carry the face crop")
	}
}

func TestProcessFrameFiltersSmallFaces(t *testing.T) {
	db := testDB(t)
	enroll(t, db, "alice", []float32{1, 0, 0})

	detector := &fakeDetector{detections: []insightface.Detection{
		{Box: [4]int{10, 10, 20, 20}, Score: 0.9, Embedding: []float32{1, 0, 0}},
	}}
	p := testPipeline(t, db, detector)

	result, err := p.ProcessFrame(context.Background(), "cam1", testFrame(t))
	if err != nil {
		t.Fatalf("ProcessFrame() error: %v", err)
	}
	if len(result.Faces) != 0 {
		t.Errorf("faces below the minimum size must be dropped, got %+v", result.Faces)
	}

	var sessions int64
	db.Model(&models.Attendance{}).Count(&sessions)
	if sessions != 0 {
		t.Errorf("a filtered face must not record attendance, got %d sessions", sessions)
	}
}

func TestProcessFrameRepeatSightingReusesSession(t *testing.T) {
	db := testDB(t)
	person := enroll(t, db, "alice", []float32{1, 0, 0})

	detector := &fakeDetector{detections: []insightface.Detection{
		{Box: [4]int{100, 100, 80, 80}, Score: 0.95, Embedding: []float32{1, 0, 0}},
	}}
	p := testPipeline(t, db, detector)

	first, err := p.ProcessFrame(context.Background(), "cam1", testFrame(t))
	if err != nil {
		t.Fatalf("first ProcessFrame() error: %v", err)
	}
	second, err := p.ProcessFrame(context.Background(), "cam1", testFrame(t))
	if err != nil {
		t.Fatalf("second ProcessFrame() error: %v", err)
	}

	if second.Faces[0].NewSession {
		t.Error("repeat sighting within the window must not open a new session")
	}
	if second.Faces[0].AttendanceID != first.Faces[0].AttendanceID {
		t.Error("repeat sighting must reuse the open session")
	}

	var sessions int64
	db.Model(&models.Attendance{}).Where("person_id = ?", person.ID).Count(&sessions)
	if sessions != 1 {
		t.Errorf("expected 1 session after repeat sighting, got %d", sessions)
	}
}

func TestCompareHasNoSideEffects(t *testing.T) {
	db := testDB(t)
	person := enroll(t, db, "alice", []float32{1, 0, 0})

	detector := &fakeDetector{detections: []insightface.Detection{
		{Box: [4]int{100, 100, 80, 80}, Score: 0.95, Embedding: []float32{1, 0, 0}},
		{Box: [4]int{300, 100, 80, 80}, Score: 0.9, Embedding: []float32{0, 1, 0}},
	}}
	p := testPipeline(t, db, detector)

	frame := testFrame(t)
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, frame)
	if err != nil {
		t.Fatalf("failed to encode test frame: %v", err)
	}
	jpegData := make([]byte, len(buf.GetBytes()))
	copy(jpegData, buf.GetBytes())
	buf.Close()

	results, err := p.Compare(context.Background(), jpegData)
	if err != nil {
		t.Fatalf("Compare() error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if !results[0].Known || results[0].PersonID != person.ID {
		t.Errorf("first face should match alice, got %+v", results[0])
	}
	if results[1].Known {
		t.Errorf("second face should be unknown, got %+v", results[1])
	}

	var sessions, unknownRows int64
	db.Model(&models.Attendance{}).Count(&sessions)
	db.Model(&models.UnknownFace{}).Count(&unknownRows)
	if sessions != 0 || unknownRows != 0 {
		t.Errorf("Compare must not write: %d sessions, %d unknown rows", sessions, unknownRows)
	}
}
