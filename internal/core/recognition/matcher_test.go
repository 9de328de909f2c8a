package recognition

import (
	"testing"

	"facegate/internal/core/models"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func person(id uint, name string, embedding []float32) models.Person {
	p := models.Person{
		Name:       name,
		Identifier: name,
		Embedding:  models.EncodeEmbedding(embedding),
	}
	p.ID = id
	return p
}

func TestMatchEmptyRegistry(t *testing.T) {
	m := NewMatcher(0.6)
	res := m.Match([]float32{1, 0, 0}, nil)
	if res.Known {
		t.Error("expected Unmatched for empty registry")
	}
	if res.Score != 0.0 {
		t.Errorf("expected score 0.0 for empty registry, got %v", res.Score)
	}
	if res.Person != nil {
		t.Error("expected nil person for empty registry")
	}
}

func TestMatchThreshold(t *testing.T) {
	people := []models.Person{
		person(1, "alice", []float32{1, 0, 0}),
		person(2, "bob", []float32{0, 1, 0}),
	}
	m := NewMatcher(0.6)

	tests := []struct {
		name      string
		embedding []float32
		wantKnown bool
		wantName  string
	}{
		{"exact match", []float32{1, 0, 0}, true, "alice"},
		{"close match", []float32{0.9, 0.1, 0}, true, "alice"},
		{"below threshold", []float32{0.5, 0.5, 0.7}, false, ""},
		{"second person wins", []float32{0.1, 0.9, 0}, true, "bob"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := m.Match(tt.embedding, people)
			if res.Known != tt.wantKnown {
				t.Fatalf("Known = %v, want %v (score %v)", res.Known, tt.wantKnown, res.Score)
			}
			if tt.wantKnown && res.Person.Name != tt.wantName {
				t.Errorf("matched %s, want %s", res.Person.Name, tt.wantName)
			}
		})
	}
}

func TestMatchTieKeepsFirst(t *testing.T) {
	// Two identical embeddings: the person earlier in snapshot order wins.
	people := []models.Person{
		person(1, "first", []float32{1, 0, 0}),
		person(2, "second", []float32{1, 0, 0}),
	}
	m := NewMatcher(0.6)

	res := m.Match([]float32{1, 0, 0}, people)
	if !res.Known {
		t.Fatal("expected a known match")
	}
	if res.Person.Name != "first" {
		t.Errorf("tie broke to %s, want first", res.Person.Name)
	}
}

func TestMatchSkipsBrokenEmbeddings(t *testing.T) {
	broken := models.Person{Name: "broken", Identifier: "broken", Embedding: []byte{1, 2, 3}}
	broken.ID = 1
	people := []models.Person{
		broken,
		person(2, "ok", []float32{1, 0, 0}),
	}
	m := NewMatcher(0.6)

	res := m.Match([]float32{1, 0, 0}, people)
	if !res.Known || res.Person.Name != "ok" {
		t.Errorf("expected match against the valid person, got %+v", res)
	}
}

func TestMatchUnmatchedCarriesBestScore(t *testing.T) {
	people := []models.Person{
		person(1, "alice", []float32{1, 0, 0}),
	}
	m := NewMatcher(0.99)

	res := m.Match([]float32{0.7, 0.7, 0}, people)
	if res.Known {
		t.Fatal("expected Unmatched")
	}
	if res.Score <= 0 {
		t.Errorf("expected the best score to be carried, got %v", res.Score)
	}
}

func TestSnapshotOrderAndFilter(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := db.AutoMigrate(&models.Person{}); err != nil {
		t.Fatalf("migration failed: %v", err)
	}

	for _, p := range []models.Person{
		{Name: "a", Identifier: "ID-1", ImageData: []byte{1}, Embedding: models.EncodeEmbedding([]float32{1, 0})},
		{Name: "b", Identifier: "ID-2", ImageData: []byte{1}, Embedding: models.EncodeEmbedding([]float32{0, 1}), Deleted: true},
		{Name: "c", Identifier: "ID-3", ImageData: []byte{1}, Embedding: models.EncodeEmbedding([]float32{1, 1})},
	} {
		rec := p
		if err := db.Create(&rec).Error; err != nil {
			t.Fatalf("failed to seed person: %v", err)
		}
	}

	people, err := Snapshot(db)
	if err != nil {
		t.Fatalf("Snapshot() error: %v", err)
	}
	if len(people) != 2 {
		t.Fatalf("expected 2 non-deleted persons, got %d", len(people))
	}
	if people[0].Name != "a" || people[1].Name != "c" {
		t.Errorf("snapshot not in registration order: %s, %s", people[0].Name, people[1].Name)
	}
}
