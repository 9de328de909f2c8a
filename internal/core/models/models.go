package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Person represents a known, enrolled identity.
//
// The Identifier must be unique among non-deleted persons; because rows are
// soft-deleted via the Deleted flag (and an identifier may be re-used after
// deletion), the invariant is enforced at enrollment time rather than by a
// database unique index. The embedding is immutable once set.
type Person struct {
	gorm.Model
	Name       string `gorm:"not null;index" json:"name"`
	Identifier string `gorm:"not null;index" json:"identifier"`
	ImageData  []byte `gorm:"not null" json:"-"` // enrollment photo, JPEG
	Embedding  []byte `gorm:"not null" json:"-"` // raw little-endian float32 vector
	Deleted    bool   `gorm:"not null;default:false;index" json:"-"`
}

// Attendance is one presence session for a person.
//
// Name and Identifier are denormalized at creation time so attendance
// listings never need a join back to persons (and survive later soft
// deletion of the person). DepartureTime is never set by the recognition
// pipeline; sessions stay open until closed manually.
type Attendance struct {
	gorm.Model
	PersonID      uint       `gorm:"not null;index" json:"person_id"`
	Name          string     `gorm:"not null" json:"name"`
	Identifier    string     `gorm:"not null" json:"identifier"`
	ArrivalTime   time.Time  `gorm:"not null;index" json:"arrival_time"`
	DepartureTime *time.Time `json:"departure_time"`
	Auto          bool       `gorm:"not null;default:true" json:"auto"`
}

// UnknownFace is a deduplicated sighting of a face that matched no person.
// Rows are deleted when promoted to a Person or explicitly discarded.
type UnknownFace struct {
	gorm.Model
	Embedding   []byte         `gorm:"not null" json:"-"`
	ImageData   []byte         `gorm:"not null" json:"-"` // cropped face, JPEG
	BoundingBox datatypes.JSON `gorm:"type:json" json:"bounding_box"`
	DetectedAt  time.Time      `gorm:"not null;index" json:"detected_at"`
}
