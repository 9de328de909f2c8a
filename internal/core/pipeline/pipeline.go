package pipeline

import (
	"context"
	"fmt"
	"image"
	"time"

	"facegate/config"
	"facegate/internal/core/attendance"
	"facegate/internal/core/recognition"
	"facegate/internal/core/unknowns"
	"facegate/internal/integrations/insightface"
	"facegate/internal/integrations/mqtt"
	"facegate/internal/sse"
	"facegate/internal/util/timezone"

	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
	"gorm.io/gorm"
)

// maxDetectWidth caps the image width sent to the detector. Larger frames
// are downscaled first and bounding boxes rescaled back to frame
// coordinates.
const maxDetectWidth = 1280

// Detector finds faces and their embeddings in a JPEG image. Satisfied by
// the InsightFace client; tests substitute a fake.
type Detector interface {
	Detect(ctx context.Context, jpegData []byte) ([]insightface.Detection, error)
}

// FaceResult is the outcome for one detected face.
type FaceResult struct {
	Box        [4]int  `json:"box"`
	Confidence float64 `json:"confidence"`
	Known      bool    `json:"known"`
	Score      float64 `json:"score"`

	// Set for known faces.
	PersonID     uint   `json:"person_id,omitempty"`
	Name         string `json:"name,omitempty"`
	Identifier   string `json:"identifier,omitempty"`
	AttendanceID uint   `json:"attendance_id,omitempty"`
	NewSession   bool   `json:"new_session,omitempty"`

	// Set for unknown faces.
	UnknownID  uint `json:"unknown_id,omitempty"`
	NewUnknown bool `json:"new_unknown,omitempty"`
}

// FrameResult is the outcome of processing one frame.
type FrameResult struct {
	Source      string       `json:"source"`
	Width       int          `json:"width"`
	Height      int          `json:"height"`
	Faces       []FaceResult `json:"faces"`
	ProcessedAt time.Time    `json:"processed_at"`
}

// Pipeline runs a frame through detection, matching and the recognition
// side effects (attendance sessions, unknown-face rows), then publishes the
// outcome over SSE and MQTT.
type Pipeline struct {
	cfg        config.RecognitionConfig
	db         *gorm.DB
	detector   Detector
	matcher    *recognition.Matcher
	reconciler *attendance.Reconciler
	deduper    *unknowns.Deduper
	hub        *sse.Hub
	publisher  *mqtt.Client
}

// New creates a pipeline. The hub and publisher may be nil when SSE or MQTT
// is not in use.
func New(cfg config.RecognitionConfig, db *gorm.DB, detector Detector,
	matcher *recognition.Matcher, reconciler *attendance.Reconciler,
	deduper *unknowns.Deduper, hub *sse.Hub, publisher *mqtt.Client) *Pipeline {
	return &Pipeline{
		cfg:        cfg,
		db:         db,
		detector:   detector,
		matcher:    matcher,
		reconciler: reconciler,
		deduper:    deduper,
		hub:        hub,
		publisher:  publisher,
	}
}

// ProcessFrame runs the full recognition pass over a decoded frame. The
// frame is not modified and remains owned by the caller.
func (p *Pipeline) ProcessFrame(ctx context.Context, source string, frame gocv.Mat) (*FrameResult, error) {
	if frame.Empty() {
		return nil, fmt.Errorf("empty frame from %s", source)
	}

	detections, err := p.detect(ctx, frame)
	if err != nil {
		return nil, err
	}

	people, err := recognition.Snapshot(p.db)
	if err != nil {
		return nil, fmt.Errorf("failed to load person snapshot: %w", err)
	}

	now := timezone.Now()
	result := &FrameResult{
		Source:      source,
		Width:       frame.Cols(),
		Height:      frame.Rows(),
		Faces:       make([]FaceResult, 0, len(detections)),
		ProcessedAt: now,
	}

	for _, det := range detections {
		if det.Box[2] < p.cfg.MinFaceSize || det.Box[3] < p.cfg.MinFaceSize {
			log.Debugf("Skipping face below minimum size: %dx%d", det.Box[2], det.Box[3])
			continue
		}

		face := FaceResult{Box: det.Box, Confidence: det.Score}
		match := p.matcher.Match(det.Embedding, people)
		face.Score = match.Score

		if match.Known {
			session, created, err := p.reconciler.Reconcile(match.Person, now)
			if err != nil {
				return nil, err
			}
			face.Known = true
			face.PersonID = match.Person.ID
			face.Name = match.Person.Name
			face.Identifier = match.Person.Identifier
			face.AttendanceID = session.ID
			face.NewSession = created
		} else {
			crop, rect, err := unknowns.CropJPEG(frame, det.Box)
			if err != nil {
				log.Warnf("Skipping unknown face with unusable box from %s: %v", source, err)
				continue
			}
			box := [4]int{rect.Min.X, rect.Min.Y, rect.Dx(), rect.Dy()}
			id, created, err := p.deduper.DedupeOrCreate(det.Embedding, crop, box, now)
			if err != nil {
				return nil, err
			}
			face.UnknownID = id
			face.NewUnknown = created
		}

		result.Faces = append(result.Faces, face)
	}

	p.publish(result)
	return result, nil
}

// ProcessJPEG decodes a JPEG image and runs the recognition pass on it.
// Used for uploaded stills and camera snapshots arriving over HTTP.
func (p *Pipeline) ProcessJPEG(ctx context.Context, source string, jpegData []byte) (*FrameResult, error) {
	frame, err := gocv.IMDecode(jpegData, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image from %s: %w", source, err)
	}
	defer frame.Close()
	if frame.Empty() {
		return nil, fmt.Errorf("image from %s decoded to an empty frame", source)
	}
	return p.ProcessFrame(ctx, source, frame)
}

// Compare scores a JPEG image against the enrolled persons without any side
// effects. It returns one result per detected face.
func (p *Pipeline) Compare(ctx context.Context, jpegData []byte) ([]FaceResult, error) {
	frame, err := gocv.IMDecode(jpegData, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	defer frame.Close()
	if frame.Empty() {
		return nil, fmt.Errorf("image decoded to an empty frame")
	}

	detections, err := p.detect(ctx, frame)
	if err != nil {
		return nil, err
	}
	people, err := recognition.Snapshot(p.db)
	if err != nil {
		return nil, fmt.Errorf("failed to load person snapshot: %w", err)
	}

	results := make([]FaceResult, 0, len(detections))
	for _, det := range detections {
		face := FaceResult{Box: det.Box, Confidence: det.Score}
		match := p.matcher.Match(det.Embedding, people)
		face.Score = match.Score
		if match.Known {
			face.Known = true
			face.PersonID = match.Person.ID
			face.Name = match.Person.Name
			face.Identifier = match.Person.Identifier
		}
		results = append(results, face)
	}
	return results, nil
}

// detect encodes the frame (downscaled if oversized) and calls the
// detector, rescaling boxes back to original frame coordinates.
func (p *Pipeline) detect(ctx context.Context, frame gocv.Mat) ([]insightface.Detection, error) {
	detectMat := frame
	scale := 1.0
	if frame.Cols() > maxDetectWidth {
		scale = float64(maxDetectWidth) / float64(frame.Cols())
		resized := gocv.NewMat()
		gocv.Resize(frame, &resized, image.Pt(maxDetectWidth, int(float64(frame.Rows())*scale)), 0, 0, gocv.InterpolationArea)
		defer resized.Close()
		detectMat = resized
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, detectMat)
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	jpegData := make([]byte, len(buf.GetBytes()))
	copy(jpegData, buf.GetBytes())
	buf.Close()

	detections, err := p.detector.Detect(ctx, jpegData)
	if err != nil {
		return nil, fmt.Errorf("detection failed: %w", err)
	}

	if scale != 1.0 {
		inv := 1.0 / scale
		for i := range detections {
			for j := 0; j < 4; j++ {
				detections[i].Box[j] = int(float64(detections[i].Box[j]) * inv)
			}
		}
	}
	return detections, nil
}

// publish sends the frame result to SSE clients and the MQTT broker.
func (p *Pipeline) publish(result *FrameResult) {
	if len(result.Faces) == 0 {
		return
	}
	if p.hub != nil {
		p.hub.BroadcastEvent("frame_processed", result)
	}
	if p.publisher != nil {
		p.publisher.PublishEvent("recognition", result)
	}
}
