package camera

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// SourceKind classifies a camera source.
type SourceKind string

const (
	SourceWebcam SourceKind = "webcam"
	SourceRTSP   SourceKind = "rtsp"
	SourceHTTP   SourceKind = "http"
	SourceFile   SourceKind = "file"
)

// ErrNoFrame is returned when a camera could not deliver a frame. The
// connection is marked inactive as a side effect.
var ErrNoFrame = errors.New("camera: no frame available")

// grabSkip is how many buffered frames are discarded before decoding, so
// GetFrame returns the freshest frame rather than a stale buffered one.
// Only streaming sources accumulate stale frames; local devices and files
// are read directly.
const grabSkip = 5

// isStreaming reports whether the source buffers a network stream.
func isStreaming(kind SourceKind) bool {
	return kind == SourceRTSP || kind == SourceHTTP
}

// capture is the subset of gocv.VideoCapture the connection needs. Tests
// substitute a fake through openCapture.
type capture interface {
	IsOpened() bool
	Grab(skip int)
	Read(m *gocv.Mat) bool
	Set(prop gocv.VideoCaptureProperties, param float64)
	Get(prop gocv.VideoCaptureProperties) float64
	Close() error
}

// openCapture opens the underlying video source. RTSP goes through FFmpeg,
// which handles stream reconnects far better than the default backend.
var openCapture = func(kind SourceKind, source string) (capture, error) {
	switch kind {
	case SourceWebcam:
		index, err := strconv.Atoi(source)
		if err != nil {
			return nil, fmt.Errorf("webcam source must be a device index: %q", source)
		}
		return gocv.OpenVideoCapture(index)
	case SourceRTSP:
		return gocv.OpenVideoCaptureWithAPI(source, gocv.VideoCaptureFFmpeg)
	case SourceHTTP, SourceFile:
		return gocv.OpenVideoCapture(source)
	default:
		return nil, fmt.Errorf("unsupported source kind: %q", kind)
	}
}

// Connection is one open camera. Frame I/O is serialized by the connection's
// own mutex, so a slow camera never blocks the registry.
type Connection struct {
	mu sync.Mutex

	id     string
	kind   SourceKind
	source string
	cap    capture

	active      bool
	connected   bool
	addedAt     time.Time
	lastFrameAt time.Time
	frameCount  uint64

	width  int
	height int
	fps    float64
}

// Info is the externally visible state of a connection.
type Info struct {
	ID          string     `json:"id"`
	Kind        SourceKind `json:"kind"`
	Source      string     `json:"source"`
	Active      bool       `json:"active"`
	Connected   bool       `json:"connected"`
	AddedAt     time.Time  `json:"added_at"`
	LastFrameAt time.Time  `json:"last_frame_at"`
	FrameCount  uint64     `json:"frame_count"`
	Width       int        `json:"width"`
	Height      int        `json:"height"`
	FPS         float64    `json:"fps"`
}

// GetFrame reads the freshest frame from the camera. Buffered frames are
// grabbed and discarded first, then one frame is decoded; if that fails a
// single plain read is attempted before the camera is marked inactive.
// The caller owns the returned Mat and must Close it.
func (c *Connection) GetFrame() (gocv.Mat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.active || c.cap == nil {
		return gocv.Mat{}, fmt.Errorf("%w: camera %s is inactive", ErrNoFrame, c.id)
	}

	frame := gocv.NewMat()

	if isStreaming(c.kind) {
		c.cap.Grab(grabSkip)
	}
	if c.cap.Read(&frame) && !frame.Empty() {
		c.recordFrame(&frame)
		return frame, nil
	}

	// One fallback read; some sources stall after a long grab sequence.
	if c.cap.Read(&frame) && !frame.Empty() {
		c.recordFrame(&frame)
		return frame, nil
	}

	frame.Close()
	c.active = false
	c.connected = false
	return gocv.Mat{}, fmt.Errorf("%w: camera %s failed to deliver a frame", ErrNoFrame, c.id)
}

func (c *Connection) recordFrame(frame *gocv.Mat) {
	c.lastFrameAt = time.Now()
	c.frameCount++
	c.width = frame.Cols()
	c.height = frame.Rows()
}

// Info returns a snapshot of the connection state.
func (c *Connection) Info() Info {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Info{
		ID:          c.id,
		Kind:        c.kind,
		Source:      c.source,
		Active:      c.active,
		Connected:   c.connected,
		AddedAt:     c.addedAt,
		LastFrameAt: c.lastFrameAt,
		FrameCount:  c.frameCount,
		Width:       c.width,
		Height:      c.height,
		FPS:         c.fps,
	}
}

func (c *Connection) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cap != nil {
		c.cap.Close()
		c.cap = nil
	}
	c.active = false
	c.connected = false
}
