package camera

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// ErrNotFound is returned for operations on an unknown camera id.
var ErrNotFound = errors.New("camera: not found")

// discoverMaxIndex bounds local device probing (indices 0 to 9).
const discoverMaxIndex = 10

// Registry owns all camera connections. Registry operations take the
// registry lock only to look up or mutate the connection table; frame I/O
// happens under the per-connection lock so cameras do not block each other.
type Registry struct {
	mu    sync.Mutex
	conns map[string]*Connection
}

// NewRegistry creates an empty camera registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]*Connection)}
}

// Add opens the source and registers it under the given id, replacing any
// existing camera with that id. The source is validated by reading one frame;
// on any failure the capture is closed and nothing is registered, so a
// camera is never left half-open.
func (r *Registry) Add(id string, kind SourceKind, source string) (*Connection, error) {
	cap, err := openCapture(kind, source)
	if err != nil {
		return nil, fmt.Errorf("failed to open camera %s: %w", id, err)
	}
	if !cap.IsOpened() {
		cap.Close()
		return nil, fmt.Errorf("failed to open camera %s: source not opened", id)
	}

	// Keep the driver buffer minimal for streaming sources so grabs reach
	// the freshest frame quickly. Webcams and files keep their defaults.
	if isStreaming(kind) {
		cap.Set(gocv.VideoCaptureBufferSize, 1)
	}

	probe := gocv.NewMat()
	defer probe.Close()
	if !cap.Read(&probe) || probe.Empty() {
		cap.Close()
		return nil, fmt.Errorf("failed to open camera %s: no frame from source", id)
	}

	conn := &Connection{
		id:          id,
		kind:        kind,
		source:      source,
		cap:         cap,
		active:      true,
		connected:   true,
		addedAt:     time.Now(),
		lastFrameAt: time.Now(),
		width:       probe.Cols(),
		height:      probe.Rows(),
		fps:         cap.Get(gocv.VideoCaptureFPS),
	}

	r.mu.Lock()
	if old, ok := r.conns[id]; ok {
		log.Infof("Replacing existing camera %s", id)
		old.close()
	}
	r.conns[id] = conn
	r.mu.Unlock()

	log.Infof("Camera %s added (%s %s, %dx%d)", id, kind, source, conn.width, conn.height)
	return conn, nil
}

// Remove closes and unregisters a camera.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	conn, ok := r.conns[id]
	if ok {
		delete(r.conns, id)
	}
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	conn.close()
	log.Infof("Camera %s removed", id)
	return nil
}

// Reconnect tears the camera down and opens it again from its stored source.
// It is the recovery path after GetFrame marked a camera inactive.
func (r *Registry) Reconnect(id string) (*Connection, error) {
	r.mu.Lock()
	conn, ok := r.conns[id]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	info := conn.Info()
	if err := r.Remove(id); err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return r.Add(id, info.Kind, info.Source)
}

// Get returns the connection for an id.
func (r *Registry) Get(id string) (*Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.conns[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return conn, nil
}

// GetFrame reads the freshest frame from the camera with the given id.
func (r *Registry) GetFrame(id string) (gocv.Mat, error) {
	conn, err := r.Get(id)
	if err != nil {
		return gocv.Mat{}, err
	}
	return conn.GetFrame()
}

// List returns the state of all registered cameras, ordered by id.
func (r *Registry) List() []Info {
	r.mu.Lock()
	conns := make([]*Connection, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	r.mu.Unlock()

	infos := make([]Info, 0, len(conns))
	for _, c := range conns {
		infos = append(infos, c.Info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// CloseAll closes every camera. Used on shutdown and when clearing all data.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	conns := r.conns
	r.conns = make(map[string]*Connection)
	r.mu.Unlock()

	for id, c := range conns {
		c.close()
		log.Debugf("Camera %s closed", id)
	}
}

// Discover probes local webcam indices and returns those that deliver a
// frame. Probing opens each device briefly and closes it again.
func (r *Registry) Discover() []int {
	var found []int
	for i := 0; i < discoverMaxIndex; i++ {
		cap, err := openCapture(SourceWebcam, strconv.Itoa(i))
		if err != nil || !cap.IsOpened() {
			if cap != nil {
				cap.Close()
			}
			continue
		}
		probe := gocv.NewMat()
		if cap.Read(&probe) && !probe.Empty() {
			found = append(found, i)
		}
		probe.Close()
		cap.Close()
	}
	return found
}
