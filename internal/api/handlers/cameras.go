package handlers

import (
	"errors"
	"fmt"
	"image"
	"net/http"

	"facegate/internal/camera"

	"github.com/gin-gonic/gin"
	"gocv.io/x/gocv"
)

// frameDisplayMaxWidth caps the width of frames served over HTTP; full
// resolution stays internal to the recognition path.
const frameDisplayMaxWidth = 1920

type addCameraRequest struct {
	ID     string            `json:"id" binding:"required"`
	Kind   camera.SourceKind `json:"kind" binding:"required"`
	Source string            `json:"source" binding:"required"`
}

// ListCameras returns all registered cameras.
func (h *APIHandler) ListCameras(c *gin.Context) {
	infos := h.registry.List()
	c.JSON(http.StatusOK, gin.H{"cameras": infos, "count": len(infos)})
}

// AddCamera opens and registers a new camera.
func (h *APIHandler) AddCamera(c *gin.Context) {
	var req addCameraRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Invalid request: %v", err)})
		return
	}

	conn, err := h.registry.Add(req.ID, req.Kind, req.Source)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": fmt.Sprintf("Failed to add camera: %v", err)})
		return
	}
	c.JSON(http.StatusCreated, conn.Info())
}

// DiscoverCameras probes local webcam devices.
func (h *APIHandler) DiscoverCameras(c *gin.Context) {
	indices := h.registry.Discover()
	if indices == nil {
		indices = []int{}
	}
	c.JSON(http.StatusOK, gin.H{"devices": indices})
}

// GetCamera returns the state of one camera.
func (h *APIHandler) GetCamera(c *gin.Context) {
	conn, err := h.registry.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Camera not found"})
		return
	}
	c.JSON(http.StatusOK, conn.Info())
}

// RemoveCamera closes and unregisters a camera.
func (h *APIHandler) RemoveCamera(c *gin.Context) {
	if err := h.registry.Remove(c.Param("id")); err != nil {
		if errors.Is(err, camera.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Camera not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to remove camera: %v", err)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Camera removed"})
}

// ReconnectCamera tears the camera down and reopens it from its source.
func (h *APIHandler) ReconnectCamera(c *gin.Context) {
	conn, err := h.registry.Reconnect(c.Param("id"))
	if err != nil {
		if errors.Is(err, camera.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Camera not found"})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": fmt.Sprintf("Failed to reconnect camera: %v", err)})
		return
	}
	c.JSON(http.StatusOK, conn.Info())
}

// CameraFrame serves a fresh frame as JPEG. Frames are never cached and
// oversized frames are downscaled for display.
func (h *APIHandler) CameraFrame(c *gin.Context) {
	frame, err := h.registry.GetFrame(c.Param("id"))
	if err != nil {
		if errors.Is(err, camera.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Camera not found"})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": fmt.Sprintf("Failed to read frame: %v", err)})
		return
	}
	defer frame.Close()

	display := frame
	if frame.Cols() > frameDisplayMaxWidth {
		scale := float64(frameDisplayMaxWidth) / float64(frame.Cols())
		resized := gocv.NewMat()
		gocv.Resize(frame, &resized, image.Pt(frameDisplayMaxWidth, int(float64(frame.Rows())*scale)), 0, 0, gocv.InterpolationArea)
		defer resized.Close()
		display = resized
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, display, []int{gocv.IMWriteJpegQuality, 90})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to encode frame: %v", err)})
		return
	}
	defer buf.Close()

	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/jpeg", buf.GetBytes())
}

// ProcessCameraFrame reads a fresh frame and runs the recognition pipeline
// on it through the worker pool.
func (h *APIHandler) ProcessCameraFrame(c *gin.Context) {
	id := c.Param("id")
	frame, err := h.registry.GetFrame(id)
	if err != nil {
		if errors.Is(err, camera.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Camera not found"})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": fmt.Sprintf("Failed to read frame: %v", err)})
		return
	}
	defer frame.Close()

	result, err := h.pool.ProcessFrame(c.Request.Context(), id, frame)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Frame processing failed: %v", err)})
		return
	}
	c.JSON(http.StatusOK, result)
}
