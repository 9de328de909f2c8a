package handlers

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ProcessImage runs the full recognition pipeline on an uploaded image,
// recording attendance and unknown faces as if it were a camera frame.
func (h *APIHandler) ProcessImage(c *gin.Context) {
	imageData, source, ok := h.readUpload(c)
	if !ok {
		return
	}

	result, err := h.pipeline.ProcessJPEG(c.Request.Context(), source, imageData)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Image processing failed: %v", err)})
		return
	}
	c.JSON(http.StatusOK, result)
}

// CompareImage scores an uploaded image against the enrolled persons
// without recording anything.
func (h *APIHandler) CompareImage(c *gin.Context) {
	imageData, _, ok := h.readUpload(c)
	if !ok {
		return
	}

	results, err := h.pipeline.Compare(c.Request.Context(), imageData)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Comparison failed: %v", err)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"faces": results, "count": len(results)})
}

func (h *APIHandler) readUpload(c *gin.Context) ([]byte, string, bool) {
	file, _, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded or invalid form data"})
		return nil, "", false
	}
	defer file.Close()

	imageData, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to read image data: %v", err)})
		return nil, "", false
	}

	source := c.PostForm("source")
	if source == "" {
		source = "api_upload"
	}
	return imageData, source, true
}
