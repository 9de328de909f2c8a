package handlers

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"facegate/internal/core/models"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// ListPersons returns all enrolled persons.
func (h *APIHandler) ListPersons(c *gin.Context) {
	var persons []models.Person
	if err := h.db.Where("deleted = ?", false).Order("id ASC").Find(&persons).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to list persons: %v", err)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"persons": persons, "count": len(persons)})
}

// GetPerson returns a single enrolled person.
func (h *APIHandler) GetPerson(c *gin.Context) {
	var person models.Person
	if err := h.db.Where("deleted = ?", false).First(&person, c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Person not found"})
		return
	}
	c.JSON(http.StatusOK, person)
}

// GetPersonImage serves the enrollment photo as JPEG.
func (h *APIHandler) GetPersonImage(c *gin.Context) {
	var person models.Person
	if err := h.db.Where("deleted = ?", false).First(&person, c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Person not found"})
		return
	}
	c.Data(http.StatusOK, "image/jpeg", person.ImageData)
}

// EnrollPerson enrolls a person from an uploaded photo.
func (h *APIHandler) EnrollPerson(c *gin.Context) {
	file, _, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded or invalid form data"})
		return
	}
	defer file.Close()

	imageData, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to read image data: %v", err)})
		return
	}

	h.enroll(c, imageData)
}

// EnrollFromCamera enrolls a person from a fresh camera frame.
func (h *APIHandler) EnrollFromCamera(c *gin.Context) {
	cameraID := c.PostForm("camera_id")
	if cameraID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "camera_id is required"})
		return
	}

	frame, err := h.registry.GetFrame(cameraID)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": fmt.Sprintf("Failed to capture frame: %v", err)})
		return
	}
	defer frame.Close()

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, frame)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to encode frame: %v", err)})
		return
	}
	imageData := make([]byte, len(buf.GetBytes()))
	copy(imageData, buf.GetBytes())
	buf.Close()

	h.enroll(c, imageData)
}

// enroll is the shared enrollment path: the photo must contain exactly one
// face, and the identifier must be unique among non-deleted persons.
func (h *APIHandler) enroll(c *gin.Context, imageData []byte) {
	name := strings.TrimSpace(c.PostForm("name"))
	identifier := strings.TrimSpace(c.PostForm("identifier"))
	if name == "" || identifier == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name and identifier are required"})
		return
	}

	frame, err := gocv.IMDecode(imageData, gocv.IMReadColor)
	if err != nil || frame.Empty() {
		if err == nil {
			frame.Close()
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid image data"})
		return
	}
	defer frame.Close()

	detections, err := h.detector.Detect(c.Request.Context(), imageData)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": fmt.Sprintf("Face detection failed: %v", err)})
		return
	}
	if len(detections) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No face found in image"})
		return
	}
	if len(detections) > 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Expected exactly one face, found %d", len(detections))})
		return
	}

	var count int64
	if err := h.db.Model(&models.Person{}).
		Where("identifier = ? AND deleted = ?", identifier, false).
		Count(&count).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to check identifier: %v", err)})
		return
	}
	if count > 0 {
		c.JSON(http.StatusConflict, gin.H{"error": fmt.Sprintf("Identifier %q is already enrolled", identifier)})
		return
	}

	person := models.Person{
		Name:       name,
		Identifier: identifier,
		ImageData:  imageData,
		Embedding:  models.EncodeEmbedding(detections[0].Embedding),
	}
	if err := h.db.Create(&person).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to enroll person: %v", err)})
		return
	}

	log.Infof("Enrolled person %s (%s) as id %d", name, identifier, person.ID)
	if h.hub != nil {
		h.hub.BroadcastEvent("person_enrolled", person)
	}
	c.JSON(http.StatusCreated, person)
}

// DeletePerson soft-deletes a person. Existing attendance sessions keep
// their denormalized name and identifier.
func (h *APIHandler) DeletePerson(c *gin.Context) {
	var person models.Person
	if err := h.db.Where("deleted = ?", false).First(&person, c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Person not found"})
		return
	}

	if err := h.db.Model(&person).Update("deleted", true).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to delete person: %v", err)})
		return
	}

	log.Infof("Person %d (%s) deleted", person.ID, person.Identifier)
	c.JSON(http.StatusOK, gin.H{"message": "Person deleted"})
}
