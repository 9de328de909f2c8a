package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"facegate/internal/core/models"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ListUnknowns returns stored unknown faces, newest first.
func (h *APIHandler) ListUnknowns(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	var faces []models.UnknownFace
	if err := h.db.Order("detected_at DESC").Limit(limit).Find(&faces).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to list unknown faces: %v", err)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"unknowns": faces, "count": len(faces)})
}

// GetUnknownImage serves the stored face crop as JPEG.
func (h *APIHandler) GetUnknownImage(c *gin.Context) {
	var face models.UnknownFace
	if err := h.db.First(&face, c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown face not found"})
		return
	}
	c.Data(http.StatusOK, "image/jpeg", face.ImageData)
}

// PromoteUnknown turns an unknown face into an enrolled person, reusing its
// stored crop and embedding. The unknown row is removed in the same
// transaction.
func (h *APIHandler) PromoteUnknown(c *gin.Context) {
	name := strings.TrimSpace(c.PostForm("name"))
	identifier := strings.TrimSpace(c.PostForm("identifier"))
	if name == "" || identifier == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name and identifier are required"})
		return
	}

	var face models.UnknownFace
	if err := h.db.First(&face, c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown face not found"})
		return
	}

	var person models.Person
	err := h.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Person{}).
			Where("identifier = ? AND deleted = ?", identifier, false).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("identifier %q is already enrolled", identifier)
		}

		person = models.Person{
			Name:       name,
			Identifier: identifier,
			ImageData:  face.ImageData,
			Embedding:  face.Embedding,
		}
		if err := tx.Create(&person).Error; err != nil {
			return err
		}
		return tx.Unscoped().Delete(&face).Error
	})
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": fmt.Sprintf("Failed to promote unknown face: %v", err)})
		return
	}

	log.Infof("Unknown face %d promoted to person %d (%s)", face.ID, person.ID, identifier)
	if h.hub != nil {
		h.hub.BroadcastEvent("person_enrolled", person)
	}
	c.JSON(http.StatusCreated, person)
}

// DeleteUnknown removes a stored unknown face.
func (h *APIHandler) DeleteUnknown(c *gin.Context) {
	var face models.UnknownFace
	if err := h.db.First(&face, c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown face not found"})
		return
	}

	if err := h.db.Unscoped().Delete(&face).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to delete unknown face: %v", err)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Unknown face deleted"})
}
