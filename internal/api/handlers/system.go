package handlers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"facegate/internal/core/models"
	"facegate/internal/sse"
	"facegate/internal/utils"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// GetStatus reports detector availability, database counts and system
// statistics.
func (h *APIHandler) GetStatus(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	detectorOK, detectorErr := h.detector.Ping(ctx)
	detectorStatus := "ok"
	if detectorErr != nil {
		detectorStatus = detectorErr.Error()
	} else if !detectorOK {
		detectorStatus = "unhealthy"
	}

	var persons, sessions, unknowns int64
	h.db.Model(&models.Person{}).Where("deleted = ?", false).Count(&persons)
	h.db.Model(&models.Attendance{}).Count(&sessions)
	h.db.Model(&models.UnknownFace{}).Count(&unknowns)

	c.JSON(http.StatusOK, gin.H{
		"detector": gin.H{
			"available": detectorOK,
			"status":    detectorStatus,
		},
		"counts": gin.H{
			"persons":    persons,
			"attendance": sessions,
			"unknowns":   unknowns,
		},
		"cameras": h.registry.List(),
		"system":  utils.GetSystemStats(h.pool),
	})
}

// ClearData wipes all recognition data: attendance sessions and unknown
// faces. Enrolled persons and cameras stay.
func (h *APIHandler) ClearData(c *gin.Context) {
	err := h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("1 = 1").Delete(&models.Attendance{}).Error; err != nil {
			return err
		}
		return tx.Unscoped().Where("1 = 1").Delete(&models.UnknownFace{}).Error
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to clear data: %v", err)})
		return
	}

	log.Warn("All attendance and unknown-face data cleared")
	c.JSON(http.StatusOK, gin.H{"message": "Recognition data cleared"})
}

// StreamEvents serves the SSE event stream.
func (h *APIHandler) StreamEvents(c *gin.Context) {
	client := make(sse.Client, 16)
	h.hub.Register(client)
	defer h.hub.Unregister(client)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		select {
		case message, ok := <-client:
			if !ok {
				return false
			}
			c.SSEvent("message", string(message))
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
