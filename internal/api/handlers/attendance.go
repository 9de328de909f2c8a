package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"facegate/internal/core/models"
	"facegate/internal/util/timezone"

	"github.com/gin-gonic/gin"
)

// ListAttendance returns attendance sessions, newest first. The optional
// limit query parameter caps the result; person_id filters by person.
func (h *APIHandler) ListAttendance(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	query := h.db.Model(&models.Attendance{}).Order("arrival_time DESC").Limit(limit)
	if personID := c.Query("person_id"); personID != "" {
		query = query.Where("person_id = ?", personID)
	}
	if open := c.Query("open"); open == "true" {
		query = query.Where("departure_time IS NULL")
	}

	var sessions []models.Attendance
	if err := query.Find(&sessions).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to list attendance: %v", err)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"attendance": sessions, "count": len(sessions)})
}

// DepartAttendance manually closes an open attendance session.
func (h *APIHandler) DepartAttendance(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid session id"})
		return
	}

	session, err := h.reconciler.Depart(uint(id), timezone.Now())
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": fmt.Sprintf("Failed to close session: %v", err)})
		return
	}

	if h.hub != nil {
		h.hub.BroadcastEvent("attendance_departed", session)
	}
	c.JSON(http.StatusOK, session)
}
