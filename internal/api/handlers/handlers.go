package handlers

import (
	"facegate/config"
	"facegate/internal/camera"
	"facegate/internal/core/attendance"
	"facegate/internal/core/pipeline"
	"facegate/internal/integrations/insightface"
	"facegate/internal/sse"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// APIHandler serves all API routes.
type APIHandler struct {
	db         *gorm.DB
	cfg        *config.Config
	registry   *camera.Registry
	pipeline   *pipeline.Pipeline
	pool       *pipeline.WorkerPool
	detector   *insightface.Client
	reconciler *attendance.Reconciler
	hub        *sse.Hub
}

// NewAPIHandler creates the API handler with its collaborators.
func NewAPIHandler(db *gorm.DB, cfg *config.Config, registry *camera.Registry,
	pipe *pipeline.Pipeline, pool *pipeline.WorkerPool, detector *insightface.Client,
	reconciler *attendance.Reconciler, hub *sse.Hub) *APIHandler {
	return &APIHandler{
		db:         db,
		cfg:        cfg,
		registry:   registry,
		pipeline:   pipe,
		pool:       pool,
		detector:   detector,
		reconciler: reconciler,
		hub:        hub,
	}
}

// RegisterRoutes registers all API routes.
func (h *APIHandler) RegisterRoutes(router *gin.RouterGroup) {
	// Processing endpoints
	router.POST("/process/image", h.ProcessImage)
	router.POST("/process/compare", h.CompareImage)

	// Person endpoints
	router.GET("/persons", h.ListPersons)
	router.POST("/persons", h.EnrollPerson)
	router.POST("/persons/capture", h.EnrollFromCamera)
	router.GET("/persons/:id", h.GetPerson)
	router.GET("/persons/:id/image", h.GetPersonImage)
	router.DELETE("/persons/:id", h.DeletePerson)

	// Attendance endpoints
	router.GET("/attendance", h.ListAttendance)
	router.PUT("/attendance/:id/depart", h.DepartAttendance)

	// Unknown-face endpoints
	router.GET("/unknowns", h.ListUnknowns)
	router.GET("/unknowns/:id/image", h.GetUnknownImage)
	router.POST("/unknowns/:id/promote", h.PromoteUnknown)
	router.DELETE("/unknowns/:id", h.DeleteUnknown)

	// Camera endpoints
	router.GET("/cameras", h.ListCameras)
	router.POST("/cameras", h.AddCamera)
	router.GET("/cameras/discover", h.DiscoverCameras)
	router.GET("/cameras/:id", h.GetCamera)
	router.DELETE("/cameras/:id", h.RemoveCamera)
	router.POST("/cameras/:id/reconnect", h.ReconnectCamera)
	router.GET("/cameras/:id/frame", h.CameraFrame)
	router.POST("/cameras/:id/process", h.ProcessCameraFrame)

	// System endpoints
	router.GET("/status", h.GetStatus)
	router.POST("/system/clear-data", h.ClearData)
	router.GET("/events", h.StreamEvents)
}
