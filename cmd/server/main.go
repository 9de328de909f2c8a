package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"facegate/config"
	"facegate/internal/api/handlers"
	"facegate/internal/camera"
	"facegate/internal/core/attendance"
	"facegate/internal/core/pipeline"
	"facegate/internal/core/recognition"
	"facegate/internal/core/unknowns"
	"facegate/internal/db"
	"facegate/internal/integrations/insightface"
	"facegate/internal/integrations/mqtt"
	"facegate/internal/logger"
	"facegate/internal/services/cleanup"
	"facegate/internal/sse"
	"facegate/internal/util/timezone"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

const defaultConfigPath = "/config/config.yaml"

func main() {
	configPath := os.Getenv("FACEGATE_CONFIG")
	if configPath == "" {
		configPath = defaultConfigPath
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := logger.Init(cfg.Log); err != nil {
		log.Errorf("Failed to initialize logger completely: %v", err)
	}
	timezone.Initialize()

	log.Info("Initializing database...")
	database, err := db.Initialize(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// Core services
	detector := insightface.NewClient(cfg.InsightFace)
	registry := camera.NewRegistry()

	hub := sse.NewHub()
	go hub.Run()

	mqttClient := mqtt.NewClient(cfg.MQTT)
	if err := mqttClient.Start(); err != nil {
		log.Warnf("MQTT client failed to start: %v. Continuing without MQTT.", err)
	}

	matcher := recognition.NewMatcher(cfg.Recognition.SimilarityThreshold)
	reconciler := attendance.NewReconciler(database,
		time.Duration(cfg.Recognition.AttendanceWindowMinutes)*time.Minute)
	deduper := unknowns.NewDeduper(database, cfg.Recognition.UnknownSimilarityThreshold)
	pipe := pipeline.New(cfg.Recognition, database, detector, matcher, reconciler, deduper, hub, mqttClient)
	pool := pipeline.NewWorkerPool(pipe)

	// Background cleanup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cleanupService := cleanup.NewService(database, cfg.Cleanup)
	go cleanupService.Start(ctx)

	// Detector availability is informational at startup; the service may
	// come up later.
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if ok, err := detector.Ping(pingCtx); err != nil {
		log.Warnf("InsightFace service not reachable at startup: %v", err)
	} else if ok {
		log.Infof("InsightFace service available at %s", cfg.InsightFace.URL)
	}
	cancel()

	// HTTP server
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.Default())

	apiHandler := handlers.NewAPIHandler(database, cfg, registry, pipe, pool, detector, reconciler, hub)
	apiHandler.RegisterRoutes(router.Group("/api"))

	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		log.Infof("Starting server on %s", serverAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("Shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Server shutdown failed: %v", err)
	}

	registry.CloseAll()
	pool.Shutdown()
	mqttClient.Stop()
	log.Info("Server stopped")
}
