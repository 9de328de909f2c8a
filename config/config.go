package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config is the top-level application configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Log         LogConfig         `mapstructure:"log"`
	DB          DBConfig          `mapstructure:"db"`
	InsightFace InsightFaceConfig `mapstructure:"insightface"`
	Recognition RecognitionConfig `mapstructure:"recognition"`
	MQTT        MQTTConfig        `mapstructure:"mqtt"`
	Cleanup     CleanupConfig     `mapstructure:"cleanup"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	DataDir string `mapstructure:"data_dir"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// DBConfig holds database settings (SQLite).
type DBConfig struct {
	File string `mapstructure:"file"`
}

// InsightFaceConfig holds settings for the external detector/embedder service.
type InsightFaceConfig struct {
	URL                string  `mapstructure:"url"`
	TimeoutSeconds     int     `mapstructure:"timeout_seconds"`
	DetectionThreshold float64 `mapstructure:"detection_threshold"`
	EmbeddingDim       int     `mapstructure:"embedding_dim"`
}

// RecognitionConfig holds the matching and deduplication thresholds.
type RecognitionConfig struct {
	// SimilarityThreshold is the minimum cosine similarity for a detection
	// to be accepted as a known identity.
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
	// AttendanceWindowMinutes is the rolling window within which repeated
	// sightings of the same identity reuse the existing open session.
	AttendanceWindowMinutes int `mapstructure:"attendance_window_minutes"`
	// UnknownSimilarityThreshold is the recent-tier threshold for collapsing
	// repeated sightings of the same unknown face.
	UnknownSimilarityThreshold float64 `mapstructure:"unknown_similarity_threshold"`
	// MinFaceSize drops detections whose bounding box is smaller than this
	// many pixels in either dimension.
	MinFaceSize int `mapstructure:"min_face_size"`
}

// MQTTConfig holds the MQTT publisher connection settings.
type MQTTConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Broker      string `mapstructure:"broker"`
	Port        int    `mapstructure:"port"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	ClientID    string `mapstructure:"client_id"`
	TopicPrefix string `mapstructure:"topic_prefix"`
}

// CleanupConfig holds settings for automatic data cleanup.
type CleanupConfig struct {
	RetentionDays int `mapstructure:"retention_days"`
}

// Load reads the configuration from file, environment variables and defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			log.Warnf("Config file %s does not exist, using defaults", configPath)
		} else {
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			log.Infof("Config loaded from %s", configPath)
		}
	}

	// Environment variables override file values.
	v.AutomaticEnv()
	v.SetEnvPrefix("FACEGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := ensureDirectories(&cfg); err != nil {
		return nil, fmt.Errorf("failed to create required directories: %w", err)
	}

	return &cfg, nil
}

// setDefaults defines the default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.data_dir", "/data")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "/data/logs/facegate.log")

	v.SetDefault("db.file", "/data/facegate.db")

	v.SetDefault("insightface.url", "http://localhost:18080")
	v.SetDefault("insightface.timeout_seconds", 30)
	v.SetDefault("insightface.detection_threshold", 0.5)
	v.SetDefault("insightface.embedding_dim", 512)

	v.SetDefault("recognition.similarity_threshold", 0.6)
	v.SetDefault("recognition.attendance_window_minutes", 30)
	v.SetDefault("recognition.unknown_similarity_threshold", 0.5)
	v.SetDefault("recognition.min_face_size", 30)

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.client_id", "facegate")
	v.SetDefault("mqtt.topic_prefix", "facegate")

	v.SetDefault("cleanup.retention_days", 30)
}

// ensureDirectories makes sure all required directories exist.
func ensureDirectories(cfg *Config) error {
	if cfg.Server.DataDir != "" {
		if err := os.MkdirAll(cfg.Server.DataDir, 0755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	if cfg.Log.File != "" {
		logDir := filepath.Dir(cfg.Log.File)
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
	}

	if cfg.DB.File != "" {
		dbDir := filepath.Dir(cfg.DB.File)
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	return nil
}
