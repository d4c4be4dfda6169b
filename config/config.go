package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Pipeline profile names.
const (
	ProfileTranslate = "translate"
	ProfilePractice  = "practice"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server     ServerConfig
	Classifier ClassifierConfig
	Pipeline   PipelineConfig
	Capture    CaptureConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	AWS        AWSConfig
}

// ServerConfig holds HTTP server settings for the control API.
type ServerConfig struct {
	Port               string `env:"PORT" envDefault:"8080"`
	ReadTimeout        int    `env:"READ_TIMEOUT_SEC" envDefault:"30"`
	WriteTimeout       int    `env:"WRITE_TIMEOUT_SEC" envDefault:"30"`
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*"` // comma-separated, or "*"
}

// ClassifierConfig locates the remote classifier service.
type ClassifierConfig struct {
	WSURL            string        `env:"CLASSIFIER_WS_URL" envDefault:"ws://localhost:8001/asl-ws"`
	HTTPURL          string        `env:"CLASSIFIER_HTTP_URL" envDefault:"http://localhost:8001"`
	HealthCheck      bool          `env:"CLASSIFIER_HEALTH_CHECK" envDefault:"true"`
	HandshakeTimeout time.Duration `env:"CLASSIFIER_HANDSHAKE_TIMEOUT" envDefault:"10s"`
	FastMode         bool          `env:"CLASSIFIER_FAST_MODE" envDefault:"true"`
	ReconnectPolicy  string        `env:"RECONNECT_POLICY" envDefault:"fixed"` // fixed | exponential
}

// PipelineConfig holds the stabilizer and session tunables. Zero values are
// filled from the selected profile by Resolve.
type PipelineConfig struct {
	Profile             string        `env:"PIPELINE_PROFILE" envDefault:"translate"`
	ConfidenceThreshold float64       `env:"CONFIDENCE_THRESHOLD"`
	StabilityCount      int           `env:"STABILITY_COUNT"`
	Debounce            time.Duration `env:"DEBOUNCE"`
	CaptureInterval     time.Duration `env:"CAPTURE_INTERVAL"`
	ReconnectDelay      time.Duration `env:"RECONNECT_DELAY"`
	FrameTimeout        time.Duration `env:"FRAME_TIMEOUT"`
	TargetDetections    int           `env:"TARGET_DETECTIONS"`
	RestartCount        *bool         `env:"RESTART_COUNT"`
}

// CaptureConfig selects the camera and the encoder output.
type CaptureConfig struct {
	Source      string `env:"CAMERA_SOURCE" envDefault:"synthetic"` // synthetic | dir
	Dir         string `env:"CAMERA_DIR" envDefault:"frames"`
	FrameWidth  int    `env:"FRAME_WIDTH" envDefault:"240"`
	FrameHeight int    `env:"FRAME_HEIGHT" envDefault:"320"`
	JPEGQuality int    `env:"JPEG_QUALITY" envDefault:"40"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL string `env:"DATABASE_URL" envDefault:"postgres://localhost:5432/signstream?sslmode=disable"`
}

// RedisConfig holds Redis connection settings. An empty Addr disables Redis.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

// AWSConfig holds AWS credentials and the report bucket. An empty bucket
// disables report archiving.
type AWSConfig struct {
	Region          string `env:"AWS_REGION" envDefault:"us-east-1"`
	AccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
	ReportsBucket   string `env:"AWS_S3_REPORTS_BUCKET"`
}

// Tunables is the resolved, fully populated pipeline configuration.
type Tunables struct {
	ConfidenceThreshold float64
	StabilityCount      int
	Debounce            time.Duration
	CaptureInterval     time.Duration
	ReconnectDelay      time.Duration
	FrameTimeout        time.Duration
	TargetDetections    int
	RestartCount        bool
}

// Profiles are the presets the legacy call sites used, one per surface.
var Profiles = map[string]Tunables{
	ProfileTranslate: {
		ConfidenceThreshold: 0.4,
		StabilityCount:      2,
		Debounce:            2500 * time.Millisecond,
		CaptureInterval:     500 * time.Millisecond,
		ReconnectDelay:      2 * time.Second,
		FrameTimeout:        10 * time.Second,
		TargetDetections:    5,
		RestartCount:        false,
	},
	ProfilePractice: {
		ConfidenceThreshold: 0.7,
		StabilityCount:      1,
		Debounce:            800 * time.Millisecond,
		CaptureInterval:     time.Second,
		ReconnectDelay:      2 * time.Second,
		FrameTimeout:        10 * time.Second,
		TargetDetections:    5,
		RestartCount:        true,
	},
}

// Resolve returns the profile preset with any explicit overrides applied.
func (p PipelineConfig) Resolve() (Tunables, error) {
	t, ok := Profiles[strings.ToLower(p.Profile)]
	if !ok {
		return Tunables{}, fmt.Errorf("unknown pipeline profile %q", p.Profile)
	}
	if p.ConfidenceThreshold > 0 {
		t.ConfidenceThreshold = p.ConfidenceThreshold
	}
	if p.StabilityCount > 0 {
		t.StabilityCount = p.StabilityCount
	}
	if p.Debounce > 0 {
		t.Debounce = p.Debounce
	}
	if p.CaptureInterval > 0 {
		t.CaptureInterval = p.CaptureInterval
	}
	if p.ReconnectDelay > 0 {
		t.ReconnectDelay = p.ReconnectDelay
	}
	if p.FrameTimeout > 0 {
		t.FrameTimeout = p.FrameTimeout
	}
	if p.TargetDetections > 0 {
		t.TargetDetections = p.TargetDetections
	}
	if p.RestartCount != nil {
		t.RestartCount = *p.RestartCount
	}
	if t.ConfidenceThreshold >= 1 {
		return Tunables{}, fmt.Errorf("confidence threshold %.2f leaves no confirmable range", t.ConfidenceThreshold)
	}
	return t, nil
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if _, err := cfg.Pipeline.Resolve(); err != nil {
		return nil, err
	}
	switch cfg.Classifier.ReconnectPolicy {
	case "fixed", "exponential":
	default:
		return nil, fmt.Errorf("unknown reconnect policy %q", cfg.Classifier.ReconnectPolicy)
	}
	return &cfg, nil
}
