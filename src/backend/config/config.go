package config

import (
	"time"
)

// Entity detector selection. DetectorNone runs patterns only.
const DetectorNone = "none"

// DetectorConfig selects and tunes the entity detector and the pattern table
type DetectorConfig struct {
	Name          string `json:"name"`            // onnx_model_detector, model_detector or none
	ModelDir      string `json:"model_dir"`       // Directory with model_quantized.onnx, tokenizer.json, label_mappings.json
	ModelBaseURL  string `json:"model_base_url"`  // NER service for model_detector
	ModelTimeout  string `json:"model_timeout"`   // HTTP timeout for model_detector, e.g. "10s"
	MaxInputBytes int    `json:"max_input_bytes"` // Window size for model_detector, 0 disables chunking
	EntityTimeout string `json:"entity_timeout"`  // Bound on entity detection per pass, "" for none
	PatternsFile  string `json:"patterns_file"`   // Extra YAML pattern table
	RequireModel  bool   `json:"require_model"`   // Refuse to start without a working entity detector
}

// AuditConfig holds audit log configuration
type AuditConfig struct {
	Enabled         bool   `json:"enabled"`
	Driver          string `json:"driver"` // sqlite, postgres or memory
	Path            string `json:"path"`   // SQLite file
	Host            string `json:"host"`
	Port            int    `json:"port"`
	Database        string `json:"database"`
	Username        string `json:"username"`
	Password        string `json:"password"`
	SSLMode         string `json:"ssl_mode"`
	MaxOpenConns    int    `json:"max_open_conns"`
	MaxIdleConns    int    `json:"max_idle_conns"`
	MaxLifetime     int    `json:"max_lifetime"` // Connection max lifetime in seconds
	MaxEntries      int    `json:"max_entries"`  // Capacity of the memory driver
	CleanupHours    int    `json:"cleanup_hours"`
	CleanupSchedule string `json:"cleanup_schedule"` // Cron expression
}

// GeminiConfig holds the generation service configuration
type GeminiConfig struct {
	APIKey  string `json:"api_key"`
	Model   string `json:"model"`
	BaseURL string `json:"base_url"`
	Timeout int    `json:"timeout"` // Seconds

	AdditionalHeaders map[string]string `json:"additional_headers"`
}

// RateLimitConfig bounds request rates on the document endpoints
type RateLimitConfig struct {
	Enabled           bool    `json:"enabled"`
	RequestsPerSecond float64 `json:"requests_per_second"`
	Burst             int     `json:"burst"`
}

// LoggingConfig holds logging configuration options
type LoggingConfig struct {
	LogRequests bool `json:"log_requests"` // Log request metadata
	LogVerbose  bool `json:"log_verbose"`  // Log redacted surface text
}

// SentryConfig holds error reporting configuration
type SentryConfig struct {
	DSN         string `json:"dsn"`
	Environment string `json:"environment"`
}

// Config holds all configuration for the redaction service
type Config struct {
	ListenAddr     string          `json:"listen_addr"`
	MaxUploadBytes int64           `json:"max_upload_bytes"`
	AllowedOrigins []string        `json:"allowed_origins"`
	Detector       DetectorConfig  `json:"detector"`
	Audit          AuditConfig     `json:"audit"`
	Gemini         GeminiConfig    `json:"gemini"`
	RateLimit      RateLimitConfig `json:"rate_limit"`
	Logging        LoggingConfig   `json:"logging"`
	Sentry         SentryConfig    `json:"sentry"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:     ":8080",
		MaxUploadBytes: 10 << 20,
		AllowedOrigins: []string{"*"},
		Detector: DetectorConfig{
			Name:          "onnx_model_detector",
			ModelDir:      "model/quantized",
			ModelBaseURL:  "http://localhost:8000",
			ModelTimeout:  "10s",
			MaxInputBytes: 16 * 1024,
			EntityTimeout: "",
		},
		Audit: AuditConfig{
			Enabled:         false,
			Driver:          "sqlite",
			Path:            "data/redaction_audit.db",
			Host:            "localhost",
			Port:            5432,
			Database:        "redaction",
			Username:        "postgres",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    25,
			MaxLifetime:     300,
			MaxEntries:      5000,
			CleanupHours:    24 * 30,
			CleanupSchedule: "0 3 * * *",
		},
		Gemini: GeminiConfig{
			Model:   "gemini-2.5-flash",
			BaseURL: "https://generativelanguage.googleapis.com/v1beta",
			Timeout: 60,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerSecond: 5,
			Burst:             10,
		},
		Logging: LoggingConfig{
			LogRequests: true,
			LogVerbose:  false,
		},
	}
}

// EntityTimeoutDuration returns the parsed per-pass entity detection bound
func (dc DetectorConfig) EntityTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(dc.EntityTimeout)
	return d
}

// ModelTimeoutDuration returns the parsed model service timeout
func (dc DetectorConfig) ModelTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(dc.ModelTimeout)
	return d
}

// CleanupAge returns the audit retention window
func (ac AuditConfig) CleanupAge() time.Duration {
	return time.Duration(ac.CleanupHours) * time.Hour
}

// GetLogVerbose returns whether to log verbose PII details
func (lc LoggingConfig) GetLogVerbose() bool {
	return lc.LogVerbose
}
