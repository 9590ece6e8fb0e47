package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
)

const TRUE = "true"

// LoadFromFile overlays a JSON configuration file onto cfg
func LoadFromFile(path string, cfg *Config) error {
	// #nosec G304 - Config file path comes from the command line
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			log.Printf("Failed to close config file: %v", err)
		}
	}()

	decoder := json.NewDecoder(file)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(cfg); err != nil {
		return fmt.Errorf("failed to decode config file %s: %w", path, err)
	}
	return nil
}

// LoadFromEnv overlays environment variables onto cfg
func LoadFromEnv(cfg *Config) {
	loadServerConfig(cfg)
	loadDetectorConfig(cfg)
	loadAuditConfig(cfg)
	loadGeminiConfig(cfg)
	loadRateLimitConfig(cfg)
	loadLoggingConfig(cfg)
}

func loadServerConfig(cfg *Config) {
	if listenAddr := os.Getenv("LISTEN_ADDR"); listenAddr != "" {
		cfg.ListenAddr = listenAddr
	}

	if maxUpload := os.Getenv("MAX_UPLOAD_BYTES"); maxUpload != "" {
		if n, err := strconv.ParseInt(maxUpload, 10, 64); err == nil {
			cfg.MaxUploadBytes = n
		}
	}

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = splitList(origins)
	}

	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		cfg.Sentry.DSN = dsn
	}

	if env := os.Getenv("SENTRY_ENVIRONMENT"); env != "" {
		cfg.Sentry.Environment = env
	}
}

func loadDetectorConfig(cfg *Config) {
	if detectorName := os.Getenv("DETECTOR_NAME"); detectorName != "" {
		cfg.Detector.Name = detectorName
	}

	if modelDir := os.Getenv("MODEL_DIR"); modelDir != "" {
		cfg.Detector.ModelDir = modelDir
	}

	if modelBaseURL := os.Getenv("MODEL_BASE_URL"); modelBaseURL != "" {
		cfg.Detector.ModelBaseURL = modelBaseURL
	}

	if modelTimeout := os.Getenv("MODEL_TIMEOUT"); modelTimeout != "" {
		cfg.Detector.ModelTimeout = modelTimeout
	}

	if maxInput := os.Getenv("MODEL_MAX_INPUT_BYTES"); maxInput != "" {
		if n, err := strconv.Atoi(maxInput); err == nil {
			cfg.Detector.MaxInputBytes = n
		}
	}

	if entityTimeout := os.Getenv("ENTITY_TIMEOUT"); entityTimeout != "" {
		cfg.Detector.EntityTimeout = entityTimeout
	}

	if patternsFile := os.Getenv("PATTERNS_FILE"); patternsFile != "" {
		cfg.Detector.PatternsFile = patternsFile
	}

	if requireModel := os.Getenv("REQUIRE_MODEL"); requireModel != "" {
		cfg.Detector.RequireModel = requireModel == TRUE
	}
}

func loadAuditConfig(cfg *Config) {
	if enabled := os.Getenv("AUDIT_ENABLED"); enabled != "" {
		cfg.Audit.Enabled = enabled == TRUE
	}

	if driver := os.Getenv("AUDIT_DRIVER"); driver != "" {
		cfg.Audit.Driver = driver
	}

	if path := os.Getenv("AUDIT_PATH"); path != "" {
		cfg.Audit.Path = path
	}

	if host := os.Getenv("AUDIT_DB_HOST"); host != "" {
		cfg.Audit.Host = host
	}

	if port := os.Getenv("AUDIT_DB_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Audit.Port = p
		}
	}

	if dbName := os.Getenv("AUDIT_DB_NAME"); dbName != "" {
		cfg.Audit.Database = dbName
	}

	if user := os.Getenv("AUDIT_DB_USER"); user != "" {
		cfg.Audit.Username = user
	}

	if password := os.Getenv("AUDIT_DB_PASSWORD"); password != "" {
		cfg.Audit.Password = password
	}

	if sslMode := os.Getenv("AUDIT_DB_SSL_MODE"); sslMode != "" {
		cfg.Audit.SSLMode = sslMode
	}

	if cleanupHours := os.Getenv("AUDIT_CLEANUP_HOURS"); cleanupHours != "" {
		if hours, err := strconv.Atoi(cleanupHours); err == nil {
			cfg.Audit.CleanupHours = hours
		}
	}

	if schedule := os.Getenv("AUDIT_CLEANUP_SCHEDULE"); schedule != "" {
		cfg.Audit.CleanupSchedule = schedule
	}
}

func loadGeminiConfig(cfg *Config) {
	if apiKey := os.Getenv("GEMINI_API_KEY"); apiKey != "" {
		cfg.Gemini.APIKey = apiKey
		log.Printf("Loaded GEMINI_API_KEY from environment (length: %d)", len(apiKey))
	} else if cfg.Gemini.APIKey == "" {
		log.Printf("Warning: GEMINI_API_KEY is empty or not set")
	}

	if model := os.Getenv("GEMINI_MODEL"); model != "" {
		cfg.Gemini.Model = model
	}

	if baseURL := os.Getenv("GEMINI_BASE_URL"); baseURL != "" {
		cfg.Gemini.BaseURL = baseURL
	}
}

func loadRateLimitConfig(cfg *Config) {
	if enabled := os.Getenv("RATE_LIMIT_ENABLED"); enabled != "" {
		cfg.RateLimit.Enabled = enabled == TRUE
	}

	if rps := os.Getenv("RATE_LIMIT_RPS"); rps != "" {
		if v, err := strconv.ParseFloat(rps, 64); err == nil {
			cfg.RateLimit.RequestsPerSecond = v
		}
	}

	if burst := os.Getenv("RATE_LIMIT_BURST"); burst != "" {
		if b, err := strconv.Atoi(burst); err == nil {
			cfg.RateLimit.Burst = b
		}
	}
}

func loadLoggingConfig(cfg *Config) {
	if logVerbose := os.Getenv("LOG_VERBOSE"); logVerbose != "" {
		cfg.Logging.LogVerbose = logVerbose == TRUE
	}

	if logRequests := os.Getenv("LOG_REQUESTS"); logRequests != "" {
		cfg.Logging.LogRequests = logRequests == TRUE
	}
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
