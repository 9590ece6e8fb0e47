package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestValidatePort(t *testing.T) {
	testCases := []struct {
		name      string
		port      string
		fieldName string
		expectErr bool
		errString string
	}{
		{
			name:      "valid port",
			port:      ":8080",
			fieldName: "ListenAddr",
			expectErr: false,
		},
		{
			name:      "empty port",
			port:      "",
			fieldName: "ListenAddr",
			expectErr: true,
			errString: "ListenAddr: port cannot be empty",
		},
		{
			name:      "no colon",
			port:      "8080",
			fieldName: "ListenAddr",
			expectErr: true,
			errString: "ListenAddr: port must be in format ':PORT' where PORT is numeric (current value: 8080)",
		},
		{
			name:      "non-numeric",
			port:      ":abcd",
			fieldName: "ListenAddr",
			expectErr: true,
			errString: "ListenAddr: port must be in format ':PORT' where PORT is numeric (current value: :abcd)",
		},
		{
			name:      "port out of range (low)",
			port:      ":0",
			fieldName: "ListenAddr",
			expectErr: true,
			errString: "ListenAddr: port must be between 1 and 65535 (current value: 0)",
		},
		{
			name:      "port out of range (high)",
			port:      ":65536",
			fieldName: "ListenAddr",
			expectErr: true,
			errString: "ListenAddr: port must be between 1 and 65535 (current value: 65536)",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := validatePort(tc.port, tc.fieldName)
			if tc.expectErr {
				if err == nil {
					t.Errorf("expected an error, but got nil")
				} else if err.Error() != tc.errString {
					t.Errorf("expected error string '%s', but got '%s'", tc.errString, err.Error())
				}
			} else if err != nil {
				t.Errorf("expected no error, but got: %v", err)
			}
		})
	}
}

func TestValidateAdditionalHeaders(t *testing.T) {
	testCases := []struct {
		name      string
		headers   map[string]string
		fieldName string
		expectErr bool
		errString string
	}{
		{
			name:      "valid headers",
			headers:   map[string]string{"X-Test-Header": "value"},
			fieldName: "Gemini.AdditionalHeaders",
			expectErr: false,
		},
		{
			name:      "empty header name",
			headers:   map[string]string{"": "value"},
			fieldName: "Gemini.AdditionalHeaders",
			expectErr: true,
			errString: "Gemini.AdditionalHeaders: header name cannot be empty",
		},
		{
			name:      "header name with space",
			headers:   map[string]string{"invalid header": "value"},
			fieldName: "Gemini.AdditionalHeaders",
			expectErr: true,
			errString: "Gemini.AdditionalHeaders: header name 'invalid header' contains invalid characters",
		},
		{
			name:      "header name with colon",
			headers:   map[string]string{"invalid:header": "value"},
			fieldName: "Gemini.AdditionalHeaders",
			expectErr: true,
			errString: "Gemini.AdditionalHeaders: header name 'invalid:header' contains invalid characters",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateAdditionalHeaders(tc.headers, tc.fieldName)
			if tc.expectErr {
				if err == nil {
					t.Errorf("expected an error, but got nil")
				} else if err.Error() != tc.errString {
					t.Errorf("expected error string '%s', but got '%s'", tc.errString, err.Error())
				}
			} else if err != nil {
				t.Errorf("expected no error, but got: %v", err)
			}
		})
	}
}

func TestValidateBaseURL(t *testing.T) {
	testCases := []struct {
		name      string
		value     string
		expectErr bool
		errString string
	}{
		{
			name:  "valid https",
			value: "https://generativelanguage.googleapis.com/v1beta",
		},
		{
			name:  "valid http with port",
			value: "http://localhost:8000",
		},
		{
			name:      "empty",
			value:     "",
			expectErr: true,
			errString: "Gemini.BaseURL: URL cannot be empty",
		},
		{
			name:      "missing scheme",
			value:     "localhost:8000",
			expectErr: true,
			errString: "Gemini.BaseURL: URL must be absolute with scheme 'http' or 'https' (current value: localhost:8000)",
		},
		{
			name:      "unsupported scheme",
			value:     "ftp://example.com",
			expectErr: true,
			errString: "Gemini.BaseURL: URL must be absolute with scheme 'http' or 'https' (current value: ftp://example.com)",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateBaseURL(tc.value, "Gemini.BaseURL")
			if tc.expectErr {
				if err == nil {
					t.Errorf("expected an error, but got nil")
				} else if err.Error() != tc.errString {
					t.Errorf("expected error string '%s', but got '%s'", tc.errString, err.Error())
				}
			} else if err != nil {
				t.Errorf("expected no error, but got: %v", err)
			}
		})
	}
}

func TestValidateConfig(t *testing.T) {
	newDefaultConfig := func() *Config {
		return DefaultConfig()
	}

	testCases := []struct {
		name      string
		config    *Config
		expectErr bool
		errString string
	}{
		{
			name:      "valid default config",
			config:    newDefaultConfig(),
			expectErr: false,
		},
		{
			name: "invalid listen address",
			config: func() *Config {
				c := newDefaultConfig()
				c.ListenAddr = "invalid"
				return c
			}(),
			expectErr: true,
			errString: "ListenAddr: port must be in format ':PORT' where PORT is numeric (current value: invalid)",
		},
		{
			name: "unknown detector",
			config: func() *Config {
				c := newDefaultConfig()
				c.Detector.Name = "regex_detector"
				return c
			}(),
			expectErr: true,
			errString: "Detector.Name: must be one of onnx_model_detector, model_detector, none (current value: regex_detector)",
		},
		{
			name: "model detector without base url",
			config: func() *Config {
				c := newDefaultConfig()
				c.Detector.Name = "model_detector"
				c.Detector.ModelBaseURL = ""
				return c
			}(),
			expectErr: true,
			errString: "Detector.ModelBaseURL: URL cannot be empty",
		},
		{
			name: "pattern only detector",
			config: func() *Config {
				c := newDefaultConfig()
				c.Detector.Name = DetectorNone
				return c
			}(),
			expectErr: false,
		},
		{
			name: "required model with no detector",
			config: func() *Config {
				c := newDefaultConfig()
				c.Detector.Name = DetectorNone
				c.Detector.RequireModel = true
				return c
			}(),
			expectErr: true,
			errString: "Detector.RequireModel: cannot require a model when Detector.Name is none",
		},
		{
			name: "invalid entity timeout",
			config: func() *Config {
				c := newDefaultConfig()
				c.Detector.EntityTimeout = "soon"
				return c
			}(),
			expectErr: true,
			errString: "Detector.EntityTimeout: duration must be positive, e.g. '2s' (current value: soon)",
		},
		{
			name: "invalid audit driver",
			config: func() *Config {
				c := newDefaultConfig()
				c.Audit.Enabled = true
				c.Audit.Driver = "mysql"
				return c
			}(),
			expectErr: true,
			errString: "Audit.Driver: must be one of sqlite, postgres, memory (current value: mysql)",
		},
		{
			name: "audit settings ignored when disabled",
			config: func() *Config {
				c := newDefaultConfig()
				c.Audit.Enabled = false
				c.Audit.Driver = "mysql"
				return c
			}(),
			expectErr: false,
		},
		{
			name: "invalid rate limit",
			config: func() *Config {
				c := newDefaultConfig()
				c.RateLimit.Burst = 0
				return c
			}(),
			expectErr: true,
			errString: "RateLimit.Burst: must be at least 1 (current value: 0)",
		},
		{
			name: "multiple errors",
			config: func() *Config {
				c := newDefaultConfig()
				c.ListenAddr = "invalid"
				c.Gemini.Model = ""
				return c
			}(),
			expectErr: true,
			errString: "ListenAddr: port must be in format ':PORT' where PORT is numeric (current value: invalid); Gemini.Model: model cannot be empty",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.config.ValidateConfig()
			if tc.expectErr {
				if err == nil {
					t.Errorf("expected an error, but got nil")
				} else if err.Error() != tc.errString {
					t.Errorf("expected error string '%s', but got '%s'", tc.errString, err.Error())
				}
			} else if err != nil {
				t.Errorf("expected no error, but got: %v", err)
			}
		})
	}
}

func TestValidateConfig_CleanupSchedule(t *testing.T) {
	c := DefaultConfig()
	c.Audit.Enabled = true
	c.Audit.CleanupSchedule = "every day"

	err := c.ValidateConfig()
	if err == nil {
		t.Fatal("expected an error for an invalid cron expression")
	}
	if !strings.HasPrefix(err.Error(), "Audit.CleanupSchedule: invalid cron expression (current value: every day)") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("LISTEN_ADDR", ":9090")
	t.Setenv("DETECTOR_NAME", "model_detector")
	t.Setenv("MODEL_BASE_URL", "http://ner:8000")
	t.Setenv("MODEL_MAX_INPUT_BYTES", "4096")
	t.Setenv("ENTITY_TIMEOUT", "2s")
	t.Setenv("PATTERNS_FILE", "/etc/redaction/patterns.yaml")
	t.Setenv("AUDIT_ENABLED", "true")
	t.Setenv("AUDIT_DRIVER", "postgres")
	t.Setenv("AUDIT_DB_PORT", "6543")
	t.Setenv("AUDIT_CLEANUP_HOURS", "not-a-number")
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	t.Setenv("LOG_VERBOSE", "true")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, ,https://b.example")

	cfg := DefaultConfig()
	LoadFromEnv(cfg)

	if cfg.ListenAddr != ":9090" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.Detector.Name != "model_detector" || cfg.Detector.ModelBaseURL != "http://ner:8000" {
		t.Errorf("Detector = %+v", cfg.Detector)
	}
	if cfg.Detector.MaxInputBytes != 4096 {
		t.Errorf("MaxInputBytes = %d", cfg.Detector.MaxInputBytes)
	}
	if cfg.Detector.EntityTimeoutDuration() != 2*time.Second {
		t.Errorf("EntityTimeoutDuration() = %v", cfg.Detector.EntityTimeoutDuration())
	}
	if cfg.Detector.PatternsFile != "/etc/redaction/patterns.yaml" {
		t.Errorf("PatternsFile = %q", cfg.Detector.PatternsFile)
	}
	if !cfg.Audit.Enabled || cfg.Audit.Driver != "postgres" || cfg.Audit.Port != 6543 {
		t.Errorf("Audit = %+v", cfg.Audit)
	}
	if cfg.Audit.CleanupHours != DefaultConfig().Audit.CleanupHours {
		t.Errorf("unparseable AUDIT_CLEANUP_HOURS should keep the default, got %d", cfg.Audit.CleanupHours)
	}
	if cfg.Gemini.APIKey != "test-key" {
		t.Errorf("Gemini.APIKey not loaded")
	}
	if cfg.RateLimit.RequestsPerSecond != 2.5 {
		t.Errorf("RequestsPerSecond = %v", cfg.RateLimit.RequestsPerSecond)
	}
	if !cfg.Logging.GetLogVerbose() {
		t.Errorf("LogVerbose not loaded")
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
		"listen_addr": ":7070",
		"detector": {"name": "none", "entity_timeout": "500ms"},
		"audit": {"enabled": true, "driver": "memory", "max_entries": 10}
	}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := DefaultConfig()
	if err := LoadFromFile(path, cfg); err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}

	if cfg.ListenAddr != ":7070" || cfg.Detector.Name != DetectorNone {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.Detector.EntityTimeoutDuration() != 500*time.Millisecond {
		t.Errorf("EntityTimeoutDuration() = %v", cfg.Detector.EntityTimeoutDuration())
	}
	if cfg.Audit.MaxEntries != 10 || cfg.Audit.Driver != "memory" {
		t.Errorf("Audit = %+v", cfg.Audit)
	}
	// Unset fields keep their defaults
	if cfg.Gemini.Model != DefaultConfig().Gemini.Model {
		t.Errorf("Gemini.Model = %q", cfg.Gemini.Model)
	}
	if err := cfg.ValidateConfig(); err != nil {
		t.Errorf("ValidateConfig() error = %v", err)
	}
}

func TestLoadFromFile_Errors(t *testing.T) {
	dir := t.TempDir()

	if err := LoadFromFile(filepath.Join(dir, "missing.json"), DefaultConfig()); err == nil {
		t.Error("expected an error for a missing file")
	}

	path := filepath.Join(dir, "unknown.json")
	if err := os.WriteFile(path, []byte(`{"proxy_port": ":8080"}`), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := LoadFromFile(path, DefaultConfig()); err == nil {
		t.Error("expected an error for an unknown field")
	}
}
