package config

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var (
	portRe       = regexp.MustCompile(`^:(\d+)$`)
	headerNameRe = regexp.MustCompile("^[!#$%&'*+\\-.^_`|~0-9A-Za-z]+$")
)

var entityDetectors = []string{"onnx_model_detector", "model_detector", DetectorNone}

var auditDrivers = []string{"sqlite", "postgres", "memory"}

// ValidateConfig checks the configuration and reports every problem found,
// joined with "; "
func (c *Config) ValidateConfig() error {
	var errs []string
	add := func(err error) {
		if err != nil {
			errs = append(errs, err.Error())
		}
	}

	add(validatePort(c.ListenAddr, "ListenAddr"))
	if c.MaxUploadBytes <= 0 {
		add(fmt.Errorf("MaxUploadBytes: must be positive (current value: %d)", c.MaxUploadBytes))
	}

	add(validateDetectorConfig(c.Detector))
	if c.Audit.Enabled {
		add(validateAuditConfig(c.Audit))
	}
	add(validateGeminiConfig(c.Gemini))
	add(validateRateLimitConfig(c.RateLimit))

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func validatePort(port, fieldName string) error {
	if port == "" {
		return fmt.Errorf("%s: port cannot be empty", fieldName)
	}

	matches := portRe.FindStringSubmatch(port)
	if matches == nil {
		return fmt.Errorf("%s: port must be in format ':PORT' where PORT is numeric (current value: %s)", fieldName, port)
	}

	n, err := strconv.Atoi(matches[1])
	if err != nil || n < 1 || n > 65535 {
		return fmt.Errorf("%s: port must be between 1 and 65535 (current value: %s)", fieldName, matches[1])
	}
	return nil
}

func validateBaseURL(value, fieldName string) error {
	if value == "" {
		return fmt.Errorf("%s: URL cannot be empty", fieldName)
	}
	u, err := url.Parse(value)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s: URL must be absolute with scheme 'http' or 'https' (current value: %s)", fieldName, value)
	}
	return nil
}

func validateDuration(value, fieldName string, allowEmpty bool) error {
	if value == "" {
		if allowEmpty {
			return nil
		}
		return fmt.Errorf("%s: duration cannot be empty", fieldName)
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fmt.Errorf("%s: duration must be positive, e.g. '2s' (current value: %s)", fieldName, value)
	}
	return nil
}

func validateOneOf(value, fieldName string, allowed []string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%s: must be one of %s (current value: %s)", fieldName, strings.Join(allowed, ", "), value)
}

func validateAdditionalHeaders(headers map[string]string, fieldName string) error {
	for name := range headers {
		if name == "" {
			return fmt.Errorf("%s: header name cannot be empty", fieldName)
		}
		if !headerNameRe.MatchString(name) {
			return fmt.Errorf("%s: header name '%s' contains invalid characters", fieldName, name)
		}
	}
	return nil
}

func validateDetectorConfig(dc DetectorConfig) error {
	if err := validateOneOf(dc.Name, "Detector.Name", entityDetectors); err != nil {
		return err
	}
	switch dc.Name {
	case "onnx_model_detector":
		if dc.ModelDir == "" {
			return fmt.Errorf("Detector.ModelDir: directory cannot be empty")
		}
	case "model_detector":
		if err := validateBaseURL(dc.ModelBaseURL, "Detector.ModelBaseURL"); err != nil {
			return err
		}
		if err := validateDuration(dc.ModelTimeout, "Detector.ModelTimeout", true); err != nil {
			return err
		}
		if dc.MaxInputBytes < 0 {
			return fmt.Errorf("Detector.MaxInputBytes: must not be negative (current value: %d)", dc.MaxInputBytes)
		}
	case DetectorNone:
		if dc.RequireModel {
			return fmt.Errorf("Detector.RequireModel: cannot require a model when Detector.Name is %s", DetectorNone)
		}
	}
	return validateDuration(dc.EntityTimeout, "Detector.EntityTimeout", true)
}

func validateAuditConfig(ac AuditConfig) error {
	if err := validateOneOf(ac.Driver, "Audit.Driver", auditDrivers); err != nil {
		return err
	}
	if ac.Driver == "postgres" {
		if ac.Host == "" {
			return fmt.Errorf("Audit.Host: host cannot be empty")
		}
		if ac.Port < 1 || ac.Port > 65535 {
			return fmt.Errorf("Audit.Port: port must be between 1 and 65535 (current value: %d)", ac.Port)
		}
	}
	if ac.CleanupHours < 0 {
		return fmt.Errorf("Audit.CleanupHours: must not be negative (current value: %d)", ac.CleanupHours)
	}
	if ac.CleanupSchedule != "" {
		if _, err := cron.ParseStandard(ac.CleanupSchedule); err != nil {
			return fmt.Errorf("Audit.CleanupSchedule: invalid cron expression (current value: %s): %w", ac.CleanupSchedule, err)
		}
	}
	return nil
}

func validateGeminiConfig(gc GeminiConfig) error {
	if err := validateBaseURL(gc.BaseURL, "Gemini.BaseURL"); err != nil {
		return err
	}
	if gc.Model == "" {
		return fmt.Errorf("Gemini.Model: model cannot be empty")
	}
	return validateAdditionalHeaders(gc.AdditionalHeaders, "Gemini.AdditionalHeaders")
}

func validateRateLimitConfig(rc RateLimitConfig) error {
	if !rc.Enabled {
		return nil
	}
	if rc.RequestsPerSecond <= 0 {
		return fmt.Errorf("RateLimit.RequestsPerSecond: must be positive (current value: %g)", rc.RequestsPerSecond)
	}
	if rc.Burst < 1 {
		return fmt.Errorf("RateLimit.Burst: must be at least 1 (current value: %d)", rc.Burst)
	}
	return nil
}
