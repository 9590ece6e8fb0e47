package pii

import (
	"errors"
	"fmt"
)

var (
	// ErrDetectionUnavailable is returned when a detector cannot produce spans
	// (model not loaded, inference failure, sidecar unreachable).
	ErrDetectionUnavailable = errors.New("detection unavailable")

	// ErrInputTooLarge is returned when the text exceeds a detector's processing limit.
	ErrInputTooLarge = errors.New("input too large")
)

// ConfigurationError reports a malformed detector configuration found at startup.
type ConfigurationError struct {
	Label   string
	Pattern string
	Err     error
}

func (e *ConfigurationError) Error() string {
	if e.Label == "" {
		return fmt.Sprintf("configuration error: %v", e.Err)
	}
	return fmt.Sprintf("configuration error: pattern %s (%q): %v", e.Label, e.Pattern, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// unavailable wraps err so that errors.Is(err, ErrDetectionUnavailable) holds.
func unavailable(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrDetectionUnavailable, fmt.Sprintf(format, args...))
}
