package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

type ProviderType string

var (
	// ErrNotConfigured is returned when the provider has no credentials
	ErrNotConfigured = errors.New("generation provider not configured")
	// ErrEmptyResponse is returned when the provider answered without text
	ErrEmptyResponse = errors.New("empty response from generation provider")
)

// APIError is a non-2xx answer from the provider
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API returned status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// GenerateOptions tunes a single generation call
type GenerateOptions struct {
	Temperature *float64
	// JSON asks the model for an application/json response
	JSON bool
}

// Generator produces text from a prompt. Prompts handed to a Generator must
// already be redacted.
type Generator interface {
	GetType() ProviderType
	GetName() string
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)
}

// normalizeBaseURL accepts a bare domain or a full URL and returns it with
// the requested scheme and no trailing slash
func normalizeBaseURL(apiDomain string, useHttps bool) string {
	rest := apiDomain
	if i := strings.Index(rest, "://"); i >= 0 {
		rest = rest[i+len("://"):]
	}
	rest = strings.TrimRight(rest, "/")

	if useHttps {
		return "https://" + rest
	}
	return "http://" + rest
}
