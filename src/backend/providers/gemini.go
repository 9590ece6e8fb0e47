package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

const (
	ProviderTypeGemini      ProviderType = "gemini"
	ProviderAPIDomainGemini string       = "generativelanguage.googleapis.com/v1beta"
	DefaultGeminiModel      string       = "gemini-2.5-flash"
)

// maxErrorBody bounds how much of an error response is kept
const maxErrorBody = 2048

type GeminiProvider struct {
	baseURL           string
	useHttps          bool
	apiKey            string
	model             string
	additionalHeaders map[string]string
	client            *http.Client
}

// NewGeminiProvider creates a generateContent client. baseURL may be a bare
// domain (https is assumed) or a full URL.
func NewGeminiProvider(baseURL, apiKey, model string, timeout time.Duration, additionalHeaders map[string]string) *GeminiProvider {
	if baseURL == "" {
		baseURL = ProviderAPIDomainGemini
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &GeminiProvider{
		baseURL:           baseURL,
		useHttps:          !strings.HasPrefix(baseURL, "http://"),
		apiKey:            apiKey,
		model:             model,
		additionalHeaders: additionalHeaders,
		client:            &http.Client{Timeout: timeout},
	}
}

func (p *GeminiProvider) GetName() string {
	return "Gemini"
}

func (p *GeminiProvider) GetType() ProviderType {
	return ProviderTypeGemini
}

func (p *GeminiProvider) GetBaseURL(useHttps bool) string {
	return normalizeBaseURL(p.baseURL, useHttps)
}

// IsConfigured reports whether an API key is set
func (p *GeminiProvider) IsConfigured() bool {
	return p.apiKey != ""
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature      *float64 `json:"temperature,omitempty"`
	ResponseMimeType string   `json:"responseMimeType,omitempty"`
}

type geminiRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

// Generate sends one generateContent call and returns the concatenated text
// of the first candidate
func (p *GeminiProvider) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	if !p.IsConfigured() {
		return "", ErrNotConfigured
	}

	body := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}}}},
	}
	if opts.Temperature != nil || opts.JSON {
		body.GenerationConfig = &geminiGenerationConfig{Temperature: opts.Temperature}
		if opts.JSON {
			body.GenerationConfig.ResponseMimeType = "application/json"
		}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", p.GetBaseURL(p.useHttps), p.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	p.SetAuthHeaders(req)
	p.SetAddlHeaders(req)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call %s API: %w", p.GetName(), err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Printf("[Gemini] Failed to close response body: %v", err)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", &APIError{Provider: p.GetName(), StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(errBody))}
	}

	var data map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return "", fmt.Errorf("failed to decode %s response: %w", p.GetName(), err)
	}

	text, err := p.ExtractResponseText(data)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// ExtractResponseText joins the text parts of the first candidate
func (p *GeminiProvider) ExtractResponseText(data map[string]interface{}) (string, error) {
	// Gemini response has "candidates" array with "content.parts[].text"
	candidates, ok := data["candidates"].([]interface{})
	if !ok || len(candidates) == 0 {
		if feedback, ok := data["promptFeedback"].(map[string]interface{}); ok {
			return "", fmt.Errorf("%w: prompt blocked (%v)", ErrEmptyResponse, feedback["blockReason"])
		}
		return "", fmt.Errorf("%w: no candidates in Gemini response", ErrEmptyResponse)
	}

	candidateMap, ok := candidates[0].(map[string]interface{})
	if !ok {
		return "", fmt.Errorf("%w: invalid candidate format", ErrEmptyResponse)
	}
	content, ok := candidateMap["content"].(map[string]interface{})
	if !ok {
		return "", fmt.Errorf("%w: no content in candidate", ErrEmptyResponse)
	}
	parts, ok := content["parts"].([]interface{})
	if !ok {
		return "", fmt.Errorf("%w: no parts in content", ErrEmptyResponse)
	}

	var result strings.Builder
	for _, part := range parts {
		partMap, ok := part.(map[string]interface{})
		if !ok {
			continue
		}
		if text, ok := partMap["text"].(string); ok {
			result.WriteString(text)
		}
	}
	return result.String(), nil
}

func (p *GeminiProvider) SetAuthHeaders(req *http.Request) {
	// Check if API key already present in request
	if apiKey := req.Header.Get("x-goog-api-key"); apiKey != "" {
		return
	}
	req.Header.Set("x-goog-api-key", p.apiKey)
}

func (p *GeminiProvider) SetAddlHeaders(req *http.Request) {
	for key, value := range p.additionalHeaders {
		req.Header.Set(key, value)
	}
}
