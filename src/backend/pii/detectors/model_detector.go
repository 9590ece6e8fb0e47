package pii

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ModelDetector calls an external NER service over HTTP
type ModelDetector struct {
	baseURL string
	client  *http.Client
}

type detectRequest struct {
	Text string `json:"text"`
}

type detectResponse struct {
	Entities []detectedEntity `json:"entities"`
}

type detectedEntity struct {
	Text       string  `json:"text"`
	Label      string  `json:"label"`
	StartPos   int     `json:"start_pos"`
	EndPos     int     `json:"end_pos"`
	Confidence float64 `json:"confidence"`
}

// NewModelDetector creates a detector for the service at baseURL.
// A zero timeout defaults to 10 seconds.
func NewModelDetector(baseURL string, timeout time.Duration) *ModelDetector {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ModelDetector{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// GetName returns the name of this detector
func (m *ModelDetector) GetName() string {
	return DetectorNameModel
}

// Detect posts the text to <baseURL>/detect and converts the reply to spans
func (m *ModelDetector) Detect(ctx context.Context, input DetectorInput) (DetectorOutput, error) {
	jsonData, err := json.Marshal(detectRequest{Text: input.Text})
	if err != nil {
		return DetectorOutput{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/detect", bytes.NewReader(jsonData))
	if err != nil {
		return DetectorOutput{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	response, err := m.client.Do(req)
	if err != nil {
		return DetectorOutput{}, unavailable("model service unreachable: %v", err)
	}
	defer func() { _ = response.Body.Close() }()

	switch {
	case response.StatusCode == http.StatusRequestEntityTooLarge:
		return DetectorOutput{}, fmt.Errorf("%w: model service rejected %d bytes", ErrInputTooLarge, len(input.Text))
	case response.StatusCode != http.StatusOK:
		return DetectorOutput{}, unavailable("model service returned status %d", response.StatusCode)
	}

	var body detectResponse
	if err := json.NewDecoder(response.Body).Decode(&body); err != nil {
		return DetectorOutput{}, unavailable("failed to decode model response: %v", err)
	}

	return DetectorOutput{
		Text:  input.Text,
		Spans: convertResponseToSpans(input.Text, body.Entities),
	}, nil
}

// convertResponseToSpans keeps entities whose offsets fit the text and
// recomputes the surface string from the offsets.
func convertResponseToSpans(text string, entities []detectedEntity) []Span {
	spans := make([]Span, 0, len(entities))
	for _, e := range entities {
		if e.StartPos < 0 || e.EndPos > len(text) || e.StartPos >= e.EndPos {
			continue
		}
		spans = append(spans, Span{
			Text:       text[e.StartPos:e.EndPos],
			Label:      NormalizeEntityLabel(e.Label),
			Source:     SourceModel,
			StartPos:   e.StartPos,
			EndPos:     e.EndPos,
			Confidence: e.Confidence,
		})
	}
	return spans
}

// Close implements the Detector interface
func (m *ModelDetector) Close() error {
	m.client.CloseIdleConnections()
	return nil
}
