//go:build integration && onnx
// +build integration,onnx

package pii

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"
)

// Test paths - adjust based on your local setup or use environment variables
var (
	testModelPath     = getEnvOrDefault("ONNX_MODEL_PATH", "../../../../model/quantized/model_quantized.onnx")
	testTokenizerPath = getEnvOrDefault("ONNX_TOKENIZER_PATH", "../../../../model/quantized/tokenizer.json")
	testLabelMapPath  = getEnvOrDefault("ONNX_LABEL_MAP_PATH", "")
)

func getEnvOrDefault(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultValue
}

func newIntegrationDetector(t *testing.T) *ONNXModelDetector {
	t.Helper()
	if _, err := os.Stat(testModelPath); os.IsNotExist(err) {
		t.Skipf("Skipping: model file not found at %s", testModelPath)
	}
	if _, err := os.Stat(testTokenizerPath); os.IsNotExist(err) {
		t.Skipf("Skipping: tokenizer file not found at %s", testTokenizerPath)
	}

	detector, err := NewONNXModelDetector(testModelPath, testTokenizerPath, testLabelMapPath)
	if err != nil {
		t.Fatalf("Failed to create detector: %v", err)
	}
	t.Cleanup(func() {
		if err := detector.Close(); err != nil {
			t.Errorf("Close returned error: %v", err)
		}
	})
	return detector
}

func assertSpanOffsets(t *testing.T, text string, spans []Span) {
	t.Helper()
	for _, s := range spans {
		if s.StartPos < 0 || s.StartPos >= s.EndPos || s.EndPos > len(text) {
			t.Errorf("Span out of range: %+v", s)
			continue
		}
		if text[s.StartPos:s.EndPos] != s.Text {
			t.Errorf("Span text %q does not match text[%d:%d]=%q", s.Text, s.StartPos, s.EndPos, text[s.StartPos:s.EndPos])
		}
		t.Logf("  - %s: '%s' [%d:%d] (%.2f)", s.Label, s.Text, s.StartPos, s.EndPos, s.Confidence)
	}
}

func TestONNXModelDetector_Detect_SimpleText(t *testing.T) {
	detector := newIntegrationDetector(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	input := DetectorInput{Text: "Jane Doe works at Acme Corp in Berlin."}
	output, err := detector.Detect(ctx, input)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}

	if output.Text != input.Text {
		t.Errorf("Output text should match input")
	}
	assertSpanOffsets(t, input.Text, output.Spans)
}

func TestONNXModelDetector_Detect_LongText(t *testing.T) {
	detector := newIntegrationDetector(t)

	// Well beyond 512 tokens
	longText := "Contact John Doe in Paris. " +
		strings.Repeat("This is some filler text to make the input very long. ", 100) +
		"Also reach out to Jane Smith at Acme Corp."

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	output, err := detector.Detect(ctx, DetectorInput{Text: longText})
	if err != nil {
		t.Fatalf("Detect failed on long text: %v", err)
	}
	if len(output.Spans) == 0 {
		t.Error("Expected to detect entities in long text")
	}
	assertSpanOffsets(t, longText, output.Spans)

	for i := 1; i < len(output.Spans); i++ {
		if output.Spans[i-1].Overlaps(output.Spans[i]) {
			t.Errorf("Spans from overlapping chunks were not merged: %+v %+v", output.Spans[i-1], output.Spans[i])
		}
	}
}

func TestONNXModelDetector_Detect_ContextCancellation(t *testing.T) {
	detector := newIntegrationDetector(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := detector.Detect(ctx, DetectorInput{Text: strings.Repeat("This is test text with name John Doe. ", 200)})
	if !errors.Is(err, ErrDetectionUnavailable) {
		t.Errorf("Expected ErrDetectionUnavailable for cancelled context, got %v", err)
	}
}

func TestONNXModelDetector_ConcurrentDetect(t *testing.T) {
	detector := newIntegrationDetector(t)

	text := "Jane Doe met John Smith in London."
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		go func() {
			_, err := detector.Detect(context.Background(), DetectorInput{Text: text})
			errs <- err
		}()
	}
	for i := 0; i < 8; i++ {
		if err := <-errs; err != nil {
			t.Errorf("Concurrent detect failed: %v", err)
		}
	}
}

func TestONNXModelDetector_EmptyText(t *testing.T) {
	detector := newIntegrationDetector(t)

	output, err := detector.Detect(context.Background(), DetectorInput{Text: ""})
	if err != nil {
		t.Fatalf("Detect failed on empty text: %v", err)
	}
	if len(output.Spans) != 0 {
		t.Errorf("Expected 0 spans for empty text, got %d", len(output.Spans))
	}
}
