package pii

import (
	"errors"
	"testing"
	"time"
)

func TestRegisteredDetectors(t *testing.T) {
	names := RegisteredDetectors()
	for _, want := range []string{DetectorNameModel, DetectorNameONNXModel, DetectorNameRegex} {
		found := false
		for _, name := range names {
			if name == want {
				found = true
			}
		}
		if !found {
			t.Errorf("Expected %s to be registered, got %v", want, names)
		}
	}
}

func TestNewDetector(t *testing.T) {
	if _, err := NewDetector("does_not_exist", nil); err == nil {
		t.Error("Expected error for unknown detector")
	}

	var cfgErr *ConfigurationError
	if _, err := NewDetector(DetectorNameModel, map[string]interface{}{}); !errors.As(err, &cfgErr) {
		t.Errorf("Expected *ConfigurationError without base_url, got %v", err)
	}
	if _, err := NewDetector(DetectorNameONNXModel, map[string]interface{}{"model_path": "m.onnx"}); !errors.As(err, &cfgErr) {
		t.Errorf("Expected *ConfigurationError without tokenizer_path, got %v", err)
	}

	detector, err := NewDetector(DetectorNameModel, map[string]interface{}{
		"base_url":        "http://localhost:8000",
		"timeout":         2 * time.Second,
		"max_input_bytes": 4096,
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if _, ok := detector.(*ChunkedDetector); !ok {
		t.Errorf("Expected a *ChunkedDetector when max_input_bytes is set, got %T", detector)
	}

	detector, err = NewDetector(DetectorNameRegex, nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got := len(detector.(*RegexDetector).Labels()); got != len(DefaultPatterns) {
		t.Errorf("Expected default table, got %d patterns", got)
	}

	_, err = NewDetector(DetectorNameRegex, map[string]interface{}{
		"patterns": []Pattern{{Label: "BAD", Pattern: "("}},
	})
	if !errors.As(err, &cfgErr) {
		t.Errorf("Expected *ConfigurationError for a bad pattern, got %v", err)
	}
}

func TestCloseDetector(t *testing.T) {
	if err := CloseDetector(nil); err != nil {
		t.Errorf("Expected nil error for nil detector, got %v", err)
	}
}

func TestNormalizeEntityLabel(t *testing.T) {
	tests := map[string]string{
		"B-PER":    "PERSON",
		"I-PER":    "PERSON",
		"per":      "PERSON",
		"ORG":      "ORG",
		"B-LOC":    "LOCATION",
		"GPE":      "LOCATION",
		"I-MISC":   "MISC",
		"":         "MISC",
		"date":     "DATE",
		"b-phone2": "PHONE_",
		"ZIP-CODE": "ZIP_CODE",
	}
	for in, want := range tests {
		if got := NormalizeEntityLabel(in); got != want {
			t.Errorf("NormalizeEntityLabel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSpan_Overlaps(t *testing.T) {
	a := Span{StartPos: 0, EndPos: 5}
	tests := []struct {
		b    Span
		want bool
	}{
		{Span{StartPos: 4, EndPos: 8}, true},
		{Span{StartPos: 5, EndPos: 8}, false},
		{Span{StartPos: 1, EndPos: 2}, true},
		{Span{StartPos: 6, EndPos: 9}, false},
	}
	for _, tt := range tests {
		if got := a.Overlaps(tt.b); got != tt.want {
			t.Errorf("Overlaps(%+v) = %v, want %v", tt.b, got, tt.want)
		}
	}
	if a.Len() != 5 {
		t.Errorf("Expected length 5, got %d", a.Len())
	}
}
