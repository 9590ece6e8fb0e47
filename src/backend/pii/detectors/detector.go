package pii

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

const (
	DetectorNameModel     = "model_detector"
	DetectorNameRegex     = "regex_detector"
	DetectorNameONNXModel = "onnx_model_detector"
)

// Detector produces spans over the original text. Implementations must be
// safe for concurrent use once constructed.
type Detector interface {
	GetName() string
	Detect(ctx context.Context, input DetectorInput) (DetectorOutput, error)
	Close() error
}

// NewDetectorFunc builds a detector from a loosely typed configuration map
type NewDetectorFunc func(config map[string]interface{}) (Detector, error)

var (
	factoriesMu       sync.RWMutex
	detectorFactories = make(map[string]NewDetectorFunc)
)

// RegisterDetectorFactory makes a detector constructor available by name
func RegisterDetectorFactory(name string, factory NewDetectorFunc) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	detectorFactories[name] = factory
}

// NewDetector constructs the named detector
func NewDetector(name string, config map[string]interface{}) (Detector, error) {
	factoriesMu.RLock()
	factory, ok := detectorFactories[name]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("detector factory not found for name: %s", name)
	}
	return factory(config)
}

// RegisteredDetectors returns the sorted names of all registered factories
func RegisteredDetectors() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	names := make([]string, 0, len(detectorFactories))
	for name := range detectorFactories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	RegisterDetectorFactory(DetectorNameModel, func(config map[string]interface{}) (Detector, error) {
		baseURL, ok := config["base_url"].(string)
		if !ok || baseURL == "" {
			return nil, &ConfigurationError{Err: fmt.Errorf("base_url is required for model detector")}
		}
		timeout, _ := config["timeout"].(time.Duration)
		var detector Detector = NewModelDetector(baseURL, timeout)
		if maxBytes, ok := config["max_input_bytes"].(int); ok && maxBytes > 0 {
			overlap, _ := config["chunk_overlap"].(int)
			detector = NewChunkedDetector(detector, maxBytes, overlap)
		}
		return detector, nil
	})

	RegisterDetectorFactory(DetectorNameRegex, func(config map[string]interface{}) (Detector, error) {
		patterns, ok := config["patterns"].([]Pattern)
		if !ok {
			patterns = DefaultPatterns
		}
		return NewRegexDetector(patterns)
	})

	RegisterDetectorFactory(DetectorNameONNXModel, func(config map[string]interface{}) (Detector, error) {
		modelPath, ok := config["model_path"].(string)
		if !ok || modelPath == "" {
			return nil, &ConfigurationError{Err: fmt.Errorf("model_path is required for ONNX model detector")}
		}
		tokenizerPath, ok := config["tokenizer_path"].(string)
		if !ok || tokenizerPath == "" {
			return nil, &ConfigurationError{Err: fmt.Errorf("tokenizer_path is required for ONNX model detector")}
		}
		labelMapPath, _ := config["label_map_path"].(string)
		return NewONNXModelDetector(modelPath, tokenizerPath, labelMapPath)
	})
}

// CloseDetector closes a detector, tolerating nil
func CloseDetector(detector Detector) error {
	if detector == nil {
		return nil
	}
	return detector.Close()
}
