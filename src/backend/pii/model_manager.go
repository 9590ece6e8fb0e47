package pii

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	detectors "github.com/Tharun0024/gen-ai-25/src/backend/pii/detectors"
)

// DetectorFactory builds the entity detector. It is called at most once.
type DetectorFactory func() (detectors.Detector, error)

// ModelManager owns the entity detector lifecycle. The detector is built
// once, on the first Init or GetDetector call, and stays read-only until Close.
type ModelManager struct {
	once     sync.Once
	factory  DetectorFactory
	source   string
	validate bool

	mu        sync.RWMutex
	detector  detectors.Detector
	isHealthy bool
	lastError error
}

// ModelConfig holds paths to required model files
type ModelConfig struct {
	ModelPath     string
	TokenizerPath string
	LabelMapPath  string
}

// NewModelManager creates a manager around factory. source describes where
// the model comes from and is reported by GetInfo.
func NewModelManager(source string, factory DetectorFactory) *ModelManager {
	return &ModelManager{factory: factory, source: source, validate: true}
}

// NewRemoteModelManager creates a manager for a detector backed by a remote
// service. No validation inference runs at startup: remote failures are
// reported per call, so a service that comes up later is still used.
func NewRemoteModelManager(source string, factory DetectorFactory) *ModelManager {
	return &ModelManager{factory: factory, source: source}
}

// NewONNXModelManager creates a manager loading the ONNX model from directory
func NewONNXModelManager(directory string) *ModelManager {
	return NewModelManager(directory, func() (detectors.Detector, error) {
		config, err := ValidateModelDirectory(directory)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", detectors.ErrDetectionUnavailable, err)
		}
		log.Printf("[ModelManager] Loading detector from: %s", config.ModelPath)
		return detectors.NewONNXModelDetector(config.ModelPath, config.TokenizerPath, config.LabelMapPath)
	})
}

// Init builds the detector and runs a validation inference. Concurrent
// callers block until the first initialization finishes and all of them
// observe the same outcome.
func (mm *ModelManager) Init() error {
	mm.once.Do(mm.load)

	mm.mu.RLock()
	defer mm.mu.RUnlock()
	return mm.lastError
}

func (mm *ModelManager) load() {
	detector, err := mm.factory()
	if err == nil && mm.validate {
		log.Printf("[ModelManager] Running validation inference")
		if _, err = detector.Detect(context.Background(), detectors.DetectorInput{Text: "Test with John Smith"}); err != nil {
			if closeErr := detector.Close(); closeErr != nil {
				log.Printf("[ModelManager] Warning: failed to close failed detector: %v", closeErr)
			}
			err = fmt.Errorf("model validation failed: %w", err)
		}
	}

	mm.mu.Lock()
	defer mm.mu.Unlock()
	if err != nil {
		mm.lastError = err
		mm.isHealthy = false
		log.Printf("[ModelManager] ❌ Failed to load model from %s: %v", mm.source, err)
		return
	}
	mm.detector = detector
	mm.isHealthy = true
	log.Printf("[ModelManager] ✅ Model ready (%s from %s)", detector.GetName(), mm.source)
}

// GetDetector returns the detector, initializing it on first use
func (mm *ModelManager) GetDetector() (detectors.Detector, error) {
	_ = mm.Init()

	mm.mu.RLock()
	defer mm.mu.RUnlock()

	if !mm.isHealthy || mm.detector == nil {
		return nil, fmt.Errorf("%w: model is unhealthy: %v", detectors.ErrDetectionUnavailable, mm.lastError)
	}
	return mm.detector, nil
}

// IsHealthy returns whether the detector loaded successfully
func (mm *ModelManager) IsHealthy() bool {
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	return mm.isHealthy
}

// GetLastError returns the initialization error (if any)
func (mm *ModelManager) GetLastError() error {
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	return mm.lastError
}

// GetInfo returns information about the current model state
func (mm *ModelManager) GetInfo() map[string]interface{} {
	mm.mu.RLock()
	defer mm.mu.RUnlock()

	info := map[string]interface{}{
		"source":  mm.source,
		"healthy": mm.isHealthy,
		"error":   nil,
	}
	if mm.detector != nil {
		info["detector"] = mm.detector.GetName()
	}
	if mm.lastError != nil {
		info["error"] = mm.lastError.Error()
	}
	return info
}

// ValidateModelDirectory checks that the directory exists and contains all required files
func ValidateModelDirectory(dir string) (*ModelConfig, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("directory does not exist: %s", dir)
		}
		return nil, fmt.Errorf("failed to access directory: %w", err)
	}

	if !info.IsDir() {
		return nil, fmt.Errorf("path is not a directory: %s", dir)
	}

	requiredFiles := []string{
		"model_quantized.onnx",
		"tokenizer.json",
		"label_mappings.json",
	}

	var missingFiles []string
	for _, filename := range requiredFiles {
		if _, err := os.Stat(filepath.Join(dir, filename)); os.IsNotExist(err) {
			missingFiles = append(missingFiles, filename)
		}
	}

	if len(missingFiles) > 0 {
		return nil, fmt.Errorf("missing required files in directory: %v", missingFiles)
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		absDir = dir // Fall back to original if abs fails
	}

	return &ModelConfig{
		ModelPath:     filepath.Join(absDir, "model_quantized.onnx"),
		TokenizerPath: filepath.Join(absDir, "tokenizer.json"),
		LabelMapPath:  filepath.Join(absDir, "label_mappings.json"),
	}, nil
}

// Close closes the detector and cleans up resources
func (mm *ModelManager) Close() error {
	mm.mu.Lock()
	defer mm.mu.Unlock()

	mm.isHealthy = false
	if mm.detector != nil {
		log.Printf("[ModelManager] Closing detector")
		err := mm.detector.Close()
		mm.detector = nil
		if err != nil {
			return fmt.Errorf("failed to close detector: %w", err)
		}
	}
	return nil
}
