package pii

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/daulet/tokenizers"
	onnxruntime "github.com/yalue/onnxruntime_go"
)

const (
	// maxSeqLen is the model's max_position_embeddings
	maxSeqLen = 512
	// chunkOverlap is the number of tokens shared by consecutive chunks
	chunkOverlap = 64
	// minTokenConfidence turns less confident predictions into "O"
	minTokenConfidence = 0.5
)

// envMu serializes creation and teardown of the process-wide ONNX Runtime environment
var envMu sync.Mutex

// ONNXModelDetector implements Detector using a token classification model
// exported to ONNX. Each Detect call allocates its own tensors, so one
// detector can serve concurrent callers.
type ONNXModelDetector struct {
	tokenizer *tokenizers.Tokenizer
	session   *onnxruntime.DynamicAdvancedSession
	id2label  map[string]string
	numLabels int
	modelPath string
}

// tokenChunk is a window of at most maxSeqLen tokens
type tokenChunk struct {
	tokenIDs        []uint32
	offsets         []tokenizers.Offset
	startTokenIndex int
	isFirst         bool
	isLast          bool
}

// labelMappings accepts both a Hugging Face config.json style file and the
// nested {"pii": {...}} layout.
type labelMappings struct {
	ID2Label map[string]string `json:"id2label"`
	PII      struct {
		ID2Label map[string]string `json:"id2label"`
	} `json:"pii"`
}

// safeUintToInt safely converts a uint to int with bounds checking
func safeUintToInt(val uint) int {
	const maxInt = int(^uint(0) >> 1)
	if val <= uint(maxInt) {
		// #nosec G115 - Safe conversion with bounds checking
		return int(val)
	}
	return maxInt
}

// sharedLibraryPath resolves the ONNX Runtime library location
func sharedLibraryPath() string {
	if p := os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH"); p != "" {
		return p
	}
	candidates := []string{
		"./libonnxruntime.so",
		"./build/libonnxruntime.so",
		"./libonnxruntime.1.23.1.dylib",
		"./build/libonnxruntime.1.23.1.dylib",
		"/usr/lib/libonnxruntime.so",
		"/usr/local/lib/libonnxruntime.so",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// NewONNXModelDetector loads the tokenizer, the label mapping and the model
// session. When labelMapPath is empty, label_mappings.json next to the model is used.
func NewONNXModelDetector(modelPath, tokenizerPath, labelMapPath string) (*ONNXModelDetector, error) {
	if labelMapPath == "" {
		labelMapPath = filepath.Join(filepath.Dir(modelPath), "label_mappings.json")
	}

	id2label, numLabels, err := loadLabelMappings(labelMapPath)
	if err != nil {
		return nil, err
	}

	envMu.Lock()
	if !onnxruntime.IsInitialized() {
		if libPath := sharedLibraryPath(); libPath != "" {
			onnxruntime.SetSharedLibraryPath(libPath)
		}
		if err := onnxruntime.InitializeEnvironment(); err != nil {
			envMu.Unlock()
			return nil, unavailable("failed to initialize ONNX Runtime environment: %v", err)
		}
	}
	envMu.Unlock()

	tk, err := tokenizers.FromFile(tokenizerPath)
	if err != nil {
		return nil, unavailable("failed to load tokenizer: %v", err)
	}

	session, err := onnxruntime.NewDynamicAdvancedSession(modelPath,
		[]string{"input_ids", "attention_mask"},
		[]string{"logits"},
		nil)
	if err != nil {
		if closeErr := tk.Close(); closeErr != nil {
			log.Printf("[ONNXDetector] Warning: failed to close tokenizer during cleanup: %v", closeErr)
		}
		return nil, unavailable("failed to create session: %v", err)
	}

	log.Printf("[ONNXDetector] Loaded %d labels from %s", numLabels, labelMapPath)

	return &ONNXModelDetector{
		tokenizer: tk,
		session:   session,
		id2label:  id2label,
		numLabels: numLabels,
		modelPath: modelPath,
	}, nil
}

// loadLabelMappings reads id2label and derives the number of output classes
func loadLabelMappings(path string) (map[string]string, int, error) {
	// #nosec G304 - Path is derived from the configured model directory
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, unavailable("failed to read label mappings: %v", err)
	}

	var mappings labelMappings
	if err := json.Unmarshal(data, &mappings); err != nil {
		return nil, 0, unavailable("failed to parse label mappings: %v", err)
	}

	id2label := mappings.ID2Label
	if len(id2label) == 0 {
		id2label = mappings.PII.ID2Label
	}
	if len(id2label) == 0 {
		return nil, 0, unavailable("no id2label entries in %s", path)
	}

	numLabels := 0
	for idStr := range id2label {
		id, err := strconv.Atoi(idStr)
		if err != nil || id < 0 {
			// Skip special labels like "-100" for IGNORE
			continue
		}
		if id >= numLabels {
			numLabels = id + 1
		}
	}
	return id2label, numLabels, nil
}

// GetName returns the name of this detector
func (d *ONNXModelDetector) GetName() string {
	return DetectorNameONNXModel
}

// Detect tokenizes the text, runs the model over windows of at most
// maxSeqLen tokens and returns one span per grouped entity.
func (d *ONNXModelDetector) Detect(ctx context.Context, input DetectorInput) (DetectorOutput, error) {
	if input.Text == "" {
		return DetectorOutput{Text: input.Text, Spans: []Span{}}, nil
	}

	encoding := d.tokenizer.EncodeWithOptions(input.Text, true, tokenizers.WithReturnOffsets())
	chunks := chunkTokens(encoding.IDs, encoding.Offsets)

	perChunk := make([][]Span, 0, len(chunks))
	for _, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return DetectorOutput{}, unavailable("inference cancelled: %v", err)
		}
		logits, err := d.runChunk(chunk)
		if err != nil {
			return DetectorOutput{}, err
		}
		perChunk = append(perChunk, d.processOutput(input.Text, chunk.offsets, logits))
	}

	return DetectorOutput{
		Text:  input.Text,
		Spans: mergeChunkSpans(input.Text, perChunk),
	}, nil
}

// runChunk runs inference for one chunk using tensors owned by this call
func (d *ONNXModelDetector) runChunk(chunk tokenChunk) ([]float32, error) {
	seqLen := len(chunk.tokenIDs)
	if seqLen == 0 {
		return nil, nil
	}

	inputIDs := make([]int64, seqLen)
	attentionMask := make([]int64, seqLen)
	for i, id := range chunk.tokenIDs {
		inputIDs[i] = int64(id)
		attentionMask[i] = 1
	}

	inputShape := onnxruntime.NewShape(1, int64(seqLen))
	inputTensor, err := onnxruntime.NewTensor(inputShape, inputIDs)
	if err != nil {
		return nil, unavailable("failed to create input tensor: %v", err)
	}
	defer destroyValue("input tensor", inputTensor)

	maskTensor, err := onnxruntime.NewTensor(inputShape, attentionMask)
	if err != nil {
		return nil, unavailable("failed to create mask tensor: %v", err)
	}
	defer destroyValue("mask tensor", maskTensor)

	outputTensor, err := onnxruntime.NewEmptyTensor[float32](onnxruntime.NewShape(1, int64(seqLen), int64(d.numLabels)))
	if err != nil {
		return nil, unavailable("failed to create output tensor: %v", err)
	}
	defer destroyValue("output tensor", outputTensor)

	if err := d.session.Run(
		[]onnxruntime.Value{inputTensor, maskTensor},
		[]onnxruntime.Value{outputTensor},
	); err != nil {
		return nil, unavailable("failed to run inference: %v", err)
	}

	logits := make([]float32, len(outputTensor.GetData()))
	copy(logits, outputTensor.GetData())
	return logits, nil
}

func destroyValue(name string, v onnxruntime.Value) {
	if err := v.Destroy(); err != nil {
		log.Printf("[ONNXDetector] Warning: failed to destroy %s: %v", name, err)
	}
}

// chunkTokens splits a token sequence into windows of at most maxSeqLen
// tokens, consecutive windows sharing chunkOverlap tokens.
func chunkTokens(tokenIDs []uint32, offsets []tokenizers.Offset) []tokenChunk {
	if len(offsets) < len(tokenIDs) {
		tokenIDs = tokenIDs[:len(offsets)]
	}
	if len(tokenIDs) <= maxSeqLen {
		return []tokenChunk{{
			tokenIDs:        tokenIDs,
			offsets:         offsets[:len(tokenIDs)],
			startTokenIndex: 0,
			isFirst:         true,
			isLast:          true,
		}}
	}

	stride := maxSeqLen - chunkOverlap
	var chunks []tokenChunk
	for start := 0; ; start += stride {
		end := start + maxSeqLen
		if end > len(tokenIDs) {
			end = len(tokenIDs)
		}
		chunks = append(chunks, tokenChunk{
			tokenIDs:        tokenIDs[start:end],
			offsets:         offsets[start:end],
			startTokenIndex: start,
			isFirst:         start == 0,
			isLast:          end == len(tokenIDs),
		})
		if end == len(tokenIDs) {
			return chunks
		}
	}
}

// tokenLabel returns the arg-max label of one token and its softmax probability
func (d *ONNXModelDetector) tokenLabel(tokenLogits []float32) (string, float64) {
	maxLogit := float64(-math.MaxFloat64)
	bestClass := 0
	for j, logit := range tokenLogits {
		if float64(logit) > maxLogit {
			maxLogit = float64(logit)
			bestClass = j
		}
	}

	var sum float64
	for _, logit := range tokenLogits {
		sum += math.Exp(float64(logit) - maxLogit)
	}
	confidence := 1 / sum

	label, exists := d.id2label[strconv.Itoa(bestClass)]
	if !exists || confidence < minTokenConfidence {
		return "O", confidence
	}
	return label, confidence
}

// glued reports whether token i continues the word of token i-1
// (no gap between them and token i starts with a letter or digit).
func glued(text string, offsets []tokenizers.Offset, i int) bool {
	if i <= 0 || i >= len(offsets) {
		return false
	}
	prev, cur := offsets[i-1], offsets[i]
	if prev[0] == prev[1] || cur[0] == cur[1] || prev[1] != cur[0] {
		return false
	}
	start := safeUintToInt(cur[0])
	if start >= len(text) {
		return false
	}
	r, _ := utf8.DecodeRuneInString(text[start:])
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// processOutput groups per-token predictions into entity spans. Consecutive
// tokens with B-X/I-X of the same class form one entity, and word pieces
// glued to an entity token are pulled into it so that no span ends or starts
// inside a word.
func (d *ONNXModelDetector) processOutput(originalText string, offsets []tokenizers.Offset, logits []float32) []Span {
	spans := []Span{}
	if d.numLabels == 0 {
		return spans
	}

	numTokens := len(offsets)
	if n := len(logits) / d.numLabels; n < numTokens {
		numTokens = n
	}

	var current *Span
	var currentTokens []int
	lastConsumed := -1

	finish := func() {
		if current != nil {
			d.finalizeEntity(current, currentTokens, originalText, offsets)
			if current.EndPos > current.StartPos {
				spans = append(spans, *current)
			}
			lastConsumed = currentTokens[len(currentTokens)-1]
		}
		current = nil
		currentTokens = nil
	}

	for i := 0; i < numTokens; i++ {
		// Special tokens carry an empty offset range
		if offsets[i][0] == offsets[i][1] {
			finish()
			continue
		}

		label, confidence := d.tokenLabel(logits[i*d.numLabels : (i+1)*d.numLabels])

		isInside := strings.HasPrefix(label, "I-")
		baseLabel := strings.TrimPrefix(strings.TrimPrefix(label, "B-"), "I-")

		switch {
		case current != nil && glued(originalText, offsets, i):
			// Word piece of the current entity, whatever its own prediction
			currentTokens = append(currentTokens, i)
			if label != "O" {
				current.Confidence = (current.Confidence + confidence) / 2
			}
		case label != "O" && current != nil && isInside && current.Label == NormalizeEntityLabel(baseLabel):
			currentTokens = append(currentTokens, i)
			current.Confidence = (current.Confidence + confidence) / 2
		case label != "O":
			finish()
			current = &Span{
				Label:      NormalizeEntityLabel(baseLabel),
				Source:     SourceModel,
				Confidence: confidence,
			}
			// Pull in leading pieces of the same word
			first := i
			for first-1 > lastConsumed && glued(originalText, offsets, first) {
				first--
			}
			for t := first; t <= i; t++ {
				currentTokens = append(currentTokens, t)
			}
		default:
			finish()
		}
	}
	finish()

	return spans
}

// finalizeEntity extracts the actual text from the original string using token offsets
func (d *ONNXModelDetector) finalizeEntity(entity *Span, tokenIndices []int, originalText string, offsets []tokenizers.Offset) {
	if len(tokenIndices) == 0 {
		return
	}

	startOffset := offsets[tokenIndices[0]]
	endOffset := offsets[tokenIndices[len(tokenIndices)-1]]

	start := safeUintToInt(startOffset[0])
	end := safeUintToInt(endOffset[1])
	if end > len(originalText) {
		end = len(originalText)
	}
	if start >= end {
		return
	}

	entity.Text = originalText[start:end]
	entity.StartPos = start
	entity.EndPos = end
}

// Close implements the Detector interface
func (d *ONNXModelDetector) Close() error {
	var errs []error

	if d.session != nil {
		if err := d.session.Destroy(); err != nil {
			errs = append(errs, fmt.Errorf("failed to destroy session: %w", err))
		}
		d.session = nil
	}
	if d.tokenizer != nil {
		if err := d.tokenizer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close tokenizer: %w", err))
		}
		d.tokenizer = nil
	}

	envMu.Lock()
	if onnxruntime.IsInitialized() {
		if err := onnxruntime.DestroyEnvironment(); err != nil {
			errs = append(errs, fmt.Errorf("failed to destroy environment: %w", err))
		}
	}
	envMu.Unlock()

	if len(errs) > 0 {
		return fmt.Errorf("cleanup errors: %v", errs)
	}
	return nil
}
