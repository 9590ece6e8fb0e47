package pii

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/daulet/tokenizers"
)

// ============================================
// Tests for GetName() - Simple Accessor
// ============================================

func TestONNXModelDetector_GetName(t *testing.T) {
	// Create a minimal detector without initializing ONNX
	detector := &ONNXModelDetector{}

	if name := detector.GetName(); name != DetectorNameONNXModel {
		t.Errorf("Expected name '%s', got '%s'", DetectorNameONNXModel, name)
	}
}

// ============================================
// Tests for chunkTokens() - Pure Function
// ============================================

func sequentialTokens(n, width int) ([]uint32, []tokenizers.Offset) {
	tokenIDs := make([]uint32, n)
	offsets := make([]tokenizers.Offset, n)
	for i := 0; i < n; i++ {
		tokenIDs[i] = uint32(i)
		offsets[i] = tokenizers.Offset{uint(i * width), uint(i*width + width - 1)}
	}
	return tokenIDs, offsets
}

func TestChunkTokens_ShortText(t *testing.T) {
	tokenIDs, offsets := sequentialTokens(100, 5)

	chunks := chunkTokens(tokenIDs, offsets)

	if len(chunks) != 1 {
		t.Fatalf("Expected 1 chunk, got %d", len(chunks))
	}
	if !chunks[0].isFirst || !chunks[0].isLast {
		t.Error("Single chunk should be both first and last")
	}
	if len(chunks[0].tokenIDs) != 100 {
		t.Errorf("Expected 100 tokens, got %d", len(chunks[0].tokenIDs))
	}
}

func TestChunkTokens_ExactlyMaxSeqLen(t *testing.T) {
	tokenIDs, offsets := sequentialTokens(maxSeqLen, 5)

	chunks := chunkTokens(tokenIDs, offsets)

	if len(chunks) != 1 {
		t.Errorf("Expected 1 chunk for exactly maxSeqLen, got %d", len(chunks))
	}
}

func TestChunkTokens_LongText(t *testing.T) {
	// stride = 512 - 64 = 448
	// Chunk 0: tokens 0-511, chunk 1: 448-959, chunk 2: 896-999
	tokenIDs, offsets := sequentialTokens(1000, 5)

	chunks := chunkTokens(tokenIDs, offsets)

	if len(chunks) != 3 {
		t.Fatalf("Expected 3 chunks for 1000 tokens, got %d", len(chunks))
	}

	wantStarts := []int{0, 448, 896}
	wantLens := []int{512, 512, 104}
	for i, c := range chunks {
		if c.startTokenIndex != wantStarts[i] {
			t.Errorf("Chunk %d: expected startTokenIndex %d, got %d", i, wantStarts[i], c.startTokenIndex)
		}
		if len(c.tokenIDs) != wantLens[i] {
			t.Errorf("Chunk %d: expected %d tokens, got %d", i, wantLens[i], len(c.tokenIDs))
		}
		if len(c.offsets) != len(c.tokenIDs) {
			t.Errorf("Chunk %d: offsets and token ids differ in length", i)
		}
	}

	if !chunks[0].isFirst || chunks[0].isLast {
		t.Error("First chunk flags are wrong")
	}
	if chunks[1].isFirst || chunks[1].isLast {
		t.Error("Middle chunk flags are wrong")
	}
	if chunks[2].isFirst || !chunks[2].isLast {
		t.Error("Last chunk flags are wrong")
	}
}

func TestChunkTokens_OverlapCorrectness(t *testing.T) {
	tokenIDs, offsets := sequentialTokens(600, 5)

	chunks := chunkTokens(tokenIDs, offsets)

	if len(chunks) < 2 {
		t.Fatal("Expected at least 2 chunks")
	}

	firstChunkEnd := chunks[0].startTokenIndex + len(chunks[0].tokenIDs)
	overlap := firstChunkEnd - chunks[1].startTokenIndex
	if overlap != chunkOverlap {
		t.Errorf("Expected overlap of %d, got %d", chunkOverlap, overlap)
	}
}

func TestChunkTokens_EmptyInput(t *testing.T) {
	chunks := chunkTokens([]uint32{}, []tokenizers.Offset{})

	if len(chunks) != 1 {
		t.Fatalf("Expected 1 chunk for empty input, got %d", len(chunks))
	}
	if len(chunks[0].tokenIDs) != 0 {
		t.Errorf("Expected empty chunk, got %d tokens", len(chunks[0].tokenIDs))
	}
}

func TestChunkTokens_OffsetPreservation(t *testing.T) {
	tokenIDs, offsets := sequentialTokens(600, 10)

	chunks := chunkTokens(tokenIDs, offsets)

	if chunks[0].offsets[0][0] != 0 {
		t.Errorf("First chunk first offset should start at 0, got %d", chunks[0].offsets[0][0])
	}
	if want := uint(448 * 10); chunks[1].offsets[0][0] != want {
		t.Errorf("Second chunk first offset should start at %d, got %d", want, chunks[1].offsets[0][0])
	}
}

// ============================================
// Tests for processOutput() - token grouping
// ============================================

const testNumLabels = 4

func testDetector() *ONNXModelDetector {
	return &ONNXModelDetector{
		id2label:  map[string]string{"0": "O", "1": "B-PER", "2": "I-PER", "3": "B-ORG"},
		numLabels: testNumLabels,
	}
}

// fakeLogits builds logits where each token strongly predicts the given class
func fakeLogits(classes ...int) []float32 {
	logits := make([]float32, len(classes)*testNumLabels)
	for i, c := range classes {
		logits[i*testNumLabels+c] = 10
	}
	return logits
}

func TestProcessOutput_GroupsBIOAndWordPieces(t *testing.T) {
	text := "Jane Doelington works at Acme"
	offsets := []tokenizers.Offset{
		{0, 0},   // [CLS]
		{0, 4},   // Jane
		{5, 8},   // Doe
		{8, 15},  // lington
		{16, 21}, // works
		{22, 24}, // at
		{25, 29}, // Acme
		{0, 0},   // [SEP]
	}
	logits := fakeLogits(0, 1, 2, 0, 0, 0, 3, 0)

	spans := testDetector().processOutput(text, offsets, logits)

	if len(spans) != 2 {
		t.Fatalf("Expected 2 spans, got %d: %+v", len(spans), spans)
	}
	if spans[0].Label != "PERSON" || spans[0].Text != "Jane Doelington" || spans[0].StartPos != 0 || spans[0].EndPos != 15 {
		t.Errorf("Unexpected person span: %+v", spans[0])
	}
	if spans[1].Label != "ORG" || spans[1].Text != "Acme" || spans[1].StartPos != 25 || spans[1].EndPos != 29 {
		t.Errorf("Unexpected org span: %+v", spans[1])
	}
	for _, s := range spans {
		if s.Source != SourceModel {
			t.Errorf("Expected source %q, got %q", SourceModel, s.Source)
		}
		if s.Confidence < minTokenConfidence {
			t.Errorf("Unexpected low confidence %f", s.Confidence)
		}
	}
}

func TestProcessOutput_PullsInLeadingWordPieces(t *testing.T) {
	text := "Mr Doelington"
	offsets := []tokenizers.Offset{{0, 2}, {3, 6}, {6, 13}}
	logits := fakeLogits(0, 0, 1)

	spans := testDetector().processOutput(text, offsets, logits)

	if len(spans) != 1 {
		t.Fatalf("Expected 1 span, got %d", len(spans))
	}
	if spans[0].Text != "Doelington" || spans[0].StartPos != 3 {
		t.Errorf("Expected whole word 'Doelington' at 3, got %+v", spans[0])
	}
}

func TestProcessOutput_PunctuationIsNotPulledIn(t *testing.T) {
	text := "Jane, hello"
	offsets := []tokenizers.Offset{{0, 4}, {4, 5}, {6, 11}}
	logits := fakeLogits(1, 0, 0)

	spans := testDetector().processOutput(text, offsets, logits)

	if len(spans) != 1 || spans[0].Text != "Jane" {
		t.Errorf("Expected a single 'Jane' span, got %+v", spans)
	}
}

func TestProcessOutput_NewBeginningStartsNewEntity(t *testing.T) {
	text := "Jane Mark"
	offsets := []tokenizers.Offset{{0, 4}, {5, 9}}
	logits := fakeLogits(1, 1)

	spans := testDetector().processOutput(text, offsets, logits)

	if len(spans) != 2 {
		t.Errorf("Expected B- after B- to start a second entity, got %+v", spans)
	}
}

func TestProcessOutput_LowConfidenceIsOutside(t *testing.T) {
	text := "Jane"
	offsets := []tokenizers.Offset{{0, 4}}
	// Uniform logits give 0.25 confidence for every class
	logits := make([]float32, testNumLabels)

	spans := testDetector().processOutput(text, offsets, logits)

	if len(spans) != 0 {
		t.Errorf("Expected no spans below the confidence threshold, got %+v", spans)
	}
}

func TestProcessOutput_TruncatedLogits(t *testing.T) {
	text := "Jane Doe"
	offsets := []tokenizers.Offset{{0, 4}, {5, 8}}
	logits := fakeLogits(1)

	spans := testDetector().processOutput(text, offsets, logits)

	if len(spans) != 1 || spans[0].Text != "Jane" {
		t.Errorf("Expected only tokens with logits to be labelled, got %+v", spans)
	}
}

// ============================================
// Tests for finalizeEntity() - Helper Function
// ============================================

func TestFinalizeEntity_SingleToken(t *testing.T) {
	detector := &ONNXModelDetector{}
	entity := &Span{Label: "PERSON", Confidence: 0.95}

	detector.finalizeEntity(entity, []int{0}, "John Smith", []tokenizers.Offset{{0, 4}})

	if entity.Text != "John" || entity.StartPos != 0 || entity.EndPos != 4 {
		t.Errorf("Unexpected entity %+v", entity)
	}
}

func TestFinalizeEntity_MultipleTokens(t *testing.T) {
	detector := &ONNXModelDetector{}
	entity := &Span{Label: "PERSON", Confidence: 0.95}
	offsets := []tokenizers.Offset{{0, 4}, {5, 10}, {11, 13}, {14, 18}}

	detector.finalizeEntity(entity, []int{0, 1}, "John Smith is here", offsets)

	if entity.Text != "John Smith" {
		t.Errorf("Expected text 'John Smith', got '%s'", entity.Text)
	}
	if entity.EndPos != 10 {
		t.Errorf("Expected EndPos 10, got %d", entity.EndPos)
	}
}

func TestFinalizeEntity_EmptyTokenIndices(t *testing.T) {
	detector := &ONNXModelDetector{}
	entity := &Span{Label: "PERSON", Confidence: 0.95}

	detector.finalizeEntity(entity, []int{}, "John Smith", []tokenizers.Offset{{0, 4}, {5, 10}})

	if entity.Text != "" {
		t.Errorf("Expected empty text, got '%s'", entity.Text)
	}
}

func TestFinalizeEntity_ClampsToText(t *testing.T) {
	detector := &ONNXModelDetector{}
	entity := &Span{Label: "ORG"}

	detector.finalizeEntity(entity, []int{0}, "Acme", []tokenizers.Offset{{0, 40}})

	if entity.EndPos != 4 || entity.Text != "Acme" {
		t.Errorf("Expected offsets clamped to the text, got %+v", entity)
	}
}

// ============================================
// Tests for loadLabelMappings()
// ============================================

func TestLoadLabelMappings(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		wantCount int
		wantErr   bool
	}{
		{
			name:      "flat config style",
			content:   `{"id2label": {"0": "O", "1": "B-PER", "2": "I-PER"}}`,
			wantCount: 3,
		},
		{
			name:      "nested pii block",
			content:   `{"pii": {"id2label": {"0": "O", "1": "B-ORG", "-100": "IGNORE"}}}`,
			wantCount: 2,
		},
		{
			name:    "no labels",
			content: `{}`,
			wantErr: true,
		},
		{
			name:    "invalid json",
			content: `{`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "label_mappings.json")
			if err := os.WriteFile(path, []byte(tt.content), 0o600); err != nil {
				t.Fatal(err)
			}

			_, n, err := loadLabelMappings(path)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if n != tt.wantCount {
				t.Errorf("Expected %d labels, got %d", tt.wantCount, n)
			}
		})
	}
}

func TestNewONNXModelDetector_MissingLabelMap(t *testing.T) {
	dir := t.TempDir()
	_, err := NewONNXModelDetector(filepath.Join(dir, "model_quantized.onnx"), filepath.Join(dir, "tokenizer.json"), "")
	if err == nil {
		t.Fatal("Expected an error when the model directory is empty")
	}
}
