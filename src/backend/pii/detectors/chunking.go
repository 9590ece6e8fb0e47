package pii

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"unicode/utf8"
)

// textWindow is a byte range of the full text handed to a detector on its own
type textWindow struct {
	start int
	end   int
}

// ChunkedDetector splits inputs larger than maxBytes into overlapping windows
// cut at whitespace, runs the wrapped detector on each window and merges the
// results back into full-text offsets.
type ChunkedDetector struct {
	inner    Detector
	maxBytes int
	overlap  int
}

// NewChunkedDetector wraps inner. An overlap outside [0, maxBytes/2) defaults to maxBytes/4.
func NewChunkedDetector(inner Detector, maxBytes, overlap int) *ChunkedDetector {
	if overlap < 0 || overlap >= maxBytes/2 {
		overlap = maxBytes / 4
	}
	return &ChunkedDetector{inner: inner, maxBytes: maxBytes, overlap: overlap}
}

// GetName returns the wrapped detector's name
func (c *ChunkedDetector) GetName() string {
	return c.inner.GetName()
}

// minWindowBytes is the smallest window retried after the wrapped detector
// rejects a window with ErrInputTooLarge
const minWindowBytes = 256

// Detect runs the wrapped detector window by window. A window rejected as too
// large is split in half and retried, down to minWindowBytes.
func (c *ChunkedDetector) Detect(ctx context.Context, input DetectorInput) (DetectorOutput, error) {
	windows := chunkText(input.Text, c.maxBytes, c.overlap)

	perWindow := make([][]Span, 0, len(windows))
	for i, w := range windows {
		spans, err := c.detectRange(ctx, input.Text, w.start, w.end)
		if err != nil {
			return DetectorOutput{}, fmt.Errorf("window %d/%d [%d:%d]: %w", i+1, len(windows), w.start, w.end, err)
		}
		perWindow = append(perWindow, spans)
	}

	if len(perWindow) == 1 {
		return DetectorOutput{Text: input.Text, Spans: perWindow[0]}, nil
	}
	return DetectorOutput{
		Text:  input.Text,
		Spans: mergeChunkSpans(input.Text, perWindow),
	}, nil
}

// detectRange detects text[start:end] and returns spans in full-text offsets
func (c *ChunkedDetector) detectRange(ctx context.Context, text string, start, end int) ([]Span, error) {
	out, err := c.inner.Detect(ctx, DetectorInput{Text: text[start:end]})
	if err == nil {
		shifted := make([]Span, 0, len(out.Spans))
		for _, s := range out.Spans {
			s.StartPos += start
			s.EndPos += start
			shifted = append(shifted, s)
		}
		return shifted, nil
	}

	half := (end - start) / 2
	if !errors.Is(err, ErrInputTooLarge) || half < minWindowBytes {
		return nil, err
	}
	log.Printf("[Chunking] ⚠️  %s rejected %d bytes, retrying in %d-byte windows", c.inner.GetName(), end-start, half)

	windows := chunkText(text[start:end], half, half/4)
	perWindow := make([][]Span, 0, len(windows))
	for _, w := range windows {
		spans, err := c.detectRange(ctx, text, start+w.start, start+w.end)
		if err != nil {
			return nil, err
		}
		perWindow = append(perWindow, spans)
	}
	return mergeChunkSpans(text, perWindow), nil
}

// Close closes the wrapped detector
func (c *ChunkedDetector) Close() error {
	return c.inner.Close()
}

// chunkText cuts text into windows of at most maxBytes. Windows end after a
// whitespace byte when one exists in the second half of the window, otherwise
// on a rune boundary. Consecutive windows share up to overlap bytes.
func chunkText(text string, maxBytes, overlap int) []textWindow {
	if maxBytes <= 0 || len(text) <= maxBytes {
		return []textWindow{{start: 0, end: len(text)}}
	}

	var windows []textWindow
	start := 0
	for {
		if len(text)-start <= maxBytes {
			return append(windows, textWindow{start: start, end: len(text)})
		}

		end := start + maxBytes
		half := start + maxBytes/2
		if cut := strings.LastIndexAny(text[half:end], " \t\r\n"); cut >= 0 {
			end = half + cut + 1
		} else {
			for end > start && !utf8.RuneStart(text[end]) {
				end--
			}
			if end == start {
				end = start + maxBytes
				for end < len(text) && !utf8.RuneStart(text[end]) {
					end++
				}
			}
		}
		windows = append(windows, textWindow{start: start, end: end})

		next := end - overlap
		if next <= start {
			next = end
		}
		if next < end {
			if i := strings.IndexAny(text[next:end], " \t\r\n"); i >= 0 {
				next += i + 1
			}
		}
		for next < len(text) && !utf8.RuneStart(text[next]) {
			next++
		}
		start = next
	}
}

// mergeChunkSpans flattens per-chunk detections, orders them by position and
// collapses overlapping detections produced by the shared region of two
// chunks. A collapsed span covers the union of both ranges and takes the
// label and confidence of the more confident detection.
func mergeChunkSpans(text string, chunks [][]Span) []Span {
	var all []Span
	for _, chunk := range chunks {
		all = append(all, chunk...)
	}
	if len(all) == 0 {
		return []Span{}
	}

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].StartPos != all[j].StartPos {
			return all[i].StartPos < all[j].StartPos
		}
		return all[i].EndPos < all[j].EndPos
	})

	merged := make([]Span, 0, len(all))
	for _, s := range all {
		if len(merged) == 0 {
			merged = append(merged, s)
			continue
		}
		last := &merged[len(merged)-1]
		if !last.Overlaps(s) {
			merged = append(merged, s)
			continue
		}
		if s.Confidence > last.Confidence {
			last.Label = s.Label
			last.Confidence = s.Confidence
		}
		if s.EndPos > last.EndPos {
			last.EndPos = s.EndPos
		}
		if last.EndPos <= len(text) {
			last.Text = text[last.StartPos:last.EndPos]
		}
	}
	return merged
}
