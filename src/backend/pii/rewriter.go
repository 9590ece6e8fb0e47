package pii

import (
	"context"
	"log"
	"sort"
	"strings"
	"unicode/utf8"

	detectors "github.com/Tharun0024/gen-ai-25/src/backend/pii/detectors"
)

// Placeholder returns the replacement emitted for a span of the given label
func Placeholder(label string) string {
	return "[REDACTED:" + label + "]"
}

// MergeSpans combines entity and pattern detections into the ordered list of
// spans the rewrite will replace. Spans are sorted by start offset; at equal
// starts the longer span comes first, then pattern spans before model spans,
// then input order. A left-to-right sweep keeps a span only when it starts at
// or after the end of the last kept span.
//
// Spans whose offsets fall outside text are dropped. Offsets that cut a
// multi-byte rune are widened to the enclosing rune boundaries.
func MergeSpans(text string, entitySpans, patternSpans []detectors.Span) []detectors.Span {
	candidates := make([]detectors.Span, 0, len(entitySpans)+len(patternSpans))
	candidates = appendValid(candidates, text, entitySpans, detectors.SourceModel)
	candidates = appendValid(candidates, text, patternSpans, detectors.SourcePattern)
	return resolve(candidates)
}

// resolve sorts tagged spans by the tie-break order and sweeps out overlaps
func resolve(candidates []detectors.Span) []detectors.Span {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.StartPos != b.StartPos {
			return a.StartPos < b.StartPos
		}
		if a.Len() != b.Len() {
			return a.Len() > b.Len()
		}
		return a.Source == detectors.SourcePattern && b.Source != detectors.SourcePattern
	})

	accepted := make([]detectors.Span, 0, len(candidates))
	cursor := 0
	for _, s := range candidates {
		if s.StartPos < cursor {
			continue
		}
		accepted = append(accepted, s)
		cursor = s.EndPos
	}
	return accepted
}

// appendValid tags spans with source, drops invalid ones and aligns the rest to rune boundaries
func appendValid(dst []detectors.Span, text string, spans []detectors.Span, source detectors.Source) []detectors.Span {
	for _, s := range spans {
		if s.StartPos < 0 || s.EndPos > len(text) || s.StartPos >= s.EndPos {
			log.Printf("[Redaction] Dropping %s span %s with invalid offsets [%d,%d) for text of %d bytes",
				source, s.Label, s.StartPos, s.EndPos, len(text))
			continue
		}
		for s.StartPos > 0 && !utf8.RuneStart(text[s.StartPos]) {
			s.StartPos--
		}
		for s.EndPos < len(text) && !utf8.RuneStart(text[s.EndPos]) {
			s.EndPos++
		}
		s.Source = source
		s.Text = text[s.StartPos:s.EndPos]
		dst = append(dst, s)
	}
	return dst
}

// ApplySpans copies text, replacing each accepted span with its placeholder.
// accepted must be sorted and non-overlapping, as returned by MergeSpans.
func ApplySpans(text string, accepted []detectors.Span) string {
	if len(accepted) == 0 {
		return text
	}
	masked, _ := layout(text, accepted)
	return masked
}

// segment is a run of unredacted text, located in both the original and the
// masked string
type segment struct {
	orig   int
	masked int
	length int
}

// layout builds the masked text and records where each unredacted run lands
func layout(text string, accepted []detectors.Span) (string, []segment) {
	var b strings.Builder
	b.Grow(len(text))
	segments := make([]segment, 0, len(accepted)+1)

	keep := func(from, to int) {
		if from < to {
			segments = append(segments, segment{orig: from, masked: b.Len(), length: to - from})
			b.WriteString(text[from:to])
		}
	}

	cursor := 0
	for _, s := range accepted {
		keep(cursor, s.StartPos)
		b.WriteString(Placeholder(s.Label))
		cursor = s.EndPos
	}
	keep(cursor, len(text))
	return b.String(), segments
}

// maxSettleRounds bounds Settle on adversarial input
const maxSettleRounds = 16

// Settle runs detector over the masked text and folds every match that lies
// wholly inside an unredacted run back into accepted, repeating until a round
// finds nothing. Matches that touch a placeholder are ignored.
//
// A discarded span can hide a shorter match behind it, and a placeholder
// gives its neighbours new word boundaries. Both only show up once the text
// has been masked, so without settling a second pass would redact more.
func Settle(ctx context.Context, text string, accepted []detectors.Span, detector detectors.Detector) ([]detectors.Span, error) {
	for round := 0; round < maxSettleRounds; round++ {
		masked, segments := layout(text, accepted)
		out, err := detector.Detect(ctx, detectors.DetectorInput{Text: masked})
		if err != nil {
			return accepted, err
		}

		residual := unmask(out.Spans, segments)
		if len(residual) == 0 {
			return accepted, nil
		}

		candidates := make([]detectors.Span, 0, len(accepted)+len(residual))
		candidates = append(candidates, accepted...)
		candidates = appendValid(candidates, text, residual, detectors.SourcePattern)
		accepted = resolve(candidates)
	}

	log.Printf("[Redaction] ⚠️  Pattern matches still surfacing after %d settle rounds", maxSettleRounds)
	return accepted, nil
}

// unmask maps spans found in masked text back to original offsets. Spans
// overlapping a placeholder have no original counterpart and are dropped.
func unmask(spans []detectors.Span, segments []segment) []detectors.Span {
	var out []detectors.Span
	for _, s := range spans {
		i := sort.Search(len(segments), func(i int) bool {
			return segments[i].masked+segments[i].length >= s.EndPos
		})
		if i == len(segments) || s.StartPos < segments[i].masked || s.StartPos >= s.EndPos {
			continue
		}
		shift := segments[i].orig - segments[i].masked
		s.StartPos += shift
		s.EndPos += shift
		out = append(out, s)
	}
	return out
}

// Rewrite merges both detection streams and produces the masked text in a
// single pass over the original string. Text outside accepted spans is
// copied unchanged and in order.
func Rewrite(text string, entitySpans, patternSpans []detectors.Span) string {
	return ApplySpans(text, MergeSpans(text, entitySpans, patternSpans))
}
