package pii

import (
	"context"
	"errors"
	"regexp"
)

// labelRe restricts labels to the characters a placeholder may carry
var labelRe = regexp.MustCompile(`^[A-Z][A-Z_]*$`)

type compiledPattern struct {
	label string
	re    *regexp.Regexp
}

// RegexDetector implements Detector using an ordered table of regular expressions
type RegexDetector struct {
	patterns []compiledPattern
}

// NewRegexDetector compiles the table. Any malformed entry is reported as a
// *ConfigurationError so the process can fail before serving requests.
func NewRegexDetector(patterns []Pattern) (*RegexDetector, error) {
	if len(patterns) == 0 {
		return nil, &ConfigurationError{Err: errors.New("pattern table is empty")}
	}

	compiled := make([]compiledPattern, 0, len(patterns))
	for _, p := range patterns {
		if !labelRe.MatchString(p.Label) {
			return nil, &ConfigurationError{Label: p.Label, Pattern: p.Pattern, Err: errors.New("label must be uppercase letters or underscores")}
		}
		if p.Pattern == "" {
			return nil, &ConfigurationError{Label: p.Label, Err: errors.New("empty pattern")}
		}
		re, err := regexp.Compile(`(?i)` + p.Pattern)
		if err != nil {
			return nil, &ConfigurationError{Label: p.Label, Pattern: p.Pattern, Err: err}
		}
		if re.MatchString("") {
			return nil, &ConfigurationError{Label: p.Label, Pattern: p.Pattern, Err: errors.New("pattern matches the empty string")}
		}
		compiled = append(compiled, compiledPattern{label: p.Label, re: re})
	}

	return &RegexDetector{patterns: compiled}, nil
}

// GetName returns the name of this detector
func (r *RegexDetector) GetName() string {
	return DetectorNameRegex
}

// Labels returns the table labels in order, duplicates included
func (r *RegexDetector) Labels() []string {
	labels := make([]string, len(r.patterns))
	for i, p := range r.patterns {
		labels[i] = p.label
	}
	return labels
}

// Detect runs every pattern against the original text. Matches from
// different patterns may overlap; all of them are returned, grouped by
// pattern in table order and by position within a pattern.
func (r *RegexDetector) Detect(ctx context.Context, input DetectorInput) (DetectorOutput, error) {
	var spans []Span

	for _, p := range r.patterns {
		for _, match := range p.re.FindAllStringIndex(input.Text, -1) {
			startPos, endPos := match[0], match[1]
			if startPos == endPos {
				continue
			}
			spans = append(spans, Span{
				Text:       input.Text[startPos:endPos],
				Label:      p.label,
				Source:     SourcePattern,
				StartPos:   startPos,
				EndPos:     endPos,
				Confidence: 1.0,
			})
		}
	}

	return DetectorOutput{
		Text:  input.Text,
		Spans: spans,
	}, nil
}

// Close implements the Detector interface
func (r *RegexDetector) Close() error {
	// Regex detector doesn't need cleanup
	return nil
}
