package pii

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Pattern pairs a category label with a regular expression.
// Patterns are compiled case-insensitively.
type Pattern struct {
	Label   string `yaml:"label" json:"label"`
	Pattern string `yaml:"pattern" json:"pattern"`
}

// DefaultPatterns is the built-in pattern table. Order matters: when two
// patterns match the exact same range, the earlier entry wins.
//
// Every pattern starts and ends on a word boundary, or on punctuation such as
// a phone number's "+" or "(". A match never begins or ends inside a word, so
// the text left around a placeholder cannot form a new match.
//
// The numeric patterns are deliberately broad. Any run of 9 to 18 digits is
// treated as an account number and any 12-digit run as a national ID, so
// invoice numbers and similar values get redacted too.
var DefaultPatterns = []Pattern{
	{Label: "EMAIL", Pattern: `\b[a-zA-Z0-9_][a-zA-Z0-9_.+-]{0,63}@[a-zA-Z0-9-]+(?:\.[a-zA-Z0-9-]+)+\b`},
	{Label: "ADDRESS", Pattern: `\b\d{1,5}\s[\w .,-]{1,60}?\b(?:Street|St|Road|Rd|Avenue|Ave|Lane|Ln|Block|Sector)\b`},
	{Label: "NATIONAL_ID", Pattern: `\b[A-Z]{5}[0-9]{4}[A-Z]\b`}, // PAN
	{Label: "NATIONAL_ID", Pattern: `\b\d{12}\b`},                // Aadhaar
	{Label: "SSN", Pattern: `\b\d{3}-\d{2}-\d{4}\b`},
	{Label: "ACCOUNT", Pattern: `\b\d{9,18}\b`},
	{Label: "BANK_ROUTING", Pattern: `\b[A-Z]{4}0[A-Z0-9]{6}\b`}, // IFSC
	{Label: "IBAN", Pattern: `\b[A-Z]{2}[0-9]{2}[A-Z0-9]{1,30}\b`},
	{Label: "PHONE", Pattern: `(?:\+\d{1,3}[-\s]?|\b\d{1,3}[-\s]?)?(?:\(\d{2,5}\)|\b\d{2,5})[-\s]?\d{3,5}[-\s]?\d{4}\b`},
	{Label: "CONFIDENTIAL", Pattern: `\b(?:Confidential Information|Non[- ]Disclosure Agreement|Proprietary Data)\b`},
}

// patternFile is the on-disk layout of an extra pattern table
type patternFile struct {
	Patterns []Pattern `yaml:"patterns"`
}

// LoadPatternsFile reads additional (label, pattern) pairs from a YAML file:
//
//	patterns:
//	  - label: PASSPORT
//	    pattern: '\b[A-Z][0-9]{7}\b'
func LoadPatternsFile(path string) ([]Pattern, error) {
	// #nosec G304 - Path comes from operator configuration
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigurationError{Err: fmt.Errorf("failed to read patterns file %q: %w", path, err)}
	}

	var file patternFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, &ConfigurationError{Err: fmt.Errorf("failed to parse patterns file %q: %w", path, err)}
	}

	return file.Patterns, nil
}

// PatternTable returns the default table followed by the patterns in path.
// An empty path yields only the defaults.
func PatternTable(path string) ([]Pattern, error) {
	table := make([]Pattern, 0, len(DefaultPatterns))
	table = append(table, DefaultPatterns...)
	if path == "" {
		return table, nil
	}

	extra, err := LoadPatternsFile(path)
	if err != nil {
		return nil, err
	}
	return append(table, extra...), nil
}
