package pii

import "strings"

// entityLabels maps CoNLL-style model classes to redaction categories
var entityLabels = map[string]string{
	"PER":      "PERSON",
	"PERSON":   "PERSON",
	"ORG":      "ORG",
	"LOC":      "LOCATION",
	"LOCATION": "LOCATION",
	"GPE":      "LOCATION",
	"MISC":     "MISC",
}

// NormalizeEntityLabel strips any BIO prefix and maps the model class to a
// category. Unknown classes are uppercased and kept, with characters outside
// [A-Z_] replaced by underscores, so a placeholder never carries a digit.
func NormalizeEntityLabel(label string) string {
	label = strings.ToUpper(strings.TrimSpace(label))
	label = strings.TrimPrefix(strings.TrimPrefix(label, "B-"), "I-")
	if mapped, ok := entityLabels[label]; ok {
		return mapped
	}
	if label == "" {
		return "MISC"
	}
	return strings.Map(func(r rune) rune {
		if (r >= 'A' && r <= 'Z') || r == '_' {
			return r
		}
		return '_'
	}, label)
}
