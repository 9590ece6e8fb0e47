package pii

// Source identifies which detector family produced a span
type Source string

const (
	SourceModel   Source = "model"
	SourcePattern Source = "pattern"
)

// DetectorInput represents the input for PII detection
type DetectorInput struct {
	Text string `json:"text"`
}

// DetectorOutput represents the output of PII detection
type DetectorOutput struct {
	Text  string `json:"text"`
	Spans []Span `json:"spans"`
}

// Span is a half-open byte range [StartPos, EndPos) of the input text
// tagged with a category label. Text holds the surface string at detection time.
type Span struct {
	Text       string  `json:"text"`
	Label      string  `json:"label"`
	Source     Source  `json:"source"`
	StartPos   int     `json:"start_pos"`
	EndPos     int     `json:"end_pos"`
	Confidence float64 `json:"confidence"`
}

// Len returns the byte length of the span
func (s Span) Len() int {
	return s.EndPos - s.StartPos
}

// Overlaps reports whether two spans share at least one byte
func (s Span) Overlaps(o Span) bool {
	return s.StartPos < o.EndPos && o.StartPos < s.EndPos
}
