package processor

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DefaultMaxDocumentBytes bounds the raw size of an uploaded document
const DefaultMaxDocumentBytes = 10 << 20

// ErrDocumentTooLarge is returned when the raw document exceeds the limit
var ErrDocumentTooLarge = errors.New("document too large")

// TextExtractor turns uploaded bytes into text for redaction. Input is
// decoded as UTF-8 unless a UTF-16 byte order mark says otherwise. Invalid
// sequences become U+FFFD and the result is NFC normalized, so the text the
// detectors see is always valid UTF-8.
type TextExtractor struct {
	maxBytes int64
}

// NewTextExtractor creates an extractor. maxBytes <= 0 uses DefaultMaxDocumentBytes.
func NewTextExtractor(maxBytes int64) *TextExtractor {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxDocumentBytes
	}
	return &TextExtractor{maxBytes: maxBytes}
}

// MaxBytes returns the raw size limit
func (e *TextExtractor) MaxBytes() int64 {
	return e.maxBytes
}

// Extract reads r fully and returns the decoded text
func (e *TextExtractor) Extract(r io.Reader) (string, error) {
	raw, err := io.ReadAll(io.LimitReader(r, e.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("failed to read document: %w", err)
	}
	if int64(len(raw)) > e.maxBytes {
		return "", fmt.Errorf("%w: limit is %d bytes", ErrDocumentTooLarge, e.maxBytes)
	}
	return e.Decode(raw)
}

// Decode converts raw document bytes to normalized UTF-8 text
func (e *TextExtractor) Decode(raw []byte) (string, error) {
	decoder := transform.Chain(unicode.BOMOverride(unicode.UTF8.NewDecoder()), norm.NFC)
	text, _, err := transform.Bytes(decoder, raw)
	if err != nil {
		return "", fmt.Errorf("failed to decode document: %w", err)
	}
	return strings.ReplaceAll(string(text), "\r\n", "\n"), nil
}
