package pii

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"

	detectors "github.com/Tharun0024/gen-ai-25/src/backend/pii/detectors"
)

// DetectorProvider hands out the entity detector. ModelManager implements it.
type DetectorProvider interface {
	GetDetector() (detectors.Detector, error)
}

// Result is the outcome of one redaction pass
type Result struct {
	RequestID  string
	MaskedText string
	// Spans are the accepted spans in text order, with original offsets
	Spans []detectors.Span
	// Degraded is set when entity detection did not contribute and only
	// the pattern table was applied
	Degraded       bool
	DegradedReason string
}

// ServiceOptions configures optional collaborators of the RedactionService
type ServiceOptions struct {
	// EntityTimeout bounds entity detection per pass; zero means no bound
	EntityTimeout time.Duration
	Metrics       *Metrics
	Audit         AuditStore
	// LogVerbose logs the surface text of redacted spans
	LogVerbose bool
}

// RedactionService runs both detectors over the original text and rewrites it
type RedactionService struct {
	entities DetectorProvider
	patterns detectors.Detector
	opts     ServiceOptions
}

// NewRedactionService creates a redaction service. entities may be nil, in
// which case every pass is pattern-only.
func NewRedactionService(entities DetectorProvider, patterns detectors.Detector, opts ServiceOptions) *RedactionService {
	return &RedactionService{
		entities: entities,
		patterns: patterns,
		opts:     opts,
	}
}

type requestIDKey struct{}

// WithRequestID returns a context whose redaction passes are recorded under id
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the id set by WithRequestID, or ""
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// MaskText returns the masked form of text
func (s *RedactionService) MaskText(ctx context.Context, text string) string {
	return s.Redact(ctx, text).MaskedText
}

// Redact detects sensitive spans and replaces each accepted span with a
// typed placeholder. The pattern table is then settled against the masked
// text, so redacting the output again leaves it unchanged. Detector failures never fail the pass: when entity
// detection is unavailable the result carries pattern redactions only and
// is flagged as degraded.
func (s *RedactionService) Redact(ctx context.Context, text string) Result {
	start := time.Now()
	requestID := RequestIDFromContext(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	result := Result{RequestID: requestID, MaskedText: text, Spans: []detectors.Span{}}
	logPrefix := fmt.Sprintf("[Redaction] [%s]", shortID(requestID))

	if text == "" {
		return result
	}

	entitySpans, err := s.detectEntities(ctx, text)
	if err != nil {
		result.Degraded = true
		result.DegradedReason = degradedReason(err)
		s.reportDegraded(logPrefix, result, err)
	}

	patternSpans, err := s.detectPatterns(ctx, text)
	if err != nil {
		log.Printf("%s ❌ Pattern detection failed: %v", logPrefix, err)
	}

	s.opts.Metrics.recordDetected(entitySpans)
	s.opts.Metrics.recordDetected(patternSpans)

	result.Spans = MergeSpans(text, entitySpans, patternSpans)
	if s.patterns != nil {
		result.Spans, err = Settle(ctx, text, result.Spans, s.patterns)
		if err != nil {
			log.Printf("%s ❌ Pattern settle pass failed: %v", logPrefix, err)
		}
	}
	result.MaskedText = ApplySpans(text, result.Spans)

	s.opts.Metrics.recordRedacted(result.Spans)
	s.opts.Metrics.observeDuration(time.Since(start))

	labels := make([]string, len(result.Spans))
	for i, span := range result.Spans {
		labels[i] = span.Label
		if s.opts.LogVerbose {
			log.Printf("%s   %s [%d,%d) %q (%s)", logPrefix, span.Label, span.StartPos, span.EndPos, span.Text, span.Source)
		}
	}
	counts := labelCounts(labels)

	if len(result.Spans) == 0 {
		log.Printf("%s No PII detected", logPrefix)
	} else {
		log.Printf("%s ⚠️  PII redacted: %d spans (%s)", logPrefix, len(result.Spans), FormatLabelCounts(counts))
	}

	s.recordAudit(ctx, logPrefix, result, len(text), counts)
	return result
}

// detectEntities runs the entity detector, bounded by EntityTimeout
func (s *RedactionService) detectEntities(ctx context.Context, text string) ([]detectors.Span, error) {
	if s.entities == nil {
		return nil, fmt.Errorf("%w: no entity detector configured", detectors.ErrDetectionUnavailable)
	}
	detector, err := s.entities.GetDetector()
	if err != nil {
		return nil, err
	}

	if s.opts.EntityTimeout <= 0 {
		out, err := detector.Detect(ctx, detectors.DetectorInput{Text: text})
		return tagSource(out.Spans, detectors.SourceModel), err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.EntityTimeout)
	defer cancel()

	type detection struct {
		out detectors.DetectorOutput
		err error
	}
	done := make(chan detection, 1)
	go func() {
		out, err := detector.Detect(ctx, detectors.DetectorInput{Text: text})
		done <- detection{out: out, err: err}
	}()

	select {
	case d := <-done:
		return tagSource(d.out.Spans, detectors.SourceModel), d.err
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: entity detection: %w", detectors.ErrDetectionUnavailable, ctx.Err())
	}
}

func (s *RedactionService) detectPatterns(ctx context.Context, text string) ([]detectors.Span, error) {
	if s.patterns == nil {
		return nil, nil
	}
	out, err := s.patterns.Detect(ctx, detectors.DetectorInput{Text: text})
	return tagSource(out.Spans, detectors.SourcePattern), err
}

func tagSource(spans []detectors.Span, source detectors.Source) []detectors.Span {
	for i := range spans {
		spans[i].Source = source
	}
	return spans
}

// degradedReason classifies an entity detection failure
func degradedReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	case errors.Is(err, detectors.ErrInputTooLarge):
		return ReasonInputTooLarge
	default:
		return ReasonUnavailable
	}
}

func (s *RedactionService) reportDegraded(logPrefix string, result Result, err error) {
	log.Printf("%s ⚠️  Entity detection unavailable (%s), redacting with patterns only: %v", logPrefix, result.DegradedReason, err)
	s.opts.Metrics.recordDegraded(result.DegradedReason)

	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("request_id", result.RequestID)
		scope.SetTag("degraded_reason", result.DegradedReason)
		scope.SetLevel(sentry.LevelWarning)
		sentry.CaptureException(err)
	})
}

func (s *RedactionService) recordAudit(ctx context.Context, logPrefix string, result Result, inputBytes int, counts map[string]int) {
	if s.opts.Audit == nil {
		return
	}
	record := AuditRecord{
		RequestID:      result.RequestID,
		CreatedAt:      time.Now(),
		InputBytes:     inputBytes,
		Redacted:       len(result.Spans),
		Labels:         counts,
		Degraded:       result.Degraded,
		DegradedReason: result.DegradedReason,
	}
	if err := s.opts.Audit.RecordPass(context.WithoutCancel(ctx), record); err != nil {
		log.Printf("%s ❌ Failed to record audit entry: %v", logPrefix, err)
	}
}
