package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Tharun0024/gen-ai-25/src/backend/pii"
	"github.com/Tharun0024/gen-ai-25/src/backend/processor"
	"github.com/Tharun0024/gen-ai-25/src/backend/providers"
)

// multipartOverhead is allowed on top of MaxUploadBytes for form framing
const multipartOverhead = 1 << 20

const maxAuditLimit = 1000

// spanView is the public form of an accepted span. Surface text is omitted.
type spanView struct {
	Label  string `json:"label"`
	Source string `json:"source"`
	Start  int    `json:"start"`
	End    int    `json:"end"`
}

type redactRequest struct {
	Text string `json:"text"`
}

type redactResponse struct {
	RequestID      string     `json:"request_id"`
	MaskedText     string     `json:"masked_text"`
	Spans          []spanView `json:"spans"`
	Degraded       bool       `json:"degraded"`
	DegradedReason string     `json:"degraded_reason,omitempty"`
}

type uploadResponse struct {
	ExtractedText string   `json:"extracted_text"`
	Summary       string   `json:"summary"`
	RiskScore     int      `json:"risk_score"`
	Pros          []string `json:"pros"`
	Cons          []string `json:"cons"`
	Redacted      int      `json:"redacted"`
	Degraded      bool     `json:"degraded"`
}

func toSpanViews(result pii.Result) []spanView {
	views := make([]spanView, len(result.Spans))
	for i, span := range result.Spans {
		views[i] = spanView{Label: span.Label, Source: string(span.Source), Start: span.StartPos, End: span.EndPos}
	}
	return views
}

// healthCheck reports service and entity detector health
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	var model interface{}
	if s.models != nil {
		model = s.models.GetInfo()
		if !s.models.IsHealthy() {
			status = "degraded"
		}
	} else {
		model = map[string]interface{}{"detector": "none"}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  status,
		"service": serviceName,
		"model":   model,
	})
}

// handleRedact redacts a JSON {"text": ...} body
func (s *Server) handleRedact(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes)
	var req redactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid JSON body: %v", err))
		return
	}

	result := s.redactor.Redact(r.Context(), req.Text)
	writeJSON(w, http.StatusOK, redactResponse{
		RequestID:      result.RequestID,
		MaskedText:     result.MaskedText,
		Spans:          toSpanViews(result),
		Degraded:       result.Degraded,
		DegradedReason: result.DegradedReason,
	})
}

// handleUpload extracts, redacts and analyzes an uploaded document
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.extractor.MaxBytes()+multipartOverhead)
	file, header, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "Uploaded file too large")
			return
		}
		writeError(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer func() {
		if err := file.Close(); err != nil {
			log.Printf("[Server] Failed to close uploaded file: %v", err)
		}
	}()

	text, err := s.extractor.Extract(file)
	if err != nil {
		if errors.Is(err, processor.ErrDocumentTooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Uploaded file too large")
			return
		}
		log.Printf("[Server] ❌ Failed to extract %q: %v", header.Filename, err)
		writeError(w, http.StatusBadRequest, "Failed to read uploaded file")
		return
	}

	result := s.redactor.Redact(r.Context(), text)
	response := uploadResponse{
		ExtractedText: result.MaskedText,
		Pros:          []string{},
		Cons:          []string{},
		Redacted:      len(result.Spans),
		Degraded:      result.Degraded,
	}

	if s.generator == nil {
		writeJSON(w, http.StatusOK, response)
		return
	}

	temperature := processor.AnalysisTemperature
	answer, err := s.generator.Generate(r.Context(), processor.AnalysisPrompt(result.MaskedText), providers.GenerateOptions{
		Temperature: &temperature,
		JSON:        true,
	})
	if err != nil {
		s.writeGenerationError(w, err)
		return
	}

	analysis, err := processor.ParseAnalysis(answer)
	if err != nil {
		log.Printf("[Server] ❌ %v", err)
		writeError(w, http.StatusBadGateway, fmt.Sprintf("Failed to parse analysis from model: %v", err))
		return
	}

	response.Summary = analysis.Summary
	response.RiskScore = analysis.RiskScore
	response.Pros = analysis.Pros
	response.Cons = analysis.Cons
	writeJSON(w, http.StatusOK, response)
}

// handleAsk answers a question about a previously uploaded document. The
// document text is redacted again, which leaves already masked text unchanged.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes+multipartOverhead)
	question := strings.TrimSpace(r.FormValue("user_question"))
	docText := r.FormValue("doc_text")

	if question == "" {
		writeError(w, http.StatusBadRequest, "No question provided")
		return
	}
	if docText == "" {
		writeError(w, http.StatusBadRequest, "No document uploaded yet")
		return
	}
	if s.generator == nil {
		writeError(w, http.StatusServiceUnavailable, "No generation provider configured")
		return
	}

	maskedDoc := s.redactor.Redact(r.Context(), docText).MaskedText
	maskedQuestion := s.redactor.Redact(r.Context(), question).MaskedText

	answer, err := s.generator.Generate(r.Context(), processor.QuestionPrompt(maskedDoc, maskedQuestion), providers.GenerateOptions{})
	if err != nil {
		s.writeGenerationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"answer": answer})
}

func (s *Server) writeGenerationError(w http.ResponseWriter, err error) {
	log.Printf("[Server] ❌ Model generation failed: %v", err)
	if errors.Is(err, providers.ErrNotConfigured) {
		writeError(w, http.StatusServiceUnavailable, "No generation provider configured")
		return
	}
	writeError(w, http.StatusBadGateway, fmt.Sprintf("Model generation failed: %v", err))
}

// handleAudit lists recent redaction passes
func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.audit == nil {
		http.Error(w, "Audit log not available", http.StatusServiceUnavailable)
		return
	}

	limit := 100 // Default limit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 {
			limit = min(parsedLimit, maxAuditLimit)
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	records, err := s.audit.RecentPasses(ctx, limit)
	if err != nil {
		log.Printf("[Audit] ❌ Failed to retrieve passes: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to retrieve audit log")
		return
	}

	totalCount, err := s.audit.CountPasses(ctx)
	if err != nil {
		log.Printf("[Audit] ⚠️  Failed to get pass count: %v", err)
		// Continue without count
		totalCount = -1
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"passes": records,
		"total":  totalCount,
		"limit":  limit,
	})
}
