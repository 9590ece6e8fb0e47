package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/Tharun0024/gen-ai-25/src/backend/config"
	"github.com/Tharun0024/gen-ai-25/src/backend/pii"
	"github.com/Tharun0024/gen-ai-25/src/backend/processor"
	"github.com/Tharun0024/gen-ai-25/src/backend/providers"
)

const serviceName = "Redaction Service"

// Redactor masks sensitive spans in text. *pii.RedactionService implements it.
type Redactor interface {
	Redact(ctx context.Context, text string) pii.Result
}

// ModelReporter exposes entity detector health. *pii.ModelManager implements it.
type ModelReporter interface {
	IsHealthy() bool
	GetInfo() map[string]interface{}
}

// Options wires the collaborators of the HTTP server
type Options struct {
	Config    *config.Config
	Redactor  Redactor
	Models    ModelReporter       // nil when running pattern-only
	Generator providers.Generator // nil disables /upload analysis and /ask
	Extractor *processor.TextExtractor
	Audit     pii.AuditStore     // nil disables /api/audit
	Gatherer  prometheus.Gatherer // nil uses the default gatherer
}

// Server represents the HTTP server
type Server struct {
	config     *config.Config
	redactor   Redactor
	models     ModelReporter
	generator  providers.Generator
	extractor  *processor.TextExtractor
	audit      pii.AuditStore
	gatherer   prometheus.Gatherer
	limiter    *rate.Limiter
	httpServer *http.Server
}

// NewServer creates a new server instance
func NewServer(opts Options) (*Server, error) {
	if opts.Config == nil {
		return nil, errors.New("server config is required")
	}
	if opts.Redactor == nil {
		return nil, errors.New("redactor is required")
	}

	extractor := opts.Extractor
	if extractor == nil {
		extractor = processor.NewTextExtractor(opts.Config.MaxUploadBytes)
	}
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	var limiter *rate.Limiter
	if opts.Config.RateLimit.Enabled {
		limiter = rate.NewLimiter(rate.Limit(opts.Config.RateLimit.RequestsPerSecond), opts.Config.RateLimit.Burst)
	}

	return &Server{
		config:    opts.Config,
		redactor:  opts.Redactor,
		models:    opts.Models,
		generator: opts.Generator,
		extractor: extractor,
		audit:     opts.Audit,
		gatherer:  gatherer,
		limiter:   limiter,
	}, nil
}

// Handler builds the routing table
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.healthCheck)
	mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	mux.Handle("/upload", s.rateLimited(http.HandlerFunc(s.handleUpload)))
	mux.Handle("/ask", s.rateLimited(http.HandlerFunc(s.handleAsk)))
	mux.Handle("/api/redact", s.rateLimited(http.HandlerFunc(s.handleRedact)))
	mux.HandleFunc("/api/audit", s.handleAudit)

	return s.withCORS(s.withRequestLogging(mux))
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start() error {
	log.Printf("[Server] Starting %s on %s", serviceName, s.config.ListenAddr)
	if s.models != nil {
		log.Printf("[Server] Entity detection healthy: %v", s.models.IsHealthy())
	} else {
		log.Printf("[Server] Entity detection disabled, redacting with patterns only")
	}
	if s.generator == nil {
		log.Printf("[Server] ⚠️  No generation provider configured, /upload returns text only and /ask is unavailable")
	}
	if s.audit != nil {
		log.Println("[Server] Audit log enabled")
	}

	// Create server with timeout configuration
	s.httpServer = &http.Server{
		Addr:              s.config.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// StartWithErrorHandling starts the server with proper error handling
func (s *Server) StartWithErrorHandling() {
	if err := s.Start(); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// Shutdown gracefully stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}
