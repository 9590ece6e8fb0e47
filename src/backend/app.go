package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Tharun0024/gen-ai-25/src/backend/config"
	"github.com/Tharun0024/gen-ai-25/src/backend/pii"
	detectors "github.com/Tharun0024/gen-ai-25/src/backend/pii/detectors"
)

// app holds the long-lived redaction components built from the configuration
type app struct {
	cfg       *config.Config
	models    *pii.ModelManager // nil when the entity detector is disabled
	patterns  detectors.Detector
	service   *pii.RedactionService
	audit     pii.AuditStore
	retention *pii.RetentionScheduler
}

type appOptions struct {
	registerer prometheus.Registerer
	withAudit  bool
}

// newApp builds the detectors, the redaction service and, when enabled, the
// audit log. A bad pattern table or audit backend is fatal. A model that fails
// to load is fatal only when the configuration requires it; otherwise the
// service runs pattern-only.
func newApp(ctx context.Context, cfg *config.Config, opts appOptions) (*app, error) {
	table, err := detectors.PatternTable(cfg.Detector.PatternsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load pattern table: %w", err)
	}
	patterns, err := detectors.NewDetector(detectors.DetectorNameRegex, map[string]interface{}{"patterns": table})
	if err != nil {
		return nil, fmt.Errorf("failed to compile pattern table: %w", err)
	}
	log.Printf("[App] Pattern table ready (%d patterns)", len(table))

	a := &app{cfg: cfg, patterns: patterns}

	a.models = newModelManager(cfg.Detector)
	if a.models != nil {
		if err := a.models.Init(); err != nil {
			var cfgErr *detectors.ConfigurationError
			if cfg.Detector.RequireModel || errors.As(err, &cfgErr) {
				a.Close()
				return nil, fmt.Errorf("entity detector unavailable: %w", err)
			}
			log.Printf("[App] ⚠️  Entity detector unavailable, continuing with patterns only: %v", err)
			sentry.CaptureException(err)
		}
	}

	if opts.withAudit && cfg.Audit.Enabled {
		a.audit, err = pii.NewAuditStore(ctx, auditDatabaseConfig(cfg.Audit))
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to open audit log: %w", err)
		}
		a.retention = pii.NewRetentionScheduler(a.audit, cfg.Audit.CleanupSchedule, cfg.Audit.CleanupAge())
	}

	var provider pii.DetectorProvider
	if a.models != nil {
		provider = a.models
	}
	a.service = pii.NewRedactionService(provider, patterns, pii.ServiceOptions{
		EntityTimeout: cfg.Detector.EntityTimeoutDuration(),
		Metrics:       pii.NewMetrics(opts.registerer),
		Audit:         a.audit,
		LogVerbose:    cfg.Logging.GetLogVerbose(),
	})
	return a, nil
}

// newModelManager returns the manager for the configured entity detector, or
// nil when entity detection is disabled
func newModelManager(dc config.DetectorConfig) *pii.ModelManager {
	switch dc.Name {
	case detectors.DetectorNameONNXModel:
		return pii.NewONNXModelManager(dc.ModelDir)
	case detectors.DetectorNameModel:
		return pii.NewRemoteModelManager(dc.ModelBaseURL, func() (detectors.Detector, error) {
			return detectors.NewDetector(detectors.DetectorNameModel, map[string]interface{}{
				"base_url":        dc.ModelBaseURL,
				"timeout":         dc.ModelTimeoutDuration(),
				"max_input_bytes": dc.MaxInputBytes,
			})
		})
	default:
		return nil
	}
}

func auditDatabaseConfig(ac config.AuditConfig) pii.DatabaseConfig {
	return pii.DatabaseConfig{
		Driver:       ac.Driver,
		Path:         ac.Path,
		Host:         ac.Host,
		Port:         ac.Port,
		Database:     ac.Database,
		Username:     ac.Username,
		Password:     ac.Password,
		SSLMode:      ac.SSLMode,
		MaxOpenConns: ac.MaxOpenConns,
		MaxIdleConns: ac.MaxIdleConns,
		MaxLifetime:  time.Duration(ac.MaxLifetime) * time.Second,
		MaxEntries:   ac.MaxEntries,
	}
}

// Close releases the detectors and the audit log
func (a *app) Close() {
	if a.retention != nil {
		a.retention.Stop()
	}
	if a.models != nil {
		if err := a.models.Close(); err != nil {
			log.Printf("[App] Failed to close model manager: %v", err)
		}
	}
	if err := detectors.CloseDetector(a.patterns); err != nil {
		log.Printf("[App] Failed to close pattern detector: %v", err)
	}
	if a.audit != nil {
		if err := a.audit.Close(); err != nil {
			log.Printf("[App] Failed to close audit log: %v", err)
		}
	}
}
