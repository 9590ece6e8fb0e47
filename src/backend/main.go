package main

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/Tharun0024/gen-ai-25/src/backend/config"
	detectors "github.com/Tharun0024/gen-ai-25/src/backend/pii/detectors"
	"github.com/Tharun0024/gen-ai-25/src/backend/processor"
	"github.com/Tharun0024/gen-ai-25/src/backend/providers"
	"github.com/Tharun0024/gen-ai-25/src/backend/server"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded .env file from current directory")
	} else {
		log.Printf("Note: .env file not found or could not be loaded: %v", err)
	}

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	serve := func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		return runServe(cmd.Context(), cfg)
	}

	root := &cobra.Command{
		Use:          "redaction-service",
		Short:        "Document redaction service",
		Long:         "Redacts personal data from documents before they reach a generation model.",
		SilenceUsage: true,
		RunE:         serve,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to JSON config file")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server (default)",
		Args:  cobra.NoArgs,
		RunE:  serve,
	})

	var asJSON bool
	redactCmd := &cobra.Command{
		Use:   "redact [file]",
		Short: "Redact a file or stdin and print the masked text",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			input := cmd.InOrStdin()
			if len(args) == 1 {
				// #nosec G304 - Path comes from the command line
				file, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("failed to open input: %w", err)
				}
				defer func() {
					if err := file.Close(); err != nil {
						log.Printf("Failed to close input: %v", err)
					}
				}()
				input = file
			}
			return runRedact(cmd.Context(), cfg, input, cmd.OutOrStdout(), asJSON)
		},
	}
	redactCmd.Flags().BoolVar(&asJSON, "json", false, "Print spans and degradation status as JSON")
	root.AddCommand(redactCmd)

	return root
}

// loadConfig applies defaults, the optional JSON file and the environment,
// then validates the result
func loadConfig(path string) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if path != "" {
		if err := config.LoadFromFile(path, cfg); err != nil {
			return nil, err
		}
	}
	config.LoadFromEnv(cfg)

	if err := cfg.ValidateConfig(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func runServe(ctx context.Context, cfg *config.Config) error {
	if cfg.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.Sentry.DSN, Environment: cfg.Sentry.Environment}); err != nil {
			log.Printf("⚠️  Failed to initialize Sentry: %v", err)
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	if cfg.Detector.Name == detectors.DetectorNameONNXModel {
		if err := extractEmbeddedModelFiles(modelFiles, cfg.Detector.ModelDir); err != nil {
			log.Printf("Warning: Failed to extract embedded model files: %v", err)
		}
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, appOptions{registerer: prometheus.DefaultRegisterer, withAudit: true})
	if err != nil {
		sentry.CaptureException(err)
		return err
	}
	defer a.Close()

	if a.retention != nil {
		if err := a.retention.Start(ctx); err != nil {
			return err
		}
	}

	var generator providers.Generator
	gemini := providers.NewGeminiProvider(cfg.Gemini.BaseURL, cfg.Gemini.APIKey, cfg.Gemini.Model,
		time.Duration(cfg.Gemini.Timeout)*time.Second, cfg.Gemini.AdditionalHeaders)
	if gemini.IsConfigured() {
		generator = gemini
	}

	opts := server.Options{
		Config:    cfg,
		Redactor:  a.service,
		Generator: generator,
		Extractor: processor.NewTextExtractor(cfg.MaxUploadBytes),
		Audit:     a.audit,
	}
	if a.models != nil {
		opts.Models = a.models
	}
	srv, err := server.NewServer(opts)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Println("[Server] Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

type redactOutput struct {
	MaskedText     string         `json:"masked_text"`
	Spans          []redactedSpan `json:"spans"`
	Degraded       bool           `json:"degraded"`
	DegradedReason string         `json:"degraded_reason,omitempty"`
}

type redactedSpan struct {
	Label  string `json:"label"`
	Source string `json:"source"`
	Start  int    `json:"start"`
	End    int    `json:"end"`
}

// runRedact redacts a single document. The audit log is not written.
func runRedact(ctx context.Context, cfg *config.Config, in io.Reader, out io.Writer, asJSON bool) error {
	text, err := processor.NewTextExtractor(cfg.MaxUploadBytes).Extract(in)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, appOptions{registerer: prometheus.NewRegistry()})
	if err != nil {
		return err
	}
	defer a.Close()

	result := a.service.Redact(ctx, text)
	if !asJSON {
		_, err = io.WriteString(out, result.MaskedText)
		return err
	}

	output := redactOutput{
		MaskedText:     result.MaskedText,
		Spans:          make([]redactedSpan, len(result.Spans)),
		Degraded:       result.Degraded,
		DegradedReason: result.DegradedReason,
	}
	for i, span := range result.Spans {
		output.Spans[i] = redactedSpan{Label: span.Label, Source: string(span.Source), Start: span.StartPos, End: span.EndPos}
	}
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}

// extractEmbeddedModelFiles writes the embedded model files into dir. Files
// already present are left alone. Without the embed build tag the file
// system is empty and nothing is written.
func extractEmbeddedModelFiles(modelFS embed.FS, dir string) error {
	return fs.WalkDir(modelFS, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		// Skip directories
		if d.IsDir() {
			return nil
		}

		targetPath := filepath.Join(dir, filepath.Base(path))
		if _, err := os.Stat(targetPath); err == nil {
			return nil
		}

		content, err := modelFS.ReadFile(path)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(dir, 0750); err != nil {
			return err
		}
		if err := os.WriteFile(targetPath, content, 0600); err != nil {
			return err
		}
		log.Printf("Extracted: %s (size: %d bytes)", targetPath, len(content))
		return nil
	})
}
