package pii

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Audit store drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// DatabaseConfig holds audit store configuration
type DatabaseConfig struct {
	Driver string // sqlite, postgres or memory

	// SQLite
	Path string

	// PostgreSQL
	Host         string
	Port         int
	Database     string
	Username     string
	Password     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration

	// MaxEntries bounds the in-memory store
	MaxEntries int
}

// AuditRecord summarizes one redaction pass. It never carries document text
// or the redacted surface strings.
type AuditRecord struct {
	RequestID      string         `json:"request_id"`
	CreatedAt      time.Time      `json:"created_at"`
	InputBytes     int            `json:"input_bytes"`
	Redacted       int            `json:"redacted"`
	Labels         map[string]int `json:"labels"`
	Degraded       bool           `json:"degraded"`
	DegradedReason string         `json:"degraded_reason,omitempty"`
}

// AuditStore persists redaction pass summaries
type AuditStore interface {
	// RecordPass stores the summary of one redaction pass
	RecordPass(ctx context.Context, record AuditRecord) error

	// RecentPasses returns up to limit records, newest first
	RecentPasses(ctx context.Context, limit int) ([]AuditRecord, error)

	// CountPasses returns the total number of stored records
	CountPasses(ctx context.Context) (int, error)

	// CleanupOldPasses removes records older than the given duration
	CleanupOldPasses(ctx context.Context, olderThan time.Duration) (int64, error)

	// Close closes the underlying connection
	Close() error
}

// DefaultMaxAuditEntries is the default capacity of the in-memory store
const DefaultMaxAuditEntries = 5000

// NewAuditStore opens the store selected by config.Driver
func NewAuditStore(ctx context.Context, config DatabaseConfig) (AuditStore, error) {
	switch config.Driver {
	case DriverSQLite, "":
		return NewSQLiteAuditStore(ctx, config)
	case DriverPostgres:
		return NewPostgresAuditStore(ctx, config)
	case DriverMemory:
		return NewMemoryAuditStore(config.MaxEntries), nil
	default:
		return nil, fmt.Errorf("unknown audit driver: %s", config.Driver)
	}
}

// labelCounts tallies accepted spans per label
func labelCounts(labels []string) map[string]int {
	counts := make(map[string]int, len(labels))
	for _, l := range labels {
		counts[l]++
	}
	return counts
}

func encodeLabels(labels map[string]int) (string, error) {
	if labels == nil {
		labels = map[string]int{}
	}
	data, err := json.Marshal(labels)
	if err != nil {
		return "", fmt.Errorf("failed to marshal label counts: %w", err)
	}
	return string(data), nil
}

func decodeLabels(data string) (map[string]int, error) {
	labels := map[string]int{}
	if data == "" {
		return labels, nil
	}
	if err := json.Unmarshal([]byte(data), &labels); err != nil {
		return nil, fmt.Errorf("failed to unmarshal label counts: %w", err)
	}
	return labels, nil
}

// FormatLabelCounts renders counts as "EMAIL: 2, PERSON: 1" sorted by label
func FormatLabelCounts(labels map[string]int) string {
	if len(labels) == 0 {
		return "None"
	}

	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	result := ""
	for i, k := range keys {
		if i > 0 {
			result += ", "
		}
		result += fmt.Sprintf("%s: %d", k, labels[k])
	}
	return result
}
