package pii

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteAuditStore implements AuditStore for SQLite
type SQLiteAuditStore struct {
	db *sql.DB
}

// NewSQLiteAuditStore opens (and creates if needed) the SQLite audit database
func NewSQLiteAuditStore(ctx context.Context, config DatabaseConfig) (*SQLiteAuditStore, error) {
	dbPath := config.Path
	if dbPath == "" {
		dbPath = "redaction_audit.db"
	}

	// Ensure the directory exists
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	// SQLite works best with a single writer connection
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := createSQLiteTables(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return &SQLiteAuditStore{db: db}, nil
}

// createSQLiteTables creates the required tables if they don't exist
func createSQLiteTables(ctx context.Context, db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS redaction_passes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			request_id TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			input_bytes INTEGER NOT NULL,
			redacted INTEGER NOT NULL,
			labels TEXT NOT NULL DEFAULT '{}',
			degraded INTEGER NOT NULL DEFAULT 0,
			degraded_reason TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_redaction_passes_created_at ON redaction_passes(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_redaction_passes_request_id ON redaction_passes(request_id)`,
	}

	for _, query := range queries {
		if _, err := db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute: %s: %w", query, err)
		}
	}
	return nil
}

// RecordPass inserts one pass summary
func (s *SQLiteAuditStore) RecordPass(ctx context.Context, record AuditRecord) error {
	labels, err := encodeLabels(record.Labels)
	if err != nil {
		return err
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	degraded := 0
	if record.Degraded {
		degraded = 1
	}

	query := `
	INSERT INTO redaction_passes (request_id, created_at, input_bytes, redacted, labels, degraded, degraded_reason)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		record.RequestID, record.CreatedAt.UnixMilli(), record.InputBytes, record.Redacted,
		labels, degraded, record.DegradedReason)
	if err != nil {
		return fmt.Errorf("failed to insert redaction pass: %w", err)
	}
	return nil
}

// RecentPasses returns up to limit records, newest first
func (s *SQLiteAuditStore) RecentPasses(ctx context.Context, limit int) ([]AuditRecord, error) {
	query := `
	SELECT request_id, created_at, input_bytes, redacted, labels, degraded, degraded_reason
	FROM redaction_passes
	ORDER BY created_at DESC, id DESC
	LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query redaction passes: %w", err)
	}
	defer rows.Close()

	records := []AuditRecord{}
	for rows.Next() {
		var (
			record    AuditRecord
			createdAt int64
			labels    string
			degraded  int
		)
		if err := rows.Scan(&record.RequestID, &createdAt, &record.InputBytes, &record.Redacted,
			&labels, &degraded, &record.DegradedReason); err != nil {
			return nil, fmt.Errorf("failed to scan redaction pass: %w", err)
		}
		record.CreatedAt = time.UnixMilli(createdAt)
		record.Degraded = degraded != 0
		if record.Labels, err = decodeLabels(labels); err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating redaction passes: %w", err)
	}
	return records, nil
}

// CountPasses returns the total number of stored records
func (s *SQLiteAuditStore) CountPasses(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM redaction_passes`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count redaction passes: %w", err)
	}
	return count, nil
}

// CleanupOldPasses removes records older than specified duration
func (s *SQLiteAuditStore) CleanupOldPasses(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan).UnixMilli()

	result, err := s.db.ExecContext(ctx, `DELETE FROM redaction_passes WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old redaction passes: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		log.Printf("[Audit] Removed %d redaction passes older than %s", deleted, olderThan)
	}
	return deleted, nil
}

// Close closes the database connection
func (s *SQLiteAuditStore) Close() error {
	return s.db.Close()
}
