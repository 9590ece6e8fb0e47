package pii

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/lib/pq"
)

// PostgresAuditStore implements AuditStore for PostgreSQL
type PostgresAuditStore struct {
	db *sql.DB
}

// NewPostgresAuditStore connects to PostgreSQL and creates the table if needed
func NewPostgresAuditStore(ctx context.Context, config DatabaseConfig) (*PostgresAuditStore, error) {
	sslMode := config.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.Username, config.Password, config.Database, sslMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	// Configure connection pool
	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	}
	if config.MaxLifetime > 0 {
		db.SetConnMaxLifetime(config.MaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := createPostgresTables(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	return &PostgresAuditStore{db: db}, nil
}

// createPostgresTables creates the redaction_passes table if it doesn't exist
func createPostgresTables(ctx context.Context, db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS redaction_passes (
		id SERIAL PRIMARY KEY,
		request_id VARCHAR(64) NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		input_bytes INTEGER NOT NULL,
		redacted INTEGER NOT NULL,
		labels JSONB NOT NULL DEFAULT '{}',
		degraded BOOLEAN NOT NULL DEFAULT FALSE,
		degraded_reason VARCHAR(50) NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_redaction_passes_created_at ON redaction_passes(created_at);
	CREATE INDEX IF NOT EXISTS idx_redaction_passes_request_id ON redaction_passes(request_id);
	`

	_, err := db.ExecContext(ctx, query)
	return err
}

// RecordPass inserts one pass summary
func (p *PostgresAuditStore) RecordPass(ctx context.Context, record AuditRecord) error {
	labels, err := encodeLabels(record.Labels)
	if err != nil {
		return err
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	query := `
	INSERT INTO redaction_passes (request_id, created_at, input_bytes, redacted, labels, degraded, degraded_reason)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = p.db.ExecContext(ctx, query,
		record.RequestID, record.CreatedAt, record.InputBytes, record.Redacted,
		labels, record.Degraded, record.DegradedReason)
	if err != nil {
		return fmt.Errorf("failed to insert redaction pass: %w", err)
	}
	return nil
}

// RecentPasses returns up to limit records, newest first
func (p *PostgresAuditStore) RecentPasses(ctx context.Context, limit int) ([]AuditRecord, error) {
	query := `
	SELECT request_id, created_at, input_bytes, redacted, labels, degraded, degraded_reason
	FROM redaction_passes
	ORDER BY created_at DESC, id DESC
	LIMIT $1
	`

	rows, err := p.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query redaction passes: %w", err)
	}
	defer rows.Close()

	records := []AuditRecord{}
	for rows.Next() {
		var (
			record AuditRecord
			labels string
		)
		if err := rows.Scan(&record.RequestID, &record.CreatedAt, &record.InputBytes, &record.Redacted,
			&labels, &record.Degraded, &record.DegradedReason); err != nil {
			return nil, fmt.Errorf("failed to scan redaction pass: %w", err)
		}
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
func (p *PostgresAuditStore) CountPasses(ctx context.Context) (int, error) {
	var count int
	err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM redaction_passes`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count redaction passes: %w", err)
	}
	return count, nil
}

// CleanupOldPasses removes records older than specified duration
func (p *PostgresAuditStore) CleanupOldPasses(ctx context.Context, olderThan time.Duration) (int64, error) {
	result, err := p.db.ExecContext(ctx, `DELETE FROM redaction_passes WHERE created_at < $1`, time.Now().Add(-olderThan))
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
func (p *PostgresAuditStore) Close() error {
	return p.db.Close()
}
