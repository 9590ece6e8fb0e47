package pii

import (
	"context"
	"sync"
	"time"
)

// MemoryAuditStore keeps the most recent records in a bounded ring
type MemoryAuditStore struct {
	mu      sync.Mutex
	records []AuditRecord
	max     int
}

// NewMemoryAuditStore creates a store holding at most maxEntries records.
// A non-positive maxEntries uses DefaultMaxAuditEntries.
func NewMemoryAuditStore(maxEntries int) *MemoryAuditStore {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxAuditEntries
	}
	return &MemoryAuditStore{max: maxEntries}
}

// RecordPass appends a record, evicting the oldest when full
func (m *MemoryAuditStore) RecordPass(_ context.Context, record AuditRecord) error {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	record.Labels = copyLabels(record.Labels)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, record)
	if len(m.records) > m.max {
		m.records = append([]AuditRecord(nil), m.records[len(m.records)-m.max:]...)
	}
	return nil
}

// RecentPasses returns up to limit records, newest first
func (m *MemoryAuditStore) RecentPasses(_ context.Context, limit int) ([]AuditRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []AuditRecord{}
	for i := len(m.records) - 1; i >= 0 && len(out) < limit; i-- {
		r := m.records[i]
		r.Labels = copyLabels(r.Labels)
		out = append(out, r)
	}
	return out, nil
}

// CountPasses returns the number of retained records
func (m *MemoryAuditStore) CountPasses(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records), nil
}

// CleanupOldPasses drops records older than the given duration
func (m *MemoryAuditStore) CleanupOldPasses(_ context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)

	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.records[:0]
	for _, r := range m.records {
		if !r.CreatedAt.Before(cutoff) {
			kept = append(kept, r)
		}
	}
	deleted := int64(len(m.records) - len(kept))
	m.records = kept
	return deleted, nil
}

// Close implements AuditStore
func (m *MemoryAuditStore) Close() error {
	return nil
}

func copyLabels(labels map[string]int) map[string]int {
	out := make(map[string]int, len(labels))
	for k, v := range labels {
		out[k] = v
	}
	return out
}
