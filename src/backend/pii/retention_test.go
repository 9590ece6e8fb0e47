package pii

import (
	"context"
	"testing"
	"time"
)

func TestRetentionScheduler_RunOnce(t *testing.T) {
	store := NewMemoryAuditStore(10)
	ctx := context.Background()
	_ = store.RecordPass(ctx, AuditRecord{RequestID: "old", CreatedAt: time.Now().Add(-2 * time.Hour)})
	_ = store.RecordPass(ctx, AuditRecord{RequestID: "new"})

	scheduler := NewRetentionScheduler(store, "@hourly", time.Hour)
	if deleted := scheduler.RunOnce(ctx); deleted != 1 {
		t.Errorf("Expected 1 deleted record, got %d", deleted)
	}
}

func TestRetentionScheduler_StartStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scheduler := NewRetentionScheduler(NewMemoryAuditStore(10), "0 3 * * *", 24*time.Hour)
	if err := scheduler.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !scheduler.IsRunning() {
		t.Fatal("Expected scheduler to be running")
	}

	scheduler.Stop()
	if scheduler.IsRunning() {
		t.Error("Expected scheduler to be stopped")
	}
}

func TestRetentionScheduler_InvalidSchedule(t *testing.T) {
	scheduler := NewRetentionScheduler(NewMemoryAuditStore(10), "every tuesday", time.Hour)
	if err := scheduler.Start(context.Background()); err == nil {
		t.Error("Expected error for invalid schedule")
	}
}

func TestRetentionScheduler_NotConfigured(t *testing.T) {
	scheduler := NewRetentionScheduler(NewMemoryAuditStore(10), "", time.Hour)
	if err := scheduler.Start(context.Background()); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if scheduler.IsRunning() {
		t.Error("Expected an idle scheduler without a schedule")
	}
}
