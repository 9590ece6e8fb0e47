package pii

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// RetentionScheduler deletes old audit records on a cron schedule
type RetentionScheduler struct {
	store    AuditStore
	schedule string
	maxAge   time.Duration

	cron    *cron.Cron
	mu      sync.Mutex
	running bool
}

// NewRetentionScheduler creates a scheduler removing records older than maxAge.
//
// Common schedules:
//   - "0 3 * * *"    - Daily at 3 AM
//   - "0 */6 * * *"  - Every 6 hours
//   - "@hourly"      - Every hour
func NewRetentionScheduler(store AuditStore, schedule string, maxAge time.Duration) *RetentionScheduler {
	return &RetentionScheduler{
		store:    store,
		schedule: schedule,
		maxAge:   maxAge,
		cron:     cron.New(),
	}
}

// ValidateSchedule reports whether schedule is a standard cron expression
func ValidateSchedule(schedule string) error {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", schedule, err)
	}
	return nil
}

// Start schedules the cleanup job. An empty schedule or a non-positive
// max age leaves the scheduler idle.
func (s *RetentionScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.schedule == "" || s.maxAge <= 0 {
		log.Printf("[Audit] Retention not configured, skipping scheduler")
		return nil
	}
	if err := ValidateSchedule(s.schedule); err != nil {
		return err
	}

	if _, err := s.cron.AddFunc(s.schedule, func() { s.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule audit cleanup: %w", err)
	}

	s.cron.Start()
	s.running = true
	log.Printf("[Audit] Retention scheduler started (schedule %q, max age %s)", s.schedule, s.maxAge)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// RunOnce performs a single cleanup
func (s *RetentionScheduler) RunOnce(ctx context.Context) int64 {
	deleted, err := s.store.CleanupOldPasses(ctx, s.maxAge)
	if err != nil {
		log.Printf("[Audit] ❌ Scheduled cleanup failed: %v", err)
		return 0
	}
	return deleted
}

// Stop stops the scheduler and waits for a running job to complete
func (s *RetentionScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		<-s.cron.Stop().Done()
		s.running = false
		log.Printf("[Audit] Retention scheduler stopped")
	}
}

// IsRunning returns true if the scheduler is running
func (s *RetentionScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
