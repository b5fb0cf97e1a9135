package quota

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/metergate-platform/metergate/internal/config"
	"github.com/metergate-platform/metergate/internal/events"
	"github.com/metergate-platform/metergate/internal/metrics"
)

// ErrRunInProgress is the expected outcome when another run holds the lease.
// It is not a failure; callers report it as a skipped run.
var ErrRunInProgress = errors.New("quota reset run already in progress")

const releaseTimeout = 5 * time.Second

// Scheduler performs one lease-guarded quota reset run per invocation.
// Safe for use from both the cron trigger and the HTTP trigger; the lease
// guarantees overlapping invocations do not double-process records.
type Scheduler struct {
	repo      Repository
	leases    LeaseStore
	cfg       config.QuotaConfig
	publisher *events.Publisher // optional; nil disables audit events
}

// NewScheduler creates a new reset Scheduler.
func NewScheduler(repo Repository, leases LeaseStore, cfg config.QuotaConfig, publisher *events.Publisher) *Scheduler {
	return &Scheduler{
		repo:      repo,
		leases:    leases,
		cfg:       cfg,
		publisher: publisher,
	}
}

// Run fetches the due set as of now and resets each record with per-record
// fault isolation. A failure to fetch the due set is run-fatal and returns
// with no summary; per-record failures are collected in the summary and the
// run still completes. Returns ErrRunInProgress when the lease is held.
func (s *Scheduler) Run(ctx context.Context, now time.Time) (*ResetRunSummary, error) {
	held, err := s.leases.Acquire(ctx, resetLeaseKey, s.cfg.LeaseTTL)
	if err != nil {
		return nil, fmt.Errorf("acquiring run lease: %w", err)
	}
	if !held {
		metrics.ResetRunsTotal.WithLabelValues("skipped").Inc()
		return nil, ErrRunInProgress
	}
	defer func() {
		// The run context may already be cancelled or past its deadline.
		rctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()
		if err := s.leases.Release(rctx, resetLeaseKey); err != nil {
			slog.Warn("quota: releasing run lease", "error", err)
		}
	}()

	if s.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RunTimeout)
		defer cancel()
	}

	startedAt := time.Now().UTC()

	records, err := s.repo.FetchDue(ctx, now)
	if err != nil {
		metrics.ResetRunsTotal.WithLabelValues("failed").Inc()
		s.publishRunEvent(events.EventResetRunFailed, "error", fmt.Sprintf("fetching due set: %v", err))
		return nil, fmt.Errorf("fetching due quota records: %w", err)
	}

	summary := &ResetRunSummary{StartedAt: startedAt}

	var mu sync.Mutex
	jobs := make(chan UsageQuotaRecord)
	var wg sync.WaitGroup

	workers := s.cfg.Workers
	if workers > len(records) {
		workers = len(records)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rec := range jobs {
				s.resetOne(ctx, rec, now, summary, &mu)
			}
		}()
	}

	for _, rec := range records {
		jobs <- rec
	}
	close(jobs)
	wg.Wait()

	summary.FinishedAt = time.Now().UTC()

	metrics.ResetRunsTotal.WithLabelValues("completed").Inc()
	metrics.ResetRunDuration.Observe(summary.FinishedAt.Sub(summary.StartedAt).Seconds())
	s.publishRunEvent(events.EventResetRunCompleted, "info",
		fmt.Sprintf("checked=%d reset=%d errors=%d", summary.TotalChecked, summary.TotalReset, len(summary.Errors)))

	slog.Info("quota reset run completed",
		"checked", summary.TotalChecked,
		"reset", summary.TotalReset,
		"errors", len(summary.Errors),
		"duration", summary.FinishedAt.Sub(summary.StartedAt),
	)
	return summary, nil
}

// resetOne processes a single record end to end. Any failure is recorded in
// the summary and never aborts the run.
func (s *Scheduler) resetOne(ctx context.Context, rec UsageQuotaRecord, now time.Time, summary *ResetRunSummary, mu *sync.Mutex) {
	mu.Lock()
	summary.TotalChecked++
	mu.Unlock()

	fail := func(msg string) {
		mu.Lock()
		summary.Errors = append(summary.Errors, ResetError{UserID: rec.UserID, Message: msg})
		mu.Unlock()
		metrics.ResetErrorsTotal.Inc()
		slog.Warn("quota: record reset failed", "user_id", rec.UserID, "reason", msg)
	}

	if rec.UserID == uuid.Nil {
		fail("record has no user id")
		return
	}
	if !ResetDue(rec, now) {
		fail("fetched record is not due")
		return
	}

	newNext := NextResetAfter(rec.NextResetAt, s.cfg.CycleLength, now)
	if err := s.repo.ApplyReset(ctx, rec.UserID, newNext); err != nil {
		fail(err.Error())
		return
	}

	mu.Lock()
	summary.TotalReset++
	mu.Unlock()
	metrics.RecordsResetTotal.Inc()
}

func (s *Scheduler) publishRunEvent(eventType, severity, details string) {
	if s.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()
	err := s.publisher.PublishAuditEvent(ctx, events.AuditEvent{
		EventType:    eventType,
		Severity:     severity,
		ResourceType: "quota_reset_run",
		Details:      details,
	})
	if err != nil {
		slog.Warn("quota: publishing run event", "error", err)
	}
}
