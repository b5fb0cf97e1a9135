package quota

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// CronTrigger invokes the scheduler on a cron expression. Overlap with the
// HTTP trigger or another instance's cron is already handled by the run
// lease, so every tick can fire unconditionally.
type CronTrigger struct {
	scheduler *Scheduler
	cron      *cron.Cron
	schedule  string
}

// NewCronTrigger creates an in-process cron trigger. An empty schedule
// disables it.
func NewCronTrigger(scheduler *Scheduler, schedule string) *CronTrigger {
	return &CronTrigger{
		scheduler: scheduler,
		cron:      cron.New(),
		schedule:  schedule,
	}
}

// Start begins ticking. Returns an error on an invalid cron expression.
func (t *CronTrigger) Start(ctx context.Context) error {
	if t.schedule == "" {
		slog.Info("quota cron trigger not configured, skipping")
		return nil
	}

	if _, err := cron.ParseStandard(t.schedule); err != nil {
		return fmt.Errorf("invalid quota schedule %q: %w", t.schedule, err)
	}

	_, err := t.cron.AddFunc(t.schedule, func() {
		t.runOnce(ctx)
	})
	if err != nil {
		return fmt.Errorf("scheduling quota reset: %w", err)
	}

	t.cron.Start()
	slog.Info("quota cron trigger started", "schedule", t.schedule)
	return nil
}

func (t *CronTrigger) runOnce(ctx context.Context) {
	summary, err := t.scheduler.Run(ctx, time.Now().UTC())
	if errors.Is(err, ErrRunInProgress) {
		slog.Info("quota cron tick skipped, run already in progress")
		return
	}
	if err != nil {
		slog.Error("quota cron run failed", "error", err)
		return
	}
	slog.Debug("quota cron run finished",
		"checked", summary.TotalChecked,
		"reset", summary.TotalReset,
		"errors", len(summary.Errors),
	)
}

// Stop stops the trigger and waits for a running tick to finish.
func (t *CronTrigger) Stop() {
	done := t.cron.Stop()
	<-done.Done()
	slog.Info("quota cron trigger stopped")
}
