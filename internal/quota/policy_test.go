package quota

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestResetDue(t *testing.T) {
	anchor := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rec := UsageQuotaRecord{
		CycleAnchor: anchor,
		NextResetAt: anchor.Add(30 * 24 * time.Hour),
	}

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"before reset time", rec.NextResetAt.Add(-time.Second), false},
		{"exactly at reset time", rec.NextResetAt, true},
		{"after reset time", rec.NextResetAt.Add(time.Hour), true},
		{"clock skew before anchor", anchor.Add(-time.Hour), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResetDue(rec, tt.now))
		})
	}
}

func TestNextResetAfter_SingleCycle(t *testing.T) {
	prev := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	cycle := 720 * time.Hour

	// Scheduler runs shortly after the due time: advance exactly one cycle.
	now := prev.Add(5 * time.Minute)
	next := NextResetAfter(prev, cycle, now)
	assert.Equal(t, prev.Add(cycle), next)
	assert.True(t, next.After(now))
}

func TestNextResetAfter_MissedRuns(t *testing.T) {
	prev := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	cycle := 720 * time.Hour

	// Two full cycles missed: result still lands on a cycle boundary
	// strictly in the future.
	now := prev.Add(2*cycle + time.Hour)
	next := NextResetAfter(prev, cycle, now)
	assert.Equal(t, prev.Add(3*cycle), next)
	assert.True(t, next.After(now))
}

func TestNextResetAfter_NoJitterDrift(t *testing.T) {
	prev := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	cycle := 24 * time.Hour

	// Jittered run times never shift the boundary off the anchor grid.
	for _, jitter := range []time.Duration{0, time.Second, 17 * time.Minute, 23 * time.Hour} {
		next := NextResetAfter(prev, cycle, prev.Add(jitter))
		assert.Equal(t, prev.Add(cycle), next, "jitter %s", jitter)
	}
}
