package quota

import (
	"time"

	"github.com/google/uuid"
)

// UsageQuotaRecord matches the usage_quotas table schema. One row per
// subscriber. QuotaUsed may exceed QuotaLimit — overage is tracked, not
// blocked.
type UsageQuotaRecord struct {
	UserID      uuid.UUID `json:"user_id"`
	QuotaLimit  int       `json:"quota_limit"`
	QuotaUsed   int       `json:"quota_used"`
	CycleAnchor time.Time `json:"cycle_anchor"`
	NextResetAt time.Time `json:"next_reset_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ResetError records a single per-record failure inside a run.
type ResetError struct {
	UserID  uuid.UUID `json:"user_id"`
	Message string    `json:"message"`
}

// ResetRunSummary reports one scheduler invocation. Errors preserves the
// order failures were observed, which under concurrent workers may differ
// from fetch order.
type ResetRunSummary struct {
	StartedAt    time.Time    `json:"started_at"`
	FinishedAt   time.Time    `json:"finished_at"`
	TotalChecked int          `json:"total_checked"`
	TotalReset   int          `json:"total_reset"`
	Errors       []ResetError `json:"errors"`
}

// QuotaStatus is the API response showing a user's current usage and the
// upcoming reset.
type QuotaStatus struct {
	QuotaLimit  int       `json:"quota_limit"`
	QuotaUsed   int       `json:"quota_used"`
	NextResetAt time.Time `json:"next_reset_at"`
}
