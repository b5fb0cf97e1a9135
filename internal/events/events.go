package events

import (
	"time"

	"github.com/google/uuid"
)

// FetchTimeout is the default timeout for batch fetching messages from consumers.
const FetchTimeout = 2 * time.Second

// StreamEvents holds every governance event subject.
const StreamEvents = "METERGATE_EVENTS"

// Subject constants.
const (
	SubjectAuditEvent = "metergate.events.audit"
)

// Audit event types.
const (
	EventResetRunCompleted = "quota_reset_run_completed"
	EventResetRunFailed    = "quota_reset_run_failed"
	EventAdmissionDenied   = "admission_denied"
	EventQuotaUpserted     = "quota_upserted"
	EventQuotaDeleted      = "quota_deleted"
)

// AuditEvent is published for compliance/audit logging. ActorID is the
// administrator (or uuid.Nil for system-triggered events).
type AuditEvent struct {
	ActorID      uuid.UUID `json:"actor_id"`
	EventType    string    `json:"event_type"`
	Severity     string    `json:"severity"` // info, warn, error
	ResourceType string    `json:"resource_type"`
	ResourceID   string    `json:"resource_id"`
	Details      string    `json:"details"`
	Timestamp    time.Time `json:"timestamp"`
}
