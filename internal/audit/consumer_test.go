package audit

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metergate-platform/metergate/internal/events"
)

func TestConvertEventToLog(t *testing.T) {
	actor := uuid.New()
	ts := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	log := convertEventToLog(events.AuditEvent{
		ActorID:      actor,
		EventType:    events.EventAdmissionDenied,
		Severity:     "warn",
		ResourceType: "admin_route",
		ResourceID:   "/api/v1/admin/quota/reset-runs",
		Details:      "rate limit exceeded for action class batch",
		Timestamp:    ts,
	})

	assert.NotEqual(t, uuid.Nil, log.ID)
	assert.Equal(t, actor, log.ActorID)
	assert.Equal(t, events.EventAdmissionDenied, log.EventType)
	assert.Equal(t, "warn", log.Severity)
	assert.Equal(t, "admin_route", log.ResourceType)
	assert.Equal(t, "/api/v1/admin/quota/reset-runs", log.ResourceID)
	assert.Equal(t, ts, log.CreatedAt)
	assert.JSONEq(t, `{"message":"rate limit exceeded for action class batch"}`, string(log.Details))
}

func TestParseListParams(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/v1/admin/audit", nil)
		params := parseListParams(req)

		defaults := DefaultListParams()
		assert.Equal(t, defaults.Page, params.Page)
		assert.Equal(t, defaults.PageSize, params.PageSize)
		assert.Empty(t, params.EventType)
		assert.Nil(t, params.From)
	})

	t.Run("full query", func(t *testing.T) {
		req := httptest.NewRequest("GET",
			"/api/v1/admin/audit?event_type=admission_denied&severity=warn&page=3&page_size=25&from=2026-06-01T00:00:00Z&to=2026-06-02T00:00:00Z", nil)
		params := parseListParams(req)

		assert.Equal(t, "admission_denied", params.EventType)
		assert.Equal(t, "warn", params.Severity)
		assert.Equal(t, 3, params.Page)
		assert.Equal(t, 25, params.PageSize)
		require.NotNil(t, params.From)
		require.NotNil(t, params.To)
		assert.Equal(t, time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC), params.From.UTC())
	})

	t.Run("invalid values ignored", func(t *testing.T) {
		req := httptest.NewRequest("GET",
			"/api/v1/admin/audit?page=-1&page_size=5000&from=yesterday", nil)
		params := parseListParams(req)

		defaults := DefaultListParams()
		assert.Equal(t, defaults.Page, params.Page)
		assert.Equal(t, defaults.PageSize, params.PageSize)
		assert.Nil(t, params.From)
	})
}
