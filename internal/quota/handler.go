package quota

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/metergate-platform/metergate/internal/api"
	"github.com/metergate-platform/metergate/internal/auth"
	"github.com/metergate-platform/metergate/internal/config"
	"github.com/metergate-platform/metergate/internal/events"
)

// Handler provides HTTP handlers for quota endpoints.
type Handler struct {
	repo      *PostgresRepository
	scheduler *Scheduler
	cfg       config.QuotaConfig
	validate  *validator.Validate
	publisher *events.Publisher // optional
}

// NewHandler creates a new quota Handler.
func NewHandler(repo *PostgresRepository, scheduler *Scheduler, cfg config.QuotaConfig, publisher *events.Publisher) *Handler {
	return &Handler{
		repo:      repo,
		scheduler: scheduler,
		cfg:       cfg,
		validate:  validator.New(),
		publisher: publisher,
	}
}

// TriggerReset is the operational trigger endpoint (cron jobs, ops tooling).
// It authenticates with the shared trigger secret before the scheduler is
// ever invoked.
func (h *Handler) TriggerReset(w http.ResponseWriter, r *http.Request) {
	if !h.triggerAuthorized(r) {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}
	h.runReset(w, r)
}

// AdminTriggerReset is the manual run trigger on the admin surface. Auth and
// admission are enforced by the route middleware.
func (h *Handler) AdminTriggerReset(w http.ResponseWriter, r *http.Request) {
	h.runReset(w, r)
}

func (h *Handler) runReset(w http.ResponseWriter, r *http.Request) {
	// The run must not be torn down mid-flight by a dropped trigger
	// connection; it either completes or fails at the fetch stage.
	ctx := context.WithoutCancel(r.Context())

	summary, err := h.scheduler.Run(ctx, time.Now().UTC())
	if errors.Is(err, ErrRunInProgress) {
		api.JSONMessage(w, http.StatusOK, "reset run already in progress, skipped")
		return
	}
	if err != nil {
		slog.Error("quota reset run failed", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	// Partial per-record failures are still a completed run.
	api.JSON(w, http.StatusOK, summary)
}

func (h *Handler) triggerAuthorized(r *http.Request) bool {
	if h.cfg.TriggerSecret == "" {
		return false
	}
	authHeader := r.Header.Get("Authorization")
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(parts[1]), []byte(h.cfg.TriggerSecret)) == 1
}

// GetQuota returns the authenticated user's current quota status.
func (h *Handler) GetQuota(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserClaims(r.Context())
	if claims == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	rec, err := h.repo.Get(r.Context(), userID)
	if errors.Is(err, ErrNotFound) {
		api.HandleError(w, api.ErrQuotaNotFound)
		return
	}
	if err != nil {
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, QuotaStatus{
		QuotaLimit:  rec.QuotaLimit,
		QuotaUsed:   rec.QuotaUsed,
		NextResetAt: rec.NextResetAt,
	})
}

type upsertQuotaRequest struct {
	QuotaLimit  int       `json:"quota_limit" validate:"gte=0"`
	CycleAnchor time.Time `json:"cycle_anchor" validate:"required"`
}

// UpsertQuota creates or replaces a user's quota record (admin).
func (h *Handler) UpsertQuota(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid user id"))
		return
	}

	var req upsertQuotaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	if err := h.repo.Upsert(r.Context(), userID, req.QuotaLimit, req.CycleAnchor, h.cfg.CycleLength); err != nil {
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	h.publishAdminEvent(r, events.EventQuotaUpserted, userID,
		fmt.Sprintf("quota_limit=%d cycle_anchor=%s", req.QuotaLimit, req.CycleAnchor.Format(time.RFC3339)))
	api.JSONMessage(w, http.StatusOK, "quota record saved")
}

// DeleteQuota removes a user's quota record (admin).
func (h *Handler) DeleteQuota(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid user id"))
		return
	}

	err = h.repo.Delete(r.Context(), userID)
	if errors.Is(err, ErrNotFound) {
		api.HandleError(w, api.ErrQuotaNotFound)
		return
	}
	if err != nil {
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	h.publishAdminEvent(r, events.EventQuotaDeleted, userID, "quota record deleted")
	api.JSONMessage(w, http.StatusOK, "quota record deleted")
}

func (h *Handler) publishAdminEvent(r *http.Request, eventType string, userID uuid.UUID, details string) {
	if h.publisher == nil {
		return
	}
	var actor uuid.UUID
	if claims := auth.GetUserClaims(r.Context()); claims != nil {
		actor, _ = uuid.Parse(claims.UserID)
	}
	err := h.publisher.PublishAuditEvent(r.Context(), events.AuditEvent{
		ActorID:      actor,
		EventType:    eventType,
		Severity:     "info",
		ResourceType: "usage_quota",
		ResourceID:   userID.String(),
		Details:      details,
	})
	if err != nil {
		slog.Warn("quota: publishing admin event", "error", err)
	}
}
