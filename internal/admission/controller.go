package admission

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/metergate-platform/metergate/internal/api"
	"github.com/metergate-platform/metergate/internal/auth"
	"github.com/metergate-platform/metergate/internal/events"
	"github.com/metergate-platform/metergate/internal/metrics"
)

// Decision is the admit outcome handed to privileged call sites. RetryAfter
// is only meaningful on deny and is never negative.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Controller is the single admission capability every privileged operation
// consults before proceeding. On store errors it fails open with a warning;
// a denial is an expected outcome, never a system fault.
type Controller struct {
	store     Store
	publisher *events.Publisher // optional; nil disables audit events
	now       func() time.Time
}

// NewController creates a Controller over the given bucket store.
func NewController(store Store, publisher *events.Publisher) *Controller {
	return &Controller{
		store:     store,
		publisher: publisher,
		now:       time.Now,
	}
}

// Check decides whether the actor may perform one operation of the given
// class, consuming a slot when allowed.
func (c *Controller) Check(ctx context.Context, actorID string, class ActionClass) Decision {
	now := c.now()
	res, err := c.store.TryAdmit(ctx, actorID, class, now)
	if err != nil {
		slog.Warn("admission: store error, failing open", "error", err, "actor", actorID, "class", class)
		metrics.AdmissionDecisionsTotal.WithLabelValues(string(class), "allowed").Inc()
		return Decision{Allowed: true}
	}

	if !res.Allowed {
		retryAfter := res.ResetAt.Sub(now)
		if retryAfter < 0 {
			retryAfter = 0
		}
		metrics.AdmissionDecisionsTotal.WithLabelValues(string(class), "denied").Inc()
		return Decision{RetryAfter: retryAfter}
	}

	metrics.AdmissionDecisionsTotal.WithLabelValues(string(class), "allowed").Inc()
	return Decision{Allowed: true, Remaining: res.Remaining}
}

// Status reads the actor's current window for the given class without
// consuming a slot.
func (c *Controller) Status(ctx context.Context, actorID string, class ActionClass) (Result, error) {
	return c.store.Status(ctx, actorID, class, c.now())
}

// Middleware enforces admission for every request on a route, keyed by the
// authenticated actor and the route's action class. Deny responds 429 with
// a Retry-After header.
func (c *Controller) Middleware(class ActionClass) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := auth.GetUserClaims(r.Context())
			if claims == nil {
				api.HandleError(w, api.ErrUnauthorized)
				return
			}

			decision := c.Check(r.Context(), claims.UserID, class)
			if !decision.Allowed {
				c.publishDenial(claims.UserID, class, r.URL.Path)
				seconds := int(math.Ceil(decision.RetryAfter.Seconds()))
				w.Header().Set("Retry-After", strconv.Itoa(seconds))
				api.HandleError(w, api.ErrTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (c *Controller) publishDenial(actorID string, class ActionClass, path string) {
	if c.publisher == nil {
		return
	}
	actor, _ := uuid.Parse(actorID)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := c.publisher.PublishAuditEvent(ctx, events.AuditEvent{
		ActorID:      actor,
		EventType:    events.EventAdmissionDenied,
		Severity:     "warn",
		ResourceType: "admin_route",
		ResourceID:   path,
		Details:      "rate limit exceeded for action class " + string(class),
	})
	if err != nil {
		slog.Warn("admission: publishing denial event", "error", err)
	}
}
