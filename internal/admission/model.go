package admission

import (
	"context"
	"fmt"
	"time"

	"github.com/metergate-platform/metergate/internal/config"
)

// ActionClass names a category of privileged operation with its own budget.
type ActionClass string

// The closed set of action classes the product defines. Unknown classes are
// rejected at startup, not silently defaulted.
const (
	ClassGeneral ActionClass = "general"
	ClassBatch   ActionClass = "batch"
	ClassDelete  ActionClass = "delete"
)

// Classes lists every known action class.
var Classes = []ActionClass{ClassGeneral, ClassBatch, ClassDelete}

// Result reports one admission decision or status read for a bucket.
type Result struct {
	Allowed   bool      `json:"allowed"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}

// Store holds fixed-window counters keyed by (actor, action class).
// TryAdmit consumes a slot when allowed; Status never consumes. A denial
// never mutates the counter.
type Store interface {
	TryAdmit(ctx context.Context, actorID string, class ActionClass, now time.Time) (Result, error)
	Status(ctx context.Context, actorID string, class ActionClass, now time.Time) (Result, error)
}

// limits resolves the per-class budgets out of the validated config.
type limits map[ActionClass]config.ClassLimit

func newLimits(cfg config.AdmissionConfig) (limits, error) {
	l := limits{
		ClassGeneral: cfg.General,
		ClassBatch:   cfg.Batch,
		ClassDelete:  cfg.Delete,
	}
	for class, cl := range l {
		if cl.Limit < 1 || cl.Window <= 0 {
			return nil, fmt.Errorf("invalid budget for action class %s: limit=%d window=%s", class, cl.Limit, cl.Window)
		}
	}
	return l, nil
}

func (l limits) resolve(class ActionClass) (config.ClassLimit, error) {
	cl, ok := l[class]
	if !ok {
		return config.ClassLimit{}, fmt.Errorf("unknown action class %q", class)
	}
	return cl, nil
}
