package admission

import (
	"net/http"

	"github.com/metergate-platform/metergate/internal/api"
	"github.com/metergate-platform/metergate/internal/auth"
)

// Handler exposes admission state for operational dashboards.
type Handler struct {
	controller *Controller
}

// NewHandler creates a new admission Handler.
func NewHandler(controller *Controller) *Handler {
	return &Handler{controller: controller}
}

// Limits returns the requesting actor's window status for every action
// class. Reads never consume admission slots.
func (h *Handler) Limits(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserClaims(r.Context())
	if claims == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	status := make(map[ActionClass]Result, len(Classes))
	for _, class := range Classes {
		res, err := h.controller.Status(r.Context(), claims.UserID, class)
		if err != nil {
			api.HandleError(w, api.ErrInternalServer)
			return
		}
		status[class] = res
	}

	api.JSON(w, http.StatusOK, status)
}
