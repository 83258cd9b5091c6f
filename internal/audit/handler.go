// AngelaMos | 2026
// handler.go

package audit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/carterperez-dev/saasbase/internal/core"
	"github.com/carterperez-dev/saasbase/internal/middleware"
)

// AccessChecker gates the trail to organization managers.
type AccessChecker interface {
	RequireManager(ctx context.Context, orgID, userID string) error
}

type Handler struct {
	service *Service
	access  AccessChecker
}

func NewHandler(service *Service, access AccessChecker) *Handler {
	return &Handler{service: service, access: access}
}

func (h *Handler) RegisterRoutes(
	r chi.Router,
	authenticator func(http.Handler) http.Handler,
) {
	r.With(authenticator).Get("/orgs/{orgID}/audit-logs", h.List)
}

type LogResponse struct {
	ID        string          `json:"id"`
	UserID    *string         `json:"user_id,omitempty"`
	Action    string          `json:"action"`
	Metadata  json.RawMessage `json:"metadata"`
	IPAddress string          `json:"ip_address,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	orgID := chi.URLParam(r, "orgID")

	if err := h.access.RequireManager(r.Context(), orgID, userID); err != nil {
		if errors.Is(err, core.ErrForbidden) {
			core.Forbidden(w, "audit trail requires an admin or owner role")
			return
		}
		core.InternalServerError(w, err)
		return
	}

	page := queryInt(r, "page", 1)
	pageSize := queryInt(r, "page_size", 50)
	if pageSize > 200 {
		pageSize = 200
	}

	logs, total, err := h.service.List(r.Context(), orgID, page, pageSize)
	if err != nil {
		core.InternalServerError(w, err)
		return
	}

	responses := make([]LogResponse, 0, len(logs))
	for _, l := range logs {
		responses = append(responses, LogResponse{
			ID:        l.ID,
			UserID:    l.UserID,
			Action:    l.Action,
			Metadata:  l.Metadata,
			IPAddress: l.IPAddress,
			CreatedAt: l.CreatedAt,
		})
	}

	core.Paginated(w, responses, page, pageSize, total)
}

func queryInt(r *http.Request, key string, defaultVal int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val < 1 {
		return defaultVal
	}
	return val
}
