// AngelaMos | 2026
// handler.go

package user

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/carterperez-dev/saasbase/internal/core"
	"github.com/carterperez-dev/saasbase/internal/middleware"
)

type Handler struct {
	service   *Service
	validator *validator.Validate
}

func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (h *Handler) RegisterRoutes(
	r chi.Router,
	authenticator func(http.Handler) http.Handler,
) {
	r.Route("/users", func(r chi.Router) {
		r.Use(authenticator)

		r.Get("/me", h.GetMe)
		r.Put("/me", h.UpdateMe)
		r.Delete("/me", h.DeleteMe)
	})
}

// decodeValid decodes the request body into dst and validates it,
// writing the 400 itself. Returns false when the handler should stop.
func (h *Handler) decodeValid(
	w http.ResponseWriter,
	r *http.Request,
	dst any,
) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		core.BadRequest(w, "invalid request body")
		return false
	}

	if err := h.validator.Struct(dst); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return false
	}

	return true
}

// writeUserError maps service errors onto the standard responses.
func writeUserError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrNotFound):
		core.NotFound(w, "user")
	case errors.Is(err, core.ErrForbidden):
		core.Forbidden(w, "insufficient permissions")
	default:
		core.InternalServerError(w, err)
	}
}

func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	usr, err := h.service.GetMe(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeUserError(w, err)
		return
	}

	core.OK(w, ToUserResponse(usr))
}

func (h *Handler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	var req UpdateUserRequest
	if !h.decodeValid(w, r, &req) {
		return
	}

	usr, err := h.service.UpdateMe(
		r.Context(),
		middleware.GetUserID(r.Context()),
		req,
	)
	if err != nil {
		writeUserError(w, err)
		return
	}

	core.OK(w, ToUserResponse(usr))
}

func (h *Handler) DeleteMe(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	if err := h.service.DeleteMe(r.Context(), userID); err != nil {
		writeUserError(w, err)
		return
	}

	core.NoContent(w)
}

// RegisterAdminRoutes registers admin-only user management endpoints.
// There is deliberately no tier endpoint: tier is derived from the billing
// entitlement state and never hand-edited.
func (h *Handler) RegisterAdminRoutes(
	r chi.Router,
	authenticator, adminOnly func(http.Handler) http.Handler,
) {
	r.Route("/admin/users", func(r chi.Router) {
		r.Use(authenticator)
		r.Use(adminOnly)

		r.Get("/", h.ListUsers)
		r.Get("/{userID}", h.GetUser)
		r.Put("/{userID}", h.UpdateUser)
		r.Put("/{userID}/role", h.UpdateUserRole)
		r.Delete("/{userID}", h.DeleteUser)
	})
}

func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	params := ListUsersParams{
		Page:     parseIntQuery(r, "page", 1),
		PageSize: parseIntQuery(r, "page_size", 20),
		Search:   r.URL.Query().Get("search"),
		Role:     r.URL.Query().Get("role"),
		Tier:     r.URL.Query().Get("tier"),
	}

	users, total, err := h.service.ListUsers(r.Context(), params)
	if err != nil {
		core.InternalServerError(w, err)
		return
	}

	core.Paginated(
		w,
		ToUserResponseList(users),
		params.Page,
		params.PageSize,
		total,
	)
}

func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	usr, err := h.service.GetUser(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeUserError(w, err)
		return
	}

	core.OK(w, ToUserResponse(usr))
}

func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	var req UpdateUserRequest
	if !h.decodeValid(w, r, &req) {
		return
	}

	usr, err := h.service.UpdateUser(
		r.Context(),
		chi.URLParam(r, "userID"),
		req,
	)
	if err != nil {
		writeUserError(w, err)
		return
	}

	core.OK(w, ToUserResponse(usr))
}

func (h *Handler) UpdateUserRole(w http.ResponseWriter, r *http.Request) {
	var req UpdateUserRoleRequest
	if !h.decodeValid(w, r, &req) {
		return
	}

	usr, err := h.service.UpdateUserRole(
		r.Context(),
		chi.URLParam(r, "userID"),
		req.Role,
	)
	if err != nil {
		if errors.Is(err, core.ErrInvalidInput) {
			core.BadRequest(w, "invalid role")
			return
		}
		writeUserError(w, err)
		return
	}

	core.OK(w, ToUserResponse(usr))
}

func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	requesterID := middleware.GetUserID(r.Context())
	targetID := chi.URLParam(r, "userID")

	if err := h.service.CanDeleteUser(r.Context(), requesterID, targetID); err != nil {
		writeUserError(w, err)
		return
	}

	if err := h.service.DeleteUser(r.Context(), targetID); err != nil {
		writeUserError(w, err)
		return
	}

	core.NoContent(w)
}

func parseIntQuery(r *http.Request, key string, defaultVal int) int {
	val := r.URL.Query().Get(key)
	if val == "" {
		return defaultVal
	}

	parsed, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}

	return parsed
}
