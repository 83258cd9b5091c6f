// AngelaMos | 2026
// handler.go

package org

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"

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
	r.Route("/orgs", func(r chi.Router) {
		r.Use(authenticator)

		r.Post("/", h.Create)
		r.Get("/", h.List)

		r.Route("/{orgID}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Put("/", h.Update)
			r.Delete("/", h.Delete)

			r.Get("/members", h.ListMembers)
			r.Put("/members/{userID}", h.UpdateMemberRole)
			r.Delete("/members/{userID}", h.RemoveMember)

			r.Post("/invitations", h.Invite)
			r.Get("/invitations", h.ListInvitations)
			r.Delete("/invitations/{inviteID}", h.RevokeInvitation)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(authenticator)
		r.Post("/invitations/{inviteID}/accept", h.AcceptInvitation)
	})
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req CreateOrganizationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.BadRequest(w, "invalid request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return
	}

	o, err := h.service.Create(r.Context(), userID, clientIP(r), req)
	if err != nil {
		if errors.Is(err, core.ErrDuplicateKey) {
			core.JSONError(w, core.DuplicateError("slug"))
			return
		}
		if errors.Is(err, core.ErrInvalidInput) {
			core.BadRequest(w, "organization name produces an empty slug")
			return
		}
		core.InternalServerError(w, err)
		return
	}

	core.Created(w, ToOrganizationResponse(o))
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	orgs, err := h.service.ListForUser(r.Context(), userID)
	if err != nil {
		core.InternalServerError(w, err)
		return
	}

	responses := make([]OrganizationResponse, 0, len(orgs))
	for i := range orgs {
		responses = append(responses, ToOrganizationResponse(&orgs[i]))
	}

	core.OK(w, responses)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	orgID := chi.URLParam(r, "orgID")

	o, err := h.service.Get(r.Context(), orgID, userID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	core.OK(w, ToOrganizationResponse(o))
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	orgID := chi.URLParam(r, "orgID")

	var req UpdateOrganizationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.BadRequest(w, "invalid request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return
	}

	o, err := h.service.Update(r.Context(), orgID, userID, clientIP(r), req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	core.OK(w, ToOrganizationResponse(o))
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	orgID := chi.URLParam(r, "orgID")

	if err := h.service.Delete(r.Context(), orgID, userID, clientIP(r)); err != nil {
		h.writeError(w, err)
		return
	}

	core.NoContent(w)
}

func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	orgID := chi.URLParam(r, "orgID")

	members, err := h.service.ListMembers(r.Context(), orgID, userID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	responses := make([]MemberResponse, 0, len(members))
	for i := range members {
		responses = append(responses, ToMemberResponse(&members[i]))
	}

	core.OK(w, responses)
}

func (h *Handler) UpdateMemberRole(w http.ResponseWriter, r *http.Request) {
	actorID := middleware.GetUserID(r.Context())
	orgID := chi.URLParam(r, "orgID")
	targetID := chi.URLParam(r, "userID")

	var req UpdateMemberRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.BadRequest(w, "invalid request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return
	}

	err := h.service.UpdateMemberRole(r.Context(), orgID, actorID, targetID, req.Role, clientIP(r))
	if err != nil {
		h.writeError(w, err)
		return
	}

	core.NoContent(w)
}

func (h *Handler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	actorID := middleware.GetUserID(r.Context())
	orgID := chi.URLParam(r, "orgID")
	targetID := chi.URLParam(r, "userID")

	err := h.service.RemoveMember(r.Context(), orgID, actorID, targetID, clientIP(r))
	if err != nil {
		if errors.Is(err, ErrLastOwner) {
			core.JSONError(w, core.NewAppError(err, "LAST_OWNER",
				"an organization must keep at least one owner",
				http.StatusConflict))
			return
		}
		h.writeError(w, err)
		return
	}

	core.NoContent(w)
}

func (h *Handler) Invite(w http.ResponseWriter, r *http.Request) {
	actorID := middleware.GetUserID(r.Context())
	orgID := chi.URLParam(r, "orgID")

	var req InviteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.BadRequest(w, "invalid request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return
	}

	inv, err := h.service.Invite(r.Context(), orgID, actorID, clientIP(r), req)
	if err != nil {
		if errors.Is(err, core.ErrDuplicateKey) {
			core.JSONError(w, core.DuplicateError("invitation"))
			return
		}
		h.writeError(w, err)
		return
	}

	core.Created(w, ToInvitationResponse(inv))
}

func (h *Handler) ListInvitations(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	orgID := chi.URLParam(r, "orgID")

	invitations, err := h.service.ListInvitations(r.Context(), orgID, userID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	responses := make([]InvitationResponse, 0, len(invitations))
	for i := range invitations {
		responses = append(responses, ToInvitationResponse(&invitations[i]))
	}

	core.OK(w, responses)
}

func (h *Handler) RevokeInvitation(w http.ResponseWriter, r *http.Request) {
	actorID := middleware.GetUserID(r.Context())
	orgID := chi.URLParam(r, "orgID")
	inviteID := chi.URLParam(r, "inviteID")

	err := h.service.RevokeInvitation(r.Context(), orgID, actorID, inviteID, clientIP(r))
	if err != nil {
		h.writeError(w, err)
		return
	}

	core.NoContent(w)
}

func (h *Handler) AcceptInvitation(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	inviteID := chi.URLParam(r, "inviteID")

	o, err := h.service.AcceptInvitation(r.Context(), inviteID, userID, clientIP(r))
	if err != nil {
		if errors.Is(err, core.ErrTokenExpired) {
			core.JSONError(w, core.NewAppError(err, "INVITATION_EXPIRED",
				"this invitation has expired or was already handled",
				http.StatusGone))
			return
		}
		if errors.Is(err, core.ErrDuplicateKey) {
			core.JSONError(w, core.DuplicateError("membership"))
			return
		}
		h.writeError(w, err)
		return
	}

	core.OK(w, ToOrganizationResponse(o))
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrForbidden):
		core.Forbidden(w, "not a member with sufficient role")
	case errors.Is(err, core.ErrNotFound):
		core.NotFound(w, "resource")
	default:
		core.InternalServerError(w, err)
	}
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[len(parts)-1])
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
