// AngelaMos | 2026
// handler.go

package file

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
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
	r.Route("/files", func(r chi.Router) {
		r.Use(authenticator)

		r.Post("/", h.RequestUpload)
		r.Get("/", h.List)
		r.Post("/{fileID}/confirm", h.ConfirmUpload)
		r.Get("/{fileID}/download", h.Download)
		r.Delete("/{fileID}", h.Delete)
	})
}

func (h *Handler) RequestUpload(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req RequestUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.BadRequest(w, "invalid request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return
	}

	f, uploadURL, err := h.service.RequestUpload(r.Context(), userID, clientIP(r), req)
	if err != nil {
		core.JSONError(w, err)
		return
	}

	core.Created(w, UploadGrantResponse{
		File:      h.service.ToResponse(f),
		UploadURL: uploadURL,
	})
}

func (h *Handler) ConfirmUpload(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	fileID := chi.URLParam(r, "fileID")

	f, err := h.service.ConfirmUpload(r.Context(), userID, fileID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	core.OK(w, h.service.ToResponse(f))
}

func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	fileID := chi.URLParam(r, "fileID")

	url, err := h.service.DownloadURL(r.Context(), userID, fileID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	core.OK(w, DownloadResponse{URL: url})
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	fileID := chi.URLParam(r, "fileID")

	if err := h.service.Delete(r.Context(), userID, fileID, clientIP(r)); err != nil {
		h.writeError(w, err)
		return
	}

	core.NoContent(w)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	page := queryInt(r, "page", 1)
	pageSize := queryInt(r, "page_size", 20)
	if pageSize > 100 {
		pageSize = 100
	}

	files, total, err := h.service.List(r.Context(), userID, page, pageSize)
	if err != nil {
		core.InternalServerError(w, err)
		return
	}

	responses := make([]FileResponse, 0, len(files))
	for i := range files {
		responses = append(responses, h.service.ToResponse(&files[i]))
	}

	core.Paginated(w, responses, page, pageSize, total)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrNotFound):
		core.NotFound(w, "file")
	case errors.Is(err, core.ErrForbidden):
		core.Forbidden(w, "not your file")
	default:
		core.JSONError(w, err)
	}
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
