// AngelaMos | 2026
// response.go

package core

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
)

type envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *AppError  `json:"error,omitempty"`
	Meta    *pagedMeta `json:"meta,omitempty"`
}

type pagedMeta struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("write response", "error", err, "status", status)
	}
}

func OK(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: data})
}

func Created(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusCreated, envelope{Success: true, Data: data})
}

func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

func Paginated(w http.ResponseWriter, data any, page, pageSize, total int) {
	totalPages := 0
	if pageSize > 0 {
		totalPages = (total + pageSize - 1) / pageSize
	}

	writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Data:    data,
		Meta: &pagedMeta{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
		},
	})
}

func BadRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, envelope{
		Success: false,
		Error: &AppError{
			Code:    "BAD_REQUEST",
			Message: message,
		},
	})
}

func Unauthorized(w http.ResponseWriter, message string) {
	if message == "" {
		message = "authentication required"
	}
	writeJSON(w, http.StatusUnauthorized, envelope{
		Success: false,
		Error: &AppError{
			Code:    "UNAUTHORIZED",
			Message: message,
		},
	})
}

func Forbidden(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusForbidden, envelope{
		Success: false,
		Error: &AppError{
			Code:    "FORBIDDEN",
			Message: message,
		},
	})
}

func NotFound(w http.ResponseWriter, resource string) {
	writeJSON(w, http.StatusNotFound, envelope{
		Success: false,
		Error: &AppError{
			Code:    "NOT_FOUND",
			Message: resource + " not found",
		},
	})
}

func Conflict(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusConflict, envelope{
		Success: false,
		Error: &AppError{
			Code:    "CONFLICT",
			Message: message,
		},
	})
}

// InternalServerError logs the underlying error and returns an opaque
// message so internals never leak to clients.
func InternalServerError(w http.ResponseWriter, err error) {
	slog.Error("internal server error", "error", err)

	writeJSON(w, http.StatusInternalServerError, envelope{
		Success: false,
		Error: &AppError{
			Code:    "INTERNAL_ERROR",
			Message: "an internal error occurred",
		},
	})
}

// JSONError renders an AppError with its own status, or falls back to a
// 500 for anything unrecognized.
func JSONError(w http.ResponseWriter, err error) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		status := appErr.Status
		if status == 0 {
			status = http.StatusInternalServerError
		}
		writeJSON(w, status, envelope{Success: false, Error: appErr})
		return
	}

	InternalServerError(w, err)
}
