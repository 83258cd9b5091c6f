// AngelaMos | 2026
// service.go

package file

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/carterperez-dev/saasbase/internal/audit"
	"github.com/carterperez-dev/saasbase/internal/core"
)

// ObjectStore is what the service needs from the object storage layer.
type ObjectStore interface {
	PresignUpload(ctx context.Context, key, contentType string, size int64) (string, error)
	PresignDownload(ctx context.Context, key string) (string, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
	PublicURL(key string) string
}

type Service struct {
	repo     Repository
	store    ObjectStore
	recorder audit.Recorder
	maxSize  int64
	logger   *slog.Logger
}

func NewService(
	repo Repository,
	store ObjectStore,
	recorder audit.Recorder,
	maxSize int64,
	logger *slog.Logger,
) *Service {
	return &Service{
		repo:     repo,
		store:    store,
		recorder: recorder,
		maxSize:  maxSize,
		logger:   logger,
	}
}

// RequestUpload validates the declared upload, records it as pending, and
// hands back a presigned URL. The object goes straight from the client to
// the store.
func (s *Service) RequestUpload(
	ctx context.Context,
	userID, ipAddress string,
	req RequestUploadRequest,
) (*File, string, error) {
	if req.SizeBytes > s.maxSize {
		return nil, "", core.NewAppError(nil, "FILE_TOO_LARGE",
			fmt.Sprintf("file exceeds the %d byte limit", s.maxSize),
			http.StatusRequestEntityTooLarge)
	}
	if !ContentTypeAllowed(req.ContentType) {
		return nil, "", core.NewAppError(nil, "UNSUPPORTED_TYPE",
			"this content type is not accepted",
			http.StatusUnsupportedMediaType)
	}

	name := SanitizeName(req.Name)
	f := &File{
		ID:             uuid.New().String(),
		UserID:         userID,
		OrganizationID: req.OrganizationID,
		Name:           name,
		ContentType:    req.ContentType,
		SizeBytes:      req.SizeBytes,
		Status:         StatusPending,
	}
	f.Key = fmt.Sprintf("uploads/%s/%s/%s", userID, f.ID, name)

	if err := s.repo.Create(ctx, f); err != nil {
		return nil, "", err
	}

	uploadURL, err := s.store.PresignUpload(ctx, f.Key, f.ContentType, f.SizeBytes)
	if err != nil {
		return nil, "", fmt.Errorf("request upload: %w", err)
	}

	s.recorder.Record(ctx, audit.Entry{
		UserID:    userID,
		Action:    audit.ActionFileUploaded,
		Metadata:  map[string]any{"file_id": f.ID, "name": f.Name, "size": f.SizeBytes},
		IPAddress: ipAddress,
	})

	return f, uploadURL, nil
}

// ConfirmUpload promotes a pending record after verifying the object
// actually landed in the store.
func (s *Service) ConfirmUpload(ctx context.Context, userID, fileID string) (*File, error) {
	f, err := s.getOwned(ctx, userID, fileID)
	if err != nil {
		return nil, err
	}

	exists, err := s.store.Exists(ctx, f.Key)
	if err != nil {
		return nil, fmt.Errorf("confirm upload: %w", err)
	}
	if !exists {
		return nil, core.NewAppError(nil, "UPLOAD_NOT_FOUND",
			"no object was uploaded for this file", http.StatusConflict)
	}

	if err := s.repo.MarkUploaded(ctx, fileID); err != nil &&
		!errors.Is(err, core.ErrNotFound) {
		// NotFound here means a concurrent confirm already won.
		return nil, err
	}

	f.Status = StatusUploaded
	return f, nil
}

func (s *Service) DownloadURL(ctx context.Context, userID, fileID string) (string, error) {
	f, err := s.getOwned(ctx, userID, fileID)
	if err != nil {
		return "", err
	}
	if f.Status != StatusUploaded {
		return "", fmt.Errorf("download: %w", core.ErrNotFound)
	}

	return s.store.PresignDownload(ctx, f.Key)
}

func (s *Service) Delete(ctx context.Context, userID, fileID, ipAddress string) error {
	f, err := s.getOwned(ctx, userID, fileID)
	if err != nil {
		return err
	}

	if err := s.store.Delete(ctx, f.Key); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, fileID); err != nil {
		return err
	}

	s.recorder.Record(ctx, audit.Entry{
		UserID:    userID,
		Action:    audit.ActionFileDeleted,
		Metadata:  map[string]any{"file_id": fileID, "name": f.Name},
		IPAddress: ipAddress,
	})

	return nil
}

func (s *Service) List(ctx context.Context, userID string, page, pageSize int) ([]File, int, error) {
	return s.repo.ListForUser(ctx, userID, page, pageSize)
}

func (s *Service) ToResponse(f *File) FileResponse {
	resp := FileResponse{
		ID:          f.ID,
		Name:        f.Name,
		ContentType: f.ContentType,
		SizeBytes:   f.SizeBytes,
		Status:      f.Status,
		CreatedAt:   f.CreatedAt,
	}
	if f.Status == StatusUploaded {
		resp.PublicURL = s.store.PublicURL(f.Key)
	}
	return resp
}

func (s *Service) getOwned(ctx context.Context, userID, fileID string) (*File, error) {
	f, err := s.repo.GetByID(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if f.UserID != userID {
		return nil, fmt.Errorf("file access: %w", core.ErrForbidden)
	}

	return f, nil
}
