// AngelaMos | 2026
// service_test.go

package file

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carterperez-dev/saasbase/internal/audit"
	"github.com/carterperez-dev/saasbase/internal/core"
)

type memRepo struct {
	files map[string]*File
}

func newMemRepo() *memRepo {
	return &memRepo{files: map[string]*File{}}
}

func (m *memRepo) Create(_ context.Context, f *File) error {
	copied := *f
	m.files[f.ID] = &copied
	return nil
}

func (m *memRepo) GetByID(_ context.Context, id string) (*File, error) {
	f, ok := m.files[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	copied := *f
	return &copied, nil
}

func (m *memRepo) MarkUploaded(_ context.Context, id string) error {
	f, ok := m.files[id]
	if !ok || f.Status != StatusPending {
		return core.ErrNotFound
	}
	f.Status = StatusUploaded
	return nil
}

func (m *memRepo) Delete(_ context.Context, id string) error {
	if _, ok := m.files[id]; !ok {
		return core.ErrNotFound
	}
	delete(m.files, id)
	return nil
}

func (m *memRepo) ListForUser(_ context.Context, userID string, _, _ int) ([]File, int, error) {
	var out []File
	for _, f := range m.files {
		if f.UserID == userID {
			out = append(out, *f)
		}
	}
	return out, len(out), nil
}

type memStore struct {
	objects map[string]bool
	deleted []string
}

func newMemStore() *memStore {
	return &memStore{objects: map[string]bool{}}
}

func (m *memStore) PresignUpload(_ context.Context, key, _ string, _ int64) (string, error) {
	return "https://store.example.com/put/" + key, nil
}

func (m *memStore) PresignDownload(_ context.Context, key string) (string, error) {
	return "https://store.example.com/get/" + key, nil
}

func (m *memStore) Exists(_ context.Context, key string) (bool, error) {
	return m.objects[key], nil
}

func (m *memStore) Delete(_ context.Context, key string) error {
	m.deleted = append(m.deleted, key)
	delete(m.objects, key)
	return nil
}

func (m *memStore) PublicURL(key string) string {
	return "https://cdn.example.com/" + key
}

type noopRecorder struct{}

func (noopRecorder) Record(context.Context, audit.Entry) {}

func newFileService(repo Repository, store ObjectStore) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(repo, store, noopRecorder{}, 10<<20, logger)
}

func TestRequestUploadIssuesPresignedURL(t *testing.T) {
	repo := newMemRepo()
	store := newMemStore()
	svc := newFileService(repo, store)

	f, url, err := svc.RequestUpload(context.Background(), "user-1", "1.2.3.4", RequestUploadRequest{
		Name:        "report.pdf",
		ContentType: "application/pdf",
		SizeBytes:   1024,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, f.Status)
	assert.True(t, strings.HasPrefix(url, "https://store.example.com/put/uploads/user-1/"))
	assert.True(t, strings.HasSuffix(f.Key, "/report.pdf"))
}

func TestRequestUploadRejectsOversizedFile(t *testing.T) {
	svc := newFileService(newMemRepo(), newMemStore())

	_, _, err := svc.RequestUpload(context.Background(), "user-1", "", RequestUploadRequest{
		Name:        "huge.zip",
		ContentType: "application/zip",
		SizeBytes:   11 << 20,
	})
	require.Error(t, err)

	var appErr *core.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "FILE_TOO_LARGE", appErr.Code)
}

func TestRequestUploadRejectsDisallowedType(t *testing.T) {
	svc := newFileService(newMemRepo(), newMemStore())

	_, _, err := svc.RequestUpload(context.Background(), "user-1", "", RequestUploadRequest{
		Name:        "binary.exe",
		ContentType: "application/x-msdownload",
		SizeBytes:   100,
	})
	require.Error(t, err)

	var appErr *core.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "UNSUPPORTED_TYPE", appErr.Code)
}

func TestRequestUploadSanitizesFilename(t *testing.T) {
	repo := newMemRepo()
	svc := newFileService(repo, newMemStore())

	f, _, err := svc.RequestUpload(context.Background(), "user-1", "", RequestUploadRequest{
		Name:        "../../etc/pass wd.png",
		ContentType: "image/png",
		SizeBytes:   100,
	})
	require.NoError(t, err)
	assert.Equal(t, "pass_wd.png", f.Name)
	assert.NotContains(t, f.Key, "..")
}

func TestConfirmUploadRequiresObject(t *testing.T) {
	repo := newMemRepo()
	store := newMemStore()
	svc := newFileService(repo, store)

	f, _, err := svc.RequestUpload(context.Background(), "user-1", "", RequestUploadRequest{
		Name:        "a.png",
		ContentType: "image/png",
		SizeBytes:   100,
	})
	require.NoError(t, err)

	_, err = svc.ConfirmUpload(context.Background(), "user-1", f.ID)
	require.Error(t, err)

	var appErr *core.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "UPLOAD_NOT_FOUND", appErr.Code)

	store.objects[f.Key] = true
	confirmed, err := svc.ConfirmUpload(context.Background(), "user-1", f.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusUploaded, confirmed.Status)
}

func TestDownloadRequiresUploadedStatus(t *testing.T) {
	repo := newMemRepo()
	store := newMemStore()
	svc := newFileService(repo, store)

	f, _, err := svc.RequestUpload(context.Background(), "user-1", "", RequestUploadRequest{
		Name:        "a.png",
		ContentType: "image/png",
		SizeBytes:   100,
	})
	require.NoError(t, err)

	_, err = svc.DownloadURL(context.Background(), "user-1", f.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)

	store.objects[f.Key] = true
	_, err = svc.ConfirmUpload(context.Background(), "user-1", f.ID)
	require.NoError(t, err)

	url, err := svc.DownloadURL(context.Background(), "user-1", f.ID)
	require.NoError(t, err)
	assert.Contains(t, url, f.Key)
}

func TestFileAccessIsOwnerOnly(t *testing.T) {
	repo := newMemRepo()
	svc := newFileService(repo, newMemStore())

	f, _, err := svc.RequestUpload(context.Background(), "user-1", "", RequestUploadRequest{
		Name:        "a.png",
		ContentType: "image/png",
		SizeBytes:   100,
	})
	require.NoError(t, err)

	_, err = svc.DownloadURL(context.Background(), "user-2", f.ID)
	assert.ErrorIs(t, err, core.ErrForbidden)

	err = svc.Delete(context.Background(), "user-2", f.ID, "")
	assert.ErrorIs(t, err, core.ErrForbidden)
}

func TestDeleteRemovesObjectAndRecord(t *testing.T) {
	repo := newMemRepo()
	store := newMemStore()
	svc := newFileService(repo, store)

	f, _, err := svc.RequestUpload(context.Background(), "user-1", "", RequestUploadRequest{
		Name:        "a.png",
		ContentType: "image/png",
		SizeBytes:   100,
	})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), "user-1", f.ID, ""))
	assert.Contains(t, store.deleted, f.Key)

	_, err = svc.DownloadURL(context.Background(), "user-1", f.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestSanitizeName(t *testing.T) {
	tests := map[string]string{
		"report.pdf":        "report.pdf",
		"../../etc/passwd":  "passwd",
		"a b c.png":         "a_b_c.png",
		`C:\temp\photo.jpg`: "photo.jpg",
		"..":                "file",
		"":                  "file",
	}
	for in, want := range tests {
		assert.Equal(t, want, SanitizeName(in), "input %q", in)
	}
}
