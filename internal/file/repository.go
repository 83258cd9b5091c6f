// AngelaMos | 2026
// repository.go

package file

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/carterperez-dev/saasbase/internal/core"
)

const fileColumns = `id, user_id, organization_id, object_key, name,
	       content_type, size_bytes, status, created_at, updated_at`

type Repository interface {
	Create(ctx context.Context, f *File) error
	GetByID(ctx context.Context, id string) (*File, error)
	MarkUploaded(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	ListForUser(ctx context.Context, userID string, page, pageSize int) ([]File, int, error)
}

type repository struct {
	db core.DBTX
}

func NewRepository(db core.DBTX) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, f *File) error {
	query := `
		INSERT INTO files (
			id, user_id, organization_id, object_key, name,
			content_type, size_bytes, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`

	err := r.db.GetContext(ctx, f, query,
		f.ID,
		f.UserID,
		f.OrganizationID,
		f.Key,
		f.Name,
		f.ContentType,
		f.SizeBytes,
		f.Status,
	)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}

	return nil
}

func (r *repository) GetByID(ctx context.Context, id string) (*File, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM files
		WHERE id = $1`, fileColumns)

	var f File
	err := r.db.GetContext(ctx, &f, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get file: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get file: %w", err)
	}

	return &f, nil
}

func (r *repository) MarkUploaded(ctx context.Context, id string) error {
	query := `
		UPDATE files
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3`

	result, err := r.db.ExecContext(ctx, query, StatusUploaded, id, StatusPending)
	if err != nil {
		return fmt.Errorf("mark uploaded: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark uploaded: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("mark uploaded: %w", core.ErrNotFound)
	}

	return nil
}

func (r *repository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM files WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete file: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("delete file: %w", core.ErrNotFound)
	}

	return nil
}

func (r *repository) ListForUser(
	ctx context.Context,
	userID string,
	page, pageSize int,
) ([]File, int, error) {
	var total int
	countQuery := `SELECT COUNT(*) FROM files WHERE user_id = $1`
	if err := r.db.GetContext(ctx, &total, countQuery, userID); err != nil {
		return nil, 0, fmt.Errorf("count files: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM files
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, fileColumns)

	offset := (page - 1) * pageSize

	var files []File
	if err := r.db.SelectContext(ctx, &files, query, userID, pageSize, offset); err != nil {
		return nil, 0, fmt.Errorf("list files: %w", err)
	}

	return files, total, nil
}
