// AngelaMos | 2026
// repository.go

package audit

import (
	"context"
	"fmt"

	"github.com/carterperez-dev/saasbase/internal/core"
)

type Repository interface {
	Insert(ctx context.Context, log *Log) error
	ListByOrganization(ctx context.Context, orgID string, page, pageSize int) ([]Log, int, error)
}

type repository struct {
	db core.DBTX
}

func NewRepository(db core.DBTX) Repository {
	return &repository{db: db}
}

func (r *repository) Insert(ctx context.Context, log *Log) error {
	query := `
		INSERT INTO audit_logs (
			id, organization_id, user_id, action, metadata, ip_address
		) VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.db.ExecContext(ctx, query,
		log.ID,
		log.OrganizationID,
		log.UserID,
		log.Action,
		log.Metadata,
		log.IPAddress,
	)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}

	return nil
}

func (r *repository) ListByOrganization(
	ctx context.Context,
	orgID string,
	page, pageSize int,
) ([]Log, int, error) {
	var total int
	countQuery := `
		SELECT COUNT(*)
		FROM audit_logs
		WHERE organization_id = $1`
	if err := r.db.GetContext(ctx, &total, countQuery, orgID); err != nil {
		return nil, 0, fmt.Errorf("count audit logs: %w", err)
	}

	query := `
		SELECT id, organization_id, user_id, action, metadata, ip_address, created_at
		FROM audit_logs
		WHERE organization_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	offset := (page - 1) * pageSize

	var logs []Log
	if err := r.db.SelectContext(ctx, &logs, query, orgID, pageSize, offset); err != nil {
		return nil, 0, fmt.Errorf("list audit logs: %w", err)
	}

	return logs, total, nil
}
