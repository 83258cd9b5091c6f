// AngelaMos | 2026
// repository.go

package org

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"

	"github.com/carterperez-dev/saasbase/internal/core"
)

type Repository interface {
	CreateWithOwner(ctx context.Context, o *Organization, ownerID string) error
	GetByID(ctx context.Context, id string) (*Organization, error)
	GetBySlug(ctx context.Context, slug string) (*Organization, error)
	Update(ctx context.Context, o *Organization) error
	Delete(ctx context.Context, id string) error
	ListForUser(ctx context.Context, userID string) ([]Organization, error)

	GetMember(ctx context.Context, orgID, userID string) (*Member, error)
	ListMembers(ctx context.Context, orgID string) ([]Member, error)
	UpdateMemberRole(ctx context.Context, orgID, userID, role string) error
	RemoveMember(ctx context.Context, orgID, userID string) error
	CountOwners(ctx context.Context, orgID string) (int, error)

	CreateInvitation(ctx context.Context, inv *Invitation) error
	GetInvitation(ctx context.Context, id string) (*Invitation, error)
	ListInvitations(ctx context.Context, orgID string) ([]Invitation, error)
	RevokeInvitation(ctx context.Context, id string) error
	AcceptInvitation(ctx context.Context, inv *Invitation, userID string) error
}

type repository struct {
	db *sqlx.DB
}

// NewRepository takes the full pool rather than a DBTX since member and
// invitation writes span transactions.
func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

// CreateWithOwner inserts the organization and its owner membership in one
// transaction; an organization can never exist without an owner.
func (r *repository) CreateWithOwner(
	ctx context.Context,
	o *Organization,
	ownerID string,
) error {
	err := core.InTx(ctx, r.db, func(tx *sqlx.Tx) error {
		orgQuery := `
			INSERT INTO organizations (id, name, slug, metadata)
			VALUES ($1, $2, $3, $4)
			RETURNING created_at, updated_at`

		err := tx.GetContext(ctx, o, orgQuery, o.ID, o.Name, o.Slug, o.Metadata)
		if err != nil {
			return fmt.Errorf("insert organization: %w", err)
		}

		memberQuery := `
			INSERT INTO organization_members (id, organization_id, user_id, role)
			VALUES ($1, $2, $3, $4)`

		_, err = tx.ExecContext(ctx, memberQuery,
			uuid.New().String(), o.ID, ownerID, RoleOwner,
		)
		if err != nil {
			return fmt.Errorf("insert owner membership: %w", err)
		}

		return nil
	})
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("create organization: %w", core.ErrDuplicateKey)
		}
		return fmt.Errorf("create organization: %w", err)
	}

	return nil
}

func (r *repository) GetByID(ctx context.Context, id string) (*Organization, error) {
	query := `
		SELECT id, name, slug, logo_url, metadata, created_at, updated_at
		FROM organizations
		WHERE id = $1`

	var o Organization
	err := r.db.GetContext(ctx, &o, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get organization: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get organization: %w", err)
	}

	return &o, nil
}

func (r *repository) GetBySlug(ctx context.Context, slug string) (*Organization, error) {
	query := `
		SELECT id, name, slug, logo_url, metadata, created_at, updated_at
		FROM organizations
		WHERE slug = $1`

	var o Organization
	err := r.db.GetContext(ctx, &o, query, slug)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get organization: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get organization: %w", err)
	}

	return &o, nil
}

func (r *repository) Update(ctx context.Context, o *Organization) error {
	query := `
		UPDATE organizations
		SET name = $1, logo_url = $2, updated_at = NOW()
		WHERE id = $3
		RETURNING updated_at`

	err := r.db.GetContext(ctx, o, query, o.Name, o.LogoURL, o.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("update organization: %w", core.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("update organization: %w", err)
	}

	return nil
}

func (r *repository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM organizations WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete organization: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete organization: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("delete organization: %w", core.ErrNotFound)
	}

	return nil
}

func (r *repository) ListForUser(ctx context.Context, userID string) ([]Organization, error) {
	query := `
		SELECT o.id, o.name, o.slug, o.logo_url, o.metadata,
		       o.created_at, o.updated_at
		FROM organizations o
		JOIN organization_members m ON m.organization_id = o.id
		WHERE m.user_id = $1
		ORDER BY o.created_at`

	var orgs []Organization
	if err := r.db.SelectContext(ctx, &orgs, query, userID); err != nil {
		return nil, fmt.Errorf("list organizations: %w", err)
	}

	return orgs, nil
}

func (r *repository) GetMember(ctx context.Context, orgID, userID string) (*Member, error) {
	query := `
		SELECT m.id, m.organization_id, m.user_id, m.role, m.created_at,
		       u.email, u.name
		FROM organization_members m
		JOIN users u ON u.id = m.user_id
		WHERE m.organization_id = $1 AND m.user_id = $2`

	var m Member
	err := r.db.GetContext(ctx, &m, query, orgID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get member: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get member: %w", err)
	}

	return &m, nil
}

func (r *repository) ListMembers(ctx context.Context, orgID string) ([]Member, error) {
	query := `
		SELECT m.id, m.organization_id, m.user_id, m.role, m.created_at,
		       u.email, u.name
		FROM organization_members m
		JOIN users u ON u.id = m.user_id
		WHERE m.organization_id = $1
		ORDER BY m.created_at`

	var members []Member
	if err := r.db.SelectContext(ctx, &members, query, orgID); err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}

	return members, nil
}

func (r *repository) UpdateMemberRole(ctx context.Context, orgID, userID, role string) error {
	query := `
		UPDATE organization_members
		SET role = $1
		WHERE organization_id = $2 AND user_id = $3`

	result, err := r.db.ExecContext(ctx, query, role, orgID, userID)
	if err != nil {
		return fmt.Errorf("update member role: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update member role: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("update member role: %w", core.ErrNotFound)
	}

	return nil
}

func (r *repository) RemoveMember(ctx context.Context, orgID, userID string) error {
	query := `
		DELETE FROM organization_members
		WHERE organization_id = $1 AND user_id = $2`

	result, err := r.db.ExecContext(ctx, query, orgID, userID)
	if err != nil {
		return fmt.Errorf("remove member: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("remove member: %w", core.ErrNotFound)
	}

	return nil
}

func (r *repository) CountOwners(ctx context.Context, orgID string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM organization_members
		WHERE organization_id = $1 AND role = $2`

	var count int
	if err := r.db.GetContext(ctx, &count, query, orgID, RoleOwner); err != nil {
		return 0, fmt.Errorf("count owners: %w", err)
	}

	return count, nil
}

func (r *repository) CreateInvitation(ctx context.Context, inv *Invitation) error {
	query := `
		INSERT INTO invitations (
			id, organization_id, email, role, status, expires_at, inviter_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`

	err := r.db.GetContext(ctx, inv, query,
		inv.ID,
		inv.OrganizationID,
		inv.Email,
		inv.Role,
		inv.Status,
		inv.ExpiresAt,
		inv.InviterID,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("create invitation: %w", core.ErrDuplicateKey)
		}
		return fmt.Errorf("create invitation: %w", err)
	}

	return nil
}

func (r *repository) GetInvitation(ctx context.Context, id string) (*Invitation, error) {
	query := `
		SELECT id, organization_id, email, role, status, expires_at,
		       inviter_id, created_at
		FROM invitations
		WHERE id = $1`

	var inv Invitation
	err := r.db.GetContext(ctx, &inv, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get invitation: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get invitation: %w", err)
	}

	return &inv, nil
}

func (r *repository) ListInvitations(ctx context.Context, orgID string) ([]Invitation, error) {
	query := `
		SELECT id, organization_id, email, role, status, expires_at,
		       inviter_id, created_at
		FROM invitations
		WHERE organization_id = $1
		ORDER BY created_at DESC`

	var invitations []Invitation
	if err := r.db.SelectContext(ctx, &invitations, query, orgID); err != nil {
		return nil, fmt.Errorf("list invitations: %w", err)
	}

	return invitations, nil
}

func (r *repository) RevokeInvitation(ctx context.Context, id string) error {
	query := `
		UPDATE invitations
		SET status = $1
		WHERE id = $2 AND status = $3`

	result, err := r.db.ExecContext(ctx, query,
		InviteStatusRevoked, id, InviteStatusPending,
	)
	if err != nil {
		return fmt.Errorf("revoke invitation: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("revoke invitation: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("revoke invitation: %w", core.ErrNotFound)
	}

	return nil
}

// AcceptInvitation flips the invitation to accepted and inserts the
// membership in one transaction. The status guard makes a concurrent
// double-accept lose cleanly.
func (r *repository) AcceptInvitation(
	ctx context.Context,
	inv *Invitation,
	userID string,
) error {
	err := core.InTx(ctx, r.db, func(tx *sqlx.Tx) error {
		updateQuery := `
			UPDATE invitations
			SET status = $1
			WHERE id = $2 AND status = $3`

		result, err := tx.ExecContext(ctx, updateQuery,
			InviteStatusAccepted, inv.ID, InviteStatusPending,
		)
		if err != nil {
			return fmt.Errorf("accept invitation: %w", err)
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("accept invitation: %w", err)
		}
		if rows == 0 {
			return fmt.Errorf("accept invitation: %w", core.ErrNotFound)
		}

		memberQuery := `
			INSERT INTO organization_members (id, organization_id, user_id, role)
			VALUES ($1, $2, $3, $4)`

		_, err = tx.ExecContext(ctx, memberQuery,
			uuid.New().String(), inv.OrganizationID, userID, inv.Role,
		)
		if err != nil {
			return fmt.Errorf("insert membership: %w", err)
		}

		return nil
	})
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("accept invitation: %w", core.ErrDuplicateKey)
		}
		return err
	}

	return nil
}

func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
