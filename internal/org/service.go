// AngelaMos | 2026
// service.go

package org

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/carterperez-dev/saasbase/internal/audit"
	"github.com/carterperez-dev/saasbase/internal/core"
	"github.com/carterperez-dev/saasbase/internal/user"
)

var ErrLastOwner = errors.New("organization must keep at least one owner")

const invitationTTL = 72 * time.Hour

// UserDirectory resolves invited users to their account email.
type UserDirectory interface {
	GetByID(ctx context.Context, id string) (*user.User, error)
}

type Service struct {
	repo     Repository
	users    UserDirectory
	recorder audit.Recorder
	logger   *slog.Logger
}

func NewService(repo Repository, users UserDirectory, recorder audit.Recorder, logger *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		users:    users,
		recorder: recorder,
		logger:   logger,
	}
}

func (s *Service) Create(
	ctx context.Context,
	userID, ipAddress string,
	req CreateOrganizationRequest,
) (*Organization, error) {
	slug := req.Slug
	if slug == "" {
		slug = Slugify(req.Name)
	}
	if slug == "" {
		return nil, fmt.Errorf("create organization: %w", core.ErrInvalidInput)
	}

	o := &Organization{
		ID:       uuid.New().String(),
		Name:     req.Name,
		Slug:     slug,
		Metadata: []byte(`{}`),
	}

	if err := s.repo.CreateWithOwner(ctx, o, userID); err != nil {
		return nil, err
	}

	s.recorder.Record(ctx, audit.Entry{
		OrganizationID: o.ID,
		UserID:         userID,
		Action:         audit.ActionOrgCreated,
		Metadata:       map[string]any{"name": o.Name, "slug": o.Slug},
		IPAddress:      ipAddress,
	})

	return o, nil
}

func (s *Service) Get(ctx context.Context, orgID, userID string) (*Organization, error) {
	if _, err := s.repo.GetMember(ctx, orgID, userID); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, fmt.Errorf("get organization: %w", core.ErrForbidden)
		}
		return nil, err
	}

	return s.repo.GetByID(ctx, orgID)
}

func (s *Service) Update(
	ctx context.Context,
	orgID, userID, ipAddress string,
	req UpdateOrganizationRequest,
) (*Organization, error) {
	if err := s.RequireManager(ctx, orgID, userID); err != nil {
		return nil, err
	}

	o, err := s.repo.GetByID(ctx, orgID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		o.Name = *req.Name
	}
	if req.LogoURL != nil {
		o.LogoURL = req.LogoURL
	}

	if err := s.repo.Update(ctx, o); err != nil {
		return nil, err
	}

	s.recorder.Record(ctx, audit.Entry{
		OrganizationID: orgID,
		UserID:         userID,
		Action:         audit.ActionOrgUpdated,
		IPAddress:      ipAddress,
	})

	return o, nil
}

func (s *Service) Delete(ctx context.Context, orgID, userID, ipAddress string) error {
	member, err := s.repo.GetMember(ctx, orgID, userID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return fmt.Errorf("delete organization: %w", core.ErrForbidden)
		}
		return err
	}
	if member.Role != RoleOwner {
		return fmt.Errorf("delete organization: %w", core.ErrForbidden)
	}

	if err := s.repo.Delete(ctx, orgID); err != nil {
		return err
	}

	s.recorder.Record(ctx, audit.Entry{
		OrganizationID: orgID,
		UserID:         userID,
		Action:         audit.ActionOrgDeleted,
		IPAddress:      ipAddress,
	})

	return nil
}

func (s *Service) ListForUser(ctx context.Context, userID string) ([]Organization, error) {
	return s.repo.ListForUser(ctx, userID)
}

func (s *Service) ListMembers(ctx context.Context, orgID, userID string) ([]Member, error) {
	if _, err := s.repo.GetMember(ctx, orgID, userID); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, fmt.Errorf("list members: %w", core.ErrForbidden)
		}
		return nil, err
	}

	return s.repo.ListMembers(ctx, orgID)
}

func (s *Service) UpdateMemberRole(
	ctx context.Context,
	orgID, actorID, targetUserID, role, ipAddress string,
) error {
	if err := s.RequireManager(ctx, orgID, actorID); err != nil {
		return err
	}

	target, err := s.repo.GetMember(ctx, orgID, targetUserID)
	if err != nil {
		return err
	}
	// Owner roles change through ownership transfer, not here.
	if target.Role == RoleOwner {
		return fmt.Errorf("update member role: %w", core.ErrForbidden)
	}

	if err := s.repo.UpdateMemberRole(ctx, orgID, targetUserID, role); err != nil {
		return err
	}

	s.recorder.Record(ctx, audit.Entry{
		OrganizationID: orgID,
		UserID:         actorID,
		Action:         audit.ActionMemberRoleChanged,
		Metadata:       map[string]any{"target_user_id": targetUserID, "role": role},
		IPAddress:      ipAddress,
	})

	return nil
}

func (s *Service) RemoveMember(
	ctx context.Context,
	orgID, actorID, targetUserID, ipAddress string,
) error {
	// A member may always leave; removing anyone else needs a manager.
	if actorID != targetUserID {
		if err := s.RequireManager(ctx, orgID, actorID); err != nil {
			return err
		}
	}

	target, err := s.repo.GetMember(ctx, orgID, targetUserID)
	if err != nil {
		return err
	}

	if target.Role == RoleOwner {
		owners, err := s.repo.CountOwners(ctx, orgID)
		if err != nil {
			return err
		}
		if owners <= 1 {
			return fmt.Errorf("remove member: %w", ErrLastOwner)
		}
	}

	if err := s.repo.RemoveMember(ctx, orgID, targetUserID); err != nil {
		return err
	}

	s.recorder.Record(ctx, audit.Entry{
		OrganizationID: orgID,
		UserID:         actorID,
		Action:         audit.ActionMemberRemoved,
		Metadata:       map[string]any{"target_user_id": targetUserID},
		IPAddress:      ipAddress,
	})

	return nil
}

func (s *Service) Invite(
	ctx context.Context,
	orgID, actorID, ipAddress string,
	req InviteRequest,
) (*Invitation, error) {
	if err := s.RequireManager(ctx, orgID, actorID); err != nil {
		return nil, err
	}

	inv := &Invitation{
		ID:             uuid.New().String(),
		OrganizationID: orgID,
		Email:          strings.ToLower(req.Email),
		Role:           req.Role,
		Status:         InviteStatusPending,
		ExpiresAt:      time.Now().Add(invitationTTL),
		InviterID:      actorID,
	}

	if err := s.repo.CreateInvitation(ctx, inv); err != nil {
		return nil, err
	}

	s.recorder.Record(ctx, audit.Entry{
		OrganizationID: orgID,
		UserID:         actorID,
		Action:         audit.ActionInviteCreated,
		Metadata:       map[string]any{"email": inv.Email, "role": inv.Role},
		IPAddress:      ipAddress,
	})

	return inv, nil
}

func (s *Service) ListInvitations(ctx context.Context, orgID, userID string) ([]Invitation, error) {
	if err := s.RequireManager(ctx, orgID, userID); err != nil {
		return nil, err
	}

	return s.repo.ListInvitations(ctx, orgID)
}

func (s *Service) RevokeInvitation(
	ctx context.Context,
	orgID, actorID, inviteID, ipAddress string,
) error {
	if err := s.RequireManager(ctx, orgID, actorID); err != nil {
		return err
	}

	inv, err := s.repo.GetInvitation(ctx, inviteID)
	if err != nil {
		return err
	}
	if inv.OrganizationID != orgID {
		return fmt.Errorf("revoke invitation: %w", core.ErrNotFound)
	}

	if err := s.repo.RevokeInvitation(ctx, inviteID); err != nil {
		return err
	}

	s.recorder.Record(ctx, audit.Entry{
		OrganizationID: orgID,
		UserID:         actorID,
		Action:         audit.ActionInviteRevoked,
		Metadata:       map[string]any{"invitation_id": inviteID},
		IPAddress:      ipAddress,
	})

	return nil
}

// AcceptInvitation joins the calling user to the inviting organization.
// The invitation must be pending, unexpired, and addressed to the caller's
// account email.
func (s *Service) AcceptInvitation(
	ctx context.Context,
	inviteID, userID, ipAddress string,
) (*Organization, error) {
	inv, err := s.repo.GetInvitation(ctx, inviteID)
	if err != nil {
		return nil, err
	}

	if inv.Status != InviteStatusPending || inv.IsExpired() {
		return nil, fmt.Errorf("accept invitation: %w", core.ErrTokenExpired)
	}

	usr, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(usr.Email, inv.Email) {
		return nil, fmt.Errorf("accept invitation: %w", core.ErrForbidden)
	}

	if err := s.repo.AcceptInvitation(ctx, inv, userID); err != nil {
		return nil, err
	}

	s.recorder.Record(ctx, audit.Entry{
		OrganizationID: inv.OrganizationID,
		UserID:         userID,
		Action:         audit.ActionInviteAccepted,
		Metadata:       map[string]any{"invitation_id": inviteID},
		IPAddress:      ipAddress,
	})

	return s.repo.GetByID(ctx, inv.OrganizationID)
}

func (s *Service) RequireManager(ctx context.Context, orgID, userID string) error {
	member, err := s.repo.GetMember(ctx, orgID, userID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return fmt.Errorf("require manager: %w", core.ErrForbidden)
		}
		return err
	}
	if !canManage(member.Role) {
		return fmt.Errorf("require manager: %w", core.ErrForbidden)
	}

	return nil
}
