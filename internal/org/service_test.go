// AngelaMos | 2026
// service_test.go

package org

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carterperez-dev/saasbase/internal/audit"
	"github.com/carterperez-dev/saasbase/internal/core"
	"github.com/carterperez-dev/saasbase/internal/user"
)

type memRepo struct {
	orgs    map[string]*Organization
	members map[string]*Member     // key: orgID + "/" + userID
	invites map[string]*Invitation // key: invitation id
}

func newMemRepo() *memRepo {
	return &memRepo{
		orgs:    map[string]*Organization{},
		members: map[string]*Member{},
		invites: map[string]*Invitation{},
	}
}

func memberKey(orgID, userID string) string { return orgID + "/" + userID }

func (m *memRepo) CreateWithOwner(_ context.Context, o *Organization, ownerID string) error {
	for _, existing := range m.orgs {
		if existing.Slug == o.Slug {
			return core.ErrDuplicateKey
		}
	}
	o.CreatedAt = time.Now()
	o.UpdatedAt = o.CreatedAt
	m.orgs[o.ID] = o
	m.members[memberKey(o.ID, ownerID)] = &Member{
		ID:             uuid.New().String(),
		OrganizationID: o.ID,
		UserID:         ownerID,
		Role:           RoleOwner,
	}
	return nil
}

func (m *memRepo) GetByID(_ context.Context, id string) (*Organization, error) {
	o, ok := m.orgs[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return o, nil
}

func (m *memRepo) GetBySlug(_ context.Context, slug string) (*Organization, error) {
	for _, o := range m.orgs {
		if o.Slug == slug {
			return o, nil
		}
	}
	return nil, core.ErrNotFound
}

func (m *memRepo) Update(_ context.Context, o *Organization) error {
	if _, ok := m.orgs[o.ID]; !ok {
		return core.ErrNotFound
	}
	m.orgs[o.ID] = o
	return nil
}

func (m *memRepo) Delete(_ context.Context, id string) error {
	if _, ok := m.orgs[id]; !ok {
		return core.ErrNotFound
	}
	delete(m.orgs, id)
	return nil
}

func (m *memRepo) ListForUser(_ context.Context, userID string) ([]Organization, error) {
	var out []Organization
	for _, mem := range m.members {
		if mem.UserID == userID {
			if o, ok := m.orgs[mem.OrganizationID]; ok {
				out = append(out, *o)
			}
		}
	}
	return out, nil
}

func (m *memRepo) GetMember(_ context.Context, orgID, userID string) (*Member, error) {
	mem, ok := m.members[memberKey(orgID, userID)]
	if !ok {
		return nil, core.ErrNotFound
	}
	return mem, nil
}

func (m *memRepo) ListMembers(_ context.Context, orgID string) ([]Member, error) {
	var out []Member
	for _, mem := range m.members {
		if mem.OrganizationID == orgID {
			out = append(out, *mem)
		}
	}
	return out, nil
}

func (m *memRepo) UpdateMemberRole(_ context.Context, orgID, userID, role string) error {
	mem, ok := m.members[memberKey(orgID, userID)]
	if !ok {
		return core.ErrNotFound
	}
	mem.Role = role
	return nil
}

func (m *memRepo) RemoveMember(_ context.Context, orgID, userID string) error {
	key := memberKey(orgID, userID)
	if _, ok := m.members[key]; !ok {
		return core.ErrNotFound
	}
	delete(m.members, key)
	return nil
}

func (m *memRepo) CountOwners(_ context.Context, orgID string) (int, error) {
	count := 0
	for _, mem := range m.members {
		if mem.OrganizationID == orgID && mem.Role == RoleOwner {
			count++
		}
	}
	return count, nil
}

func (m *memRepo) CreateInvitation(_ context.Context, inv *Invitation) error {
	inv.CreatedAt = time.Now()
	m.invites[inv.ID] = inv
	return nil
}

func (m *memRepo) GetInvitation(_ context.Context, id string) (*Invitation, error) {
	inv, ok := m.invites[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return inv, nil
}

func (m *memRepo) ListInvitations(_ context.Context, orgID string) ([]Invitation, error) {
	var out []Invitation
	for _, inv := range m.invites {
		if inv.OrganizationID == orgID {
			out = append(out, *inv)
		}
	}
	return out, nil
}

func (m *memRepo) RevokeInvitation(_ context.Context, id string) error {
	inv, ok := m.invites[id]
	if !ok || inv.Status != InviteStatusPending {
		return core.ErrNotFound
	}
	inv.Status = InviteStatusRevoked
	return nil
}

func (m *memRepo) AcceptInvitation(_ context.Context, inv *Invitation, userID string) error {
	stored, ok := m.invites[inv.ID]
	if !ok || stored.Status != InviteStatusPending {
		return core.ErrNotFound
	}
	stored.Status = InviteStatusAccepted
	m.members[memberKey(inv.OrganizationID, userID)] = &Member{
		ID:             uuid.New().String(),
		OrganizationID: inv.OrganizationID,
		UserID:         userID,
		Role:           inv.Role,
	}
	return nil
}

type memUsers struct {
	users map[string]*user.User
}

func (m *memUsers) GetByID(_ context.Context, id string) (*user.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return u, nil
}

type noopRecorder struct{}

func (noopRecorder) Record(context.Context, audit.Entry) {}

func newOrgService(repo Repository, users UserDirectory) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if users == nil {
		users = &memUsers{}
	}
	return NewService(repo, users, noopRecorder{}, logger)
}

func TestCreateMakesCallerOwner(t *testing.T) {
	repo := newMemRepo()
	svc := newOrgService(repo, nil)

	o, err := svc.Create(context.Background(), "user-1", "", CreateOrganizationRequest{
		Name: "Acme Corp",
	})
	require.NoError(t, err)
	assert.Equal(t, "acme-corp", o.Slug)

	member, err := repo.GetMember(context.Background(), o.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, RoleOwner, member.Role)
}

func TestCreateRejectsDuplicateSlug(t *testing.T) {
	repo := newMemRepo()
	svc := newOrgService(repo, nil)

	_, err := svc.Create(context.Background(), "user-1", "", CreateOrganizationRequest{Name: "Acme"})
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), "user-2", "", CreateOrganizationRequest{Name: "Acme"})
	assert.ErrorIs(t, err, core.ErrDuplicateKey)
}

func TestNonMemberCannotRead(t *testing.T) {
	repo := newMemRepo()
	svc := newOrgService(repo, nil)

	o, err := svc.Create(context.Background(), "user-1", "", CreateOrganizationRequest{Name: "Acme"})
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), o.ID, "outsider")
	assert.ErrorIs(t, err, core.ErrForbidden)
}

func TestPlainMemberCannotManage(t *testing.T) {
	repo := newMemRepo()
	svc := newOrgService(repo, nil)

	o, err := svc.Create(context.Background(), "owner", "", CreateOrganizationRequest{Name: "Acme"})
	require.NoError(t, err)

	repo.members[memberKey(o.ID, "plain")] = &Member{
		ID: uuid.New().String(), OrganizationID: o.ID, UserID: "plain", Role: RoleMember,
	}

	_, err = svc.Invite(context.Background(), o.ID, "plain", "", InviteRequest{
		Email: "x@example.com", Role: RoleMember,
	})
	assert.ErrorIs(t, err, core.ErrForbidden)

	name := "New Name"
	_, err = svc.Update(context.Background(), o.ID, "plain", "", UpdateOrganizationRequest{Name: &name})
	assert.ErrorIs(t, err, core.ErrForbidden)
}

func TestOnlyOwnerDeletes(t *testing.T) {
	repo := newMemRepo()
	svc := newOrgService(repo, nil)

	o, err := svc.Create(context.Background(), "owner", "", CreateOrganizationRequest{Name: "Acme"})
	require.NoError(t, err)

	repo.members[memberKey(o.ID, "admin")] = &Member{
		ID: uuid.New().String(), OrganizationID: o.ID, UserID: "admin", Role: RoleAdmin,
	}

	err = svc.Delete(context.Background(), o.ID, "admin", "")
	assert.ErrorIs(t, err, core.ErrForbidden)

	require.NoError(t, svc.Delete(context.Background(), o.ID, "owner", ""))
}

func TestLastOwnerCannotLeave(t *testing.T) {
	repo := newMemRepo()
	svc := newOrgService(repo, nil)

	o, err := svc.Create(context.Background(), "owner", "", CreateOrganizationRequest{Name: "Acme"})
	require.NoError(t, err)

	err = svc.RemoveMember(context.Background(), o.ID, "owner", "owner", "")
	assert.ErrorIs(t, err, ErrLastOwner)
}

func TestMemberMayLeave(t *testing.T) {
	repo := newMemRepo()
	svc := newOrgService(repo, nil)

	o, err := svc.Create(context.Background(), "owner", "", CreateOrganizationRequest{Name: "Acme"})
	require.NoError(t, err)

	repo.members[memberKey(o.ID, "plain")] = &Member{
		ID: uuid.New().String(), OrganizationID: o.ID, UserID: "plain", Role: RoleMember,
	}

	require.NoError(t, svc.RemoveMember(context.Background(), o.ID, "plain", "plain", ""))

	_, err = repo.GetMember(context.Background(), o.ID, "plain")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestOwnerRoleImmutableThroughRoleEndpoint(t *testing.T) {
	repo := newMemRepo()
	svc := newOrgService(repo, nil)

	o, err := svc.Create(context.Background(), "owner", "", CreateOrganizationRequest{Name: "Acme"})
	require.NoError(t, err)

	repo.members[memberKey(o.ID, "admin")] = &Member{
		ID: uuid.New().String(), OrganizationID: o.ID, UserID: "admin", Role: RoleAdmin,
	}

	err = svc.UpdateMemberRole(context.Background(), o.ID, "admin", "owner", RoleMember, "")
	assert.ErrorIs(t, err, core.ErrForbidden)
}

func TestInvitationFlow(t *testing.T) {
	repo := newMemRepo()
	users := &memUsers{users: map[string]*user.User{
		"invitee": {ID: "invitee", Email: "Invitee@Example.com"},
	}}
	svc := newOrgService(repo, users)

	o, err := svc.Create(context.Background(), "owner", "", CreateOrganizationRequest{Name: "Acme"})
	require.NoError(t, err)

	inv, err := svc.Invite(context.Background(), o.ID, "owner", "", InviteRequest{
		Email: "invitee@example.com",
		Role:  RoleMember,
	})
	require.NoError(t, err)
	assert.Equal(t, InviteStatusPending, inv.Status)

	joined, err := svc.AcceptInvitation(context.Background(), inv.ID, "invitee", "")
	require.NoError(t, err)
	assert.Equal(t, o.ID, joined.ID)

	member, err := repo.GetMember(context.Background(), o.ID, "invitee")
	require.NoError(t, err)
	assert.Equal(t, RoleMember, member.Role)

	// A second accept finds the invitation no longer pending.
	_, err = svc.AcceptInvitation(context.Background(), inv.ID, "invitee", "")
	assert.ErrorIs(t, err, core.ErrTokenExpired)
}

func TestAcceptRequiresMatchingEmail(t *testing.T) {
	repo := newMemRepo()
	users := &memUsers{users: map[string]*user.User{
		"other": {ID: "other", Email: "other@example.com"},
	}}
	svc := newOrgService(repo, users)

	o, err := svc.Create(context.Background(), "owner", "", CreateOrganizationRequest{Name: "Acme"})
	require.NoError(t, err)

	inv, err := svc.Invite(context.Background(), o.ID, "owner", "", InviteRequest{
		Email: "invitee@example.com",
		Role:  RoleMember,
	})
	require.NoError(t, err)

	_, err = svc.AcceptInvitation(context.Background(), inv.ID, "other", "")
	assert.ErrorIs(t, err, core.ErrForbidden)
}

func TestAcceptRejectsExpiredInvitation(t *testing.T) {
	repo := newMemRepo()
	users := &memUsers{users: map[string]*user.User{
		"invitee": {ID: "invitee", Email: "invitee@example.com"},
	}}
	svc := newOrgService(repo, users)

	o, err := svc.Create(context.Background(), "owner", "", CreateOrganizationRequest{Name: "Acme"})
	require.NoError(t, err)

	inv, err := svc.Invite(context.Background(), o.ID, "owner", "", InviteRequest{
		Email: "invitee@example.com",
		Role:  RoleMember,
	})
	require.NoError(t, err)

	repo.invites[inv.ID].ExpiresAt = time.Now().Add(-time.Hour)

	_, err = svc.AcceptInvitation(context.Background(), inv.ID, "invitee", "")
	assert.ErrorIs(t, err, core.ErrTokenExpired)
}

func TestSlugify(t *testing.T) {
	tests := map[string]string{
		"Acme Corp":        "acme-corp",
		"  Spaces  ":       "spaces",
		"Already-Slugged":  "already-slugged",
		"Sym&bols! Here??": "sym-bols-here",
	}
	for in, want := range tests {
		assert.Equal(t, want, Slugify(in), "input %q", in)
	}
}
