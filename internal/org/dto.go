// AngelaMos | 2026
// dto.go

package org

import (
	"time"
)

type CreateOrganizationRequest struct {
	Name string `json:"name" validate:"required,min=1,max=100"`
	Slug string `json:"slug" validate:"omitempty,min=2,max=100,lowercase"`
}

type UpdateOrganizationRequest struct {
	Name    *string `json:"name"     validate:"omitempty,min=1,max=100"`
	LogoURL *string `json:"logo_url" validate:"omitempty,url,max=2048"`
}

type OrganizationResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	LogoURL   *string   `json:"logo_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type MemberResponse struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

type UpdateMemberRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=admin member"`
}

type InviteRequest struct {
	Email string `json:"email" validate:"required,email,max=255"`
	Role  string `json:"role"  validate:"required,oneof=admin member"`
}

type InvitationResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	Status    string    `json:"status"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

func ToOrganizationResponse(o *Organization) OrganizationResponse {
	return OrganizationResponse{
		ID:        o.ID,
		Name:      o.Name,
		Slug:      o.Slug,
		LogoURL:   o.LogoURL,
		CreatedAt: o.CreatedAt,
	}
}

func ToMemberResponse(m *Member) MemberResponse {
	return MemberResponse{
		ID:        m.ID,
		UserID:    m.UserID,
		Email:     m.Email,
		Name:      m.Name,
		Role:      m.Role,
		CreatedAt: m.CreatedAt,
	}
}

func ToInvitationResponse(i *Invitation) InvitationResponse {
	return InvitationResponse{
		ID:        i.ID,
		Email:     i.Email,
		Role:      i.Role,
		Status:    i.Status,
		ExpiresAt: i.ExpiresAt,
		CreatedAt: i.CreatedAt,
	}
}
