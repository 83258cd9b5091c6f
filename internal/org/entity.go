// AngelaMos | 2026
// entity.go

package org

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"
)

type Organization struct {
	ID        string          `db:"id"`
	Name      string          `db:"name"`
	Slug      string          `db:"slug"`
	LogoURL   *string         `db:"logo_url"`
	Metadata  json.RawMessage `db:"metadata"`
	CreatedAt time.Time       `db:"created_at"`
	UpdatedAt time.Time       `db:"updated_at"`
}

type Member struct {
	ID             string    `db:"id"`
	OrganizationID string    `db:"organization_id"`
	UserID         string    `db:"user_id"`
	Role           string    `db:"role"`
	CreatedAt      time.Time `db:"created_at"`

	// Joined from users for listing.
	Email string `db:"email"`
	Name  string `db:"name"`
}

type Invitation struct {
	ID             string    `db:"id"`
	OrganizationID string    `db:"organization_id"`
	Email          string    `db:"email"`
	Role           string    `db:"role"`
	Status         string    `db:"status"`
	ExpiresAt      time.Time `db:"expires_at"`
	InviterID      string    `db:"inviter_id"`
	CreatedAt      time.Time `db:"created_at"`
}

const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleMember = "member"
)

const (
	InviteStatusPending  = "pending"
	InviteStatusAccepted = "accepted"
	InviteStatusRevoked  = "revoked"
)

// canManage reports whether a member with the given role may administer
// the organization (members, invitations, settings).
func canManage(role string) bool {
	return role == RoleOwner || role == RoleAdmin
}

func (i *Invitation) IsExpired() bool {
	return time.Now().After(i.ExpiresAt)
}

var slugCleaner = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify derives a URL-safe slug from an organization name.
func Slugify(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = slugCleaner.ReplaceAllString(slug, "-")
	return strings.Trim(slug, "-")
}
