// AngelaMos | 2026
// entity.go

package auth

import (
	"time"
)

// RefreshToken is one link in a rotation family. A family shares
// FamilyID across rotations; presenting an already-used link is
// treated as theft and revokes the whole family.
type RefreshToken struct {
	ID           string     `db:"id"`
	UserID       string     `db:"user_id"`
	TokenHash    string     `db:"token_hash"`
	FamilyID     string     `db:"family_id"`
	ExpiresAt    time.Time  `db:"expires_at"`
	CreatedAt    time.Time  `db:"created_at"`
	IsUsed       bool       `db:"is_used"`
	UsedAt       *time.Time `db:"used_at"`
	RevokedAt    *time.Time `db:"revoked_at"`
	ReplacedByID *string    `db:"replaced_by_id"`
	UserAgent    string     `db:"user_agent"`
	IPAddress    string     `db:"ip_address"`
}

func (t *RefreshToken) IsExpired() bool {
	return time.Now().After(t.ExpiresAt)
}

func (t *RefreshToken) IsRevoked() bool {
	return t.RevokedAt != nil
}

// IsValid reports whether the token may still be exchanged.
func (t *RefreshToken) IsValid() bool {
	return !t.IsUsed && !t.IsRevoked() && !t.IsExpired()
}

// MarkAsUsed records which successor token replaced this one, so a
// replayed token can be traced to its family.
func (t *RefreshToken) MarkAsUsed(replacedByID string) {
	now := time.Now()
	t.IsUsed = true
	t.UsedAt = &now
	t.ReplacedByID = &replacedByID
}

func (t *RefreshToken) Revoke() {
	now := time.Now()
	t.RevokedAt = &now
}
