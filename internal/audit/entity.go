// AngelaMos | 2026
// entity.go

package audit

import (
	"encoding/json"
	"time"
)

// Log is one recorded action. Metadata is free-form JSON; org and user
// references are optional since some actions (webhook reconciliations)
// happen outside any session.
type Log struct {
	ID             string          `db:"id"`
	OrganizationID *string         `db:"organization_id"`
	UserID         *string         `db:"user_id"`
	Action         string          `db:"action"`
	Metadata       json.RawMessage `db:"metadata"`
	IPAddress      string          `db:"ip_address"`
	CreatedAt      time.Time       `db:"created_at"`
}

// Actions recorded across the app.
const (
	ActionOrgCreated        = "org.created"
	ActionOrgUpdated        = "org.updated"
	ActionOrgDeleted        = "org.deleted"
	ActionMemberAdded       = "org.member_added"
	ActionMemberRemoved     = "org.member_removed"
	ActionMemberRoleChanged = "org.member_role_changed"
	ActionInviteCreated     = "org.invite_created"
	ActionInviteAccepted    = "org.invite_accepted"
	ActionInviteRevoked     = "org.invite_revoked"
	ActionFileUploaded      = "file.uploaded"
	ActionFileDeleted       = "file.deleted"
	ActionEntitlementSynced = "billing.entitlement_synced"
	ActionCheckoutCompleted = "billing.checkout_completed"
)
