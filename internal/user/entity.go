// AngelaMos | 2026
// entity.go

package user

import (
	"strings"
	"time"
)

type User struct {
	ID                   string     `db:"id"`
	Email                string     `db:"email"`
	PasswordHash         string     `db:"password_hash"`
	Name                 string     `db:"name"`
	Role                 string     `db:"role"`
	Tier                 string     `db:"tier"`
	TokenVersion         int        `db:"token_version"`
	StripeCustomerID     *string    `db:"stripe_customer_id"`
	StripeSubscriptionID *string    `db:"stripe_subscription_id"`
	StripeProductID      *string    `db:"stripe_product_id"`
	PlanName             *string    `db:"plan_name"`
	SubscriptionStatus   *string    `db:"subscription_status"`
	CreatedAt            time.Time  `db:"created_at"`
	UpdatedAt            time.Time  `db:"updated_at"`
	DeletedAt            *time.Time `db:"deleted_at"`
}

func (u *User) IsDeleted() bool {
	return u.DeletedAt != nil
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// HasPaidPlan reports whether the locally cached entitlement state grants
// paid access. It never consults the payment provider.
func (u *User) HasPaidPlan() bool {
	if u.SubscriptionStatus == nil {
		return false
	}
	switch *u.SubscriptionStatus {
	case SubscriptionActive, SubscriptionTrialing:
		return u.StripeSubscriptionID != nil
	default:
		return false
	}
}

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

const (
	TierFree       = "free"
	TierPro        = "pro"
	TierEnterprise = "enterprise"
)

// Subscription status vocabulary, mirroring the payment provider's enum.
// Unknown values are stored verbatim so newly introduced provider states
// are never silently dropped.
const (
	SubscriptionActive   = "active"
	SubscriptionTrialing = "trialing"
	SubscriptionPastDue  = "past_due"
	SubscriptionCanceled = "canceled"
	SubscriptionUnpaid   = "unpaid"
)

// TierForPlan maps a provider plan name onto the local rate-limit tier.
// Plan names are marketing copy ("Pro Plan", "Enterprise Annual"), so
// matching is by keyword. Plans we don't recognize stay on the free
// tier rather than failing.
func TierForPlan(planName string) string {
	name := strings.ToLower(planName)
	switch {
	case strings.Contains(name, "enterprise"):
		return TierEnterprise
	case strings.Contains(name, "pro"):
		return TierPro
	default:
		return TierFree
	}
}
