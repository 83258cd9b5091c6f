// AngelaMos | 2026
// entity.go

package billing

import (
	"errors"

	"github.com/carterperez-dev/saasbase/internal/user"
)

var (
	// ErrUserNotFound means no local user row matches the resolution key
	// (customer id on the async path, client reference on the sync path).
	// Redelivery of the same event is an idempotent no-op.
	ErrUserNotFound = errors.New("no user for billing customer")

	// ErrMissingPriceOrProduct means the subscription carried no resolvable
	// line item; nothing is written.
	ErrMissingPriceOrProduct = errors.New("subscription has no price or product")

	// ErrUpstreamFetchFailed means the secondary product-name lookup failed.
	// The whole reconciliation fails rather than writing a stale plan name.
	ErrUpstreamFetchFailed = errors.New("provider fetch failed")
)

// Subscription is the canonical, normalized view of a provider-side
// subscription. The provider's wire shapes (customer and product appear as
// either a bare id or an inlined object) are flattened at the boundary so
// the reconciler never deals with that distinction.
type Subscription struct {
	ID         string
	CustomerID string
	Status     string
	PriceID    string
	Product    ProductRef
}

// ProductRef is a product reference that always carries an id and may
// carry a display name. An empty Name means only the id was present and a
// secondary fetch is required to resolve it.
type ProductRef struct {
	ID   string
	Name string
}

// CheckoutSession is the normalized view of a completed checkout. The
// client reference carries the local user id through the checkout flow,
// since no customer-id mapping exists yet on first purchase.
type CheckoutSession struct {
	ID                string
	CustomerID        string
	SubscriptionID    string
	ClientReferenceID string
}

// Entitlement is the full tuple persisted per user. It always changes as a
// unit: either every field is overwritten or none is.
type Entitlement struct {
	SubscriptionID *string
	ProductID      *string
	PlanName       *string
	Status         string
	Tier           string
}

// Plan is a purchasable plan assembled from the provider's price and
// product catalogs.
type Plan struct {
	PriceID         string  `json:"price_id"`
	ProductID       string  `json:"product_id"`
	Name            string  `json:"name"`
	Description     string  `json:"description,omitempty"`
	UnitAmount      int64   `json:"unit_amount"`
	Currency        string  `json:"currency"`
	Interval        string  `json:"interval"`
	TrialPeriodDays int64   `json:"trial_period_days,omitempty"`
}

// entitledEntitlement builds the tuple for an active or trialing
// subscription.
func entitledEntitlement(sub Subscription, planName string) Entitlement {
	return Entitlement{
		SubscriptionID: &sub.ID,
		ProductID:      &sub.Product.ID,
		PlanName:       &planName,
		Status:         sub.Status,
		Tier:           user.TierForPlan(planName),
	}
}

// revokedEntitlement builds the tuple for a terminal status: subscription
// and plan references are nulled, only the status survives.
func revokedEntitlement(status string) Entitlement {
	return Entitlement{
		SubscriptionID: nil,
		ProductID:      nil,
		PlanName:       nil,
		Status:         status,
		Tier:           user.TierFree,
	}
}

type statusClass int

const (
	statusEntitled statusClass = iota
	statusRevoked
	statusPassThrough
)

// classifyStatus partitions every provider status string into exactly one
// of three branches. past_due revokes the plan immediately; there is no
// grace period. Unknown statuses pass through so new provider states are
// recorded rather than dropped.
func classifyStatus(status string) statusClass {
	switch status {
	case user.SubscriptionActive, user.SubscriptionTrialing:
		return statusEntitled
	case user.SubscriptionCanceled, user.SubscriptionUnpaid,
		user.SubscriptionPastDue:
		return statusRevoked
	default:
		return statusPassThrough
	}
}
