// AngelaMos | 2026
// entity_test.go

package user

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTierForPlan(t *testing.T) {
	cases := []struct {
		plan string
		want string
	}{
		{"Pro Plan", TierPro},
		{"pro", TierPro},
		{"PRO MONTHLY", TierPro},
		{"Enterprise Plan", TierEnterprise},
		{"Enterprise Annual", TierEnterprise},
		{"Starter", TierFree},
		{"", TierFree},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, TierForPlan(tc.plan), "plan %q", tc.plan)
	}
}

func TestHasPaidPlan(t *testing.T) {
	sub := "sub_123"
	active := SubscriptionActive
	trialing := SubscriptionTrialing
	canceled := SubscriptionCanceled

	u := &User{}
	assert.False(t, u.HasPaidPlan(), "no subscription state at all")

	u = &User{SubscriptionStatus: &active}
	assert.False(t, u.HasPaidPlan(), "status without a subscription id")

	u = &User{SubscriptionStatus: &active, StripeSubscriptionID: &sub}
	assert.True(t, u.HasPaidPlan())

	u = &User{SubscriptionStatus: &trialing, StripeSubscriptionID: &sub}
	assert.True(t, u.HasPaidPlan(), "trials count as paid access")

	u = &User{SubscriptionStatus: &canceled, StripeSubscriptionID: &sub}
	assert.False(t, u.HasPaidPlan())
}
