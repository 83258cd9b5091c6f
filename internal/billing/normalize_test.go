// AngelaMos | 2026
// normalize_test.go

package billing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSubscriptionInlineProduct(t *testing.T) {
	raw := []byte(`{
		"id": "sub_1",
		"customer": "cus_1",
		"status": "active",
		"items": {"data": [{"price": {"id": "price_1", "product": {"id": "prod_1", "name": "Pro Plan"}}}]}
	}`)

	sub, err := ParseSubscription(raw)
	require.NoError(t, err)
	assert.Equal(t, Subscription{
		ID:         "sub_1",
		CustomerID: "cus_1",
		Status:     "active",
		PriceID:    "price_1",
		Product:    ProductRef{ID: "prod_1", Name: "Pro Plan"},
	}, sub)
}

func TestParseSubscriptionBareProductID(t *testing.T) {
	raw := []byte(`{
		"id": "sub_1",
		"customer": {"id": "cus_1", "email": "u@example.com"},
		"status": "trialing",
		"items": {"data": [{"price": {"id": "price_1", "product": "prod_1"}}]}
	}`)

	sub, err := ParseSubscription(raw)
	require.NoError(t, err)
	assert.Equal(t, "cus_1", sub.CustomerID)
	assert.Equal(t, "prod_1", sub.Product.ID)
	assert.Empty(t, sub.Product.Name, "bare id carries no name")
}

func TestParseSubscriptionNoItems(t *testing.T) {
	raw := []byte(`{"id": "sub_1", "customer": "cus_1", "status": "active", "items": {"data": []}}`)

	sub, err := ParseSubscription(raw)
	require.NoError(t, err)
	assert.Empty(t, sub.PriceID)
	assert.Empty(t, sub.Product.ID)
}

func TestParseCheckoutSession(t *testing.T) {
	raw := []byte(`{
		"id": "cs_1",
		"customer": "cus_1",
		"subscription": "sub_1",
		"client_reference_id": "user-1"
	}`)

	sess, err := ParseCheckoutSession(raw)
	require.NoError(t, err)
	assert.Equal(t, CheckoutSession{
		ID:                "cs_1",
		CustomerID:        "cus_1",
		SubscriptionID:    "sub_1",
		ClientReferenceID: "user-1",
	}, sess)
}

func TestParseCheckoutSessionNullSubscription(t *testing.T) {
	raw := []byte(`{"id": "cs_1", "customer": "cus_1", "subscription": null, "client_reference_id": ""}`)

	sess, err := ParseCheckoutSession(raw)
	require.NoError(t, err)
	assert.Empty(t, sess.SubscriptionID)
	assert.Empty(t, sess.ClientReferenceID)
}
