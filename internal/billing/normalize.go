// AngelaMos | 2026
// normalize.go

package billing

import (
	"encoding/json"
	"fmt"

	stripelib "github.com/stripe/stripe-go/v82"
)

// expandable decodes the provider's id-or-object union: a field arrives as
// either a bare id string or an inlined object carrying at least an id.
type expandable struct {
	ID   string
	Name string
}

func (e *expandable) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}

	if data[0] == '"' {
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return err
		}
		e.ID = id
		return nil
	}

	var obj struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	e.ID = obj.ID
	e.Name = obj.Name
	return nil
}

type subscriptionPayload struct {
	ID       string     `json:"id"`
	Customer expandable `json:"customer"`
	Status   string     `json:"status"`
	Items    struct {
		Data []struct {
			Price struct {
				ID      string     `json:"id"`
				Product expandable `json:"product"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

type checkoutPayload struct {
	ID                string     `json:"id"`
	Customer          expandable `json:"customer"`
	Subscription      expandable `json:"subscription"`
	ClientReferenceID string     `json:"client_reference_id"`
}

// ParseSubscription normalizes a raw subscription event payload. Only the
// first line item is considered; subscriptions here carry exactly one.
func ParseSubscription(raw []byte) (Subscription, error) {
	var payload subscriptionPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return Subscription{}, fmt.Errorf("decode subscription payload: %w", err)
	}

	sub := Subscription{
		ID:         payload.ID,
		CustomerID: payload.Customer.ID,
		Status:     payload.Status,
	}

	if len(payload.Items.Data) > 0 {
		item := payload.Items.Data[0]
		sub.PriceID = item.Price.ID
		sub.Product = ProductRef{
			ID:   item.Price.Product.ID,
			Name: item.Price.Product.Name,
		}
	}

	return sub, nil
}

// ParseCheckoutSession normalizes a raw checkout.session event payload.
func ParseCheckoutSession(raw []byte) (CheckoutSession, error) {
	var payload checkoutPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return CheckoutSession{}, fmt.Errorf("decode checkout payload: %w", err)
	}

	return CheckoutSession{
		ID:                payload.ID,
		CustomerID:        payload.Customer.ID,
		SubscriptionID:    payload.Subscription.ID,
		ClientReferenceID: payload.ClientReferenceID,
	}, nil
}

func fromStripeSubscription(sub *stripelib.Subscription) Subscription {
	normalized := Subscription{
		ID:     sub.ID,
		Status: string(sub.Status),
	}

	if sub.Customer != nil {
		normalized.CustomerID = sub.Customer.ID
	}

	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		if item.Price != nil {
			normalized.PriceID = item.Price.ID
			if item.Price.Product != nil {
				normalized.Product = ProductRef{
					ID:   item.Price.Product.ID,
					Name: item.Price.Product.Name,
				}
			}
		}
	}

	return normalized
}

func fromStripeCheckoutSession(sess *stripelib.CheckoutSession) CheckoutSession {
	normalized := CheckoutSession{
		ID:                sess.ID,
		ClientReferenceID: sess.ClientReferenceID,
	}

	if sess.Customer != nil {
		normalized.CustomerID = sess.Customer.ID
	}

	if sess.Subscription != nil {
		normalized.SubscriptionID = sess.Subscription.ID
	}

	return normalized
}
