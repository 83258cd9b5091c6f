// AngelaMos | 2026
// provider.go

package billing

import (
	"context"
	"fmt"

	stripelib "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

// Provider is the read/write boundary to the payment processor. Everything
// behind it speaks normalized types; nothing outside this file touches the
// processor SDK directly.
type Provider interface {
	CheckoutSession(ctx context.Context, id string) (CheckoutSession, error)
	Subscription(ctx context.Context, id string) (Subscription, error)
	Product(ctx context.Context, id string) (ProductRef, error)
	CreateCheckoutSession(ctx context.Context, params CreateCheckoutParams) (string, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)
	ListPlans(ctx context.Context) ([]Plan, error)
}

// CreateCheckoutParams carries everything needed to open a hosted checkout.
// Exactly one of CustomerID or CustomerEmail should be set; the reference ID
// ties the resulting session back to our user record.
type CreateCheckoutParams struct {
	PriceID           string
	CustomerID        string
	CustomerEmail     string
	ClientReferenceID string
	SuccessURL        string
	CancelURL         string
	TrialDays         int64
}

type stripeProvider struct {
	api *client.API
}

// NewStripeProvider builds a Provider over the Stripe SDK.
func NewStripeProvider(secretKey string) Provider {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &stripeProvider{api: api}
}

func (p *stripeProvider) CheckoutSession(ctx context.Context, id string) (CheckoutSession, error) {
	params := &stripelib.CheckoutSessionParams{
		Params: stripelib.Params{Context: ctx},
	}
	params.AddExpand("subscription")
	params.AddExpand("customer")

	sess, err := p.api.CheckoutSessions.Get(id, params)
	if err != nil {
		return CheckoutSession{}, fmt.Errorf("retrieve checkout session: %w", err)
	}
	return fromStripeCheckoutSession(sess), nil
}

func (p *stripeProvider) Subscription(ctx context.Context, id string) (Subscription, error) {
	params := &stripelib.SubscriptionParams{
		Params: stripelib.Params{Context: ctx},
	}
	params.AddExpand("items.data.price.product")

	sub, err := p.api.Subscriptions.Get(id, params)
	if err != nil {
		return Subscription{}, fmt.Errorf("retrieve subscription: %w", err)
	}
	return fromStripeSubscription(sub), nil
}

func (p *stripeProvider) Product(ctx context.Context, id string) (ProductRef, error) {
	params := &stripelib.ProductParams{
		Params: stripelib.Params{Context: ctx},
	}

	product, err := p.api.Products.Get(id, params)
	if err != nil {
		return ProductRef{}, fmt.Errorf("retrieve product: %w", err)
	}
	return ProductRef{ID: product.ID, Name: product.Name}, nil
}

func (p *stripeProvider) CreateCheckoutSession(ctx context.Context, cp CreateCheckoutParams) (string, error) {
	params := &stripelib.CheckoutSessionParams{
		Params:     stripelib.Params{Context: ctx},
		Mode:       stripelib.String(string(stripelib.CheckoutSessionModeSubscription)),
		SuccessURL: stripelib.String(cp.SuccessURL),
		CancelURL:  stripelib.String(cp.CancelURL),
		LineItems: []*stripelib.CheckoutSessionLineItemParams{
			{
				Price:    stripelib.String(cp.PriceID),
				Quantity: stripelib.Int64(1),
			},
		},
		AllowPromotionCodes: stripelib.Bool(true),
	}

	if cp.ClientReferenceID != "" {
		params.ClientReferenceID = stripelib.String(cp.ClientReferenceID)
	}
	if cp.CustomerID != "" {
		params.Customer = stripelib.String(cp.CustomerID)
	} else if cp.CustomerEmail != "" {
		params.CustomerEmail = stripelib.String(cp.CustomerEmail)
	}
	if cp.TrialDays > 0 {
		params.SubscriptionData = &stripelib.CheckoutSessionSubscriptionDataParams{
			TrialPeriodDays: stripelib.Int64(cp.TrialDays),
		}
	}

	sess, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	return sess.URL, nil
}

func (p *stripeProvider) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	params := &stripelib.BillingPortalSessionParams{
		Params:    stripelib.Params{Context: ctx},
		Customer:  stripelib.String(customerID),
		ReturnURL: stripelib.String(returnURL),
	}

	sess, err := p.api.BillingPortalSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("create portal session: %w", err)
	}
	return sess.URL, nil
}

func (p *stripeProvider) ListPlans(ctx context.Context) ([]Plan, error) {
	params := &stripelib.PriceListParams{
		ListParams: stripelib.ListParams{Context: ctx},
		Active:     stripelib.Bool(true),
		Type:       stripelib.String(string(stripelib.PriceTypeRecurring)),
	}
	params.AddExpand("data.product")

	var plans []Plan
	iter := p.api.Prices.List(params)
	for iter.Next() {
		price := iter.Price()
		plan := Plan{
			PriceID:  price.ID,
			Currency: string(price.Currency),
		}
		if price.UnitAmount != 0 {
			plan.UnitAmount = price.UnitAmount
		}
		if price.Recurring != nil {
			plan.Interval = string(price.Recurring.Interval)
			plan.TrialPeriodDays = price.Recurring.TrialPeriodDays
		}
		if price.Product != nil {
			plan.ProductID = price.Product.ID
			plan.Name = price.Product.Name
			plan.Description = price.Product.Description
		}
		plans = append(plans, plan)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("list prices: %w", err)
	}
	return plans, nil
}
