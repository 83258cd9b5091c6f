// AngelaMos | 2026
// service.go

package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"

	"github.com/carterperez-dev/saasbase/internal/audit"
	"github.com/carterperez-dev/saasbase/internal/config"
	"github.com/carterperez-dev/saasbase/internal/core"
	"github.com/carterperez-dev/saasbase/internal/user"
)

// Checkout completion failure reasons, surfaced to the browser as a
// redirect query parameter rather than an error page.
const (
	ReasonMissingSession   = "missing-session"
	ReasonInvalidSession   = "invalid-session"
	ReasonNoSubscription   = "no-subscription"
	ReasonNoUserID         = "no-user-id"
	ReasonUserNotFound     = "user-not-found"
	ReasonNoPrice          = "no-price"
	ReasonUpdateFailed     = "update-failed"
	ReasonProcessingFailed = "processing-failed"
)

// CheckoutError carries a machine-readable reason for a failed checkout
// completion. Every failure branch maps to exactly one reason.
type CheckoutError struct {
	Reason string
	err    error
}

func (e *CheckoutError) Error() string {
	if e.err == nil {
		return "checkout failed: " + e.Reason
	}
	return fmt.Sprintf("checkout failed (%s): %v", e.Reason, e.err)
}

func (e *CheckoutError) Unwrap() error {
	return e.err
}

// UserDirectory is the slice of the user store the billing service needs:
// resolving a user to their email and existing customer mapping.
type UserDirectory interface {
	GetByID(ctx context.Context, id string) (*user.User, error)
}

type Service struct {
	repo     Repository
	provider Provider
	users    UserDirectory
	recorder audit.Recorder
	cfg      *config.Config
	logger   *slog.Logger
}

func NewService(
	repo Repository,
	provider Provider,
	users UserDirectory,
	recorder audit.Recorder,
	cfg *config.Config,
	logger *slog.Logger,
) *Service {
	return &Service{
		repo:     repo,
		provider: provider,
		users:    users,
		recorder: recorder,
		cfg:      cfg,
		logger:   logger,
	}
}

// Reconcile drives the local entitlement tuple to match a provider-side
// subscription snapshot. It is idempotent: replaying the same snapshot
// rewrites identical values. Events are applied in arrival order with no
// version check, so a stale redelivery can briefly win until the next
// event lands.
func (s *Service) Reconcile(ctx context.Context, sub Subscription) error {
	if sub.ID == "" || sub.CustomerID == "" {
		return fmt.Errorf("reconcile subscription: %w", core.ErrInvalidInput)
	}

	switch classifyStatus(sub.Status) {
	case statusEntitled:
		return s.reconcileEntitled(ctx, sub)

	case statusRevoked:
		if err := s.repo.ApplyByCustomer(ctx, sub.CustomerID, revokedEntitlement(sub.Status)); err != nil {
			if errors.Is(err, core.ErrNotFound) {
				return fmt.Errorf("reconcile %s: %w", sub.ID, ErrUserNotFound)
			}
			return fmt.Errorf("reconcile %s: %w", sub.ID, err)
		}

	default:
		if err := s.repo.ApplyStatusByCustomer(ctx, sub.CustomerID, sub.Status); err != nil {
			if errors.Is(err, core.ErrNotFound) {
				return fmt.Errorf("reconcile %s: %w", sub.ID, ErrUserNotFound)
			}
			return fmt.Errorf("reconcile %s: %w", sub.ID, err)
		}
	}

	s.logger.Info("entitlement reconciled",
		"subscription_id", sub.ID,
		"customer_id", sub.CustomerID,
		"status", sub.Status,
	)
	s.recorder.Record(ctx, audit.Entry{
		Action: audit.ActionEntitlementSynced,
		Metadata: map[string]any{
			"subscription_id": sub.ID,
			"customer_id":     sub.CustomerID,
			"status":          sub.Status,
		},
	})
	return nil
}

func (s *Service) reconcileEntitled(ctx context.Context, sub Subscription) error {
	planName, err := s.resolvePlanName(ctx, sub)
	if err != nil {
		return fmt.Errorf("reconcile %s: %w", sub.ID, err)
	}

	if err := s.repo.ApplyByCustomer(ctx, sub.CustomerID, entitledEntitlement(sub, planName)); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return fmt.Errorf("reconcile %s: %w", sub.ID, ErrUserNotFound)
		}
		return fmt.Errorf("reconcile %s: %w", sub.ID, err)
	}

	s.logger.Info("entitlement granted",
		"subscription_id", sub.ID,
		"customer_id", sub.CustomerID,
		"plan", planName,
		"status", sub.Status,
	)
	s.recorder.Record(ctx, audit.Entry{
		Action: audit.ActionEntitlementSynced,
		Metadata: map[string]any{
			"subscription_id": sub.ID,
			"customer_id":     sub.CustomerID,
			"plan":            planName,
			"status":          sub.Status,
		},
	})
	return nil
}

// resolvePlanName returns the display name for the subscription's product,
// fetching it from the provider when the event carried only a product id.
func (s *Service) resolvePlanName(ctx context.Context, sub Subscription) (string, error) {
	if sub.PriceID == "" || sub.Product.ID == "" {
		return "", ErrMissingPriceOrProduct
	}
	if sub.Product.Name != "" {
		return sub.Product.Name, nil
	}

	product, err := s.provider.Product(ctx, sub.Product.ID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpstreamFetchFailed, err)
	}
	return product.Name, nil
}

// CompleteCheckout resolves a finished checkout session back to a local
// user and writes the customer mapping plus the first entitlement tuple.
// Failures come back as *CheckoutError so the handler can redirect with a
// reason instead of rendering an error.
func (s *Service) CompleteCheckout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return &CheckoutError{Reason: ReasonMissingSession}
	}

	sess, err := s.provider.CheckoutSession(ctx, sessionID)
	if err != nil {
		return &CheckoutError{Reason: ReasonInvalidSession, err: err}
	}
	if sess.SubscriptionID == "" {
		return &CheckoutError{Reason: ReasonNoSubscription}
	}
	if sess.ClientReferenceID == "" {
		return &CheckoutError{Reason: ReasonNoUserID}
	}

	sub, err := s.provider.Subscription(ctx, sess.SubscriptionID)
	if err != nil {
		return &CheckoutError{Reason: ReasonProcessingFailed, err: err}
	}
	if sub.PriceID == "" || sub.Product.ID == "" {
		return &CheckoutError{Reason: ReasonNoPrice}
	}

	planName, err := s.resolvePlanName(ctx, sub)
	if err != nil {
		return &CheckoutError{Reason: ReasonProcessingFailed, err: err}
	}

	customerID := sess.CustomerID
	if customerID == "" {
		customerID = sub.CustomerID
	}
	// Without a customer id the row can never be found again by the
	// webhook path, so refuse to write it.
	if customerID == "" {
		return &CheckoutError{Reason: ReasonProcessingFailed}
	}

	err = s.repo.ActivateCheckout(ctx, sess.ClientReferenceID, customerID, entitledEntitlement(sub, planName))
	if errors.Is(err, core.ErrNotFound) {
		return &CheckoutError{Reason: ReasonUserNotFound, err: err}
	}
	if err != nil {
		return &CheckoutError{Reason: ReasonUpdateFailed, err: err}
	}

	s.logger.Info("checkout completed",
		"session_id", sessionID,
		"user_id", sess.ClientReferenceID,
		"customer_id", customerID,
		"plan", planName,
	)
	s.recorder.Record(ctx, audit.Entry{
		UserID: sess.ClientReferenceID,
		Action: audit.ActionCheckoutCompleted,
		Metadata: map[string]any{
			"session_id":  sessionID,
			"customer_id": customerID,
			"plan":        planName,
		},
	})
	return nil
}

// CreateCheckoutSession opens a hosted checkout for the given price and
// returns the URL to send the browser to. Existing customers reuse their
// mapping; first-time buyers are identified by email and tied back to the
// local user through the client reference id.
func (s *Service) CreateCheckoutSession(ctx context.Context, userID, priceID string) (string, error) {
	if priceID == "" {
		return "", fmt.Errorf("create checkout: %w", core.ErrInvalidInput)
	}

	usr, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("create checkout: %w", err)
	}

	params := CreateCheckoutParams{
		PriceID:           priceID,
		ClientReferenceID: usr.ID,
		SuccessURL:        s.cfg.AbsoluteURL("/v1/billing/checkout/complete") + "?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:         s.cfg.AbsoluteURL(s.cfg.Stripe.CancelURL),
		TrialDays:         14,
	}
	if usr.StripeCustomerID != nil && *usr.StripeCustomerID != "" {
		params.CustomerID = *usr.StripeCustomerID
	} else {
		params.CustomerEmail = usr.Email
	}

	url, err := s.provider.CreateCheckoutSession(ctx, params)
	if err != nil {
		return "", fmt.Errorf("create checkout: %w", err)
	}
	return url, nil
}

// CreatePortalSession opens the provider's self-serve billing portal for
// an existing customer.
func (s *Service) CreatePortalSession(ctx context.Context, userID string) (string, error) {
	usr, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("create portal: %w", err)
	}
	if usr.StripeCustomerID == nil || *usr.StripeCustomerID == "" {
		return "", core.NewAppError(nil, "NO_BILLING_ACCOUNT",
			"No billing account exists for this user", http.StatusBadRequest)
	}

	url, err := s.provider.CreatePortalSession(ctx, *usr.StripeCustomerID, s.cfg.AbsoluteURL(s.cfg.Stripe.PortalURL))
	if err != nil {
		return "", fmt.Errorf("create portal: %w", err)
	}
	return url, nil
}

// ListPlans returns the purchasable catalog, cheapest first.
func (s *Service) ListPlans(ctx context.Context) ([]Plan, error) {
	plans, err := s.provider.ListPlans(ctx)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}

	sort.Slice(plans, func(i, j int) bool {
		return plans[i].UnitAmount < plans[j].UnitAmount
	})
	return plans, nil
}
