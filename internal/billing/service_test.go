// AngelaMos | 2026
// service_test.go

package billing

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carterperez-dev/saasbase/internal/audit"
	"github.com/carterperez-dev/saasbase/internal/config"
	"github.com/carterperez-dev/saasbase/internal/core"
	"github.com/carterperez-dev/saasbase/internal/user"
)

type entitlementRow struct {
	userID     string
	customerID string
	ent        Entitlement
}

type fakeRepo struct {
	mu   sync.Mutex
	rows []*entitlementRow
}

func (f *fakeRepo) byCustomer(customerID string) *entitlementRow {
	for _, row := range f.rows {
		if row.customerID == customerID {
			return row
		}
	}
	return nil
}

func (f *fakeRepo) byUser(userID string) *entitlementRow {
	for _, row := range f.rows {
		if row.userID == userID {
			return row
		}
	}
	return nil
}

func (f *fakeRepo) ApplyByCustomer(_ context.Context, customerID string, ent Entitlement) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	row := f.byCustomer(customerID)
	if row == nil {
		return core.ErrNotFound
	}
	row.ent = ent
	return nil
}

func (f *fakeRepo) ApplyStatusByCustomer(_ context.Context, customerID, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	row := f.byCustomer(customerID)
	if row == nil {
		return core.ErrNotFound
	}
	row.ent.Status = status
	return nil
}

func (f *fakeRepo) ActivateCheckout(_ context.Context, userID, customerID string, ent Entitlement) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	row := f.byUser(userID)
	if row == nil {
		return core.ErrNotFound
	}
	row.customerID = customerID
	row.ent = ent
	return nil
}

func (f *fakeRepo) entitlement(customerID string) Entitlement {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byCustomer(customerID).ent
}

type fakeProvider struct {
	mu           sync.Mutex
	products     map[string]ProductRef
	productErr   error
	productCalls int
	sessions     map[string]CheckoutSession
	sessionErr   error
	subs         map[string]Subscription
	checkoutURL  string
	portalURL    string
	plans        []Plan
	lastCheckout CreateCheckoutParams
}

func (f *fakeProvider) CheckoutSession(_ context.Context, id string) (CheckoutSession, error) {
	if f.sessionErr != nil {
		return CheckoutSession{}, f.sessionErr
	}
	sess, ok := f.sessions[id]
	if !ok {
		return CheckoutSession{}, errors.New("no such session")
	}
	return sess, nil
}

func (f *fakeProvider) Subscription(_ context.Context, id string) (Subscription, error) {
	sub, ok := f.subs[id]
	if !ok {
		return Subscription{}, errors.New("no such subscription")
	}
	return sub, nil
}

func (f *fakeProvider) Product(_ context.Context, id string) (ProductRef, error) {
	f.mu.Lock()
	f.productCalls++
	f.mu.Unlock()

	if f.productErr != nil {
		return ProductRef{}, f.productErr
	}
	ref, ok := f.products[id]
	if !ok {
		return ProductRef{}, errors.New("no such product")
	}
	return ref, nil
}

func (f *fakeProvider) CreateCheckoutSession(_ context.Context, params CreateCheckoutParams) (string, error) {
	f.lastCheckout = params
	return f.checkoutURL, nil
}

func (f *fakeProvider) CreatePortalSession(_ context.Context, _, _ string) (string, error) {
	return f.portalURL, nil
}

func (f *fakeProvider) ListPlans(_ context.Context) ([]Plan, error) {
	return f.plans, nil
}

type fakeUsers struct {
	users map[string]*user.User
}

func (f *fakeUsers) GetByID(_ context.Context, id string) (*user.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return u, nil
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.App.BaseURL = "https://app.example.com"
	cfg.Stripe.SuccessURL = "/dashboard?success=subscription-created"
	cfg.Stripe.CancelURL = "/pricing"
	cfg.Stripe.PortalURL = "/settings/billing"
	return cfg
}

type noopRecorder struct{}

func (noopRecorder) Record(context.Context, audit.Entry) {}

func newTestService(repo Repository, provider Provider, users UserDirectory) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(repo, provider, users, noopRecorder{}, testConfig(), logger)
}

func strPtr(s string) *string { return &s }

func activeSub() Subscription {
	return Subscription{
		ID:         "sub_1",
		CustomerID: "cus_1",
		Status:     user.SubscriptionActive,
		PriceID:    "price_pro",
		Product:    ProductRef{ID: "prod_pro", Name: "Pro Plan"},
	}
}

func repoWithCustomer() *fakeRepo {
	return &fakeRepo{rows: []*entitlementRow{
		{userID: "user-1", customerID: "cus_1"},
	}}
}

func TestReconcileActiveWritesFullTuple(t *testing.T) {
	repo := repoWithCustomer()
	provider := &fakeProvider{}
	svc := newTestService(repo, provider, &fakeUsers{})

	require.NoError(t, svc.Reconcile(context.Background(), activeSub()))

	got := repo.entitlement("cus_1")
	assert.Equal(t, Entitlement{
		SubscriptionID: strPtr("sub_1"),
		ProductID:      strPtr("prod_pro"),
		PlanName:       strPtr("Pro Plan"),
		Status:         user.SubscriptionActive,
		Tier:           user.TierPro,
	}, got)
	assert.Zero(t, provider.productCalls, "inline product name should not trigger a fetch")
}

func TestReconcileTrialingGrantsEntitlement(t *testing.T) {
	repo := repoWithCustomer()
	svc := newTestService(repo, &fakeProvider{}, &fakeUsers{})

	sub := activeSub()
	sub.Status = user.SubscriptionTrialing

	require.NoError(t, svc.Reconcile(context.Background(), sub))

	got := repo.entitlement("cus_1")
	assert.Equal(t, user.SubscriptionTrialing, got.Status)
	assert.Equal(t, user.TierPro, got.Tier)
	require.NotNil(t, got.SubscriptionID)
	assert.Equal(t, "sub_1", *got.SubscriptionID)
}

func TestReconcileFetchesProductNameWhenMissing(t *testing.T) {
	repo := repoWithCustomer()
	provider := &fakeProvider{
		products: map[string]ProductRef{
			"prod_ent": {ID: "prod_ent", Name: "Enterprise Plan"},
		},
	}
	svc := newTestService(repo, provider, &fakeUsers{})

	sub := activeSub()
	sub.PriceID = "price_ent"
	sub.Product = ProductRef{ID: "prod_ent"}

	require.NoError(t, svc.Reconcile(context.Background(), sub))

	got := repo.entitlement("cus_1")
	require.NotNil(t, got.PlanName)
	assert.Equal(t, "Enterprise Plan", *got.PlanName)
	assert.Equal(t, user.TierEnterprise, got.Tier)
	assert.Equal(t, 1, provider.productCalls)
}

func TestReconcileRevokedStatusesClearEntitlement(t *testing.T) {
	for _, status := range []string{
		user.SubscriptionCanceled,
		user.SubscriptionUnpaid,
		user.SubscriptionPastDue,
	} {
		t.Run(status, func(t *testing.T) {
			repo := repoWithCustomer()
			svc := newTestService(repo, &fakeProvider{}, &fakeUsers{})

			// Grant first so revocation has something to clear.
			require.NoError(t, svc.Reconcile(context.Background(), activeSub()))

			sub := activeSub()
			sub.Status = status
			require.NoError(t, svc.Reconcile(context.Background(), sub))

			got := repo.entitlement("cus_1")
			assert.Nil(t, got.SubscriptionID)
			assert.Nil(t, got.ProductID)
			assert.Nil(t, got.PlanName)
			assert.Equal(t, status, got.Status)
			assert.Equal(t, user.TierFree, got.Tier)
		})
	}
}

func TestReconcileUnknownStatusUpdatesStatusOnly(t *testing.T) {
	repo := repoWithCustomer()
	svc := newTestService(repo, &fakeProvider{}, &fakeUsers{})

	require.NoError(t, svc.Reconcile(context.Background(), activeSub()))

	sub := activeSub()
	sub.Status = "incomplete"
	require.NoError(t, svc.Reconcile(context.Background(), sub))

	got := repo.entitlement("cus_1")
	assert.Equal(t, "incomplete", got.Status)
	require.NotNil(t, got.SubscriptionID)
	assert.Equal(t, "sub_1", *got.SubscriptionID)
	require.NotNil(t, got.PlanName)
	assert.Equal(t, "Pro Plan", *got.PlanName)
	assert.Equal(t, user.TierPro, got.Tier, "pass-through must not touch the tier")
}

func TestReconcileIsIdempotent(t *testing.T) {
	repo := repoWithCustomer()
	svc := newTestService(repo, &fakeProvider{}, &fakeUsers{})

	sub := activeSub()
	require.NoError(t, svc.Reconcile(context.Background(), sub))
	first := repo.entitlement("cus_1")

	require.NoError(t, svc.Reconcile(context.Background(), sub))
	assert.Equal(t, first, repo.entitlement("cus_1"))
}

func TestReconcileUnknownCustomer(t *testing.T) {
	repo := &fakeRepo{}
	svc := newTestService(repo, &fakeProvider{}, &fakeUsers{})

	err := svc.Reconcile(context.Background(), activeSub())
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestReconcileMissingPriceLeavesStateUntouched(t *testing.T) {
	repo := repoWithCustomer()
	svc := newTestService(repo, &fakeProvider{}, &fakeUsers{})

	require.NoError(t, svc.Reconcile(context.Background(), activeSub()))
	before := repo.entitlement("cus_1")

	sub := activeSub()
	sub.PriceID = ""
	sub.Product = ProductRef{}

	err := svc.Reconcile(context.Background(), sub)
	assert.ErrorIs(t, err, ErrMissingPriceOrProduct)
	assert.Equal(t, before, repo.entitlement("cus_1"))
}

func TestReconcileProductFetchFailureLeavesStateUntouched(t *testing.T) {
	repo := repoWithCustomer()
	provider := &fakeProvider{productErr: errors.New("upstream down")}
	svc := newTestService(repo, provider, &fakeUsers{})

	require.NoError(t, svc.Reconcile(context.Background(), activeSub()))
	before := repo.entitlement("cus_1")

	sub := activeSub()
	sub.Product = ProductRef{ID: "prod_pro"}

	err := svc.Reconcile(context.Background(), sub)
	assert.ErrorIs(t, err, ErrUpstreamFetchFailed)
	assert.Equal(t, before, repo.entitlement("cus_1"))
}

func TestReconcileRejectsEmptyIdentifiers(t *testing.T) {
	svc := newTestService(&fakeRepo{}, &fakeProvider{}, &fakeUsers{})

	sub := activeSub()
	sub.CustomerID = ""
	assert.ErrorIs(t, svc.Reconcile(context.Background(), sub), core.ErrInvalidInput)

	sub = activeSub()
	sub.ID = ""
	assert.ErrorIs(t, svc.Reconcile(context.Background(), sub), core.ErrInvalidInput)
}

// Concurrent reconciliations for the same customer must each land a
// complete tuple: the final row has to match one input exactly, never a
// mix of two.
func TestReconcileConcurrentWritesNeverInterleave(t *testing.T) {
	repo := repoWithCustomer()
	svc := newTestService(repo, &fakeProvider{}, &fakeUsers{})

	proSub := activeSub()
	entSub := Subscription{
		ID:         "sub_2",
		CustomerID: "cus_1",
		Status:     user.SubscriptionActive,
		PriceID:    "price_ent",
		Product:    ProductRef{ID: "prod_ent", Name: "Enterprise Plan"},
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		sub := proSub
		if i%2 == 1 {
			sub = entSub
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = svc.Reconcile(context.Background(), sub)
		}()
	}
	wg.Wait()

	got := repo.entitlement("cus_1")
	want := map[string]Entitlement{
		"sub_1": {
			SubscriptionID: strPtr("sub_1"),
			ProductID:      strPtr("prod_pro"),
			PlanName:       strPtr("Pro Plan"),
			Status:         user.SubscriptionActive,
			Tier:           user.TierPro,
		},
		"sub_2": {
			SubscriptionID: strPtr("sub_2"),
			ProductID:      strPtr("prod_ent"),
			PlanName:       strPtr("Enterprise Plan"),
			Status:         user.SubscriptionActive,
			Tier:           user.TierEnterprise,
		},
	}

	require.NotNil(t, got.SubscriptionID)
	assert.Equal(t, want[*got.SubscriptionID], got)
}

func TestCompleteCheckoutWritesMappingAndTuple(t *testing.T) {
	repo := &fakeRepo{rows: []*entitlementRow{{userID: "user-1"}}}
	provider := &fakeProvider{
		sessions: map[string]CheckoutSession{
			"cs_1": {
				ID:                "cs_1",
				CustomerID:        "cus_new",
				SubscriptionID:    "sub_1",
				ClientReferenceID: "user-1",
			},
		},
		subs: map[string]Subscription{
			"sub_1": activeSub(),
		},
	}
	svc := newTestService(repo, provider, &fakeUsers{})

	require.NoError(t, svc.CompleteCheckout(context.Background(), "cs_1"))

	repo.mu.Lock()
	row := repo.byUser("user-1")
	repo.mu.Unlock()

	assert.Equal(t, "cus_new", row.customerID)
	require.NotNil(t, row.ent.PlanName)
	assert.Equal(t, "Pro Plan", *row.ent.PlanName)
	assert.Equal(t, user.SubscriptionActive, row.ent.Status)
}

func TestCompleteCheckoutReasons(t *testing.T) {
	baseSession := CheckoutSession{
		ID:                "cs_1",
		CustomerID:        "cus_1",
		SubscriptionID:    "sub_1",
		ClientReferenceID: "user-1",
	}

	tests := []struct {
		name      string
		sessionID string
		mutate    func(*fakeRepo, *fakeProvider)
		reason    string
	}{
		{
			name:      "missing session id",
			sessionID: "",
			mutate:    func(*fakeRepo, *fakeProvider) {},
			reason:    ReasonMissingSession,
		},
		{
			name:      "session lookup fails",
			sessionID: "cs_1",
			mutate: func(_ *fakeRepo, p *fakeProvider) {
				p.sessionErr = errors.New("no such session")
			},
			reason: ReasonInvalidSession,
		},
		{
			name:      "session has no subscription",
			sessionID: "cs_1",
			mutate: func(_ *fakeRepo, p *fakeProvider) {
				sess := baseSession
				sess.SubscriptionID = ""
				p.sessions["cs_1"] = sess
			},
			reason: ReasonNoSubscription,
		},
		{
			name:      "session has no client reference",
			sessionID: "cs_1",
			mutate: func(_ *fakeRepo, p *fakeProvider) {
				sess := baseSession
				sess.ClientReferenceID = ""
				p.sessions["cs_1"] = sess
			},
			reason: ReasonNoUserID,
		},
		{
			name:      "subscription has no price",
			sessionID: "cs_1",
			mutate: func(_ *fakeRepo, p *fakeProvider) {
				sub := activeSub()
				sub.PriceID = ""
				p.subs["sub_1"] = sub
			},
			reason: ReasonNoPrice,
		},
		{
			name:      "no customer id anywhere",
			sessionID: "cs_1",
			mutate: func(_ *fakeRepo, p *fakeProvider) {
				sess := baseSession
				sess.CustomerID = ""
				p.sessions["cs_1"] = sess
				sub := activeSub()
				sub.CustomerID = ""
				p.subs["sub_1"] = sub
			},
			reason: ReasonProcessingFailed,
		},
		{
			name:      "referenced user does not exist",
			sessionID: "cs_1",
			mutate: func(r *fakeRepo, _ *fakeProvider) {
				r.rows = nil
			},
			reason: ReasonUserNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &fakeRepo{rows: []*entitlementRow{{userID: "user-1"}}}
			provider := &fakeProvider{
				sessions: map[string]CheckoutSession{"cs_1": baseSession},
				subs:     map[string]Subscription{"sub_1": activeSub()},
			}
			tt.mutate(repo, provider)
			svc := newTestService(repo, provider, &fakeUsers{})

			err := svc.CompleteCheckout(context.Background(), tt.sessionID)
			require.Error(t, err)

			var checkoutErr *CheckoutError
			require.ErrorAs(t, err, &checkoutErr)
			assert.Equal(t, tt.reason, checkoutErr.Reason)
		})
	}
}

func TestCreateCheckoutSessionIdentifiesUser(t *testing.T) {
	provider := &fakeProvider{checkoutURL: "https://pay.example.com/cs_1"}
	users := &fakeUsers{users: map[string]*user.User{
		"user-new": {ID: "user-new", Email: "new@example.com"},
		"user-ret": {ID: "user-ret", Email: "ret@example.com", StripeCustomerID: strPtr("cus_ret")},
	}}
	svc := newTestService(&fakeRepo{}, provider, users)

	url, err := svc.CreateCheckoutSession(context.Background(), "user-new", "price_pro")
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example.com/cs_1", url)
	assert.Equal(t, "new@example.com", provider.lastCheckout.CustomerEmail)
	assert.Empty(t, provider.lastCheckout.CustomerID)
	assert.Equal(t, "user-new", provider.lastCheckout.ClientReferenceID)
	assert.Contains(t, provider.lastCheckout.SuccessURL, "session_id={CHECKOUT_SESSION_ID}")

	_, err = svc.CreateCheckoutSession(context.Background(), "user-ret", "price_pro")
	require.NoError(t, err)
	assert.Equal(t, "cus_ret", provider.lastCheckout.CustomerID)
	assert.Empty(t, provider.lastCheckout.CustomerEmail)
}

func TestCreatePortalRequiresBillingAccount(t *testing.T) {
	users := &fakeUsers{users: map[string]*user.User{
		"user-1": {ID: "user-1", Email: "u@example.com"},
	}}
	svc := newTestService(&fakeRepo{}, &fakeProvider{portalURL: "https://portal.example.com"}, users)

	_, err := svc.CreatePortalSession(context.Background(), "user-1")
	require.Error(t, err)

	var appErr *core.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "NO_BILLING_ACCOUNT", appErr.Code)
}

func TestListPlansSortsByPrice(t *testing.T) {
	provider := &fakeProvider{plans: []Plan{
		{PriceID: "price_ent", UnitAmount: 4900},
		{PriceID: "price_pro", UnitAmount: 1900},
	}}
	svc := newTestService(&fakeRepo{}, provider, &fakeUsers{})

	plans, err := svc.ListPlans(context.Background())
	require.NoError(t, err)
	require.Len(t, plans, 2)
	assert.Equal(t, "price_pro", plans[0].PriceID)
	assert.Equal(t, "price_ent", plans[1].PriceID)
}
