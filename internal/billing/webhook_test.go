// AngelaMos | 2026
// webhook_test.go

package billing

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	stripewebhook "github.com/stripe/stripe-go/v82/webhook"

	"github.com/carterperez-dev/saasbase/internal/user"
)

const testWebhookSecret = "whsec_test_secret"

func newTestWebhookHandler(repo Repository, provider Provider) *WebhookHandler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(repo, provider, &fakeUsers{}, noopRecorder{}, testConfig(), logger)
	return NewWebhookHandler(svc, testWebhookSecret, logger)
}

func signedWebhookRequest(t *testing.T, payload string) *http.Request {
	t.Helper()

	signed := stripewebhook.GenerateTestSignedPayload(&stripewebhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/billing/webhook", bytes.NewReader(signed.Payload))
	req.Header.Set("Stripe-Signature", signed.Header)
	req.Header.Set("Content-Type", "application/json")
	return req
}

const subscriptionUpdatedJSON = `{
	"id": "evt_1",
	"object": "event",
	"type": "customer.subscription.updated",
	"data": {
		"object": {
			"id": "sub_1",
			"customer": "cus_1",
			"status": "active",
			"items": {
				"data": [
					{
						"price": {
							"id": "price_pro",
							"product": {"id": "prod_pro", "name": "Pro Plan"}
						}
					}
				]
			}
		}
	}
}`

func TestWebhookRejectsInvalidSignature(t *testing.T) {
	handler := newTestWebhookHandler(&fakeRepo{}, &fakeProvider{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/billing/webhook", bytes.NewReader([]byte(subscriptionUpdatedJSON)))
	req.Header.Set("Stripe-Signature", "t=1,v1=bogus")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status=%d, want=%d, body=%q", rec.Code, http.StatusBadRequest, rec.Body.String())
	}
}

func TestWebhookRequiresConfiguredSecret(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(&fakeRepo{}, &fakeProvider{}, &fakeUsers{}, noopRecorder{}, testConfig(), logger)
	handler := NewWebhookHandler(svc, "", logger)

	req := signedWebhookRequest(t, subscriptionUpdatedJSON)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d, want=%d, body=%q", rec.Code, http.StatusServiceUnavailable, rec.Body.String())
	}
}

func TestWebhookSubscriptionUpdatedReconciles(t *testing.T) {
	repo := repoWithCustomer()
	handler := newTestWebhookHandler(repo, &fakeProvider{})

	req := signedWebhookRequest(t, subscriptionUpdatedJSON)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want=%d, body=%q", rec.Code, http.StatusOK, rec.Body.String())
	}

	got := repo.entitlement("cus_1")
	if got.PlanName == nil || *got.PlanName != "Pro Plan" {
		t.Fatalf("plan name=%v, want=%q", got.PlanName, "Pro Plan")
	}
	if got.Tier != user.TierPro {
		t.Fatalf("tier=%q, want=%q", got.Tier, user.TierPro)
	}
}

// An event for a customer we have no user for is permanent: redelivery
// cannot fix it, so the handler must acknowledge rather than ask for a
// retry.
func TestWebhookUnknownUserIsAcknowledged(t *testing.T) {
	handler := newTestWebhookHandler(&fakeRepo{}, &fakeProvider{})

	req := signedWebhookRequest(t, subscriptionUpdatedJSON)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want=%d, body=%q", rec.Code, http.StatusOK, rec.Body.String())
	}
}

// A transient failure (the secondary product fetch) must surface as a 5xx
// so the delivery system redelivers.
func TestWebhookTransientFailureAsksForRedelivery(t *testing.T) {
	repo := repoWithCustomer()
	provider := &fakeProvider{productErr: errors.New("upstream down")}
	handler := newTestWebhookHandler(repo, provider)

	payload := `{
		"id": "evt_2",
		"object": "event",
		"type": "customer.subscription.updated",
		"data": {
			"object": {
				"id": "sub_1",
				"customer": "cus_1",
				"status": "active",
				"items": {"data": [{"price": {"id": "price_pro", "product": "prod_pro"}}]}
			}
		}
	}`

	req := signedWebhookRequest(t, payload)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d, want=%d, body=%q", rec.Code, http.StatusInternalServerError, rec.Body.String())
	}
}

func TestWebhookSubscriptionDeletedRevokes(t *testing.T) {
	repo := repoWithCustomer()
	repo.rows[0].ent = Entitlement{
		SubscriptionID: strPtr("sub_1"),
		ProductID:      strPtr("prod_pro"),
		PlanName:       strPtr("Pro Plan"),
		Status:         user.SubscriptionActive,
		Tier:           user.TierPro,
	}
	handler := newTestWebhookHandler(repo, &fakeProvider{})

	payload := `{
		"id": "evt_3",
		"object": "event",
		"type": "customer.subscription.deleted",
		"data": {
			"object": {
				"id": "sub_1",
				"customer": "cus_1",
				"status": "canceled",
				"items": {"data": [{"price": {"id": "price_pro", "product": "prod_pro"}}]}
			}
		}
	}`

	req := signedWebhookRequest(t, payload)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want=%d, body=%q", rec.Code, http.StatusOK, rec.Body.String())
	}

	got := repo.entitlement("cus_1")
	if got.SubscriptionID != nil || got.PlanName != nil {
		t.Fatalf("entitlement not cleared: %+v", got)
	}
	if got.Status != user.SubscriptionCanceled || got.Tier != user.TierFree {
		t.Fatalf("status=%q tier=%q, want canceled/free", got.Status, got.Tier)
	}
}

func TestWebhookCheckoutCompletedActivates(t *testing.T) {
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
		subs: map[string]Subscription{"sub_1": activeSub()},
	}
	handler := newTestWebhookHandler(repo, provider)

	payload := `{
		"id": "evt_4",
		"object": "event",
		"type": "checkout.session.completed",
		"data": {
			"object": {
				"id": "cs_1",
				"customer": "cus_new",
				"subscription": "sub_1",
				"client_reference_id": "user-1"
			}
		}
	}`

	req := signedWebhookRequest(t, payload)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want=%d, body=%q", rec.Code, http.StatusOK, rec.Body.String())
	}

	repo.mu.Lock()
	row := repo.byUser("user-1")
	repo.mu.Unlock()
	if row.customerID != "cus_new" {
		t.Fatalf("customer id=%q, want=%q", row.customerID, "cus_new")
	}
}

func TestWebhookIgnoresUnhandledEventTypes(t *testing.T) {
	handler := newTestWebhookHandler(&fakeRepo{}, &fakeProvider{})

	payload := `{"id":"evt_5","object":"event","type":"invoice.paid","data":{"object":{}}}`
	req := signedWebhookRequest(t, payload)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want=%d, body=%q", rec.Code, http.StatusOK, rec.Body.String())
	}
}
