// AngelaMos | 2026
// webhook.go

package billing

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	stripelib "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/carterperez-dev/saasbase/internal/core"
)

const webhookBodyLimit = 1024 * 1024 // 1 MiB

// WebhookHandler verifies provider event signatures and feeds subscription
// lifecycle events into the reconciler. It is mounted without auth: the
// signature is the authentication.
type WebhookHandler struct {
	service *Service
	secret  string
	logger  *slog.Logger
}

func NewWebhookHandler(service *Service, secret string, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		service: service,
		secret:  secret,
		logger:  logger,
	}
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if strings.TrimSpace(h.secret) == "" {
		core.JSONError(w, core.NewAppError(nil, "WEBHOOK_NOT_CONFIGURED",
			"Webhook secret not configured", http.StatusServiceUnavailable))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, webhookBodyLimit)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		core.BadRequest(w, "Failed to read request body")
		return
	}

	sigHeader := r.Header.Get("Stripe-Signature")
	if strings.TrimSpace(sigHeader) == "" {
		core.BadRequest(w, "Missing signature header")
		return
	}

	event, err := webhook.ConstructEventWithOptions(payload, sigHeader, h.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		core.BadRequest(w, "Invalid signature")
		return
	}

	if err := h.handleEvent(r, &event); err != nil {
		// Missing local state is permanent: redelivering the same event
		// cannot create the user, so acknowledge instead of erroring.
		if errors.Is(err, ErrUserNotFound) {
			h.logger.Warn("webhook event for unknown user",
				"event_id", event.ID,
				"type", string(event.Type),
			)
			core.OK(w, map[string]bool{"received": true})
			return
		}

		h.logger.Error("webhook processing failed",
			"event_id", event.ID,
			"type", string(event.Type),
			"error", err,
		)
		core.JSONError(w, core.NewAppError(err, "WEBHOOK_PROCESSING_FAILED",
			"Event processing failed", http.StatusInternalServerError))
		return
	}

	core.OK(w, map[string]bool{"received": true})
}

func (h *WebhookHandler) handleEvent(r *http.Request, event *stripelib.Event) error {
	switch event.Type {
	case "customer.subscription.created",
		"customer.subscription.updated",
		"customer.subscription.deleted":
		sub, err := ParseSubscription(event.Data.Raw)
		if err != nil {
			return err
		}
		return h.service.Reconcile(r.Context(), sub)

	case "checkout.session.completed":
		sess, err := ParseCheckoutSession(event.Data.Raw)
		if err != nil {
			return err
		}
		// Sessions without a subscription (one-time payments) are not ours.
		if sess.SubscriptionID == "" {
			return nil
		}
		return h.completeFromEvent(r, sess)

	default:
		h.logger.Info("webhook event ignored",
			"event_id", event.ID,
			"type", string(event.Type),
		)
		return nil
	}
}

// completeFromEvent runs checkout completion off the async path. The
// browser redirect usually wins this race; replaying the same tuple here
// is a harmless overwrite.
func (h *WebhookHandler) completeFromEvent(r *http.Request, sess CheckoutSession) error {
	err := h.service.CompleteCheckout(r.Context(), sess.ID)
	if err == nil {
		return nil
	}

	var checkoutErr *CheckoutError
	if errors.As(err, &checkoutErr) {
		switch checkoutErr.Reason {
		case ReasonNoUserID, ReasonNoSubscription:
			// Not attributable to a local user; nothing to reconcile.
			return nil
		case ReasonUserNotFound:
			return ErrUserNotFound
		}
	}
	return err
}
