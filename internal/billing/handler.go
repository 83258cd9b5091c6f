// AngelaMos | 2026
// handler.go

package billing

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/carterperez-dev/saasbase/internal/config"
	"github.com/carterperez-dev/saasbase/internal/core"
	"github.com/carterperez-dev/saasbase/internal/middleware"
)

type Handler struct {
	service   *Service
	cfg       *config.Config
	validator *validator.Validate
}

func NewHandler(service *Service, cfg *config.Config) *Handler {
	return &Handler{
		service:   service,
		cfg:       cfg,
		validator: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// RegisterRoutes mounts the billing endpoints. The checkout completion
// redirect and the plan catalog are unauthenticated; checkout and portal
// creation require a session.
func (h *Handler) RegisterRoutes(
	r chi.Router,
	authenticator func(http.Handler) http.Handler,
) {
	r.Route("/billing", func(r chi.Router) {
		r.Get("/plans", h.ListPlans)
		r.Get("/checkout/complete", h.CompleteCheckout)

		r.Group(func(r chi.Router) {
			r.Use(authenticator)
			r.Post("/checkout", h.CreateCheckout)
			r.Post("/portal", h.CreatePortal)
		})
	})
}

func (h *Handler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req CreateCheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.BadRequest(w, "invalid request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return
	}

	url, err := h.service.CreateCheckoutSession(r.Context(), userID, req.PriceID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			core.NotFound(w, "user")
			return
		}
		core.InternalServerError(w, err)
		return
	}

	core.OK(w, SessionURLResponse{URL: url})
}

// CompleteCheckout is the browser's landing point after a hosted checkout.
// It finishes the purchase and redirects; failures redirect back to the
// pricing page with a reason the frontend can surface.
func (h *Handler) CompleteCheckout(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")

	err := h.service.CompleteCheckout(r.Context(), sessionID)
	if err == nil {
		http.Redirect(w, r, h.cfg.AbsoluteURL(h.cfg.Stripe.SuccessURL), http.StatusSeeOther)
		return
	}

	reason := ReasonProcessingFailed
	var checkoutErr *CheckoutError
	if errors.As(err, &checkoutErr) {
		reason = checkoutErr.Reason
	}

	http.Redirect(w, r,
		h.cfg.AbsoluteURL(h.cfg.Stripe.CancelURL)+"?error="+reason,
		http.StatusSeeOther)
}

func (h *Handler) CreatePortal(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	url, err := h.service.CreatePortalSession(r.Context(), userID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			core.NotFound(w, "user")
			return
		}
		core.JSONError(w, err)
		return
	}

	core.OK(w, SessionURLResponse{URL: url})
}

func (h *Handler) ListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.service.ListPlans(r.Context())
	if err != nil {
		core.InternalServerError(w, err)
		return
	}
	if plans == nil {
		plans = []Plan{}
	}

	core.OK(w, PlansResponse{Plans: plans})
}
