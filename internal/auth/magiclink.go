// AngelaMos | 2026
// magiclink.go

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/carterperez-dev/saasbase/internal/core"
)

// MagicLinkToken is a single-use, short-lived login token delivered out of
// band. Only the hash is stored; the raw token travels in the link.
type MagicLinkToken struct {
	ID         string     `db:"id"`
	Email      string     `db:"email"`
	TokenHash  string     `db:"token_hash"`
	ExpiresAt  time.Time  `db:"expires_at"`
	CreatedAt  time.Time  `db:"created_at"`
	ConsumedAt *time.Time `db:"consumed_at"`
}

// Sender delivers a magic link to the given address. Production wires a
// mail provider; development logs the link.
type Sender interface {
	Send(ctx context.Context, email, link string) error
}

// LogSender writes the link to the log instead of sending mail.
type LogSender struct {
	Logger *slog.Logger
}

func (s *LogSender) Send(_ context.Context, email, link string) error {
	s.Logger.Info("magic link issued", "email", email, "link", link)
	return nil
}

// MagicLinkConfig wires delivery and lifetime for passwordless login.
type MagicLinkConfig struct {
	Sender    Sender
	TTL       time.Duration
	VerifyURL string
}

// RequestMagicLink issues a login link for an existing account. Unknown
// addresses succeed silently so the endpoint cannot be used to enumerate
// accounts.
func (s *Service) RequestMagicLink(ctx context.Context, email string) error {
	if _, err := s.userProvider.GetByEmail(ctx, email); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("get user: %w", err)
	}

	token, err := core.GenerateSecureToken(32)
	if err != nil {
		return fmt.Errorf("generate magic link token: %w", err)
	}

	entity := &MagicLinkToken{
		ID:        uuid.New().String(),
		Email:     email,
		TokenHash: core.HashToken(token),
		ExpiresAt: time.Now().Add(s.magic.TTL),
	}
	if err := s.repo.CreateMagicLink(ctx, entity); err != nil {
		return fmt.Errorf("store magic link: %w", err)
	}

	link := s.magic.VerifyURL + "?token=" + token
	if err := s.magic.Sender.Send(ctx, email, link); err != nil {
		return fmt.Errorf("send magic link: %w", err)
	}

	return nil
}

// VerifyMagicLink consumes a link token and opens a session. Consumption
// is a single atomic update, so a replayed link always fails.
func (s *Service) VerifyMagicLink(
	ctx context.Context,
	token, userAgent, ipAddress string,
) (*AuthResponse, error) {
	email, err := s.repo.ConsumeMagicLink(ctx, core.HashToken(token))
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, fmt.Errorf("verify magic link: %w", core.ErrTokenInvalid)
		}
		return nil, fmt.Errorf("consume magic link: %w", err)
	}

	user, err := s.userProvider.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}

	return s.createAuthResponse(ctx, user, userAgent, ipAddress, "", nil)
}

func (h *Handler) RequestMagicLink(w http.ResponseWriter, r *http.Request) {
	var req MagicLinkRequest
	if !h.decodeValid(w, r, &req) {
		return
	}

	if err := h.service.RequestMagicLink(r.Context(), req.Email); err != nil {
		core.InternalServerError(w, err)
		return
	}

	core.OK(w, map[string]string{
		"message": "if the account exists, a sign-in link has been sent",
	})
}

func (h *Handler) VerifyMagicLink(w http.ResponseWriter, r *http.Request) {
	var req MagicLinkVerifyRequest
	if !h.decodeValid(w, r, &req) {
		return
	}

	h.completeMagicLink(w, r, req.Token)
}

// VerifyMagicLinkClick serves the emailed link itself. Mail clients
// open links with a plain GET, so the token rides the query string.
func (h *Handler) VerifyMagicLinkClick(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		core.BadRequest(w, "missing token")
		return
	}

	h.completeMagicLink(w, r, token)
}

func (h *Handler) completeMagicLink(
	w http.ResponseWriter,
	r *http.Request,
	token string,
) {
	resp, err := h.service.VerifyMagicLink(
		r.Context(), token, r.UserAgent(), extractIPAddress(r))
	if err != nil {
		if errors.Is(err, core.ErrTokenInvalid) {
			core.JSONError(w, core.TokenInvalidError())
			return
		}
		core.InternalServerError(w, err)
		return
	}

	core.OK(w, resp)
}
