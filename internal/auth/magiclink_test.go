// AngelaMos | 2026
// magiclink_test.go

package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carterperez-dev/saasbase/internal/config"
	"github.com/carterperez-dev/saasbase/internal/core"
)

type memAuthRepo struct {
	mu      sync.Mutex
	tokens  map[string]*RefreshToken
	magic   map[string]*MagicLinkToken
	revoked []string
}

func newMemAuthRepo() *memAuthRepo {
	return &memAuthRepo{
		tokens: make(map[string]*RefreshToken),
		magic:  make(map[string]*MagicLinkToken),
	}
}

func (r *memAuthRepo) Create(_ context.Context, token *RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[token.ID] = token
	return nil
}

func (r *memAuthRepo) FindByHash(_ context.Context, hash string) (*RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tokens {
		if t.TokenHash == hash {
			return t, nil
		}
	}
	return nil, core.ErrNotFound
}

func (r *memAuthRepo) FindByID(_ context.Context, id string) (*RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tokens[id]; ok {
		return t, nil
	}
	return nil, core.ErrNotFound
}

func (r *memAuthRepo) MarkAsUsed(_ context.Context, id, replacedByID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tokens[id]; ok {
		t.MarkAsUsed(replacedByID)
	}
	return nil
}

func (r *memAuthRepo) RevokeByID(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tokens[id]; ok {
		t.Revoke()
		r.revoked = append(r.revoked, id)
	}
	return nil
}

func (r *memAuthRepo) RevokeByFamilyID(_ context.Context, familyID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tokens {
		if t.FamilyID == familyID {
			t.Revoke()
		}
	}
	return nil
}

func (r *memAuthRepo) RevokeAllForUser(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tokens {
		if t.UserID == userID {
			t.Revoke()
		}
	}
	return nil
}

func (r *memAuthRepo) GetActiveSessionsForUser(
	_ context.Context,
	userID string,
) ([]RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []RefreshToken
	for _, t := range r.tokens {
		if t.UserID == userID && t.IsValid() {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (r *memAuthRepo) DeleteExpired(_ context.Context) (int64, error) {
	return 0, nil
}

func (r *memAuthRepo) CreateMagicLink(_ context.Context, token *MagicLinkToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.magic[token.TokenHash] = token
	return nil
}

func (r *memAuthRepo) ConsumeMagicLink(
	_ context.Context,
	tokenHash string,
) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.magic[tokenHash]
	if !ok || t.ConsumedAt != nil || time.Now().After(t.ExpiresAt) {
		return "", core.ErrNotFound
	}
	now := time.Now()
	t.ConsumedAt = &now
	return t.Email, nil
}

type memUserProvider struct {
	byEmail map[string]*UserInfo
}

func (p *memUserProvider) GetByEmail(_ context.Context, email string) (*UserInfo, error) {
	if u, ok := p.byEmail[email]; ok {
		return u, nil
	}
	return nil, core.ErrNotFound
}

func (p *memUserProvider) GetByID(_ context.Context, id string) (*UserInfo, error) {
	for _, u := range p.byEmail {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, core.ErrNotFound
}

func (p *memUserProvider) Create(
	_ context.Context,
	email, passwordHash, name string,
) (*UserInfo, error) {
	return nil, errors.New("not implemented")
}

func (p *memUserProvider) IncrementTokenVersion(_ context.Context, _ string) error {
	return nil
}

func (p *memUserProvider) UpdatePassword(_ context.Context, _, _ string) error {
	return nil
}

type capturedLink struct {
	email string
	link  string
	count int
}

func (c *capturedLink) Send(_ context.Context, email, link string) error {
	c.email = email
	c.link = link
	c.count++
	return nil
}

func newMagicLinkService(
	t *testing.T,
	repo *memAuthRepo,
	sender Sender,
	ttl time.Duration,
) *Service {
	t.Helper()

	dir := t.TempDir()
	privPath := filepath.Join(dir, "private.pem")
	pubPath := filepath.Join(dir, "public.pem")
	require.NoError(t, GenerateKeyPair(privPath, pubPath))

	jwtManager, err := NewJWTManager(config.JWTConfig{
		PrivateKeyPath:     privPath,
		PublicKeyPath:      pubPath,
		AccessTokenExpire:  15 * time.Minute,
		RefreshTokenExpire: 7 * 24 * time.Hour,
		Issuer:             "test",
		Audience:           "test-api",
	})
	require.NoError(t, err)

	users := &memUserProvider{byEmail: map[string]*UserInfo{
		"known@example.com": {
			ID:    "user-1",
			Email: "known@example.com",
			Name:  "Known User",
			Role:  "user",
			Tier:  "free",
		},
	}}

	return NewService(repo, jwtManager, users, nil, MagicLinkConfig{
		Sender:    sender,
		TTL:       ttl,
		VerifyURL: "https://app.example.com/v1/auth/magic-link/verify",
	})
}

func TestRequestMagicLinkUnknownEmailIsSilent(t *testing.T) {
	repo := newMemAuthRepo()
	sender := &capturedLink{}
	svc := newMagicLinkService(t, repo, sender, 10*time.Minute)

	err := svc.RequestMagicLink(context.Background(), "nobody@example.com")

	require.NoError(t, err, "unknown addresses must not be distinguishable")
	assert.Zero(t, sender.count)
	assert.Empty(t, repo.magic)
}

func TestRequestMagicLinkStoresOnlyTheHash(t *testing.T) {
	repo := newMemAuthRepo()
	sender := &capturedLink{}
	svc := newMagicLinkService(t, repo, sender, 10*time.Minute)

	require.NoError(t,
		svc.RequestMagicLink(context.Background(), "known@example.com"))

	require.Equal(t, 1, sender.count)
	assert.Equal(t, "known@example.com", sender.email)

	prefix := "https://app.example.com/v1/auth/magic-link/verify?token="
	require.True(t, strings.HasPrefix(sender.link, prefix), "link %q", sender.link)

	raw := strings.TrimPrefix(sender.link, prefix)
	stored, ok := repo.magic[core.HashToken(raw)]
	require.True(t, ok, "stored hash must match the token in the link")
	assert.Equal(t, "known@example.com", stored.Email)
	assert.NotContains(t, stored.TokenHash, raw)
}

func TestVerifyMagicLinkOpensSessionOnce(t *testing.T) {
	repo := newMemAuthRepo()
	sender := &capturedLink{}
	svc := newMagicLinkService(t, repo, sender, 10*time.Minute)

	require.NoError(t,
		svc.RequestMagicLink(context.Background(), "known@example.com"))
	raw := strings.TrimPrefix(sender.link,
		"https://app.example.com/v1/auth/magic-link/verify?token=")

	resp, err := svc.VerifyMagicLink(
		context.Background(), raw, "test-agent", "203.0.113.9")
	require.NoError(t, err)
	assert.Equal(t, "known@example.com", resp.User.Email)
	assert.NotEmpty(t, resp.Tokens.AccessToken)
	assert.NotEmpty(t, resp.Tokens.RefreshToken)

	_, err = svc.VerifyMagicLink(
		context.Background(), raw, "test-agent", "203.0.113.9")
	assert.ErrorIs(t, err, core.ErrTokenInvalid, "links are single use")
}

func TestVerifyMagicLinkRejectsExpiredToken(t *testing.T) {
	repo := newMemAuthRepo()
	sender := &capturedLink{}
	svc := newMagicLinkService(t, repo, sender, -time.Minute)

	require.NoError(t,
		svc.RequestMagicLink(context.Background(), "known@example.com"))
	raw := strings.TrimPrefix(sender.link,
		"https://app.example.com/v1/auth/magic-link/verify?token=")

	_, err := svc.VerifyMagicLink(
		context.Background(), raw, "test-agent", "203.0.113.9")
	assert.ErrorIs(t, err, core.ErrTokenInvalid)
}

func TestVerifyMagicLinkClickSignsIn(t *testing.T) {
	repo := newMemAuthRepo()
	sender := &capturedLink{}
	svc := newMagicLinkService(t, repo, sender, 10*time.Minute)

	handler := NewHandler(svc)
	router := chi.NewRouter()
	handler.RegisterRoutes(router, func(next http.Handler) http.Handler {
		return next
	})

	require.NoError(t,
		svc.RequestMagicLink(context.Background(), "known@example.com"))
	raw := strings.TrimPrefix(sender.link,
		"https://app.example.com/v1/auth/magic-link/verify?token=")

	// Mail clients follow the link with a plain GET.
	req := httptest.NewRequest(http.MethodGet,
		"/auth/magic-link/verify?token="+raw, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())

	var body struct {
		Success bool         `json:"success"`
		Data    AuthResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, "known@example.com", body.Data.User.Email)
	assert.NotEmpty(t, body.Data.Tokens.AccessToken)
}

func TestVerifyMagicLinkClickMissingToken(t *testing.T) {
	repo := newMemAuthRepo()
	sender := &capturedLink{}
	svc := newMagicLinkService(t, repo, sender, 10*time.Minute)

	handler := NewHandler(svc)
	router := chi.NewRouter()
	handler.RegisterRoutes(router, func(next http.Handler) http.Handler {
		return next
	})

	req := httptest.NewRequest(http.MethodGet, "/auth/magic-link/verify", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
