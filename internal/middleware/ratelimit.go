// AngelaMos | 2026
// ratelimit.go

package middleware

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	redis_rate "github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

type RateLimitConfig struct {
	Limit      redis_rate.Limit
	KeyFunc    func(*http.Request) string
	FailOpen   bool
	BypassFunc func(*http.Request) bool
	OnLimited  func(http.ResponseWriter, *http.Request, *redis_rate.Result)
}

// RateLimiter enforces a shared limit through Redis. When Redis is
// unreachable it degrades to a per-process token bucket, which still
// caps a single instance even though the fleet-wide count is lost.
type RateLimiter struct {
	shared *redis_rate.Limiter
	local  *memoryLimiter
	config RateLimitConfig
}

func NewRateLimiter(rdb *redis.Client, cfg RateLimitConfig) *RateLimiter {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = KeyByIP
	}

	return &RateLimiter{
		shared: redis_rate.NewLimiter(rdb),
		local:  newMemoryLimiter(),
		config: cfg,
	}
}

func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.config.BypassFunc != nil && rl.config.BypassFunc(r) {
			next.ServeHTTP(w, r)
			return
		}

		key := rl.config.KeyFunc(r)

		res, err := rl.shared.Allow(r.Context(), key, rl.config.Limit)
		if err != nil {
			if !rl.config.FailOpen {
				http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
				return
			}
			slog.Warn("shared rate limiter unavailable, using local buckets",
				"error", err,
				"key", key,
			)
			res = rl.local.allow(key, rl.config.Limit)
		}

		writeLimitHeaders(w, res, rl.config.Limit)

		if res.Allowed == 0 {
			if rl.config.OnLimited != nil {
				rl.config.OnLimited(w, r, res)
				return
			}
			rejectLimited(w, res)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func KeyByIP(r *http.Request) string {
	return "ratelimit:ip:" + clientAddr(r)
}

func KeyByUser(r *http.Request) string {
	if userID := GetUserID(r.Context()); userID != "" {
		return "ratelimit:user:" + userID
	}
	return KeyByIP(r)
}

// clientAddr trusts the last X-Forwarded-For hop, the one appended by
// our own proxy.
func clientAddr(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		return strings.TrimSpace(hops[len(hops)-1])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeLimitHeaders(
	w http.ResponseWriter,
	res *redis_rate.Result,
	limit redis_rate.Limit,
) {
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(limit.Rate))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	h.Set("X-RateLimit-Reset",
		strconv.FormatInt(time.Now().Add(res.ResetAfter).Unix(), 10))
	h.Set("RateLimit-Policy",
		fmt.Sprintf(`%d;w=%d`, limit.Rate, int(limit.Period.Seconds())))
	h.Set("RateLimit",
		fmt.Sprintf(`%d;t=%d`, res.Remaining, int(res.ResetAfter.Seconds())))
}

func rejectLimited(w http.ResponseWriter, res *redis_rate.Result) {
	retryAfter := int(res.RetryAfter.Seconds())
	if retryAfter < 1 {
		retryAfter = 1
	}

	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)

	//nolint:errcheck // best-effort response write
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error": map[string]any{
			"code": "RATE_LIMITED",
			"message": fmt.Sprintf(
				"Rate limit exceeded. Retry after %d seconds.",
				retryAfter,
			),
		},
	})
}

// memoryLimiter is the in-process fallback. Entries idle past bucketTTL
// are pruned on a timer.
type memoryLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const (
	pruneEvery = 5 * time.Minute
	bucketTTL  = 10 * time.Minute
)

func newMemoryLimiter() *memoryLimiter {
	m := &memoryLimiter{buckets: make(map[string]*bucket)}
	go m.prune()
	return m
}

func (m *memoryLimiter) prune() {
	ticker := time.NewTicker(pruneEvery)
	defer ticker.Stop()

	for range ticker.C {
		cutoff := time.Now().Add(-bucketTTL)
		m.mu.Lock()
		for key, b := range m.buckets {
			if b.lastSeen.Before(cutoff) {
				delete(m.buckets, key)
			}
		}
		m.mu.Unlock()
	}
}

func (m *memoryLimiter) allow(
	key string,
	limit redis_rate.Limit,
) *redis_rate.Result {
	perSecond := float64(limit.Rate) / limit.Period.Seconds()

	m.mu.Lock()
	b, ok := m.buckets[key]
	if !ok {
		b = &bucket{
			limiter: rate.NewLimiter(rate.Limit(perSecond), limit.Burst),
		}
		m.buckets[key] = b
	}
	b.lastSeen = time.Now()
	m.mu.Unlock()

	allowed := 0
	retryAfter := time.Duration(-1)
	if b.limiter.Allow() {
		allowed = 1
	} else {
		retryAfter = time.Duration(float64(time.Second) / perSecond)
	}

	remaining := int(b.limiter.Tokens())
	if remaining < 0 {
		remaining = 0
	}

	return &redis_rate.Result{
		Limit:      limit,
		Allowed:    allowed,
		Remaining:  remaining,
		RetryAfter: retryAfter,
		ResetAfter: time.Duration(float64(time.Second) / perSecond),
	}
}

// TierConfig is the per-plan request budget. Tier names line up with
// the subscription tiers written by entitlement reconciliation.
type TierConfig struct {
	RequestsPerMinute int
	BurstSize         int
}

var DefaultTiers = map[string]TierConfig{
	"free":       {RequestsPerMinute: 60, BurstSize: 10},
	"pro":        {RequestsPerMinute: 600, BurstSize: 100},
	"enterprise": {RequestsPerMinute: 6000, BurstSize: 1000},
}

// TieredRateLimiter reads the caller's tier from the access token
// claims, so it must run after Authenticator. An upgraded subscriber
// gets the larger budget as soon as a token with the new tier is
// issued.
func TieredRateLimiter(
	rdb *redis.Client,
	tiers map[string]TierConfig,
) func(http.Handler) http.Handler {
	shared := redis_rate.NewLimiter(rdb)
	local := newMemoryLimiter()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tier := GetUserTier(r.Context())
			budget, ok := tiers[tier]
			if !ok {
				budget = tiers["free"]
			}

			limit := redis_rate.Limit{
				Rate:   budget.RequestsPerMinute,
				Burst:  budget.BurstSize,
				Period: time.Minute,
			}
			key := "ratelimit:user:" + GetUserID(r.Context())

			res, err := shared.Allow(r.Context(), key, limit)
			if err != nil {
				res = local.allow(key, limit)
			}

			if tier == "" {
				tier = "free"
			}
			w.Header().Set("X-RateLimit-Tier", tier)
			writeLimitHeaders(w, res, limit)

			if res.Allowed == 0 {
				rejectLimited(w, res)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func PerMinute(rate, burst int) redis_rate.Limit {
	return redis_rate.Limit{Rate: rate, Burst: burst, Period: time.Minute}
}

func PerSecond(rate, burst int) redis_rate.Limit {
	return redis_rate.Limit{Rate: rate, Burst: burst, Period: time.Second}
}

func PerHour(rate, burst int) redis_rate.Limit {
	return redis_rate.Limit{Rate: rate, Burst: burst, Period: time.Hour}
}
