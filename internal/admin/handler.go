// AngelaMos | 2026
// handler.go

package admin

import (
	"context"
	"database/sql"
	"net/http"
	"runtime"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/carterperez-dev/saasbase/internal/core"
)

type Handler struct {
	dbStats           func() sql.DBStats
	redisStats        func() *redis.PoolStats
	redisPing         func(ctx context.Context) error
	dbPing            func(ctx context.Context) error
	subscriptionStats func(ctx context.Context) (map[string]int, error)
}

type HandlerConfig struct {
	DBStats           func() sql.DBStats
	RedisStats        func() *redis.PoolStats
	RedisPing         func(ctx context.Context) error
	DBPing            func(ctx context.Context) error
	SubscriptionStats func(ctx context.Context) (map[string]int, error)
}

func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{
		dbStats:           cfg.DBStats,
		redisStats:        cfg.RedisStats,
		redisPing:         cfg.RedisPing,
		dbPing:            cfg.DBPing,
		subscriptionStats: cfg.SubscriptionStats,
	}
}

func (h *Handler) RegisterRoutes(
	r chi.Router,
	authenticator, adminOnly func(http.Handler) http.Handler,
) {
	r.Route("/admin", func(r chi.Router) {
		r.Use(authenticator)
		r.Use(adminOnly)

		r.Get("/stats", h.GetSystemStats)
		r.Get("/stats/db", h.GetDatabaseStats)
		r.Get("/stats/redis", h.GetRedisStats)
		r.Get("/stats/runtime", h.GetRuntimeStats)
		r.Get("/stats/subscriptions", h.GetSubscriptionStats)
	})
}

// pingOK treats a missing ping hook as healthy so a partially wired
// handler never reports a false outage.
func pingOK(ctx context.Context, ping func(context.Context) error) bool {
	if ping == nil {
		return true
	}
	return ping(ctx) == nil
}

func currentRuntimeStats() RuntimeStats {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return RuntimeStats{
		GoVersion:    runtime.Version(),
		NumGoroutine: runtime.NumGoroutine(),
		NumCPU:       runtime.NumCPU(),
		MemAlloc:     memStats.Alloc,
		MemSys:       memStats.Sys,
		NumGC:        memStats.NumGC,
	}
}

func (h *Handler) GetSystemStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	core.OK(w, SystemStatsResponse{
		Database: DatabaseStatus{
			Healthy: pingOK(ctx, h.dbPing),
			Stats:   h.getDBStats(),
		},
		Redis: RedisStatus{
			Healthy: pingOK(ctx, h.redisPing),
			Stats:   h.getRedisStats(),
		},
		Runtime: currentRuntimeStats(),
	})
}

func (h *Handler) GetDatabaseStats(w http.ResponseWriter, r *http.Request) {
	core.OK(w, h.getDBStats())
}

func (h *Handler) GetRedisStats(w http.ResponseWriter, r *http.Request) {
	core.OK(w, h.getRedisStats())
}

func (h *Handler) GetRuntimeStats(w http.ResponseWriter, r *http.Request) {
	core.OK(w, currentRuntimeStats())
}

// GetSubscriptionStats returns how many users sit in each subscription
// status, with users that never subscribed under "none".
func (h *Handler) GetSubscriptionStats(w http.ResponseWriter, r *http.Request) {
	if h.subscriptionStats == nil {
		core.OK(w, SubscriptionStatsResponse{Statuses: map[string]int{}})
		return
	}

	breakdown, err := h.subscriptionStats(r.Context())
	if err != nil {
		core.InternalServerError(w, err)
		return
	}

	core.OK(w, SubscriptionStatsResponse{Statuses: breakdown})
}

func (h *Handler) getDBStats() *DBPoolStats {
	if h.dbStats == nil {
		return nil
	}

	stats := h.dbStats()
	return &DBPoolStats{
		MaxOpenConnections: stats.MaxOpenConnections,
		OpenConnections:    stats.OpenConnections,
		InUse:              stats.InUse,
		Idle:               stats.Idle,
		WaitCount:          stats.WaitCount,
		WaitDuration:       stats.WaitDuration.String(),
		MaxIdleClosed:      stats.MaxIdleClosed,
		MaxIdleTimeClosed:  stats.MaxIdleTimeClosed,
		MaxLifetimeClosed:  stats.MaxLifetimeClosed,
	}
}

func (h *Handler) getRedisStats() *RedisPoolStats {
	if h.redisStats == nil {
		return nil
	}

	stats := h.redisStats()
	return &RedisPoolStats{
		Hits:       stats.Hits,
		Misses:     stats.Misses,
		Timeouts:   stats.Timeouts,
		TotalConns: stats.TotalConns,
		IdleConns:  stats.IdleConns,
		StaleConns: stats.StaleConns,
	}
}

type SystemStatsResponse struct {
	Database DatabaseStatus `json:"database"`
	Redis    RedisStatus    `json:"redis"`
	Runtime  RuntimeStats   `json:"runtime"`
}

type DatabaseStatus struct {
	Healthy bool         `json:"healthy"`
	Stats   *DBPoolStats `json:"stats,omitempty"`
}

type RedisStatus struct {
	Healthy bool            `json:"healthy"`
	Stats   *RedisPoolStats `json:"stats,omitempty"`
}

type DBPoolStats struct {
	MaxOpenConnections int    `json:"max_open_connections"`
	OpenConnections    int    `json:"open_connections"`
	InUse              int    `json:"in_use"`
	Idle               int    `json:"idle"`
	WaitCount          int64  `json:"wait_count"`
	WaitDuration       string `json:"wait_duration"`
	MaxIdleClosed      int64  `json:"max_idle_closed"`
	MaxIdleTimeClosed  int64  `json:"max_idle_time_closed"`
	MaxLifetimeClosed  int64  `json:"max_lifetime_closed"`
}

type RedisPoolStats struct {
	Hits       uint32 `json:"hits"`
	Misses     uint32 `json:"misses"`
	Timeouts   uint32 `json:"timeouts"`
	TotalConns uint32 `json:"total_conns"`
	IdleConns  uint32 `json:"idle_conns"`
	StaleConns uint32 `json:"stale_conns"`
}

type SubscriptionStatsResponse struct {
	Statuses map[string]int `json:"statuses"`
}

type RuntimeStats struct {
	GoVersion    string `json:"go_version"`
	NumGoroutine int    `json:"num_goroutine"`
	NumCPU       int    `json:"num_cpu"`
	MemAlloc     uint64 `json:"mem_alloc_bytes"`
	MemSys       uint64 `json:"mem_sys_bytes"`
	NumGC        uint32 `json:"num_gc"`
}
