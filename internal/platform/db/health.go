package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// PoolStats represents database connection pool statistics.
type PoolStats struct {
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireCount    int64  `json:"acquire_count"`
	AcquireDuration string `json:"acquire_duration"`
}

// GetPoolStats returns connection pool statistics, or nil for a nil pool.
func GetPoolStats(pool *pgxpool.Pool) *PoolStats {
	if pool == nil {
		return nil
	}
	stat := pool.Stat()
	return &PoolStats{
		TotalConns:      stat.TotalConns(),
		IdleConns:       stat.IdleConns(),
		AcquiredConns:   stat.AcquiredConns(),
		MaxConns:        stat.MaxConns(),
		AcquireCount:    stat.AcquireCount(),
		AcquireDuration: stat.AcquireDuration().String(),
	}
}

// Store is what the status endpoints need from the configured backend.
type Store interface {
	Ping(ctx context.Context) error
	Backend() string
}

// Status is the body of /health and the status endpoints.
type Status struct {
	Status    string     `json:"status"`
	Backend   string     `json:"backend"`
	Connected bool       `json:"connected"`
	Offline   bool       `json:"offline_snapshot"`
	Error     string     `json:"error,omitempty"`
	Pool      *PoolStats `json:"pool,omitempty"`
	CheckedAt time.Time  `json:"checked_at"`
}

// StatusReporter checks the store on demand.
type StatusReporter struct {
	store    Store
	pool     *pgxpool.Pool
	degraded func() bool
	timeout  time.Duration
	now      func() time.Time
}

// NewStatusReporter builds a reporter. pool and degraded may be nil when the
// backend has no pool or no snapshot fallback.
func NewStatusReporter(store Store, pool *pgxpool.Pool, degraded func() bool) *StatusReporter {
	return &StatusReporter{store: store, pool: pool, degraded: degraded, timeout: 2 * time.Second, now: time.Now}
}

// Check pings the store. A store that cannot be reached reports "degraded"
// since reads still come from the offline snapshot. The ping error and pool
// statistics are only filled in for admin callers; connection errors can name
// the database host and user.
func (r *StatusReporter) Check(ctx context.Context, admin bool) Status {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	st := Status{Status: "ok", Backend: r.store.Backend(), Connected: true, CheckedAt: r.now().UTC()}
	if err := r.store.Ping(ctx); err != nil {
		st.Status = "degraded"
		st.Connected = false
		if admin {
			st.Error = err.Error()
		}
	}
	if r.degraded != nil && r.degraded() {
		st.Offline = true
		st.Status = "degraded"
	}
	if admin {
		st.Pool = GetPoolStats(r.pool)
	}
	return st
}

// Handler serves the status as JSON. Error detail and pool statistics are
// only included when admin is set.
func (r *StatusReporter) Handler(admin bool) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, r.Check(c.Request().Context(), admin))
	}
}
