package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

const healthTimeout = 5 * time.Second

type PoolStats struct {
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireCount    int64  `json:"acquire_count"`
	AcquireDuration string `json:"acquire_duration"`
	Healthy         bool   `json:"healthy"`
}

// Saturated reports whether every connection is checked out, which is when
// requests start queueing in ConnMiddleware.
func (s *PoolStats) Saturated() bool {
	return s.MaxConns > 0 && s.AcquiredConns >= s.MaxConns
}

// DBHealth is the /health/db response body.
type DBHealth struct {
	Status string     `json:"status"`
	Error  string     `json:"error,omitempty"`
	Pool   *PoolStats `json:"pool"`
}

type pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler is served outside ConnMiddleware so a saturated pool still
// answers.
func HealthHandler(pool *pgxpool.Pool) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), healthTimeout)
		defer cancel()
		code, body := checkHealth(ctx, pool, func() *PoolStats { return poolStats(pool) })
		return c.JSON(code, body)
	}
}

// checkHealth pings first so the stats reflect the connection it used.
func checkHealth(ctx context.Context, p pinger, stats func() *PoolStats) (int, DBHealth) {
	err := p.Ping(ctx)
	h := DBHealth{Status: "healthy", Pool: stats()}
	switch {
	case err != nil:
		h.Pool.Healthy = false
		h.Status = "unhealthy"
		h.Error = err.Error()
		return http.StatusServiceUnavailable, h
	case h.Pool.Saturated():
		h.Status = "saturated"
	}
	return http.StatusOK, h
}

func poolStats(pool *pgxpool.Pool) *PoolStats {
	stat := pool.Stat()
	return &PoolStats{
		TotalConns:      stat.TotalConns(),
		IdleConns:       stat.IdleConns(),
		AcquiredConns:   stat.AcquiredConns(),
		MaxConns:        stat.MaxConns(),
		AcquireCount:    stat.AcquireCount(),
		AcquireDuration: stat.AcquireDuration().String(),
		Healthy:         stat.TotalConns() > 0,
	}
}
