package db

import (
	"context"
	"net/http"
	"sort"
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
	AcquireDuration string `json:"acquire_duration"`
}

// GetPoolStats returns connection pool statistics.
func GetPoolStats(pool *pgxpool.Pool) *PoolStats {
	stat := pool.Stat()
	return &PoolStats{
		TotalConns:      stat.TotalConns(),
		IdleConns:       stat.IdleConns(),
		AcquiredConns:   stat.AcquiredConns(),
		MaxConns:        stat.MaxConns(),
		AcquireDuration: stat.AcquireDuration().String(),
	}
}

// Check probes one dependency.
type Check func(ctx context.Context) error

// HealthReport is the body of GET /health.
type HealthReport struct {
	Status       string            `json:"status"`
	Version      string            `json:"version"`
	Dependencies map[string]string `json:"dependencies"`
	Pool         *PoolStats        `json:"pool,omitempty"`
}

// RunChecks runs every check under one deadline and reports per-dependency
// results. The report is healthy only when every check passed.
func RunChecks(ctx context.Context, version string, checks map[string]Check) HealthReport {
	report := HealthReport{Status: "healthy", Version: version, Dependencies: make(map[string]string, len(checks))}

	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := checks[name](ctx); err != nil {
			report.Dependencies[name] = err.Error()
			report.Status = "unhealthy"
			continue
		}
		report.Dependencies[name] = "ok"
	}
	return report
}

// HealthHandler returns the handler for GET /health. pool may be nil.
func HealthHandler(version string, pool *pgxpool.Pool, checks map[string]Check) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		report := RunChecks(ctx, version, checks)
		if pool != nil {
			report.Pool = GetPoolStats(pool)
		}
		if report.Status != "healthy" {
			return c.JSON(http.StatusServiceUnavailable, report)
		}
		return c.JSON(http.StatusOK, report)
	}
}
