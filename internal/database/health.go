package database

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
	"github.com/timebok/timebok/internal/rest"
)

type PoolStats struct {
	TotalConns    int32 `json:"total_conns"`
	IdleConns     int32 `json:"idle_conns"`
	AcquiredConns int32 `json:"acquired_conns"`
	MaxConns      int32 `json:"max_conns"`
}

type HealthDTO struct {
	Status string    `json:"status"`
	Pool   PoolStats `json:"pool"`
}

// HealthHandler reports whether the database answers a ping within five seconds.
func HealthHandler(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		stat := pool.Stat()
		stats := PoolStats{
			TotalConns:    stat.TotalConns(),
			IdleConns:     stat.IdleConns(),
			AcquiredConns: stat.AcquiredConns(),
			MaxConns:      stat.MaxConns(),
		}
		if err := pool.Ping(ctx); err != nil {
			log.Warnf("database health check failed: %v", err)
			rest.WriteJSON(w, http.StatusServiceUnavailable, HealthDTO{Status: "unhealthy", Pool: stats})
			return
		}
		rest.WriteJSON(w, http.StatusOK, HealthDTO{Status: "healthy", Pool: stats})
	}
}
