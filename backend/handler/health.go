package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bluebridge/termsheet-ingest/backend/pkg/logger"
)

// Pinger reports whether a backing service is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Health reports liveness, and database reachability when db is set
func Health(db Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		status, code := "ok", http.StatusOK
		if db != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := db.Ping(ctx); err != nil {
				logger.Warn(c.Request.Context(), "health check: database unreachable", "error", err)
				status, code = "degraded", http.StatusServiceUnavailable
			}
		}

		c.JSON(code, gin.H{
			"status":    status,
			"timestamp": time.Now().Format(time.RFC3339),
		})
	}
}

// Version is set at build time with -ldflags "-X .../handler.Version=..."
var Version = "dev"

// GetVersion reports the build version
func GetVersion(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"version": Version, "status": "ok"})
}
