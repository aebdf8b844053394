package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/checoluis2212/backend-b2b/internal/auth"
	"github.com/checoluis2212/backend-b2b/internal/config"
	"github.com/checoluis2212/backend-b2b/internal/handlers"
	"github.com/checoluis2212/backend-b2b/internal/ingest"
	"github.com/checoluis2212/backend-b2b/internal/store"
)

// Pinger is the readiness dependency; nil skips the DB check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewRouter wires public endpoints and authenticated APIs.
// Public: /health, /ready, /metrics, /api/webhooks/crm (the CRM cannot carry
// our API key; its callbacks are filtered by content instead).
// Authenticated: the /api ingestion and lookup endpoints.
func NewRouter(cfg config.Config, db Pinger, orch *ingest.Orchestrator, st store.Store, reg *prometheus.Registry) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())

	// Liveness: confirms the process is running.
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Readiness: confirms the DB dependency is reachable.
	r.GET("/ready", func(c *gin.Context) {
		if db != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
			defer cancel()

			if err := db.Ping(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	if reg != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	}

	handlers.RegisterWebhookRoutes(r.Group("/api"), orch)

	// Auth group enforces the API key on everything the frontend calls.
	authGroup := r.Group("/api")
	authGroup.Use(auth.APIKeyMiddleware(cfg.APIKeys))

	handlers.RegisterResponseRoutes(authGroup, orch, st)
	handlers.RegisterSyncRoutes(authGroup, orch)

	return r
}
