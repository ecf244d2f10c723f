package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/movinesta/swipe-ingest/internal/auth"
	"github.com/movinesta/swipe-ingest/internal/handlers"
	"github.com/movinesta/swipe-ingest/internal/logger"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps is everything the router serves from.
type Deps struct {
	Log          *logger.Logger
	Store        Pinger
	Health       handlers.HealthReader
	Ingestor     handlers.Ingester
	Fanout       handlers.Enqueuer
	MaxBodyBytes int64

	// Verifier checks bearer tokens. Nil trusts X-User-Id headers instead.
	Verifier *auth.Verifier
}

// NewRouter wires public endpoints and authenticated APIs.
// Public: /health, /ready, /metrics/prometheus
// Authenticated: /media-swipe-event
// Admin: /admin/swipe-ingest-health
func NewRouter(d Deps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	if d.Log == nil {
		d.Log = logger.Nop()
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(d.Log))

	// Liveness: confirms the process is running.
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Readiness: confirms the store is reachable.
	r.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
		defer cancel()

		if err := d.Store.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics/prometheus", gin.WrapH(promhttp.Handler()))

	authGroup := r.Group("/")
	if d.Verifier != nil {
		authGroup.Use(auth.BearerMiddleware(d.Verifier))
	} else {
		authGroup.Use(auth.DevMiddleware())
	}

	handlers.RegisterSwipeRoutes(authGroup, d.Ingestor, d.Fanout, d.MaxBodyBytes, d.Log)

	adminGroup := authGroup.Group("/")
	adminGroup.Use(auth.RequireAdmin())
	handlers.RegisterIngestHealthRoutes(adminGroup, d.Health, nil)

	return r
}
