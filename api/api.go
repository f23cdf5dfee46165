// Package api serves the monitor's state over HTTP: the latest snapshot,
// cycle health, the job ledger and a websocket feed of new snapshots.
package api

import (
	"context"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/trace"

	"gitlab.com/nunet/nosana-node-monitor/internal/tracing"
	"gitlab.com/nunet/nosana-node-monitor/models"
	"gitlab.com/nunet/nosana-node-monitor/monitor"
)

// SnapshotSource is the part of the monitor the API reads from.
type SnapshotSource interface {
	Snapshot() (*models.Snapshot, bool)
	Health() monitor.Health
	RequestRefresh() bool
	Subscribe() (<-chan *models.Snapshot, func())
}

// LedgerReader exposes the persisted job records.
type LedgerReader interface {
	Document(ctx context.Context) models.LedgerDocument
	Totals(ctx context.Context) models.Earnings
}

type Handler struct {
	source SnapshotSource
	ledger LedgerReader
}

func NewHandler(source SnapshotSource, ledger LedgerReader) *Handler {
	return &Handler{source: source, ledger: ledger}
}

func SetupRouter(h *Handler, allowedOrigins []string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(getCustomCorsConfig(allowedOrigins)))
	router.Use(otelgin.Middleware(tracing.ServiceName))
	router.Use(requestLogger())

	v1 := router.Group("/api/v1")
	{
		v1.GET("/snapshot", h.HandleSnapshot)
		v1.GET("/status", h.HandleStatus)
		v1.GET("/ledger", h.HandleLedger)
		v1.POST("/refresh", h.HandleRefresh)
		v1.GET("/ws", h.HandleWebSocket)
	}

	return router
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		ctx := c.Request.Context()
		zlog.Ctx(ctx).Sugar().Debugf("%s %s -> %d in %s (trace %s)",
			c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start),
			trace.SpanContextFromContext(ctx).TraceID())
	}
}

func getCustomCorsConfig(allowedOrigins []string) cors.Config {
	config := DefaultConfig()
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:9991", "http://localhost:9992"}
	}
	config.AllowOrigins = allowedOrigins
	return config
}

// DefaultConfig returns a read-mostly CORS configuration.
func DefaultConfig() cors.Config {
	return cors.Config{
		AllowMethods:     []string{"GET", "POST", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
}
