package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/prasenjit/go-replay/internal/replay"
	"github.com/prasenjit/go-replay/internal/stats"
	"github.com/prasenjit/go-replay/internal/storage"
	"github.com/prasenjit/go-replay/internal/tracing"
)

// Router handles HTTP routing
type Router struct {
	engine         *gin.Engine
	tracingService *tracing.Service
	replayEngine   *replay.Engine
	handler        *Handler
	logger         logrus.FieldLogger
}

// NewRouter creates the admin API router. Requests outside /_api are
// answered by the replay engine.
func NewRouter(store storage.Storage, statsCollector *stats.Collector, tracingService *tracing.Service, replayEngine *replay.Engine, logger logrus.FieldLogger) *Router {
	gin.SetMode(gin.ReleaseMode)

	r := &Router{
		engine:         gin.New(),
		tracingService: tracingService,
		replayEngine:   replayEngine,
		logger:         logger,
	}

	r.handler = NewHandler(store, statsCollector, tracingService, replayEngine, logger)

	r.engine.Use(gin.Recovery())
	r.engine.Use(corsMiddleware())
	r.engine.Use(requestLogger(logger.WithField("component", "http")))

	r.setupRoutes()

	return r
}

// setupRoutes configures all routes
func (r *Router) setupRoutes() {
	api := r.engine.Group("/_api")
	{
		// Policies
		api.GET("/policies", r.handler.ListPolicies)
		api.POST("/policies", r.handler.CreatePolicy)
		api.GET("/policies/:id", r.handler.GetPolicy)
		api.PUT("/policies/:id", r.handler.UpdatePolicy)
		api.DELETE("/policies/:id", r.handler.DeletePolicy)
		api.PUT("/policies/:id/enable", r.handler.EnablePolicy)
		api.PUT("/policies/:id/disable", r.handler.DisablePolicy)
		api.PUT("/policies/:id/priority", r.handler.UpdatePolicyPriority)

		// Classification and defaults
		api.GET("/classification", r.handler.GetClassification)
		api.PUT("/classification", r.handler.UpdateClassification)
		api.GET("/defaults", r.handler.GetDefaults)
		api.PUT("/defaults", r.handler.UpdateDefaults)
		api.GET("/rules/errors", r.handler.GetRuleErrors)

		// Recorded exchanges
		api.GET("/exchanges", r.handler.ListExchanges)
		api.POST("/exchanges", r.handler.CreateExchange)
		api.GET("/exchanges/:id", r.handler.GetExchange)
		api.DELETE("/exchanges/:id", r.handler.DeleteExchange)

		// Decision tooling
		api.POST("/classify", r.handler.Classify)
		api.POST("/resolve", r.handler.Resolve)
		api.POST("/match", r.handler.Match)

		// Bundles
		api.GET("/export", r.handler.Export)
		api.POST("/import", r.handler.Import)
		api.POST("/openapi/import", r.handler.ImportOpenAPI)

		// Statistics
		api.GET("/stats", r.handler.GetGlobalStats)
		api.GET("/stats/endpoints", r.handler.GetEndpointStats)
		api.POST("/stats/reset", r.handler.ResetStats)

		// Tracing
		api.GET("/traces", r.handler.ListTraces)
		api.GET("/traces/:id", r.handler.GetTrace)
		api.DELETE("/traces", r.handler.ClearTraces)

		// Health
		api.GET("/health", r.handler.HealthCheck)
	}

	// WebSocket for live decision traces
	wsHandler := tracing.NewWebSocketHandler(r.tracingService, r.logger)
	r.engine.GET("/_api/traces/stream", gin.WrapH(wsHandler))

	// Everything else is replay traffic
	r.engine.NoRoute(gin.WrapH(r.replayEngine.Handler()))
}

// Handler returns the http.Handler
func (r *Router) Handler() http.Handler {
	return r.engine
}

// requestLogger logs one entry per request
func requestLogger(logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		entry := logger.WithFields(logrus.Fields{
			"method":    c.Request.Method,
			"path":      path,
			"status":    c.Writer.Status(),
			"latencyMs": float64(time.Since(start).Microseconds()) / 1000,
			"clientIp":  c.ClientIP(),
		})
		if outcome := c.Writer.Header().Get(replay.HeaderOutcome); outcome != "" {
			entry = entry.WithField("outcome", outcome)
		}
		if len(c.Errors) > 0 {
			entry.Error(c.Errors.String())
			return
		}
		entry.Debug("request handled")
	}
}

// corsMiddleware adds CORS headers
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, PATCH")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
