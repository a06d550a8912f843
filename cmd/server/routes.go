package main

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"crosspay.backend/internal/interfaces/http/handlers"
	"crosspay.backend/internal/interfaces/http/middleware"
)

const (
	serviceName    = "crosspay-backend"
	serviceVersion = "0.1.0"
)

type routeDeps struct {
	planHandler    *handlers.PlanHandler
	historyHandler *handlers.HistoryHandler
	chainHandler   *handlers.ChainHandler
	metrics        prometheus.Gatherer
	corsOrigins    []string
	// idempotency replays retried history writes; it needs redis
	idempotency bool
}

func newRouter(d routeDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.AccountMiddleware())
	r.Use(middleware.LoggerMiddleware())

	applyCORSMiddleware(r, d.corsOrigins)
	registerHealthRoute(r)
	registerMetricsRoute(r, d.metrics)
	registerAPIV1Routes(r, d)
	return r
}

// applyCORSMiddleware answers browsers from allowedOrigins only. Credentials are never
// granted to the "*" wildcard.
func applyCORSMiddleware(r *gin.Engine, allowedOrigins []string) {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	allowAny := false
	for _, origin := range allowedOrigins {
		origin = strings.ToLower(strings.TrimRight(strings.TrimSpace(origin), "/"))
		switch origin {
		case "":
		case "*":
			allowAny = true
		default:
			allowed[origin] = struct{}{}
		}
	}

	r.Use(func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" {
			c.Header("Vary", "Origin")
			if _, ok := allowed[strings.ToLower(origin)]; ok {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Access-Control-Allow-Credentials", "true")
			} else if allowAny {
				c.Header("Access-Control-Allow-Origin", "*")
			} else if c.Request.Method == http.MethodOptions {
				c.AbortWithStatus(http.StatusForbidden)
				return
			}
		}
		c.Header("Access-Control-Allow-Headers", "Content-Type, X-Request-ID, "+middleware.AccountHeader+", "+middleware.IdempotencyHeader)
		c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Header("Access-Control-Expose-Headers", "X-Request-ID, X-Idempotency-Hit")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})
}

func registerHealthRoute(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": serviceName,
			"version": serviceVersion,
		})
	})
}

func registerMetricsRoute(r *gin.Engine, gatherer prometheus.Gatherer) {
	if gatherer == nil {
		return
	}
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
}

func registerAPIV1Routes(r *gin.Engine, d routeDeps) {
	v1 := r.Group("/api/v1")

	// writes a wallet may retry
	retried := []gin.HandlerFunc{}
	if d.idempotency {
		retried = append(retried, middleware.IdempotencyMiddleware())
	}
	with := func(h gin.HandlerFunc) []gin.HandlerFunc {
		return append(append([]gin.HandlerFunc{}, retried...), h)
	}

	if d.chainHandler != nil {
		v1.GET("/chains", d.chainHandler.ListChains)
		v1.GET("/tokens/resolve", d.chainHandler.ResolveToken)
	}

	if d.planHandler != nil {
		plans := v1.Group("/plans")
		{
			plans.POST("/refresh", d.planHandler.RefreshPlan)
			plans.GET("/current", d.planHandler.GetPlan)
			plans.POST("/cancel", d.planHandler.CancelPlan)
			plans.POST("/refine", d.planHandler.RefineQuote)
			plans.POST("/prepare", with(d.planHandler.PreparePayment)...)
		}
	}

	if d.historyHandler != nil {
		history := v1.Group("/history")
		{
			history.POST("/init", d.historyHandler.InitHistory)
			history.GET("", d.historyHandler.ListHistory)
			history.DELETE("", d.historyHandler.ClearHistory)
			history.POST("/sync", d.historyHandler.SyncHistory)
			history.POST("/direct", with(d.historyHandler.RecordDirect)...)
			history.GET("/:id", d.historyHandler.GetEntry)
			history.POST("/:id/fail", d.historyHandler.FailEntry)
			history.POST("/:id/progress", with(d.historyHandler.RecordProgress)...)
		}
	}
}
