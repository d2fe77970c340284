// Package api exposes the service over HTTP.
package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"smartrecipe/internal/auth"
)

var httpRequests = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "smartrecipe_http_requests_total",
		Help: "HTTP requests by route and status",
	},
	[]string{"method", "route", "status"},
)

var httpDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "smartrecipe_http_request_duration_seconds",
		Help:    "HTTP request latency by route",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"method", "route"},
)

// NewRouter wires the routes and middleware.
func NewRouter(h *Handler, allowedOrigins []string, logger zerolog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))
	router.Use(traceContext())

	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	router.MaxMultipartMemory = h.maxUploadBytes

	router.GET("/health", h.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")

	authGroup := api.Group("/auth")
	{
		authGroup.POST("/signup", h.SignUp)
		authGroup.POST("/signin", h.SignIn)
		authGroup.POST("/signout", auth.Middleware(h.auth), h.SignOut)
		authGroup.GET("/me", auth.Middleware(h.auth), h.Me)
	}

	protected := api.Group("")
	protected.Use(auth.Middleware(h.auth))

	inventory := protected.Group("/inventory")
	{
		inventory.GET("", h.ListInventory)
		inventory.POST("", h.CreateInventory)
		inventory.GET("/expiring", h.ExpiringInventory)
		inventory.PUT("/:id", h.UpdateInventory)
		inventory.DELETE("/:id", h.DeleteInventory)
	}

	sales := protected.Group("/sales")
	{
		sales.GET("", h.ListSales)
		sales.POST("/upload", h.UploadSale)
		sales.POST("/process", h.ProcessSale)
		sales.GET("/:id/status", h.SaleStatus)
		sales.DELETE("/:id", h.DeleteSale)
	}

	recipes := protected.Group("/recipes")
	{
		recipes.GET("", h.ListRecipes)
		recipes.POST("/generate", h.GenerateRecipe)
		recipes.GET("/:id", h.GetRecipe)
		recipes.POST("/:id/rating", h.RateRecipe)
	}

	return router
}

func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		httpRequests.WithLabelValues(c.Request.Method, route, statusClass(status)).Inc()
		httpDuration.WithLabelValues(c.Request.Method, route).Observe(latency.Seconds())

		logger.Info().
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Dur("latency", latency).
			Str("ip", c.ClientIP()).
			Msg("HTTP request")
	}
}

// traceContext continues an incoming W3C trace so pipeline spans join it.
func traceContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := otel.GetTextMapPropagator().Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
