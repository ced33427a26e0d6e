// Package httpapi wires the HTTP transport (Gin) to the proxy service,
// middleware, and route handlers.
//
// The public surface is exactly GET /health, GET /thread and GET /search,
// plus /swagger/* when enabled. Metrics are served on a separate listener.
package httpapi

import (
	"net/http"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/tbourn/redditify-proxy/internal/config"
	"github.com/tbourn/redditify-proxy/internal/http/handlers"
	"github.com/tbourn/redditify-proxy/internal/http/middleware"
)

// RegisterRoutes attaches all middleware and endpoints to r.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Logger: structured access logs
//  4. Recovery: capture panics after logger
//  5. Metrics
//  6. CORS: headers on every response, OPTIONS answered with 204
//  7. Method guard: 405 for anything but GET/OPTIONS, on any path
//  8. Security headers
//  9. Rate limiter (per client IP, disabled when RATE_RPS is 0)
//  10. gzip for large thread payloads
func RegisterRoutes(r *gin.Engine, svc handlers.ProxyService, cfg config.Config) {
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.Metrics())
	r.Use(middleware.CORS(cfg.CORS.MaxAge))
	r.Use(middleware.AllowMethods(http.MethodGet, http.MethodOptions))
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		EnablePolicy: true,
	}))
	if cfg.RateRPS > 0 {
		rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByIP())
		r.Use(rl.Handler())
	}
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	// Unknown paths, trailing-slash variants included, go through the
	// middleware chain to NoRoute instead of a bare 301 from the router.
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.MsgNotFound)
	})

	h := handlers.New(svc, cfg.Cache.TTL)
	r.GET("/health", h.Health)
	r.GET("/thread", h.Thread)
	r.GET("/search", h.Search)

	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}
}
