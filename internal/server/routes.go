package server

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

// RegisterRoutes configures all API routes, middleware, and error handlers
func RegisterRoutes(e *echo.Echo, h *Handlers, cfg ServerConfig) {
	// Set custom error handler for consistent JSON responses
	e.HTTPErrorHandler = NotFoundJSON()

	// Apply global middleware
	e.Use(SetJSONContentType) // Ensure all responses are JSON
	e.Use(SetNoCacheHeaders)  // Prevent caching of API responses

	// Optional API key authentication
	if cfg.APIKey != "" {
		e.Use(middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
			KeyLookup: "header:X-API-Key",
			Skipper: func(c echo.Context) bool {
				// Probes and scrapers stay unauthenticated
				p := c.Path()
				return p == "/v1/health" || p == "/v1/metrics"
			},
			Validator: func(key string, c echo.Context) (bool, error) {
				return key == cfg.APIKey, nil
			},
		}))
	}

	v1 := e.Group("/v1")
	v1.GET("/health", h.Health)
	v1.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	v1.GET("/rate", h.Rate)
	v1.GET("/status", h.Status)
	v1.GET("/stats", h.Stats)
	v1.GET("/swaps/recent", h.RecentSwaps)

	// Swap endpoints with rate limiting
	swapGroup := v1.Group("/swap")
	swapGroup.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(cfg.swapRate()),
		Burst:     cfg.swapBurst(),
		ExpiresIn: 2 * time.Minute,
	})))
	swapGroup.POST("", h.Swap)
	swapGroup.GET("/simulate", h.Simulate)

	// Leaderboard
	v1.GET("/leaderboard", h.Leaderboard)
	v1.GET("/leaderboard/:code", h.LeaderboardPosition)

	// Referral registry; stats work with any oracle
	refGroup := v1.Group("/referrals")
	refGroup.GET("/:code/stats", h.ReferralStats)
	refGroup.GET("", h.ReferralList, h.requireRegistry)
	refGroup.POST("", h.ReferralRegister, h.requireRegistry)
	refGroup.GET("/:code", h.ReferralGet, h.requireRegistry)
	refGroup.DELETE("/:code", h.ReferralDelete, h.requireRegistry)
	refGroup.GET("/:code/validate", h.ReferralValidate, h.requireRegistry)

	// Operator controls
	admin := v1.Group("/admin")
	admin.POST("/pause", h.Pause)
	admin.POST("/resume", h.Resume)

	// AI endpoints with rate limiting
	aigroup := v1.Group("/ai")
	aigroup.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(0.2), // 1 request every 5 seconds
		Burst:     2,
		ExpiresIn: 2 * time.Minute,
	})))
	aigroup.POST("/ask", h.AIAsk)

	// Catch-all route for 404 responses
	e.RouteNotFound("/*", func(c echo.Context) error {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "not found", Code: http.StatusNotFound})
	})
}
