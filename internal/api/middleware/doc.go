// Package middleware provides the HTTP middleware for the terminal service.
//
// Middleware stack includes:
//   - CORS: Cross-origin resource sharing with configurable origins
//   - RateLimit: Per-IP token bucket rate limiting
//   - Identify: Caller id from the gateway's user header
//   - RequireToken: Shared gateway token (bearer or X-Internal-Token)
//   - RequireIdentity: Rejects anonymous requests
//
// Rate Limiting:
//   - Per-IP tracking with stale client cleanup
//   - Token bucket algorithm
//   - Configurable RPS and burst capacity
//
// Example Usage:
//
//	router.Use(middleware.CORS(middleware.DefaultCORSConfig(cfg.CORS.AllowedOrigins...)))
//	router.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
//
//	api := router.Group("/api/terminal", middleware.Identify(cfg.Auth.UserHeader))
//	owned := api.Group("", middleware.RequireToken(cfg.Auth.Token), middleware.RequireIdentity())
package middleware
