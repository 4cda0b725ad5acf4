// Package middleware provides HTTP middleware for the shellhost REST surface.
//
//   - RequestID: X-Request-ID propagation
//   - AccessLog: one structured log line per request
//   - CORS: browser displays on the configured origins
//   - RateLimit: per-IP token buckets, idle clients forgotten
//
// Example Usage:
//
//	router.Use(middleware.RequestID(), middleware.AccessLog(logger))
//	router.Use(middleware.CORS(cfg.Server.CORSOrigins))
//	router.Use(middleware.RateLimit(middleware.RateLimitConfig{RequestsPerSecond: 100, Burst: 200}))
package middleware
