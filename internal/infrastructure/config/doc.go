// Package config provides 12-factor configuration management for shellhost.
//
// Configuration is loaded from environment variables with sensible defaults.
// CLI flags can override environment variables for development flexibility.
//
// Configuration Sections:
//   - Server: HTTP server settings (port, host, shutdown timeout)
//   - Logging: Log level, encoding and destination
//   - RateLimit: Per-IP rate limiting configuration
//   - Shell: profile file, default profile, PTY mode, init timeout
//   - Window: default display size, queue limit, write timeout, close on disconnect
//   - Remote: server URL, output buffer bound, chunk retention for displays
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	fmt.Printf("Server running on %s\n", cfg.Server.Addr())
//
// Environment Variables:
//   - PORT, HOST, SHUTDOWN_TIMEOUT, CORS_ORIGINS
//   - LOG_LEVEL, LOG_DEV, LOG_OUTPUT
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED, RATE_LIMIT_IDLE_TTL
//   - SHELL_PROFILES, SHELL_DEFAULT_PROFILE, SHELL_PTY, SHELL_INIT_TIMEOUT
//   - WINDOW_WIDTH, WINDOW_HEIGHT, WINDOW_QUEUE_LIMIT, WINDOW_WRITE_TIMEOUT, WINDOW_CLOSE_ON_DISCONNECT
//   - SHELLHOST_URL, REMOTE_BUFFER_BYTES, REMOTE_KEEP_CHUNKS
package config
