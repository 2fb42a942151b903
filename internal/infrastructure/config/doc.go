// Package config provides 12-factor configuration management for the
// terminal service.
//
// Configuration is loaded from environment variables with sensible defaults.
// CLI flags can override environment variables for development flexibility.
//
// Configuration Sections:
//   - Server: HTTP server settings (port, host)
//   - Logging: Log level and output format
//   - RateLimit: Per-IP rate limiting configuration
//   - CORS: Allowed browser origins, also checked on websocket upgrade
//   - Terminal: Session directories, shell, timeouts, limits, policy file
//   - Auth: Gateway token and the header carrying the caller id
//   - Audit: Command audit database
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	fmt.Printf("Server running on %s\n", cfg.Server.Addr())
//
// Environment Variables:
//   - PORT, HOST
//   - LOG_LEVEL, LOG_DEV
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED
//   - CORS_ALLOWED_ORIGINS
//   - TERMINAL_BASE_DIR, TERMINAL_SHELL, TERMINAL_IDLE_TIMEOUT,
//     TERMINAL_REAP_INTERVAL, TERMINAL_EXEC_TIMEOUT, TERMINAL_MAX_OUTPUT,
//     TERMINAL_HISTORY_LIMIT, TERMINAL_MAX_SESSIONS, TERMINAL_POLICY_FILE,
//     TERMINAL_DISABLE_INTERACTIVE
//   - AUTH_TOKEN, AUTH_USER_HEADER
//   - AUDIT_ENABLED, AUDIT_DB_PATH, AUDIT_RETENTION_DAYS
package config
