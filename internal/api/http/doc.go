// Package http provides the REST handlers for the terminal session lifecycle.
//
// Endpoints (under /api/terminal):
//   - POST /create: create a session for the caller
//   - GET /sessions: list the caller's session ids
//   - GET /session/:sessionId: session snapshot
//   - DELETE /session/:sessionId: destroy a session
//   - GET /history/:sessionId: bounded command and output history
//   - GET /audit/:sessionId: audited commands (when the audit log is enabled)
//   - GET /health: terminal API health
//
// Every session-scoped endpoint answers 404 both for unknown sessions and for
// sessions owned by another caller.
//
// Example Usage:
//
//	handlers := http.NewHandlers(registry, auditStore, metrics, logger)
//	api.POST("/create", handlers.CreateSession)
//	api.GET("/history/:sessionId", handlers.GetHistory)
package http
