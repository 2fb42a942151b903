package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/terminal/internal/api/middleware"
	"github.com/GriffinCanCode/AgentOS/terminal/internal/domain/registry"
	"github.com/GriffinCanCode/AgentOS/terminal/internal/domain/session"
	"github.com/GriffinCanCode/AgentOS/terminal/internal/infrastructure/audit"
	"github.com/GriffinCanCode/AgentOS/terminal/internal/infrastructure/monitoring"
)

const (
	createFailed        = "Failed to create terminal session"
	unavailableDetails  = "Terminal initialization failed. The terminal service may not be available in this environment."
	limitDetails        = "Session limit reached. Close an existing session and try again."
	invalidOwnerDetails = "Invalid caller identity"
	sessionNotFound     = "Session not found"
)

// Registry is the session lifecycle the handlers drive
type Registry interface {
	Create(ctx context.Context, ownerID string) (*session.Session, error)
	Lookup(sessionID, ownerID string) (*session.Session, error)
	DestroyOwned(sessionID, ownerID string) error
	ListByOwner(ownerID string) []string
	Len() int
}

// AuditLog reads recorded commands
type AuditLog interface {
	ListBySession(ctx context.Context, sessionID string, limit int) ([]audit.Command, error)
}

// Handlers contains all HTTP handlers
type Handlers struct {
	registry Registry
	audit    AuditLog
	metrics  *monitoring.Metrics
	logger   *zap.Logger
}

// NewHandlers creates a new handler set. audit may be nil when the audit
// log is disabled.
func NewHandlers(reg Registry, auditLog AuditLog, metrics *monitoring.Metrics, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		registry: reg,
		audit:    auditLog,
		metrics:  metrics,
		logger:   logger,
	}
}

// Health handles the service-level health check
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"service":  "terminal",
		"sessions": h.registry.Len(),
		"metrics":  h.metrics.Snapshot(),
	})
}

// TerminalHealth reports that the terminal API is reachable
func (h *Handlers) TerminalHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"wsSupport": true,
		"sessions":  h.registry.Len(),
	})
}

// CreateSession creates a terminal session for the caller
func (h *Handlers) CreateSession(c *gin.Context) {
	caller, _ := middleware.Caller(c)

	sess, err := h.registry.Create(c.Request.Context(), caller)
	if err != nil {
		switch {
		case errors.Is(err, registry.ErrInvalidOwner):
			c.JSON(http.StatusBadRequest, gin.H{"error": createFailed, "details": invalidOwnerDetails})
			return
		case errors.Is(err, registry.ErrLimitExceeded):
			c.JSON(http.StatusTooManyRequests, gin.H{"error": createFailed, "details": limitDetails})
			return
		}
		h.logger.Warn("terminal session creation failed", zap.String("owner_id", caller), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": createFailed, "details": unavailableDetails})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sessionId":  sess.ID(),
		"baseDir":    sess.BaseDir(),
		"currentDir": sess.CurrentDir(),
		"mode":       sess.Mode(),
	})
}

// ListSessions lists the caller's session ids, oldest first
func (h *Handlers) ListSessions(c *gin.Context) {
	caller, _ := middleware.Caller(c)
	c.JSON(http.StatusOK, gin.H{"sessions": h.registry.ListByOwner(caller)})
}

// GetSession returns a snapshot of an owned session
func (h *Handlers) GetSession(c *gin.Context) {
	sess, ok := h.owned(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, sess.Info())
}

// DestroySession destroys an owned session
func (h *Handlers) DestroySession(c *gin.Context) {
	caller, _ := middleware.Caller(c)
	if err := h.registry.DestroyOwned(c.Param("sessionId"), caller); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": sessionNotFound})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Session destroyed"})
}

// GetHistory returns the history ring of an owned session
func (h *Handlers) GetHistory(c *gin.Context) {
	sess, ok := h.owned(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": sess.History()})
}

// GetAudit returns audited commands of a session the caller owns. Records
// outlive their session, so ownership is taken from the rows themselves.
func (h *Handlers) GetAudit(c *gin.Context) {
	if h.audit == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Audit log is disabled"})
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
			return
		}
		limit = n
	}

	caller, _ := middleware.Caller(c)
	sessionID := c.Param("sessionId")
	_, lookupErr := h.registry.Lookup(sessionID, caller)

	rows, err := h.audit.ListBySession(c.Request.Context(), sessionID, limit)
	if err != nil {
		h.logger.Error("audit query failed", zap.String("session_id", sessionID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read audit log"})
		return
	}

	owned := make([]audit.Command, 0, len(rows))
	for _, row := range rows {
		if row.OwnerID == caller {
			owned = append(owned, row)
		}
	}
	if lookupErr != nil && len(owned) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": sessionNotFound})
		return
	}

	c.JSON(http.StatusOK, gin.H{"sessionId": sessionID, "commands": owned})
}

// owned resolves the :sessionId parameter for the caller, writing 404 when
// the session is absent or belongs to someone else
func (h *Handlers) owned(c *gin.Context) (*session.Session, bool) {
	caller, _ := middleware.Caller(c)
	sess, err := h.registry.Lookup(c.Param("sessionId"), caller)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": sessionNotFound})
		return nil, false
	}
	return sess, true
}

// RegisterRoutes mounts the terminal endpoints on api. guard runs before
// every caller-scoped endpoint; health stays open.
func (h *Handlers) RegisterRoutes(api *gin.RouterGroup, guard ...gin.HandlerFunc) {
	api.GET("/health", h.TerminalHealth)

	owned := api.Group("", guard...)
	owned.POST("/create", h.CreateSession)
	owned.GET("/sessions", h.ListSessions)
	owned.GET("/session/:sessionId", h.GetSession)
	owned.DELETE("/session/:sessionId", h.DestroySession)
	owned.GET("/history/:sessionId", h.GetHistory)
	owned.GET("/audit/:sessionId", h.GetAudit)
}
