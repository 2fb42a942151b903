package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/terminal/internal/domain/policy"
	"github.com/GriffinCanCode/AgentOS/terminal/internal/domain/session"
	"github.com/GriffinCanCode/AgentOS/terminal/internal/domain/shell"
	"github.com/GriffinCanCode/AgentOS/terminal/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/terminal/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/AgentOS/terminal/internal/shared/id"
	"github.com/GriffinCanCode/AgentOS/terminal/internal/shared/paths"
)

var (
	// ErrNotFound is returned for unknown sessions and sessions owned by
	// someone else
	ErrNotFound = errors.New("session not found")
	// ErrUnavailable means a session could not be created in this environment
	ErrUnavailable = errors.New("terminal service unavailable")
	// ErrLimitExceeded means the owner already holds the maximum number of
	// sessions
	ErrLimitExceeded = errors.New("session limit reached")
	// ErrInvalidOwner means the owner id cannot name a session owner
	ErrInvalidOwner = errors.New("invalid owner id")
)

// Destroy reasons, reported in logs and metrics
const (
	ReasonExplicit = "explicit"
	ReasonIdle     = "idle"
	ReasonExit     = "exit"
	ReasonShutdown = "shutdown"
)

// Config holds registry-wide session settings
type Config struct {
	// BaseDir is the root under which each owner gets a directory
	BaseDir            string
	Shell              string
	Platform           string
	IdleTimeout        time.Duration
	ReapInterval       time.Duration
	MaxPerOwner        int
	HistoryLimit       int
	DisableInteractive bool
}

// DefaultConfig returns the registry defaults
func DefaultConfig() Config {
	return Config{
		BaseDir:      "./data/terminal",
		IdleTimeout:  30 * time.Minute,
		ReapInterval: time.Minute,
		MaxPerOwner:  10,
		HistoryLimit: 1000,
	}
}

type entry struct {
	session  *session.Session
	owner    string
	created  time.Time
	deadline time.Time
}

// Manager indexes live terminal sessions by id and reclaims idle ones
type Manager struct {
	cfg      Config
	launcher shell.Launcher
	policy   *policy.Policy
	breaker  *resilience.Breaker
	recorder session.Recorder
	metrics  *monitoring.Metrics
	logger   *zap.Logger
	now      func() time.Time
	newID    func() string

	mu       sync.RWMutex
	sessions map[string]*entry // Protected by mu
	closed   bool              // Protected by mu
}

// Option configures a Manager
type Option func(*Manager)

// WithLauncher sets the process launcher handed to every session
func WithLauncher(l shell.Launcher) Option {
	return func(m *Manager) { m.launcher = l }
}

// WithPolicy sets the command policy handed to every session
func WithPolicy(p *policy.Policy) Option {
	return func(m *Manager) { m.policy = p }
}

// WithSpawnBreaker shares one breaker across all sessions' shell spawns
func WithSpawnBreaker(b *resilience.Breaker) Option {
	return func(m *Manager) { m.breaker = b }
}

// WithRecorder sets the command audit recorder
func WithRecorder(r session.Recorder) Option {
	return func(m *Manager) { m.recorder = r }
}

// WithMetrics adds metrics tracking to the manager
func WithMetrics(metrics *monitoring.Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// NewManager creates a session registry
func NewManager(cfg Config, opts ...Option) *Manager {
	def := DefaultConfig()
	if cfg.BaseDir == "" {
		cfg.BaseDir = def.BaseDir
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = def.IdleTimeout
	}
	if cfg.ReapInterval <= 0 {
		cfg.ReapInterval = def.ReapInterval
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = def.HistoryLimit
	}

	m := &Manager{
		cfg:      cfg,
		sessions: make(map[string]*entry),
		now:      time.Now,
		newID:    func() string { return id.NewSessionID().String() },
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = zap.NewNop()
	}
	if m.policy == nil {
		m.policy = policy.Default()
	}
	return m
}

// Create allocates, initializes, and indexes a session for ownerID. An
// unusable owner id is reported as ErrInvalidOwner. Any initialization
// failure is reported as ErrUnavailable after the partial session has been
// cleaned up.
func (m *Manager) Create(ctx context.Context, ownerID string) (*session.Session, error) {
	if err := paths.ValidateOwnerID(ownerID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOwner, err)
	}
	if err := m.checkCapacity(ownerID); err != nil {
		return nil, err
	}

	sid := m.newID()
	opts := []session.Option{
		session.WithPolicy(m.policy),
		session.WithLogger(m.logger.Named("session")),
		session.WithMetrics(m.metrics),
		session.OnActivity(func() { m.Touch(sid) }),
		session.OnExit(func(int) { m.destroy(sid, ReasonExit) }),
	}
	if m.launcher != nil {
		opts = append(opts, session.WithLauncher(m.launcher))
	}
	if m.breaker != nil {
		opts = append(opts, session.WithSpawnBreaker(m.breaker))
	}
	if m.recorder != nil {
		opts = append(opts, session.WithRecorder(m.recorder))
	}

	s := session.New(session.Config{
		ID:                 sid,
		OwnerID:            ownerID,
		BaseDir:            paths.OwnerDir(m.cfg.BaseDir, ownerID),
		Shell:              m.cfg.Shell,
		Platform:           m.cfg.Platform,
		DisableInteractive: m.cfg.DisableInteractive,
		HistoryLimit:       m.cfg.HistoryLimit,
	}, opts...)

	if err := initialize(ctx, s); err != nil {
		_ = s.Cleanup()
		m.metrics.RecordCreateFailure()
		m.logger.Error("terminal session initialization failed", zap.String("owner_id", ownerID), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	now := m.now()
	m.mu.Lock()
	switch {
	case m.closed:
		m.mu.Unlock()
		_ = s.Cleanup()
		return nil, fmt.Errorf("%w: registry is shut down", ErrUnavailable)
	case m.cfg.MaxPerOwner > 0 && m.countLocked(ownerID) >= m.cfg.MaxPerOwner:
		m.mu.Unlock()
		_ = s.Cleanup()
		return nil, ErrLimitExceeded
	case s.Mode() == session.ModeTerminated:
		// the shell died before the session was indexed
		m.mu.Unlock()
		m.metrics.RecordCreateFailure()
		return nil, fmt.Errorf("%w: shell exited during initialization", ErrUnavailable)
	}
	m.sessions[sid] = &entry{
		session:  s,
		owner:    ownerID,
		created:  now,
		deadline: now.Add(m.cfg.IdleTimeout),
	}
	active := len(m.sessions)
	m.mu.Unlock()

	mode := s.Mode()
	m.metrics.RecordSessionCreated(string(mode))
	m.metrics.SetSessionsActive(active)
	m.logger.Info("terminal session created",
		zap.String("session_id", sid),
		zap.String("owner_id", ownerID),
		zap.String("mode", string(mode)),
		zap.String("base_dir", s.BaseDir()))
	return s, nil
}

// initialize runs session initialization, converting a panic into an error
func initialize(ctx context.Context, s *session.Session) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during initialization: %v", r)
		}
	}()
	return s.Initialize(ctx)
}

func (m *Manager) checkCapacity(ownerID string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return fmt.Errorf("%w: registry is shut down", ErrUnavailable)
	}
	if m.cfg.MaxPerOwner > 0 && m.countLocked(ownerID) >= m.cfg.MaxPerOwner {
		return ErrLimitExceeded
	}
	return nil
}

func (m *Manager) countLocked(ownerID string) int {
	n := 0
	for _, e := range m.sessions {
		if e.owner == ownerID {
			n++
		}
	}
	return n
}

// Get returns a session by id regardless of owner
func (m *Manager) Get(sessionID string) (*session.Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.sessions[sessionID]
	if !ok {
		return nil, false
	}
	return e.session, true
}

// Lookup returns a session only if it belongs to ownerID. A session owned
// by someone else is indistinguishable from a missing one.
func (m *Manager) Lookup(sessionID, ownerID string) (*session.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.sessions[sessionID]
	if !ok || e.owner != ownerID {
		return nil, ErrNotFound
	}
	return e.session, nil
}

// Destroy tears down a session. Unknown ids are a no-op; the result reports
// whether a session was removed.
func (m *Manager) Destroy(sessionID string) bool {
	return m.destroy(sessionID, ReasonExplicit)
}

// DestroyOwned tears down a session only if ownerID owns it
func (m *Manager) DestroyOwned(sessionID, ownerID string) error {
	if _, err := m.Lookup(sessionID, ownerID); err != nil {
		return err
	}
	if !m.destroy(sessionID, ReasonExplicit) {
		return ErrNotFound
	}
	return nil
}

func (m *Manager) destroy(sessionID, reason string) bool {
	m.mu.Lock()
	e, ok := m.sessions[sessionID]
	if ok {
		delete(m.sessions, sessionID)
	}
	active := len(m.sessions)
	m.mu.Unlock()

	if !ok {
		return false
	}
	m.teardown(sessionID, e, reason, active)
	return true
}

// destroyIfExpired removes a session only if its deadline is still at or
// before now. The check and the removal share one critical section so a
// concurrent Touch either lands first and keeps the session or finds it gone.
func (m *Manager) destroyIfExpired(sessionID string, now time.Time) bool {
	m.mu.Lock()
	e, ok := m.sessions[sessionID]
	if !ok || now.Before(e.deadline) {
		m.mu.Unlock()
		return false
	}
	delete(m.sessions, sessionID)
	active := len(m.sessions)
	m.mu.Unlock()

	m.teardown(sessionID, e, ReasonIdle, active)
	return true
}

func (m *Manager) teardown(sessionID string, e *entry, reason string, active int) {
	if err := e.session.Cleanup(); err != nil {
		m.logger.Warn("session cleanup failed", zap.String("session_id", sessionID), zap.Error(err))
	}
	m.metrics.RecordSessionDestroyed(reason)
	m.metrics.SetSessionsActive(active)
	m.logger.Info("terminal session destroyed",
		zap.String("session_id", sessionID),
		zap.String("owner_id", e.owner),
		zap.String("reason", reason))
}

// ListByOwner returns the ids of ownerID's sessions, oldest first
func (m *Manager) ListByOwner(ownerID string) []string {
	m.mu.RLock()
	owned := make([]*entry, 0)
	ids := make(map[*entry]string)
	for sid, e := range m.sessions {
		if e.owner == ownerID {
			owned = append(owned, e)
			ids[e] = sid
		}
	}
	m.mu.RUnlock()

	sort.Slice(owned, func(i, j int) bool {
		if owned[i].created.Equal(owned[j].created) {
			return ids[owned[i]] < ids[owned[j]]
		}
		return owned[i].created.Before(owned[j].created)
	})

	out := make([]string, len(owned))
	for i, e := range owned {
		out[i] = ids[e]
	}
	return out
}

// Touch renews a session's idle deadline
func (m *Manager) Touch(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.sessions[sessionID]; ok {
		e.deadline = m.now().Add(m.cfg.IdleTimeout)
	}
}

// Deadline returns when a session becomes eligible for reclamation
func (m *Manager) Deadline(sessionID string) (time.Time, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.sessions[sessionID]
	if !ok {
		return time.Time{}, false
	}
	return e.deadline, true
}

// Len returns the number of live sessions
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Reap destroys every session whose deadline is at or before now and
// returns their ids
func (m *Manager) Reap(now time.Time) []string {
	m.mu.RLock()
	var expired []string
	for sid, e := range m.sessions {
		if !now.Before(e.deadline) {
			expired = append(expired, sid)
		}
	}
	m.mu.RUnlock()

	reaped := expired[:0]
	for _, sid := range expired {
		if m.destroyIfExpired(sid, now) {
			reaped = append(reaped, sid)
		}
	}
	sort.Strings(reaped)
	return reaped
}

// Run reaps idle sessions every ReapInterval until ctx is done
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.ReapInterval)
	defer ticker.Stop()

	m.logger.Info("idle reaper started",
		zap.Duration("idle_timeout", m.cfg.IdleTimeout),
		zap.Duration("interval", m.cfg.ReapInterval))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if reaped := m.Reap(m.now()); len(reaped) > 0 {
				m.logger.Info("reaped idle sessions", zap.Int("count", len(reaped)))
			}
		}
	}
}

// Shutdown destroys every session and refuses further creation
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	m.closed = true
	all := make(map[string]*entry, len(m.sessions))
	for sid, e := range m.sessions {
		all[sid] = e
	}
	m.sessions = make(map[string]*entry)
	m.mu.Unlock()

	var result *multierror.Error
	for sid, e := range all {
		if err := e.session.Cleanup(); err != nil {
			result = multierror.Append(result, fmt.Errorf("session %s: %w", sid, err))
			continue
		}
		m.metrics.RecordSessionDestroyed(ReasonShutdown)
	}
	m.metrics.SetSessionsActive(0)
	m.logger.Info("session registry shut down", zap.Int("sessions", len(all)))
	return result.ErrorOrNil()
}
