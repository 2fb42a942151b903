package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/terminal/internal/domain/policy"
	"github.com/GriffinCanCode/AgentOS/terminal/internal/domain/shell"
	"github.com/GriffinCanCode/AgentOS/terminal/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/terminal/internal/infrastructure/resilience"
)

// Session is one terminal: a shell process (or its one-shot emulation), the
// working directory confined to a base directory, a bounded history, and a
// fan-out of events to subscribers.
type Session struct {
	cfg        Config
	launcher   shell.Launcher
	policy     *policy.Policy
	translator policy.Translator
	dialect    shell.Dialect
	breaker    *resilience.Breaker
	recorder   Recorder
	metrics    *monitoring.Metrics
	logger     *zap.Logger
	onActivity func()
	onExit     func(code int)

	createdAt time.Time
	history   *History

	// set once by Initialize
	baseDir  string
	realBase string

	mu         sync.Mutex
	mode       Mode
	currentDir string
	proc       shell.Handle
	cols       int
	rows       int
	lastActive time.Time
	execCancel context.CancelFunc
	subs       map[*Subscription]struct{}
	backlog    []Event

	editorMu sync.Mutex
	editor   lineEditor

	queue      chan string
	ctx        context.Context
	cancel     context.CancelFunc
	closeOnce  sync.Once
	workerDone chan struct{}
}

// Option configures a Session
type Option func(*Session)

// WithLauncher sets the process launcher
func WithLauncher(l shell.Launcher) Option {
	return func(s *Session) { s.launcher = l }
}

// WithPolicy sets the command policy
func WithPolicy(p *policy.Policy) Option {
	return func(s *Session) { s.policy = p }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithMetrics enables metrics collection
func WithMetrics(m *monitoring.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithRecorder sets the command audit recorder
func WithRecorder(r Recorder) Option {
	return func(s *Session) { s.recorder = r }
}

// WithSpawnBreaker guards interactive shell spawning
func WithSpawnBreaker(b *resilience.Breaker) Option {
	return func(s *Session) { s.breaker = b }
}

// OnActivity registers a hook run for every inbound command
func OnActivity(fn func()) Option {
	return func(s *Session) { s.onActivity = fn }
}

// OnExit registers a hook run after the shell exits and the session is torn
// down
func OnExit(fn func(code int)) Option {
	return func(s *Session) { s.onExit = fn }
}

// New creates an uninitialized session
func New(cfg Config, opts ...Option) *Session {
	cfg.applyDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	s := &Session{
		cfg:        cfg,
		createdAt:  time.Now(),
		history:    NewHistory(cfg.HistoryLimit),
		mode:       ModeInitializing,
		subs:       make(map[*Subscription]struct{}),
		queue:      make(chan string, cfg.QueueSize),
		ctx:        ctx,
		cancel:     cancel,
		workerDone: make(chan struct{}),
	}
	s.lastActive = s.createdAt

	for _, opt := range opts {
		opt(s)
	}
	if s.policy == nil {
		s.policy = policy.Default()
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.launcher == nil {
		s.launcher = shell.NewLauncher(shell.DefaultOptions(), s.logger)
	}

	platform := policy.Platform(cfg.Platform)
	if platform == "" {
		platform = policy.Detect()
	}
	s.translator = s.policy.Translator(platform)
	s.dialect = shell.DialectFor(platform, cfg.Shell)
	s.logger = s.logger.With(zap.String("session_id", cfg.ID), zap.String("owner_id", cfg.OwnerID))

	return s
}

// Initialize prepares the base directory and tries to start an interactive
// shell. Any environment failure leaves the session usable in fallback mode;
// an error is returned only when the session cannot exist at all.
func (s *Session) Initialize(ctx context.Context) error {
	s.mu.Lock()
	if s.mode != ModeInitializing {
		s.mu.Unlock()
		return fmt.Errorf("initialize: session is %s", s.mode)
	}
	s.mu.Unlock()

	if s.cfg.BaseDir == "" {
		return errors.New("initialize: base directory is required")
	}
	base, err := filepath.Abs(s.cfg.BaseDir)
	if err != nil {
		return fmt.Errorf("initialize: resolve base directory: %w", err)
	}
	s.baseDir = base
	s.realBase = base

	var (
		proc   shell.Handle
		reason string
	)
	switch err := ensureWritable(base); {
	case err != nil:
		reason = "base directory unavailable"
		s.logger.Warn("base directory not writable", zap.String("dir", base), zap.Error(err))
	case s.cfg.DisableInteractive:
		reason = "interactive shells disabled"
	default:
		if real, err := filepath.EvalSymlinks(base); err == nil {
			s.realBase = real
		}
		proc, reason = s.spawn(ctx, base)
	}

	s.mu.Lock()
	if s.mode == ModeTerminated {
		s.mu.Unlock()
		if proc != nil {
			_ = proc.Kill()
		}
		return ErrTerminated
	}
	s.currentDir = base
	if proc != nil {
		s.mode = ModeInteractive
		s.proc = proc
	} else {
		s.mode = ModeFallback
	}
	s.mu.Unlock()

	go s.worker()

	if proc != nil {
		s.logger.Info("terminal session initialized", zap.String("mode", string(ModeInteractive)), zap.Int("pid", proc.Pid()))
		s.output(fmt.Sprintf("Terminal initialized in %s\n", base), false)
		go s.watch(proc)
		return nil
	}

	s.logger.Warn("terminal session running in fallback mode", zap.String("reason", reason))
	s.metrics.RecordFallback(fallbackLabel(reason))
	s.emit(Event{Kind: EventOutput, Data: fmt.Sprintf("Interactive shell unavailable (%s). Running in fallback mode.\r\n", reason)})
	s.prompt()
	return nil
}

// spawn starts the interactive shell through the breaker, returning the
// fallback reason on failure
func (s *Session) spawn(ctx context.Context, dir string) (shell.Handle, string) {
	var proc shell.Handle
	start := func() error {
		h, err := s.launcher.Start(ctx, dir, s.dialect)
		proc = h
		return err
	}

	var err error
	if s.breaker != nil {
		err = s.breaker.Execute(start)
	} else {
		err = start()
	}

	switch {
	case err == nil:
		return proc, ""
	case errors.Is(err, resilience.ErrCircuitOpen), errors.Is(err, resilience.ErrTooManyRequests):
		return nil, "shell spawning suspended after repeated failures"
	default:
		s.logger.Warn("interactive shell failed to start", zap.String("shell", s.dialect.Shell), zap.Error(err))
		return nil, "shell failed to start"
	}
}

func fallbackLabel(reason string) string {
	switch {
	case strings.HasPrefix(reason, "base"):
		return "base_dir"
	case strings.HasPrefix(reason, "interactive"):
		return "disabled"
	case strings.HasPrefix(reason, "shell spawning"):
		return "breaker_open"
	case strings.HasPrefix(reason, "write"):
		return "write_failed"
	default:
		return "spawn_failed"
	}
}

// ensureWritable creates dir if needed and checks it with a marker file
func ensureWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".terminal-check-*")
	if err != nil {
		return err
	}
	name := f.Name()
	if err := f.Close(); err != nil {
		_ = os.Remove(name)
		return err
	}
	return os.Remove(name)
}

// watch forwards process events until the shell exits
func (s *Session) watch(h shell.Handle) {
	for ev := range h.Events() {
		switch ev.Kind {
		case shell.EventStdout:
			s.output(string(ev.Data), true)
		case shell.EventStderr:
			s.errorOut(string(ev.Data), true)
		case shell.EventExit:
			s.mu.Lock()
			current := s.proc == h && s.mode == ModeInteractive
			if current {
				s.emitLocked(Event{Kind: EventExit, Code: ev.Code})
			}
			s.mu.Unlock()
			if !current {
				continue
			}

			s.logger.Info("shell exited", zap.Int("code", ev.Code))
			_ = s.Cleanup()
			if s.onExit != nil {
				s.onExit(ev.Code)
			}
		}
	}
}

// Input accepts raw client input. Both modes frame it the same way through
// the line editor: keystrokes are echoed and buffered until a line
// terminator, and a printable multi-character payload on an empty line is a
// whole command.
func (s *Session) Input(data string) error {
	switch s.Mode() {
	case ModeInteractive, ModeFallback:
		return s.edit(data)
	default:
		return ErrTerminated
	}
}

func (s *Session) edit(data string) error {
	s.editorMu.Lock()
	ops := s.editor.feed(data)
	s.editorMu.Unlock()

	var firstErr error
	for _, op := range ops {
		switch op.kind {
		case opEcho:
			s.emit(Event{Kind: EventOutput, Data: op.text})
		case opPrompt:
			s.prompt()
		case opSubmit:
			if err := s.Submit(op.text); err != nil && firstErr == nil {
				firstErr = err
			}
		case opInterrupt:
			dropped := s.drainQueue()
			if !s.interrupt() {
				s.prompt()
			}
			if dropped > 0 {
				s.logger.Debug("interrupt dropped queued commands", zap.Int("count", dropped))
			}
		}
	}
	return firstErr
}

// drainQueue discards submitted lines that have not started yet
func (s *Session) drainQueue() int {
	n := 0
	for {
		select {
		case <-s.queue:
			n++
		default:
			return n
		}
	}
}

// Submit queues one command line. Lines run one at a time in arrival order.
// Blank lines are ignored.
func (s *Session) Submit(line string) error {
	if strings.TrimSpace(line) == "" {
		return nil
	}
	if s.Mode() == ModeTerminated {
		return ErrTerminated
	}

	select {
	case <-s.ctx.Done():
		return ErrTerminated
	case s.queue <- line:
		return nil
	default:
		s.emit(Event{Kind: EventError, Data: "Too many pending commands. Try again shortly.\r\n"})
		return ErrQueueFull
	}
}

func (s *Session) worker() {
	defer close(s.workerDone)
	for {
		select {
		case <-s.ctx.Done():
			return
		case line := <-s.queue:
			s.execute(line)
		}
	}
}

// Resize records the client's terminal size. It is not propagated to the
// child process.
func (s *Session) Resize(cols, rows int) error {
	if cols <= 0 || rows <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidSize, cols, rows)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode == ModeTerminated {
		return ErrTerminated
	}
	s.cols, s.rows = cols, rows
	s.emitLocked(Event{Kind: EventResize, Cols: cols, Rows: rows})
	return nil
}

// Cleanup kills the shell, stops the command worker, and detaches every
// subscriber. It is idempotent.
func (s *Session) Cleanup() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		prev := s.mode
		s.mode = ModeTerminated
		proc := s.proc
		s.proc = nil
		for sub := range s.subs {
			delete(s.subs, sub)
			close(sub.ch)
		}
		s.backlog = nil
		s.mu.Unlock()

		s.cancel()
		if proc != nil {
			_ = proc.Kill()
		}
		s.logger.Debug("terminal session cleaned up", zap.String("previous_mode", string(prev)))
	})
	return nil
}

// Done is closed once the command worker has stopped after Cleanup
func (s *Session) Done() <-chan struct{} {
	return s.workerDone
}

// ID returns the session id
func (s *Session) ID() string { return s.cfg.ID }

// OwnerID returns the owner identity
func (s *Session) OwnerID() string { return s.cfg.OwnerID }

// BaseDir returns the confinement root
func (s *Session) BaseDir() string { return s.baseDir }

// CurrentDir returns the tracked working directory
func (s *Session) CurrentDir() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentDir
}

// Mode returns the execution mode
func (s *Session) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// History returns the history ring, oldest first
func (s *Session) History() []HistoryEntry {
	return s.history.Entries()
}

// Info returns a snapshot of the session
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	info := Info{
		ID:           s.cfg.ID,
		OwnerID:      s.cfg.OwnerID,
		BaseDir:      s.baseDir,
		CurrentDir:   s.currentDir,
		Mode:         s.mode,
		Cols:         s.cols,
		Rows:         s.rows,
		CreatedAt:    s.createdAt,
		LastActivity: s.lastActive,
	}
	if s.proc != nil {
		info.Pid = s.proc.Pid()
	}
	return info
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActive = time.Now()
	s.mu.Unlock()
	if s.onActivity != nil {
		s.onActivity()
	}
}
