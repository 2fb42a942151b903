package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrSpawn means no interactive shell could be started. Callers switch
	// the session to fallback mode.
	ErrSpawn = errors.New("shell spawn failed")
	// ErrProcessDead means the shell no longer accepts input
	ErrProcessDead = errors.New("shell process is not running")
	// ErrOutputLimit means a one-shot command exceeded the output cap and
	// was killed. The captured prefix is still returned.
	ErrOutputLimit = errors.New("command output exceeded limit")
	// ErrTimeout means a one-shot command ran past its deadline
	ErrTimeout = errors.New("command timed out")
)

// EventKind tags a process event
type EventKind int

const (
	EventStdout EventKind = iota
	EventStderr
	EventExit
)

// Event is emitted asynchronously by a running shell
type Event struct {
	Kind EventKind
	Data []byte
	Code int
}

// Handle is a live interactive shell owned by one session
type Handle interface {
	Pid() int
	Write(p []byte) error
	// Events yields output chunks and finally one EventExit, then closes
	Events() <-chan Event
	Kill() error
	Alive() bool
}

// Launcher starts shells using one of the two strategies
type Launcher interface {
	Start(ctx context.Context, dir string, d Dialect) (Handle, error)
	Exec(ctx context.Context, line, dir string, d Dialect) (Result, error)
}

// Options configures the OS launcher
type Options struct {
	// MaxOutput caps combined stdout+stderr of a one-shot command
	MaxOutput int
	// ExecTimeout bounds a one-shot command
	ExecTimeout time.Duration
	// StartGrace is how long a fresh shell must survive to count as started
	StartGrace time.Duration
}

// DefaultOptions returns the limits used in production
func DefaultOptions() Options {
	return Options{
		MaxOutput:   1024 * 1024,
		ExecTimeout: 60 * time.Second,
		StartGrace:  50 * time.Millisecond,
	}
}

// OSLauncher runs real processes via os/exec
type OSLauncher struct {
	opts   Options
	logger *zap.Logger
}

// NewLauncher creates a launcher backed by os/exec
func NewLauncher(opts Options, logger *zap.Logger) *OSLauncher {
	defaults := DefaultOptions()
	if opts.MaxOutput <= 0 {
		opts.MaxOutput = defaults.MaxOutput
	}
	if opts.ExecTimeout <= 0 {
		opts.ExecTimeout = defaults.ExecTimeout
	}
	if opts.StartGrace < 0 {
		opts.StartGrace = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OSLauncher{opts: opts, logger: logger}
}

// Process is an interactive shell attached through pipes
type Process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	events chan Event
	done   chan struct{}

	alive    atomic.Bool
	writeMu  sync.Mutex
	killOnce sync.Once
}

// Start spawns the dialect's interactive shell in dir. Any failure, including
// a shell that exits within the start grace period, is reported as ErrSpawn.
func (l *OSLauncher) Start(ctx context.Context, dir string, d Dialect) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpawn, err)
	}

	cmd := exec.Command(d.Shell, d.Args...)
	cmd.Dir = dir
	cmd.Env = d.Env
	configureProcess(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdin pipe: %v", ErrSpawn, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdout pipe: %v", ErrSpawn, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stderr pipe: %v", ErrSpawn, err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpawn, err)
	}
	if cmd.Process == nil || cmd.Process.Pid <= 0 {
		return nil, fmt.Errorf("%w: no process id", ErrSpawn)
	}

	p := &Process{
		cmd:    cmd,
		stdin:  stdin,
		events: make(chan Event, 256),
		done:   make(chan struct{}),
	}
	p.alive.Store(true)

	var readers sync.WaitGroup
	readers.Add(2)
	go p.pump(stdout, EventStdout, &readers)
	go p.pump(stderr, EventStderr, &readers)
	go p.wait(&readers)

	if l.opts.StartGrace > 0 {
		select {
		case <-p.done:
			return nil, fmt.Errorf("%w: %s exited immediately", ErrSpawn, d.Shell)
		case <-time.After(l.opts.StartGrace):
		}
	}

	l.logger.Debug("shell started",
		zap.String("shell", d.Shell),
		zap.Int("pid", p.Pid()),
		zap.String("dir", dir))

	return p, nil
}

// pump forwards one output stream as events until EOF
func (p *Process) pump(r io.Reader, kind EventKind, wg *sync.WaitGroup) {
	defer wg.Done()

	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			p.events <- Event{Kind: kind, Data: chunk}
		}
		if err != nil {
			return
		}
	}
}

// wait reaps the process once both streams are drained
func (p *Process) wait(readers *sync.WaitGroup) {
	readers.Wait()
	err := p.cmd.Wait()

	p.alive.Store(false)
	p.events <- Event{Kind: EventExit, Code: exitCode(err)}
	close(p.events)
	close(p.done)
}

// Pid returns the OS process id
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// Events returns the event stream
func (p *Process) Events() <-chan Event {
	return p.events
}

// Alive reports whether the shell is still running
func (p *Process) Alive() bool {
	return p.alive.Load()
}

// Write forwards raw bytes to the shell's input stream
func (p *Process) Write(b []byte) error {
	if !p.Alive() {
		return ErrProcessDead
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	if _, err := p.stdin.Write(b); err != nil {
		return fmt.Errorf("%w: %v", ErrProcessDead, err)
	}
	return nil
}

// Kill terminates the shell and its process group. Safe to call repeatedly.
func (p *Process) Kill() error {
	p.killOnce.Do(func() {
		p.alive.Store(false)
		_ = p.stdin.Close()
		_ = killProcess(p.cmd.Process)
	})
	return nil
}

// Done is closed after the process has been reaped
func (p *Process) Done() <-chan struct{} {
	return p.done
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
