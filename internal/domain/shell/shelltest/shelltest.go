// Package shelltest provides an in-memory shell.Launcher for tests of
// packages built on terminal sessions.
package shelltest

import (
	"context"
	"strings"
	"sync"

	"github.com/GriffinCanCode/AgentOS/terminal/internal/domain/shell"
)

// Handle is a fake interactive shell. Written lines are recorded and, when
// Echo is set, written back as stdout.
type Handle struct {
	mu     sync.Mutex
	writes []string
	alive  bool
	echo   bool
	events chan shell.Event
	once   sync.Once
}

func newHandle(echo bool) *Handle {
	return &Handle{alive: true, echo: echo, events: make(chan shell.Event, 64)}
}

func (h *Handle) Pid() int { return 4242 }

func (h *Handle) Write(p []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.alive {
		return shell.ErrProcessDead
	}
	h.writes = append(h.writes, string(p))
	if h.echo {
		select {
		case h.events <- shell.Event{Kind: shell.EventStdout, Data: []byte("echo: " + string(p))}:
		default:
		}
	}
	return nil
}

func (h *Handle) Events() <-chan shell.Event { return h.events }

func (h *Handle) Kill() error {
	h.mu.Lock()
	h.alive = false
	h.mu.Unlock()
	h.once.Do(func() { close(h.events) })
	return nil
}

func (h *Handle) Alive() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.alive
}

// Exit reports that the shell exited with code
func (h *Handle) Exit(code int) {
	h.mu.Lock()
	h.alive = false
	h.mu.Unlock()
	h.once.Do(func() {
		h.events <- shell.Event{Kind: shell.EventExit, Code: code}
		close(h.events)
	})
}

// Writes returns everything written to the shell's stdin
func (h *Handle) Writes() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.writes...)
}

// Launcher is a fake shell.Launcher. With StartErr set every interactive
// start fails, which forces sessions into fallback mode. One-shot commands
// print "ran: <line>".
type Launcher struct {
	StartErr error
	Echo     bool

	mu      sync.Mutex
	handles []*Handle
	execs   []string
}

func (l *Launcher) Start(ctx context.Context, dir string, d shell.Dialect) (shell.Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.StartErr != nil {
		return nil, l.StartErr
	}
	h := newHandle(l.Echo)
	l.handles = append(l.handles, h)
	return h, nil
}

func (l *Launcher) Exec(ctx context.Context, line, dir string, d shell.Dialect) (shell.Result, error) {
	l.mu.Lock()
	l.execs = append(l.execs, line)
	l.mu.Unlock()
	return shell.Result{Stdout: []byte("ran: " + strings.TrimSpace(line) + "\n")}, nil
}

// Last returns the most recently started shell, or nil
func (l *Launcher) Last() *Handle {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.handles) == 0 {
		return nil
	}
	return l.handles[len(l.handles)-1]
}

// Execs returns the one-shot command lines run so far
func (l *Launcher) Execs() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.execs...)
}
