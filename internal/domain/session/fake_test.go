package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/GriffinCanCode/AgentOS/terminal/internal/domain/shell"
)

type fakeHandle struct {
	mu       sync.Mutex
	writes   []string
	writeErr error
	alive    bool
	kills    int
	events   chan shell.Event
	once     sync.Once
}

func newFakeHandle() *fakeHandle {
	return &fakeHandle{alive: true, events: make(chan shell.Event, 64)}
}

func (h *fakeHandle) Pid() int { return 4242 }

func (h *fakeHandle) Write(p []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.writeErr != nil {
		return h.writeErr
	}
	if !h.alive {
		return shell.ErrProcessDead
	}
	h.writes = append(h.writes, string(p))
	return nil
}

func (h *fakeHandle) Events() <-chan shell.Event { return h.events }

func (h *fakeHandle) Kill() error {
	h.mu.Lock()
	h.alive = false
	h.kills++
	h.mu.Unlock()
	h.once.Do(func() { close(h.events) })
	return nil
}

func (h *fakeHandle) Alive() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.alive
}

func (h *fakeHandle) setWriteErr(err error) {
	h.mu.Lock()
	h.writeErr = err
	h.mu.Unlock()
}

func (h *fakeHandle) written() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.writes...)
}

func (h *fakeHandle) killCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.kills
}

// stdout pushes shell output as if the process printed it
func (h *fakeHandle) stdout(s string) {
	h.events <- shell.Event{Kind: shell.EventStdout, Data: []byte(s)}
}

// exit simulates the shell terminating on its own
func (h *fakeHandle) exit(code int) {
	h.mu.Lock()
	h.alive = false
	h.mu.Unlock()
	h.once.Do(func() {
		h.events <- shell.Event{Kind: shell.EventExit, Code: code}
		close(h.events)
	})
}

type fakeLauncher struct {
	mu       sync.Mutex
	startErr error
	starts   int
	handle   *fakeHandle
	execs    []string
	execDirs []string
	execFn   func(ctx context.Context, line string) (shell.Result, error)
}

func (f *fakeLauncher) Start(ctx context.Context, dir string, d shell.Dialect) (shell.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	if f.startErr != nil {
		return nil, f.startErr
	}
	f.handle = newFakeHandle()
	return f.handle, nil
}

func (f *fakeLauncher) Exec(ctx context.Context, line, dir string, d shell.Dialect) (shell.Result, error) {
	f.mu.Lock()
	f.execs = append(f.execs, line)
	f.execDirs = append(f.execDirs, dir)
	fn := f.execFn
	f.mu.Unlock()

	if fn != nil {
		return fn(ctx, line)
	}
	return shell.Result{Stdout: []byte("ran: " + line + "\n")}, nil
}

func (f *fakeLauncher) execCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.execs...)
}

func (f *fakeLauncher) startCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts
}

var errNoShell = errors.New("exec: \"/bin/sh\": permission denied")

type recordingRecorder struct {
	mu      sync.Mutex
	records []CommandRecord
}

func (r *recordingRecorder) RecordCommand(ctx context.Context, rec CommandRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return nil
}

func (r *recordingRecorder) outcomes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.records))
	for i, rec := range r.records {
		out[i] = rec.Outcome
	}
	return out
}

// next returns the next event or fails after a second
func next(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case ev, ok := <-sub.C:
		if !ok {
			t.Fatal("subscription closed")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

// until collects events until pred matches one, returning all of them
func until(t *testing.T, sub *Subscription, pred func(Event) bool) []Event {
	t.Helper()
	var seen []Event
	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev, ok := <-sub.C:
			if !ok {
				t.Fatalf("subscription closed after %d events: %+v", len(seen), seen)
			}
			seen = append(seen, ev)
			if pred(ev) {
				return seen
			}
		case <-deadline:
			t.Fatalf("timed out; saw %+v", seen)
		}
	}
}

// quiet asserts no event arrives for a short window
func quiet(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case ev, ok := <-sub.C:
		if ok {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(100 * time.Millisecond):
	}
}

func isPrompt(ev Event) bool {
	return ev.Kind == EventOutput && len(ev.Data) > 2 && ev.Data[len(ev.Data)-2:] == "$ "
}

func countKind(events []Event, kind EventKind) int {
	n := 0
	for _, ev := range events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}
