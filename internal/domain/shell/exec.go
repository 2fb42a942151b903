package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Result is the outcome of a one-shot command
type Result struct {
	Stdout    []byte
	Stderr    []byte
	ExitCode  int
	Truncated bool
	Duration  time.Duration
}

// Exec runs line to completion through the dialect's one-shot shell. A
// non-zero exit status is reported in Result.ExitCode, not as an error.
// Exceeding the output cap kills the command and returns ErrOutputLimit
// along with the captured prefix.
func (l *OSLauncher) Exec(ctx context.Context, line, dir string, d Dialect) (Result, error) {
	if len(d.OneShot) == 0 {
		return Result{ExitCode: -1}, fmt.Errorf("%w: dialect has no one-shot shell", ErrSpawn)
	}

	ctx, cancel := context.WithTimeout(ctx, l.opts.ExecTimeout)
	defer cancel()

	args := append(append([]string{}, d.OneShot[1:]...), line)
	cmd := exec.CommandContext(ctx, d.OneShot[0], args...)
	cmd.Dir = dir
	cmd.Env = d.Env
	configureProcess(cmd)
	cmd.Cancel = func() error { return killProcess(cmd.Process) }
	cmd.WaitDelay = time.Second

	capture := &limitedCapture{limit: l.opts.MaxOutput, onLimit: cancel}
	cmd.Stdout = capture.stream(&capture.stdout)
	cmd.Stderr = capture.stream(&capture.stderr)

	start := time.Now()
	err := cmd.Run()

	res := Result{
		Stdout:    capture.stdout.Bytes(),
		Stderr:    capture.stderr.Bytes(),
		ExitCode:  exitCode(err),
		Truncated: capture.exceeded(),
		Duration:  time.Since(start),
	}

	switch {
	case res.Truncated:
		l.logger.Warn("one-shot output truncated",
			zap.Int("limit", l.opts.MaxOutput),
			zap.Duration("duration", res.Duration))
		return res, ErrOutputLimit
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return res, fmt.Errorf("%w after %s", ErrTimeout, l.opts.ExecTimeout)
	case err != nil:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return res, nil
		}
		return res, fmt.Errorf("%w: %v", ErrSpawn, err)
	}
	return res, nil
}

// limitedCapture collects stdout and stderr against one shared byte budget
type limitedCapture struct {
	mu      sync.Mutex
	limit   int
	used    int
	over    bool
	onLimit func()
	stdout  bytes.Buffer
	stderr  bytes.Buffer
}

type captureStream struct {
	c   *limitedCapture
	dst *bytes.Buffer
}

func (c *limitedCapture) stream(dst *bytes.Buffer) *captureStream {
	return &captureStream{c: c, dst: dst}
}

func (c *limitedCapture) exceeded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.over
}

// Write keeps bytes up to the budget and swallows the rest so the copier
// goroutine drains the pipe while the process is being killed.
func (s *captureStream) Write(p []byte) (int, error) {
	c := s.c
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.over {
		return len(p), nil
	}

	room := c.limit - c.used
	if len(p) <= room {
		s.dst.Write(p)
		c.used += len(p)
		return len(p), nil
	}

	s.dst.Write(p[:room])
	c.used = c.limit
	c.over = true
	if c.onLimit != nil {
		c.onLimit()
	}
	return len(p), nil
}
