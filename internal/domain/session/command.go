package session

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/terminal/internal/domain/policy"
	"github.com/GriffinCanCode/AgentOS/terminal/internal/domain/shell"
	"github.com/GriffinCanCode/AgentOS/terminal/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/terminal/internal/shared/paths"
)

// execute runs one submitted line on the worker goroutine
func (s *Session) execute(raw string) {
	line := strings.TrimSpace(raw)
	if line == "" {
		return
	}
	s.touch()

	name, rest := policy.Split(line)
	s.history.Append(EntryCommand, line)

	if !s.policy.IsAllowed(name) {
		s.logger.Debug("command rejected", zap.String("command", name))
		s.fail(fmt.Sprintf("Command '%s' is not allowed for security reasons.", name))
		s.finish(line, OutcomeRejected, 0)
		s.prompt()
		return
	}

	switch strings.ToLower(name) {
	case "cd":
		if s.changeDir(rest) {
			s.finish(line, OutcomeBuiltin, 0)
		} else {
			s.finish(line, OutcomeRejected, 0)
		}
	case "clear", "cls":
		s.emit(Event{Kind: EventClear})
		s.finish(line, OutcomeBuiltin, 0)
	default:
		outcome, code := s.run(s.translator.Translate(line))
		s.finish(line, outcome, code)
	}
	s.prompt()
}

// changeDir moves currentDir, refusing any target that resolves outside the
// base directory. Reports whether the move happened.
func (s *Session) changeDir(arg string) bool {
	target := unquote(strings.TrimSpace(arg))

	var resolved string
	switch {
	case target == "" || target == "~":
		resolved = s.baseDir
	case filepath.IsAbs(target):
		resolved = filepath.Clean(target)
	default:
		resolved = filepath.Join(s.CurrentDir(), target)
	}

	if !paths.Within(s.baseDir, resolved) {
		s.fail("Cannot navigate outside the terminal directory.")
		return false
	}

	info, err := os.Stat(resolved)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		s.fail(fmt.Sprintf("Cannot change directory: no such file or directory: %s", target))
		return false
	case err != nil:
		s.fail(fmt.Sprintf("Cannot change directory: %v", err))
		return false
	case !info.IsDir():
		s.fail(fmt.Sprintf("Not a directory: %s", target))
		return false
	}

	if real, err := filepath.EvalSymlinks(resolved); err == nil && !paths.Within(s.realBase, real) {
		s.fail("Cannot navigate outside the terminal directory.")
		return false
	}

	s.mu.Lock()
	s.currentDir = resolved
	proc := s.proc
	s.mu.Unlock()

	if proc != nil {
		if err := proc.Write(s.dialect.Line(s.dialect.ChangeDir(resolved))); err != nil {
			s.downgrade(proc, err)
		}
	}

	s.output(fmt.Sprintf("Changed directory to: %s\n", resolved), true)
	return true
}

// run hands a translated command to the live shell, or executes it once.
// A failed write to the shell downgrades the session and retries once.
func (s *Session) run(command string) (string, int) {
	s.mu.Lock()
	proc := s.proc
	s.mu.Unlock()

	if proc != nil {
		err := proc.Write(s.dialect.Line(command))
		if err == nil {
			return OutcomeExecuted, 0
		}
		s.downgrade(proc, err)
	}
	return s.runOnce(command)
}

func (s *Session) runOnce(command string) (string, int) {
	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	s.mu.Lock()
	dir := s.currentDir
	s.execCancel = cancel
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.execCancel = nil
		s.mu.Unlock()
	}()

	timer := monitoring.NewTimer(s.metrics)
	res, err := s.launcher.Exec(ctx, command, dir, s.dialect)
	timer.Stop(res.Truncated)

	s.output(string(res.Stdout), true)
	s.errorOut(string(res.Stderr), true)

	switch {
	case ctx.Err() != nil:
		// interrupted or torn down; the client already saw ^C or the session is gone
		return OutcomeFailed, res.ExitCode
	case errors.Is(err, shell.ErrOutputLimit):
		s.fail("Output limit exceeded; the command was stopped.")
		return OutcomeFailed, res.ExitCode
	case err != nil:
		s.fail(fmt.Sprintf("Error: %v", err))
		return OutcomeFailed, res.ExitCode
	case res.ExitCode != 0 && len(res.Stderr) == 0:
		s.fail(fmt.Sprintf("Command exited with code %d", res.ExitCode))
	}
	return OutcomeExecuted, res.ExitCode
}

// interrupt cancels the one-shot command in flight, if any
func (s *Session) interrupt() bool {
	s.mu.Lock()
	cancel := s.execCancel
	s.mu.Unlock()
	if cancel == nil {
		return false
	}
	cancel()
	return true
}

// downgrade moves an interactive session to fallback mode for good
func (s *Session) downgrade(proc shell.Handle, cause error) {
	s.mu.Lock()
	if s.proc != proc || s.mode != ModeInteractive {
		s.mu.Unlock()
		return
	}
	s.proc = nil
	s.mode = ModeFallback
	s.mu.Unlock()

	_ = proc.Kill()
	s.editorMu.Lock()
	s.editor.reset()
	s.editorMu.Unlock()

	s.logger.Warn("shell write failed, switching to fallback mode", zap.Error(cause))
	s.metrics.RecordFallback(fallbackLabel("write failed"))
	s.emit(Event{Kind: EventOutput, Data: "Shell connection lost. Switching to fallback mode.\r\n"})
}

// finish reports the outcome of a command to metrics and the audit recorder
func (s *Session) finish(line, outcome string, code int) {
	s.metrics.RecordCommand(outcome)
	if s.recorder == nil {
		return
	}

	rec := CommandRecord{
		SessionID: s.cfg.ID,
		OwnerID:   s.cfg.OwnerID,
		Command:   line,
		Outcome:   outcome,
		Mode:      s.Mode(),
		ExitCode:  code,
		At:        time.Now(),
	}
	if err := s.recorder.RecordCommand(s.ctx, rec); err != nil {
		s.logger.Debug("audit record failed", zap.Error(err))
	}
}

func unquote(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
