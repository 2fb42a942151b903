// Package session implements one terminal session.
//
// A Session is confined to a base directory and runs in one of two modes:
//   - interactive: a live shell process receives each command line on stdin
//     and streams output back asynchronously
//   - fallback: no live shell; each command runs once through the one-shot
//     strategy and the session prints the prompt itself
//
// Input is framed identically in both modes. The session echoes keystrokes
// and handles backspace and Ctrl-C, buffering until CR or LF. A printable
// payload of more than one character on an empty line is taken as a whole
// command. Ctrl-C also drops queued commands and cancels a running one-shot.
//
// States:
//
//	initializing -> interactive | fallback
//	interactive  -> fallback      (shell write failure, one way)
//	any          -> terminated    (Cleanup)
//
// Commands are queued and executed one at a time by a per-session worker.
// Every line is checked against the command policy; cd and clear are handled
// by the session itself. Events (output, error, clear, exit, resize) fan out
// to subscribers over buffered channels; while nobody is subscribed a bounded
// backlog is kept and replayed to the next subscriber.
//
// Example Usage:
//
//	s := session.New(session.Config{ID: id, OwnerID: owner, BaseDir: dir},
//		session.WithLogger(logger),
//		session.WithMetrics(metrics),
//	)
//	if err := s.Initialize(ctx); err != nil {
//		return err
//	}
//	sub, _ := s.Subscribe()
//	defer sub.Close()
//	_ = s.Input("ls -la\r")
//	for ev := range sub.C {
//		// forward ev
//	}
package session
