// Package shell starts and drives the OS processes behind a terminal session.
//
// Two strategies are supported:
//   - Interactive: one long-lived shell (`$SHELL -i`, or `cmd.exe /Q`) fed
//     through its stdin pipe. Output arrives asynchronously as Events.
//   - One-shot: a single command line run to completion through `/bin/sh -c`
//     (or `cmd.exe /C`) with a combined output cap and a deadline.
//
// There is no pseudo-terminal. Window size is never propagated and the only
// signal ever sent is the kill delivered by Handle.Kill.
//
// Platform differences live in Dialect, which a session resolves once:
//
//	d := shell.DialectFor(policy.Detect(), cfg.Shell)
//	h, err := launcher.Start(ctx, dir, d)
//	if errors.Is(err, shell.ErrSpawn) {
//		// run the session in fallback mode
//	}
//	_ = h.Write(d.Line("ls -la"))
package shell
