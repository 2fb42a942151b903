// Package registry owns the set of live terminal sessions.
//
// The Manager creates and initializes sessions on behalf of an owner,
// indexes them by id, enforces ownership on every lookup, and reclaims
// sessions that have been idle longer than the configured window.
//
// Components:
//   - Manager: create, lookup, destroy, list by owner
//   - Reaper: Run ticks Reap, which destroys sessions past their deadline
//
// Lifecycle of an entry:
//   - Create indexes the session with deadline now+IdleTimeout
//   - every command the session accepts renews the deadline
//   - the entry leaves the index on Destroy, on expiry, when the shell
//     exits, or on Shutdown
//
// Creation never fails loudly: initialization errors and panics come back
// as ErrUnavailable and the half-built session is cleaned up. Owner ids that
// are empty or too long come back as ErrInvalidOwner before anything is
// allocated.
//
// Example Usage:
//
//	reg := registry.NewManager(cfg, registry.WithLogger(log))
//	go reg.Run(ctx)
//	s, err := reg.Create(ctx, "alice")
//	s, err = reg.Lookup(s.ID(), "alice")
//	reg.Destroy(s.ID())
package registry
