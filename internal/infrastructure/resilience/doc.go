// Package resilience guards repeated failing operations.
//
// The terminal service uses one Breaker around interactive shell spawning.
// When a host cannot start shells (a restricted container image, an exhausted
// process table), every new session would otherwise pay for a failed fork.
// Once the breaker opens, sessions go straight to fallback mode until the
// open timeout elapses and a half-open trial request succeeds.
//
//	spawn := resilience.New("shell-spawn", resilience.Settings{Timeout: time.Minute})
//	err := spawn.Execute(func() error {
//		h, err = launcher.Start(ctx, dir, dialect)
//		return err
//	})
//	if errors.Is(err, resilience.ErrCircuitOpen) {
//		// skip the spawn attempt
//	}
package resilience
