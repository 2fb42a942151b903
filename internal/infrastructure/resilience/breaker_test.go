package resilience

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errSpawn = errors.New("spawn failed")

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestBreaker(settings Settings) (*Breaker, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	b := New("shell-spawn", settings)
	b.now = clock.Now
	b.toNewGeneration(clock.Now())
	return b, clock
}

func run(b *Breaker, success bool) error {
	return b.Execute(func() error {
		if success {
			return nil
		}
		return errSpawn
	})
}

func TestBreakerStateTransitions(t *testing.T) {
	tripAfterTwo := func(c Counts) bool { return c.ConsecutiveFailures >= 2 }

	tests := []struct {
		name          string
		settings      Settings
		requests      []bool // true = success, false = failure
		expectedState State
	}{
		{
			name:          "stays closed on successes",
			requests:      []bool{true, true, true},
			expectedState: StateClosed,
		},
		{
			name:          "default trips after five consecutive failures",
			requests:      []bool{false, false, false, false, false},
			expectedState: StateOpen,
		},
		{
			name:          "success resets the failure streak",
			settings:      Settings{ReadyToTrip: tripAfterTwo},
			requests:      []bool{false, true, false, true},
			expectedState: StateClosed,
		},
		{
			name:          "custom threshold",
			settings:      Settings{ReadyToTrip: tripAfterTwo},
			requests:      []bool{false, false},
			expectedState: StateOpen,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, _ := newTestBreaker(tt.settings)
			for _, success := range tt.requests {
				_ = run(b, success)
			}
			assert.Equal(t, tt.expectedState, b.State())
		})
	}
}

func TestBreakerCounts(t *testing.T) {
	b, _ := newTestBreaker(Settings{})

	require.NoError(t, run(b, true))
	counts := b.Counts()
	assert.Equal(t, uint32(1), counts.Requests)
	assert.Equal(t, uint32(1), counts.TotalSuccesses)
	assert.Equal(t, uint32(1), counts.ConsecutiveSuccesses)

	assert.ErrorIs(t, run(b, false), errSpawn)
	counts = b.Counts()
	assert.Equal(t, uint32(2), counts.Requests)
	assert.Equal(t, uint32(1), counts.TotalFailures)
	assert.Equal(t, uint32(1), counts.ConsecutiveFailures)
	assert.Equal(t, uint32(0), counts.ConsecutiveSuccesses)
}

func TestBreakerOpenRejectsWithoutRunning(t *testing.T) {
	b, _ := newTestBreaker(Settings{ReadyToTrip: func(c Counts) bool { return c.ConsecutiveFailures >= 1 }})

	_ = run(b, false)
	require.Equal(t, StateOpen, b.State())

	called := false
	err := b.Execute(func() error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestBreakerHalfOpen(t *testing.T) {
	settings := Settings{
		MaxRequests: 2,
		Timeout:     time.Minute,
		ReadyToTrip: func(c Counts) bool { return c.ConsecutiveFailures >= 2 },
	}

	t.Run("closes after enough trial requests succeed", func(t *testing.T) {
		b, clock := newTestBreaker(settings)
		_ = run(b, false)
		_ = run(b, false)
		require.Equal(t, StateOpen, b.State())

		clock.Advance(time.Minute + time.Second)
		assert.Equal(t, StateHalfOpen, b.State())

		require.NoError(t, run(b, true))
		assert.Equal(t, StateHalfOpen, b.State())
		require.NoError(t, run(b, true))
		assert.Equal(t, StateClosed, b.State())
	})

	t.Run("reopens on trial failure", func(t *testing.T) {
		b, clock := newTestBreaker(settings)
		_ = run(b, false)
		_ = run(b, false)

		clock.Advance(2 * time.Minute)
		assert.ErrorIs(t, run(b, false), errSpawn)
		assert.Equal(t, StateOpen, b.State())
	})

	t.Run("limits concurrent trial requests", func(t *testing.T) {
		b, clock := newTestBreaker(Settings{
			MaxRequests: 1,
			Timeout:     time.Minute,
			ReadyToTrip: func(c Counts) bool { return c.ConsecutiveFailures >= 1 },
		})
		_ = run(b, false)
		clock.Advance(2 * time.Minute)

		release := make(chan struct{})
		done := make(chan error, 1)
		go func() {
			done <- b.Execute(func() error {
				<-release
				return nil
			})
		}()

		assert.Eventually(t, func() bool { return b.Counts().Requests == 1 }, time.Second, 5*time.Millisecond)
		assert.ErrorIs(t, run(b, true), ErrTooManyRequests)

		close(release)
		require.NoError(t, <-done)
		assert.Equal(t, StateClosed, b.State())
	})
}

func TestBreakerIntervalClearsCounts(t *testing.T) {
	b, clock := newTestBreaker(Settings{
		Interval:    time.Minute,
		ReadyToTrip: func(c Counts) bool { return c.ConsecutiveFailures >= 2 },
	})

	_ = run(b, false)
	clock.Advance(2 * time.Minute)
	_ = run(b, false)

	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, uint32(1), b.Counts().ConsecutiveFailures)
}

func TestBreakerCallbacks(t *testing.T) {
	var (
		mu          sync.Mutex
		transitions []string
	)

	b, clock := newTestBreaker(Settings{
		Timeout:     10 * time.Second,
		ReadyToTrip: func(c Counts) bool { return c.ConsecutiveFailures >= 2 },
		OnStateChange: func(name string, from, to State) {
			mu.Lock()
			defer mu.Unlock()
			transitions = append(transitions, name+":"+from.String()+"->"+to.String())
		},
	})

	_ = run(b, false)
	_ = run(b, false)
	clock.Advance(11 * time.Second)
	_ = b.State()
	_ = run(b, true)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		"shell-spawn:closed->open",
		"shell-spawn:open->half-open",
		"shell-spawn:half-open->closed",
	}, transitions)
}
