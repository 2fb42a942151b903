package session

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrTerminated is returned by operations on a cleaned-up session
	ErrTerminated = errors.New("session terminated")
	// ErrQueueFull is returned when the command queue cannot take more work
	ErrQueueFull = errors.New("command queue full")
	// ErrInvalidSize is returned for non-positive terminal dimensions
	ErrInvalidSize = errors.New("invalid terminal size")
)

// Mode is the execution state of a session
type Mode string

const (
	ModeInitializing Mode = "initializing"
	ModeInteractive  Mode = "interactive"
	ModeFallback     Mode = "fallback"
	ModeTerminated   Mode = "terminated"
)

// EventKind tags an event published to subscribers
type EventKind string

const (
	EventOutput EventKind = "output"
	EventError  EventKind = "error"
	EventClear  EventKind = "clear"
	EventExit   EventKind = "exit"
	EventResize EventKind = "resize"
)

// Event is one item of a session's event stream
type Event struct {
	Kind EventKind
	Data string
	Code int
	Cols int
	Rows int
}

// EntryKind tags a history entry
type EntryKind string

const (
	EntryCommand EntryKind = "command"
	EntryOutput  EntryKind = "output"
	EntryError   EntryKind = "error"
)

// HistoryEntry is one timestamped record in the history ring
type HistoryEntry struct {
	Type      EntryKind `json:"type"`
	Data      string    `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Info is a point-in-time snapshot of a session
type Info struct {
	ID           string    `json:"sessionId"`
	OwnerID      string    `json:"ownerId"`
	BaseDir      string    `json:"baseDir"`
	CurrentDir   string    `json:"currentDir"`
	Mode         Mode      `json:"mode"`
	Pid          int       `json:"pid,omitempty"`
	Cols         int       `json:"cols,omitempty"`
	Rows         int       `json:"rows,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActivity time.Time `json:"lastActivity"`
}

// Command outcomes reported to the Recorder and metrics
const (
	OutcomeExecuted = "executed"
	OutcomeRejected = "rejected"
	OutcomeBuiltin  = "builtin"
	OutcomeFailed   = "failed"
)

// CommandRecord describes one submitted command line
type CommandRecord struct {
	SessionID string
	OwnerID   string
	Command   string
	Outcome   string
	Mode      Mode
	ExitCode  int
	At        time.Time
}

// Recorder persists command records, typically an audit log
type Recorder interface {
	RecordCommand(ctx context.Context, rec CommandRecord) error
}

// Config holds per-session settings
type Config struct {
	ID      string
	OwnerID string
	BaseDir string
	// Shell overrides the interactive shell binary
	Shell string
	// Platform selects the dialect and translation table; empty detects
	Platform           string
	DisableInteractive bool
	HistoryLimit       int
	QueueSize          int
	BacklogSize        int
	SubscriberBuffer   int
}

func (c *Config) applyDefaults() {
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = 1000
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	if c.BacklogSize <= 0 {
		c.BacklogSize = 256
	}
	if c.SubscriberBuffer <= 0 {
		c.SubscriberBuffer = 1024
	}
}
