package ws

import (
	"errors"

	"github.com/bytedance/sonic"

	"github.com/GriffinCanCode/AgentOS/terminal/internal/domain/session"
)

// Envelope types
const (
	TypeReady   = "ready"
	TypeOutput  = "output"
	TypeError   = "error"
	TypeClear   = "clear"
	TypeExit    = "exit"
	TypePong    = "pong"
	TypeCommand = "command"
	TypeResize  = "resize"
	TypePing    = "ping"
)

// ErrInvalidFormat is returned for payloads that are not an envelope
var ErrInvalidFormat = errors.New("invalid message format")

// Envelope is the typed message exchanged on the stream in both directions
type Envelope struct {
	Type       string `json:"type"`
	Data       string `json:"data,omitempty"`
	SessionID  string `json:"sessionId,omitempty"`
	CurrentDir string `json:"currentDir,omitempty"`
	Code       *int   `json:"code,omitempty"`
	Command    string `json:"command,omitempty"`
	Cols       int    `json:"cols,omitempty"`
	Rows       int    `json:"rows,omitempty"`
}

// Decode parses an inbound envelope. A payload without a type is invalid.
func Decode(raw []byte) (Envelope, error) {
	var env Envelope
	if err := sonic.Unmarshal(raw, &env); err != nil {
		return Envelope{}, ErrInvalidFormat
	}
	if env.Type == "" {
		return Envelope{}, ErrInvalidFormat
	}
	return env, nil
}

// Encode serializes an outbound envelope
func Encode(env Envelope) ([]byte, error) {
	return sonic.Marshal(env)
}

func errorEnvelope(msg string) Envelope {
	return Envelope{Type: TypeError, Data: msg}
}

// fromEvent maps a session event to its envelope. Resize notifications are
// not forwarded.
func fromEvent(ev session.Event) (Envelope, bool) {
	switch ev.Kind {
	case session.EventOutput:
		return Envelope{Type: TypeOutput, Data: ev.Data}, true
	case session.EventError:
		return Envelope{Type: TypeError, Data: ev.Data}, true
	case session.EventClear:
		return Envelope{Type: TypeClear}, true
	case session.EventExit:
		code := ev.Code
		return Envelope{Type: TypeExit, Code: &code}, true
	default:
		return Envelope{}, false
	}
}
