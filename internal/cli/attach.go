package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/GriffinCanCode/AgentOS/terminal/internal/api/ws"
)

const (
	keepAlive = 30 * time.Second
	drainWait = 500 * time.Millisecond
)

// ErrStreamClosed means the server closed the stream without an exit event
var ErrStreamClosed = errors.New("stream closed by server")

// ExitError carries the shell's exit code after an attached session ends
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("session exited with code %d", e.Code)
}

// Attach streams a session to out and forwards lines read from in as
// commands. It returns nil when ctx is cancelled or in reaches EOF, and an
// *ExitError when the shell exits.
func Attach(ctx context.Context, streamURL string, headers http.Header, in io.Reader, out, errOut io.Writer) error {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, streamURL, headers)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("connect stream: %w (HTTP %d)", err, resp.StatusCode)
		}
		return fmt.Errorf("connect stream: %w", err)
	}
	defer conn.Close()

	var writeMu sync.Mutex
	send := func(env ws.Envelope) error {
		data, err := ws.Encode(env)
		if err != nil {
			return err
		}
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteMessage(websocket.TextMessage, data)
	}

	// Stdin reads cannot be interrupted, so the reader lives outside the group
	lines := make(chan string)
	inputDone := make(chan struct{})
	go func() {
		defer close(inputDone)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				if gctx.Err() != nil {
					return nil
				}
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.ClosePolicyViolation) {
					return ErrStreamClosed
				}
				return fmt.Errorf("read stream: %w", err)
			}
			env, err := ws.Decode(raw)
			if err != nil {
				continue
			}
			switch env.Type {
			case ws.TypeReady:
				fmt.Fprintf(errOut, "attached to %s in %s\n", env.SessionID, env.CurrentDir)
			case ws.TypeOutput:
				fmt.Fprint(out, env.Data)
			case ws.TypeError:
				fmt.Fprint(errOut, env.Data)
			case ws.TypeClear:
				fmt.Fprint(out, "\x1b[2J\x1b[H")
			case ws.TypeExit:
				code := 0
				if env.Code != nil {
					code = *env.Code
				}
				return &ExitError{Code: code}
			}
		}
	})

	g.Go(func() error {
		ticker := time.NewTicker(keepAlive)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-inputDone:
				// let output for the last commands arrive
				select {
				case <-gctx.Done():
					return nil
				case <-time.After(drainWait):
					return errInputClosed
				}
			case line := <-lines:
				if err := send(ws.Envelope{Type: ws.TypeCommand, Command: line + "\r"}); err != nil {
					return fmt.Errorf("send command: %w", err)
				}
			case <-ticker.C:
				if err := send(ws.Envelope{Type: ws.TypePing}); err != nil {
					return fmt.Errorf("send ping: %w", err)
				}
			}
		}
	})

	// unblock the reader once either side finishes
	go func() {
		<-gctx.Done()
		writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		writeMu.Unlock()
		_ = conn.Close()
	}()

	err = g.Wait()
	if errors.Is(err, errInputClosed) {
		return nil
	}
	return err
}

var errInputClosed = errors.New("input closed")
