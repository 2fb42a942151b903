package ws

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/terminal/internal/api/middleware"
	"github.com/GriffinCanCode/AgentOS/terminal/internal/domain/registry"
	"github.com/GriffinCanCode/AgentOS/terminal/internal/domain/session"
	"github.com/GriffinCanCode/AgentOS/terminal/internal/domain/shell/shelltest"
)

type testEnv struct {
	server   *httptest.Server
	registry *registry.Manager
	launcher *shelltest.Launcher
	root     string
}

func setupTestServer(t *testing.T, startErr error) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	root := t.TempDir()
	launcher := &shelltest.Launcher{StartErr: startErr}
	reg := registry.NewManager(registry.Config{BaseDir: root, Platform: "posix"}, registry.WithLauncher(launcher))
	t.Cleanup(func() { _ = reg.Shutdown() })

	router := gin.New()
	router.Use(middleware.Identify(""))
	router.GET("/ws", NewHandler(reg, WithOrigins([]string{"*"})).HandleConnection)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &testEnv{server: server, registry: reg, launcher: launcher, root: root}
}

func (e *testEnv) dial(t *testing.T, sessionID, caller string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.server.URL, "http") + "/ws"
	if sessionID != "" {
		url += "?sessionId=" + sessionID
	}
	headers := http.Header{}
	if caller != "" {
		headers.Set(middleware.DefaultUserHeader, caller)
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, headers)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	env, err := Decode(raw)
	require.NoError(t, err)
	return env
}

func readUntil(t *testing.T, conn *websocket.Conn, match func(Envelope) bool) Envelope {
	t.Helper()
	for i := 0; i < 100; i++ {
		if env := read(t, conn); match(env) {
			return env
		}
	}
	t.Fatal("expected envelope never arrived")
	return Envelope{}
}

func send(t *testing.T, conn *websocket.Conn, payload string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(payload)))
}

func expectClosed(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	var closeErr *websocket.CloseError
	assert.True(t, errors.As(err, &closeErr), "expected close frame, got %v", err)
}

func TestBindingFailures(t *testing.T) {
	env := setupTestServer(t, nil)
	sess, err := env.registry.Create(context.Background(), "alice")
	require.NoError(t, err)

	tests := []struct {
		name      string
		sessionID string
		caller    string
		wantError string
	}{
		{"missing session id", "", "", "Session ID required"},
		{"unknown session", "does-not-exist", "", "Invalid session"},
		{"session owned by someone else", sess.ID(), "bob", "Invalid session"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := env.dial(t, tt.sessionID, tt.caller)

			msg := read(t, conn)
			assert.Equal(t, TypeError, msg.Type)
			assert.Equal(t, tt.wantError, msg.Data)
			expectClosed(t, conn)
		})
	}

	// the rejected connections did not disturb the session
	assert.Equal(t, 0, sess.Subscribers())
	_, ok := env.registry.Get(sess.ID())
	assert.True(t, ok)
}

func TestReadyOnConnect(t *testing.T) {
	env := setupTestServer(t, nil)
	sess, err := env.registry.Create(context.Background(), "U1")
	require.NoError(t, err)
	assert.Equal(t, sess.BaseDir(), sess.CurrentDir())

	for _, caller := range []string{"", "U1"} {
		conn := env.dial(t, sess.ID(), caller)

		ready := read(t, conn)
		assert.Equal(t, TypeReady, ready.Type)
		assert.Equal(t, sess.ID(), ready.SessionID)
		assert.Equal(t, filepath.Join(env.root, "U1"), ready.CurrentDir)
		conn.Close()
	}
}

func TestFallbackNoticeAndTraversal(t *testing.T) {
	env := setupTestServer(t, errors.New("no shell here"))
	sess, err := env.registry.Create(context.Background(), "U1")
	require.NoError(t, err)
	require.Equal(t, session.ModeFallback, sess.Mode())

	conn := env.dial(t, sess.ID(), "U1")
	assert.Equal(t, TypeReady, read(t, conn).Type)

	notice := read(t, conn)
	assert.Equal(t, TypeOutput, notice.Type)
	assert.Contains(t, notice.Data, "fallback mode")

	send(t, conn, `{"type":"command","command":"cd ../../etc\r"}`)
	rejected := readUntil(t, conn, func(e Envelope) bool { return e.Type == TypeError })
	assert.Contains(t, rejected.Data, "Cannot navigate outside the terminal directory.")
	assert.Equal(t, sess.BaseDir(), sess.CurrentDir())
}

func TestUnterminatedCommandRunsInBothModes(t *testing.T) {
	for _, spawnErr := range []error{nil, errors.New("no shell here")} {
		env := setupTestServer(t, spawnErr)
		sess, err := env.registry.Create(context.Background(), "U1")
		require.NoError(t, err)

		conn := env.dial(t, sess.ID(), "U1")
		assert.Equal(t, TypeReady, read(t, conn).Type)

		send(t, conn, `{"type":"command","command":"cd ../../etc"}`)
		rejected := readUntil(t, conn, func(e Envelope) bool { return e.Type == TypeError })
		assert.Equal(t, "Cannot navigate outside the terminal directory.\r\n", rejected.Data, sess.Mode())
		assert.Equal(t, sess.BaseDir(), sess.CurrentDir())
		conn.Close()
	}
}

func TestCommandsReachSession(t *testing.T) {
	env := setupTestServer(t, errors.New("no shell here"))
	sess, err := env.registry.Create(context.Background(), "alice")
	require.NoError(t, err)

	conn := env.dial(t, sess.ID(), "")
	read(t, conn)

	send(t, conn, `{"type":"command","command":"ls\r"}`)
	out := readUntil(t, conn, func(e Envelope) bool { return strings.Contains(e.Data, "ran: ls") })
	assert.Equal(t, TypeOutput, out.Type)
	assert.Equal(t, []string{"ls"}, env.launcher.Execs())

	send(t, conn, `{"type":"command","command":"clear\r"}`)
	readUntil(t, conn, func(e Envelope) bool { return e.Type == TypeClear })
}

func TestProtocolErrors(t *testing.T) {
	env := setupTestServer(t, nil)
	sess, err := env.registry.Create(context.Background(), "alice")
	require.NoError(t, err)

	conn := env.dial(t, sess.ID(), "")
	read(t, conn)

	tests := []struct {
		name     string
		payload  string
		wantType string
		wantData string
	}{
		{"ping", `{"type":"ping"}`, TypePong, ""},
		{"unknown type", `{"type":"bogus"}`, TypeError, "Unknown message type: bogus"},
		{"not json", `not json`, TypeError, "Invalid message format"},
		{"missing type", `{"command":"ls"}`, TypeError, "Invalid message format"},
		{"bad resize", `{"type":"resize","cols":0,"rows":24}`, TypeError, "Invalid terminal size: 0x24"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			send(t, conn, tt.payload)
			got := readUntil(t, conn, func(e Envelope) bool { return e.Type == tt.wantType })
			assert.Equal(t, tt.wantData, got.Data)
		})
	}

	send(t, conn, `{"type":"resize","cols":120,"rows":40}`)
	send(t, conn, `{"type":"ping"}`)
	readUntil(t, conn, func(e Envelope) bool { return e.Type == TypePong })
	info := sess.Info()
	assert.Equal(t, 120, info.Cols)
	assert.Equal(t, 40, info.Rows)
}

func TestExitClosesStream(t *testing.T) {
	env := setupTestServer(t, nil)
	sess, err := env.registry.Create(context.Background(), "alice")
	require.NoError(t, err)

	conn := env.dial(t, sess.ID(), "")
	read(t, conn)

	env.launcher.Last().Exit(3)

	exit := readUntil(t, conn, func(e Envelope) bool { return e.Type == TypeExit })
	require.NotNil(t, exit.Code)
	assert.Equal(t, 3, *exit.Code)
	expectClosed(t, conn)

	assert.Eventually(t, func() bool {
		_, ok := env.registry.Get(sess.ID())
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDisconnectKeepsSession(t *testing.T) {
	env := setupTestServer(t, nil)
	sess, err := env.registry.Create(context.Background(), "alice")
	require.NoError(t, err)

	conn := env.dial(t, sess.ID(), "")
	read(t, conn)
	assert.Equal(t, 1, sess.Subscribers())

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return sess.Subscribers() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, session.ModeInteractive, sess.Mode())

	again := env.dial(t, sess.ID(), "")
	assert.Equal(t, TypeReady, read(t, again).Type)
}

func TestCheckOrigin(t *testing.T) {
	req := func(origin string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}

	restricted := checkOrigin([]string{"https://app.example.com"})
	assert.True(t, restricted(req("https://app.example.com")))
	assert.False(t, restricted(req("https://evil.example.com")))
	assert.True(t, restricted(req("")))

	open := checkOrigin([]string{"*"})
	assert.True(t, open(req("https://anything.example.com")))
}
