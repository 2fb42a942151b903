package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/terminal/internal/api/ws"
	"github.com/GriffinCanCode/AgentOS/terminal/internal/domain/shell/shelltest"
	"github.com/GriffinCanCode/AgentOS/terminal/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/terminal/internal/infrastructure/logging"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = "0"
	cfg.Terminal.BaseDir = filepath.Join(dir, "terminal")
	cfg.Audit.Enabled = true
	cfg.Audit.DBPath = filepath.Join(dir, "audit.db")
	cfg.RateLimit.Enabled = false
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config) (*Server, *httptest.Server) {
	t.Helper()
	srv, err := NewServer(cfg, WithLauncher(&shelltest.Launcher{}), WithLogger(logging.NewNop()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func request(t *testing.T, method, url string, headers map[string]string) (int, string) {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestServerRoutes(t *testing.T) {
	srv, ts := newTestServer(t, testConfig(t))
	user := map[string]string{"X-User-ID": "alice"}

	code, body := request(t, http.MethodGet, ts.URL+"/health", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `"status":"healthy"`)

	code, body = request(t, http.MethodPost, ts.URL+"/api/terminal/create", user)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, 1, srv.Registry().Len())

	code, body = request(t, http.MethodGet, ts.URL+"/metrics", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "terminal_sessions_active 1")
	assert.Contains(t, body, "terminal_http_requests_total")
	assert.Contains(t, body, "go_goroutines")

	code, _ = request(t, http.MethodGet, ts.URL+"/api/terminal/sessions", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestServerStream(t *testing.T) {
	srv, ts := newTestServer(t, testConfig(t))
	sess, err := srv.Registry().Create(context.Background(), "alice")
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/terminal/ws?sessionId=" + sess.ID()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	env, err := ws.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, ws.TypeReady, env.Type)
	assert.Equal(t, sess.BaseDir(), env.CurrentDir)
}

func TestServerRequiresToken(t *testing.T) {
	cfg := testConfig(t)
	cfg.Auth.Token = "gateway-secret"
	_, ts := newTestServer(t, cfg)

	code, _ := request(t, http.MethodPost, ts.URL+"/api/terminal/create", map[string]string{"X-User-ID": "alice"})
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = request(t, http.MethodPost, ts.URL+"/api/terminal/create", map[string]string{
		"X-User-ID":     "alice",
		"Authorization": "Bearer gateway-secret",
	})
	assert.Equal(t, http.StatusOK, code)

	// health stays open
	code, _ = request(t, http.MethodGet, ts.URL+"/api/terminal/health", nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestServerPolicyFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.Terminal.PolicyFile = filepath.Join(t.TempDir(), "missing.yaml")

	_, err := NewServer(cfg, WithLauncher(&shelltest.Launcher{}), WithLogger(logging.NewNop()))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("allow: [ls, pwd]\n"), 0o644))
	cfg.Terminal.PolicyFile = path

	srv, err := NewServer(cfg, WithLauncher(&shelltest.Launcher{}), WithLogger(logging.NewNop()))
	require.NoError(t, err)
	assert.NoError(t, srv.Close())
}

func TestServerRunShutsDown(t *testing.T) {
	srv, err := NewServer(testConfig(t), WithLauncher(&shelltest.Launcher{}), WithLogger(logging.NewNop()))
	require.NoError(t, err)

	_, err = srv.Registry().Create(context.Background(), "alice")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
	assert.Equal(t, 0, srv.Registry().Len())
	assert.NoError(t, srv.Close())
}
