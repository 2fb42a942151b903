package ws

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/terminal/internal/api/middleware"
	"github.com/GriffinCanCode/AgentOS/terminal/internal/domain/session"
	"github.com/GriffinCanCode/AgentOS/terminal/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/terminal/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/AgentOS/terminal/internal/shared/id"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	replyBuffer    = 32
)

// Sessions resolves session ids for the bridge
type Sessions interface {
	Get(sessionID string) (*session.Session, bool)
}

// Handler binds websocket connections to existing terminal sessions
type Handler struct {
	sessions   Sessions
	upgrader   websocket.Upgrader
	metrics    *monitoring.Metrics
	tracer     *tracing.Tracer
	logger     *zap.Logger
	pingPeriod time.Duration
	pongWait   time.Duration
}

// Option configures a Handler
type Option func(*Handler)

// WithOrigins restricts the handshake to the given origins. "*" allows any.
func WithOrigins(origins []string) Option {
	return func(h *Handler) { h.upgrader.CheckOrigin = checkOrigin(origins) }
}

// WithMetrics records connection and message metrics
func WithMetrics(m *monitoring.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

// WithTracer records one span per connection
func WithTracer(t *tracing.Tracer) Option {
	return func(h *Handler) { h.tracer = t }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

// WithKeepAlive overrides the websocket ping period and pong deadline
func WithKeepAlive(ping, pong time.Duration) Option {
	return func(h *Handler) {
		h.pingPeriod = ping
		h.pongWait = pong
	}
}

// NewHandler creates a new WebSocket handler
func NewHandler(sessions Sessions, opts ...Option) *Handler {
	h := &Handler{
		sessions: sessions,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin(nil),
		},
		logger:     zap.NewNop(),
		pingPeriod: pingPeriod,
		pongWait:   pongWait,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func checkOrigin(origins []string) func(r *http.Request) bool {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		allowed[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		_, ok := allowed[origin]
		return ok
	}
}

// HandleConnection upgrades the request and binds it to the session named by
// the sessionId query parameter
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	b := &bridge{
		h:       h,
		conn:    conn,
		connID:  id.NewConnectionID(),
		replies: make(chan Envelope, replyBuffer),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	b.logger = h.logger.With(zap.String("conn_id", b.connID.String()))

	if h.tracer != nil {
		span, ctx := h.tracer.StartSpan(c.Request.Context(), "ws.connection")
		b.logger = b.logger.With(tracing.Fields(ctx)...)
		defer func() {
			span.Finish()
			h.tracer.Submit(span)
		}()
		b.span = span
	}

	h.metrics.IncWSConnections()
	defer h.metrics.DecWSConnections()

	caller, _ := middleware.Caller(c)
	b.serve(c.Query("sessionId"), caller)
}

// bridge is one bound connection. The write pump is the only writer after
// binding; the read loop runs on the handler goroutine.
type bridge struct {
	h       *Handler
	conn    *websocket.Conn
	connID  id.ConnectionID
	logger  *zap.Logger
	span    *tracing.Span
	sess    *session.Session
	sub     *session.Subscription
	replies chan Envelope

	done      chan struct{}
	doneOnce  sync.Once
	stopped   chan struct{}
	closeOnce sync.Once
}

func (b *bridge) serve(sessionID, caller string) {
	defer b.close()

	if sessionID == "" {
		b.reject("Session ID required")
		return
	}
	sess, ok := b.h.sessions.Get(sessionID)
	if !ok || (caller != "" && sess.OwnerID() != caller) {
		b.reject("Invalid session")
		return
	}
	sub, err := sess.Subscribe()
	if err != nil {
		b.reject("Invalid session")
		return
	}
	b.sess, b.sub = sess, sub
	defer sub.Close()

	b.logger = b.logger.With(zap.String("session_id", sessionID))
	if b.span != nil {
		b.span.SetTag("session_id", sessionID)
	}
	b.logger.Info("stream bound")
	defer b.logger.Info("stream unbound")

	if err := b.write(Envelope{Type: TypeReady, SessionID: sessionID, CurrentDir: sess.CurrentDir()}); err != nil {
		return
	}

	go b.writePump()
	b.readLoop()

	b.doneOnce.Do(func() { close(b.done) })
	<-b.stopped
}

// reject reports a binding failure and closes the connection
func (b *bridge) reject(msg string) {
	b.logger.Debug("stream rejected", zap.String("reason", msg))
	if b.span != nil {
		b.span.SetError(errors.New(msg))
	}
	_ = b.write(errorEnvelope(msg))
	b.sendClose(websocket.ClosePolicyViolation, msg)
}

func (b *bridge) readLoop() {
	b.conn.SetReadLimit(maxMessageSize)
	_ = b.conn.SetReadDeadline(time.Now().Add(b.h.pongWait))
	b.conn.SetPongHandler(func(string) error {
		return b.conn.SetReadDeadline(time.Now().Add(b.h.pongWait))
	})

	for {
		_, raw, err := b.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				b.logger.Debug("websocket read error", zap.Error(err))
			}
			return
		}
		_ = b.conn.SetReadDeadline(time.Now().Add(b.h.pongWait))
		b.dispatch(raw)
	}
}

func (b *bridge) dispatch(raw []byte) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("panic handling message", zap.Any("panic", r))
			b.reply(errorEnvelope("Internal error"))
		}
	}()

	env, err := Decode(raw)
	if err != nil {
		b.logger.Debug("envelope decode failed", zap.Int("bytes", len(raw)))
		b.h.metrics.RecordWSMessage("in", "invalid")
		b.reply(errorEnvelope("Invalid message format"))
		return
	}

	switch env.Type {
	case TypeCommand:
		b.h.metrics.RecordWSMessage("in", env.Type)
		err := b.sess.Input(env.Command)
		switch {
		case err == nil, errors.Is(err, session.ErrQueueFull):
		case errors.Is(err, session.ErrTerminated):
			b.reply(errorEnvelope("Session is no longer available"))
		default:
			b.reply(errorEnvelope(err.Error()))
		}
	case TypeResize:
		b.h.metrics.RecordWSMessage("in", env.Type)
		if err := b.sess.Resize(env.Cols, env.Rows); err != nil {
			b.reply(errorEnvelope(fmt.Sprintf("Invalid terminal size: %dx%d", env.Cols, env.Rows)))
		}
	case TypePing:
		b.h.metrics.RecordWSMessage("in", env.Type)
		b.reply(Envelope{Type: TypePong})
	default:
		b.h.metrics.RecordWSMessage("in", "unknown")
		b.reply(errorEnvelope("Unknown message type: " + env.Type))
	}
}

// reply queues an envelope for the write pump
func (b *bridge) reply(env Envelope) {
	select {
	case b.replies <- env:
	case <-b.stopped:
	}
}

// writePump forwards session events and replies until the connection or the
// session goes away. After an exit event the connection is closed.
func (b *bridge) writePump() {
	ticker := time.NewTicker(b.h.pingPeriod)
	defer func() {
		ticker.Stop()
		b.close()
		close(b.stopped)
	}()

	for {
		select {
		case ev, ok := <-b.sub.C:
			if !ok {
				b.sendClose(websocket.CloseNormalClosure, "session closed")
				return
			}
			env, forward := fromEvent(ev)
			if !forward {
				continue
			}
			if err := b.write(env); err != nil {
				return
			}
			if ev.Kind == session.EventExit {
				b.sendClose(websocket.CloseNormalClosure, "session exited")
				return
			}
		case env := <-b.replies:
			if err := b.write(env); err != nil {
				return
			}
		case <-ticker.C:
			if err := b.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-b.done:
			return
		}
	}
}

func (b *bridge) write(env Envelope) error {
	data, err := Encode(env)
	if err != nil {
		b.logger.Error("envelope encode failed", zap.Error(err))
		return err
	}
	_ = b.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := b.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return err
	}
	b.h.metrics.RecordWSMessage("out", env.Type)
	return nil
}

// sendClose sends a close frame and drops the connection so the read loop
// returns
func (b *bridge) sendClose(code int, text string) {
	_ = b.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(writeWait))
	b.close()
}

func (b *bridge) close() {
	b.closeOnce.Do(func() { _ = b.conn.Close() })
}
