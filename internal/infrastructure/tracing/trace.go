package tracing

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/terminal/internal/shared/id"
)

// Propagation headers
const (
	HeaderTraceID = "X-Trace-ID"
	HeaderSpanID  = "X-Span-ID"
)

// Span represents a single operation in a trace
type Span struct {
	TraceID    id.TraceID
	SpanID     id.SpanID
	ParentID   id.SpanID
	Name       string
	Service    string
	StartTime  time.Time
	Duration   time.Duration
	Tags       map[string]string
	Error      error
	StatusCode int
}

// Finish marks the span as complete
func (s *Span) Finish() {
	s.Duration = time.Since(s.StartTime)
}

// SetTag adds a tag to the span
func (s *Span) SetTag(key, value string) {
	s.Tags[key] = value
}

// SetError records an error in the span
func (s *Span) SetError(err error) {
	s.Error = err
}

// SetStatus sets the HTTP status code
func (s *Span) SetStatus(code int) {
	s.StatusCode = code
}

// Tracer creates spans and logs them from a background collector
type Tracer struct {
	service string
	logger  *zap.Logger
	spans   chan *Span

	closeOnce sync.Once
	closed    chan struct{}
	done      chan struct{}
}

// New creates a tracer and starts its collector. Call Close to stop it.
func New(service string, logger *zap.Logger) *Tracer {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Tracer{
		service: service,
		logger:  logger,
		spans:   make(chan *Span, 1000),
		closed:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	go t.collectSpans()
	return t
}

// StartSpan creates a child of the span carried by ctx, or a new trace
func (t *Tracer) StartSpan(ctx context.Context, name string) (*Span, context.Context) {
	traceID := TraceID(ctx)
	if traceID == "" {
		traceID = id.NewTraceID()
	}

	span := &Span{
		TraceID:   traceID,
		SpanID:    id.NewSpanID(),
		ParentID:  SpanID(ctx),
		Name:      name,
		Service:   t.service,
		StartTime: time.Now(),
		Tags:      make(map[string]string),
	}

	ctx = context.WithValue(ctx, traceIDKey, traceID)
	ctx = context.WithValue(ctx, spanIDKey, span.SpanID)
	return span, ctx
}

// Submit hands a finished span to the collector without blocking
func (t *Tracer) Submit(span *Span) {
	select {
	case <-t.closed:
		return
	default:
	}

	select {
	case t.spans <- span:
	default:
		t.logger.Warn("span buffer full, dropping span",
			zap.String("trace_id", span.TraceID.String()),
			zap.String("span_id", span.SpanID.String()),
		)
	}
}

// Close stops the collector after draining queued spans
func (t *Tracer) Close() {
	t.closeOnce.Do(func() {
		close(t.closed)
		<-t.done
	})
}

func (t *Tracer) collectSpans() {
	defer close(t.done)
	for {
		select {
		case span := <-t.spans:
			t.processSpan(span)
		case <-t.closed:
			for {
				select {
				case span := <-t.spans:
					t.processSpan(span)
				default:
					return
				}
			}
		}
	}
}

func (t *Tracer) processSpan(span *Span) {
	fields := []zap.Field{
		zap.String("trace_id", span.TraceID.String()),
		zap.String("span_id", span.SpanID.String()),
		zap.String("operation", span.Name),
		zap.Duration("duration", span.Duration),
		zap.String("service", span.Service),
	}
	if span.ParentID != "" {
		fields = append(fields, zap.String("parent_id", span.ParentID.String()))
	}
	if span.StatusCode != 0 {
		fields = append(fields, zap.Int("status", span.StatusCode))
	}
	for k, v := range span.Tags {
		fields = append(fields, zap.String(k, v))
	}

	if span.Error != nil {
		fields = append(fields, zap.Error(span.Error))
		t.logger.Warn("span completed with error", fields...)
		return
	}
	t.logger.Debug("span completed", fields...)
}

// Extract reads propagated trace context from request headers
func Extract(h http.Header) (id.TraceID, id.SpanID) {
	return id.TraceID(h.Get(HeaderTraceID)), id.SpanID(h.Get(HeaderSpanID))
}

// Inject writes the trace context carried by ctx into headers
func Inject(ctx context.Context, h http.Header) {
	if traceID := TraceID(ctx); traceID != "" {
		h.Set(HeaderTraceID, traceID.String())
	}
	if spanID := SpanID(ctx); spanID != "" {
		h.Set(HeaderSpanID, spanID.String())
	}
}

type contextKey string

const (
	traceIDKey contextKey = "trace_id"
	spanIDKey  contextKey = "span_id"
)

// WithTrace returns ctx carrying an inbound trace context
func WithTrace(ctx context.Context, traceID id.TraceID, spanID id.SpanID) context.Context {
	if traceID != "" {
		ctx = context.WithValue(ctx, traceIDKey, traceID)
	}
	if spanID != "" {
		ctx = context.WithValue(ctx, spanIDKey, spanID)
	}
	return ctx
}

// TraceID retrieves the trace ID from context
func TraceID(ctx context.Context) id.TraceID {
	traceID, _ := ctx.Value(traceIDKey).(id.TraceID)
	return traceID
}

// SpanID retrieves the span ID from context
func SpanID(ctx context.Context) id.SpanID {
	spanID, _ := ctx.Value(spanIDKey).(id.SpanID)
	return spanID
}

// Fields returns zap fields for the trace context in ctx
func Fields(ctx context.Context) []zap.Field {
	traceID := TraceID(ctx)
	if traceID == "" {
		return nil
	}
	return []zap.Field{zap.String("trace_id", traceID.String()), zap.String("span_id", SpanID(ctx).String())}
}

