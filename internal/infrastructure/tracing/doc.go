/*
Package tracing provides lightweight request tracing.

Every HTTP request and every websocket connection gets a span. Spans carry a
ULID-based trace id (continued from X-Trace-ID when the gateway sends one)
and are logged by a buffered background collector, so tracing never blocks a
request.

# Usage

	tracer := tracing.New("terminal", logger)
	defer tracer.Close()

	router.Use(tracing.HTTPMiddleware(tracer))

	span, ctx := tracer.StartSpan(ctx, "ws.connection")
	defer func() {
		span.Finish()
		tracer.Submit(span)
	}()

# Trace Format

Traces use standard HTTP headers for propagation:
  - X-Trace-ID: Unique identifier for entire request flow
  - X-Span-ID: Identifier for current operation
*/
package tracing
