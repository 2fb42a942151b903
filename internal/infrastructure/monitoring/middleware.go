package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Middleware creates a Gin middleware for metrics collection. Requests are
// labelled by route template so session ids do not explode cardinality.
func Middleware(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.RecordHTTPRequest(
			c.Request.Method,
			path,
			strconv.Itoa(c.Writer.Status()),
			time.Since(start),
			int64(c.Writer.Size()),
		)
	}
}

// Timer measures a one-shot execution
type Timer struct {
	start   time.Time
	metrics *Metrics
}

// NewTimer starts a timer
func NewTimer(metrics *Metrics) *Timer {
	return &Timer{start: time.Now(), metrics: metrics}
}

// Stop records the elapsed time
func (t *Timer) Stop(truncated bool) time.Duration {
	elapsed := time.Since(t.start)
	t.metrics.RecordExec(elapsed, truncated)
	return elapsed
}
