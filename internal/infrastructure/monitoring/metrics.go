package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "terminal"

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records
// nothing, so components can run without instrumentation.
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec

	// Session metrics
	SessionsActive    prometheus.Gauge
	SessionsCreated   *prometheus.CounterVec
	SessionsDestroyed *prometheus.CounterVec
	CreateFailures    prometheus.Counter
	FallbackTotal     *prometheus.CounterVec

	// Command metrics
	CommandsTotal *prometheus.CounterVec
	ExecDuration  prometheus.Histogram
	ExecTruncated prometheus.Counter

	// Spawn breaker
	BreakerState *prometheus.GaugeVec

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	// System metrics
	Uptime    prometheus.GaugeFunc
	startTime time.Time

	snapshot Snapshot
	mu       sync.RWMutex
}

// Snapshot holds current values for the JSON health endpoint
type Snapshot struct {
	ActiveSessions    int64   `json:"activeSessions"`
	ActiveConnections int64   `json:"activeConnections"`
	TotalCommands     int64   `json:"totalCommands"`
	RejectedCommands  int64   `json:"rejectedCommands"`
	FallbackSessions  int64   `json:"fallbackSessions"`
	UptimeSeconds     float64 `json:"uptimeSeconds"`
}

// NewMetrics registers all collectors with reg. Pass a fresh
// prometheus.NewRegistry() per server (and per test) to avoid duplicate
// registration panics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{startTime: time.Now()}

	m.RequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	m.RequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)
	m.ResponseSize = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   []float64{100, 1000, 10000, 100000, 1000000},
		},
		[]string{"method", "path"},
	)

	m.SessionsActive = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sessions_active",
		Help:      "Number of live terminal sessions",
	})
	m.SessionsCreated = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_created_total",
			Help:      "Terminal sessions created, by initial mode",
		},
		[]string{"mode"},
	)
	m.SessionsDestroyed = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_destroyed_total",
			Help:      "Terminal sessions destroyed, by reason",
		},
		[]string{"reason"},
	)
	m.CreateFailures = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "session_create_failures_total",
		Help:      "Session creations that failed initialization",
	})
	m.FallbackTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallback_transitions_total",
			Help:      "Sessions that entered fallback mode, by reason",
		},
		[]string{"reason"},
	)

	m.CommandsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Submitted command lines, by outcome",
		},
		[]string{"outcome"},
	)
	m.ExecDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "exec_duration_seconds",
		Help:      "One-shot command duration in seconds",
		Buckets:   []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
	})
	m.ExecTruncated = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "exec_truncated_total",
		Help:      "One-shot commands stopped at the output cap",
	})

	m.BreakerState = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "breaker_state",
			Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"name"},
	)

	m.WSConnections = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "ws_connections",
		Help:      "Number of active streaming connections",
	})
	m.WSMessages = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "Streaming envelopes, by direction and type",
		},
		[]string{"direction", "type"},
	)

	m.Uptime = factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Service uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, respSize int64) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.ResponseSize.WithLabelValues(method, path).Observe(float64(respSize))
}

// RecordSessionCreated counts a session by its initial mode
func (m *Metrics) RecordSessionCreated(mode string) {
	if m == nil {
		return
	}
	m.SessionsCreated.WithLabelValues(mode).Inc()
}

// RecordSessionDestroyed counts a teardown by reason
func (m *Metrics) RecordSessionDestroyed(reason string) {
	if m == nil {
		return
	}
	m.SessionsDestroyed.WithLabelValues(reason).Inc()
}

// RecordCreateFailure counts a failed session creation
func (m *Metrics) RecordCreateFailure() {
	if m == nil {
		return
	}
	m.CreateFailures.Inc()
}

// SetSessionsActive sets the number of live sessions
func (m *Metrics) SetSessionsActive(count int) {
	if m == nil {
		return
	}
	m.SessionsActive.Set(float64(count))
	m.mu.Lock()
	m.snapshot.ActiveSessions = int64(count)
	m.mu.Unlock()
}

// RecordFallback counts a transition into fallback mode
func (m *Metrics) RecordFallback(reason string) {
	if m == nil {
		return
	}
	m.FallbackTotal.WithLabelValues(reason).Inc()
	m.mu.Lock()
	m.snapshot.FallbackSessions++
	m.mu.Unlock()
}

// RecordCommand counts a submitted command line by outcome
func (m *Metrics) RecordCommand(outcome string) {
	if m == nil {
		return
	}
	m.CommandsTotal.WithLabelValues(outcome).Inc()
	m.mu.Lock()
	m.snapshot.TotalCommands++
	if outcome == "rejected" {
		m.snapshot.RejectedCommands++
	}
	m.mu.Unlock()
}

// RecordExec observes one one-shot execution
func (m *Metrics) RecordExec(duration time.Duration, truncated bool) {
	if m == nil {
		return
	}
	m.ExecDuration.Observe(duration.Seconds())
	if truncated {
		m.ExecTruncated.Inc()
	}
}

// SetBreakerState publishes a breaker state
func (m *Metrics) SetBreakerState(name string, state int) {
	if m == nil {
		return
	}
	m.BreakerState.WithLabelValues(name).Set(float64(state))
}

// RecordWSMessage records a streaming envelope
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// IncWSConnections increments streaming connections
func (m *Metrics) IncWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Inc()
	m.mu.Lock()
	m.snapshot.ActiveConnections++
	m.mu.Unlock()
}

// DecWSConnections decrements streaming connections
func (m *Metrics) DecWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Dec()
	m.mu.Lock()
	m.snapshot.ActiveConnections--
	m.mu.Unlock()
}
