package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics. A nil *Metrics records nothing.
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestSize     *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec

	// Window metrics
	WindowsActive prometheus.Gauge
	WindowsTotal  prometheus.Counter

	// Shell metrics
	ShellsActive  prometheus.Gauge
	ShellsTotal   prometheus.Counter
	ShellExits    prometheus.Counter
	SpawnFailures prometheus.Counter
	SpawnDuration prometheus.Histogram
	ShellMoves    prometheus.Counter

	// Protocol metrics
	Events      *prometheus.CounterVec
	Diagnostics *prometheus.CounterVec

	// WebSocket metrics
	WSConnections prometheus.Gauge

	startTime time.Time

	// Snapshot for JSON API - track current values
	snapshot MetricsSnapshot

	mu sync.RWMutex
}

// MetricsSnapshot holds current metric values for JSON API
type MetricsSnapshot struct {
	TotalRequests     int64   `json:"total_requests"`
	TotalErrors       int64   `json:"total_errors"`
	ActiveWindows     int64   `json:"active_windows"`
	ActiveShells      int64   `json:"active_shells"`
	ActiveConnections int64   `json:"active_connections"`
	Diagnostics       int64   `json:"diagnostics"`
	TotalDuration     float64 `json:"-"` // sum of all request durations
	RequestCount      int64   `json:"-"` // count for averaging
}

// NewMetrics creates a metrics collector registered on reg. Each server gets
// its own registry so tests can build several side by side.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{
		startTime: time.Now(),

		// HTTP metrics
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shellhost_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "shellhost_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		RequestSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "shellhost_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000},
			},
			[]string{"method", "path"},
		),
		ResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "shellhost_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000},
			},
			[]string{"method", "path"},
		),

		// Window metrics
		WindowsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "shellhost_windows_active",
				Help: "Number of open windows",
			},
		),
		WindowsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "shellhost_windows_total",
				Help: "Total number of windows created",
			},
		),

		// Shell metrics
		ShellsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "shellhost_shells_active",
				Help: "Number of running shell processes",
			},
		),
		ShellsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "shellhost_shells_total",
				Help: "Total number of shells spawned",
			},
		),
		ShellExits: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "shellhost_shell_exits_total",
				Help: "Total number of shells that exited on their own",
			},
		),
		SpawnFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "shellhost_spawn_failures_total",
				Help: "Total number of shells that failed to start",
			},
		),
		SpawnDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "shellhost_spawn_duration_seconds",
				Help:    "Time taken to start a shell process",
				Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
		),
		ShellMoves: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "shellhost_shell_moves_total",
				Help: "Total number of shells moved between windows",
			},
		),

		// Protocol metrics
		Events: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shellhost_events_total",
				Help: "Total number of protocol events",
			},
			[]string{"direction", "action"},
		),
		Diagnostics: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shellhost_diagnostics_total",
				Help: "Total number of absorbed protocol failures",
			},
			[]string{"kind"},
		),

		// WebSocket metrics
		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "shellhost_ws_connections",
				Help: "Number of attached display connections",
			},
		),
	}

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "shellhost_uptime_seconds",
			Help: "Server uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, reqSize, respSize int64) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.RequestSize.WithLabelValues(method, path).Observe(float64(reqSize))
	m.ResponseSize.WithLabelValues(method, path).Observe(float64(respSize))

	// Update snapshot
	m.mu.Lock()
	m.snapshot.TotalRequests++
	m.snapshot.TotalDuration += duration.Seconds()
	m.snapshot.RequestCount++
	if status[0] == '4' || status[0] == '5' {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RecordEvent counts a protocol event; direction is "in" or "out".
func (m *Metrics) RecordEvent(direction, action string) {
	if m == nil {
		return
	}
	m.Events.WithLabelValues(direction, action).Inc()
}

// RecordDiagnostic counts an absorbed failure by kind.
func (m *Metrics) RecordDiagnostic(kind string) {
	if m == nil {
		return
	}
	m.Diagnostics.WithLabelValues(kind).Inc()
	m.mu.Lock()
	m.snapshot.Diagnostics++
	m.mu.Unlock()
}

// RecordSpawn records a shell start attempt.
func (m *Metrics) RecordSpawn(duration time.Duration, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.SpawnFailures.Inc()
		return
	}
	m.ShellsTotal.Inc()
	m.SpawnDuration.Observe(duration.Seconds())
}

// IncShellExits counts a shell that exited on its own.
func (m *Metrics) IncShellExits() {
	if m == nil {
		return
	}
	m.ShellExits.Inc()
}

// IncShellMoves counts a shell handed to another window.
func (m *Metrics) IncShellMoves() {
	if m == nil {
		return
	}
	m.ShellMoves.Inc()
}

// AddShellsActive adjusts the running shell gauge by delta.
func (m *Metrics) AddShellsActive(delta int) {
	if m == nil {
		return
	}
	m.ShellsActive.Add(float64(delta))
	m.mu.Lock()
	m.snapshot.ActiveShells += int64(delta)
	m.mu.Unlock()
}

// SetWindowsActive sets the number of open windows
func (m *Metrics) SetWindowsActive(count int) {
	if m == nil {
		return
	}
	m.WindowsActive.Set(float64(count))
	m.mu.Lock()
	m.snapshot.ActiveWindows = int64(count)
	m.mu.Unlock()
}

// IncWindowsTotal increments the total windows counter
func (m *Metrics) IncWindowsTotal() {
	if m == nil {
		return
	}
	m.WindowsTotal.Inc()
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Inc()
	m.mu.Lock()
	m.snapshot.ActiveConnections++
	m.mu.Unlock()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Dec()
	m.mu.Lock()
	m.snapshot.ActiveConnections--
	m.mu.Unlock()
}
