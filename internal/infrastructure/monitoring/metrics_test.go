package monitoring

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/shellhost/internal/protocol"
)

func TestMetricsOnSeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		NewMetrics(prometheus.NewRegistry())
		NewMetrics(prometheus.NewRegistry())
	})
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordEvent("in", "create")
		m.RecordDiagnostic("routing_miss")
		m.RecordSpawn(time.Millisecond, nil)
		m.AddShellsActive(1)
		m.SetWindowsActive(1)
		m.IncWSConnections()
	})
	assert.Equal(t, MetricsSnapshot{}, m.Snapshot())
}

func TestShellAccounting(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordSpawn(time.Millisecond, nil)
	m.RecordSpawn(time.Millisecond, nil)
	m.RecordSpawn(0, errors.New("no such file"))
	m.AddShellsActive(2)
	m.AddShellsActive(-1)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ShellsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SpawnFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ShellsActive))
	assert.Equal(t, int64(1), m.Snapshot().ActiveShells)
}

func TestDiagnosticsSinkCounts(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	sink := NewDiagnostics(nil, m)

	sink.Report(protocol.Diagnostic{Kind: protocol.RoutingMiss, Channel: "event_1"})
	sink.Report(protocol.Diagnostic{Kind: protocol.RoutingMiss, Channel: "event_1"})
	sink.Report(protocol.Diagnostic{Kind: protocol.SpawnFault, Err: errors.New("boom")})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Diagnostics.WithLabelValues("routing_miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Diagnostics.WithLabelValues("spawn_fault")))
	assert.Equal(t, int64(3), m.Snapshot().Diagnostics)
}

func TestMiddlewareUsesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics(prometheus.NewRegistry())
	router := gin.New()
	router.Use(Middleware(m))
	router.GET("/windows/:channel", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	for _, path := range []string{"/windows/event_1", "/windows/event_2", "/missing"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/windows/:channel", "204")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "unmatched", "404")))
	snap := m.Snapshot()
	require.Equal(t, int64(3), snap.TotalRequests)
	assert.Equal(t, int64(1), snap.TotalErrors)
}

func TestMiddlewareSkipsStreamsAndScrapes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics(prometheus.NewRegistry())
	router := gin.New()
	router.Use(Middleware(m, "/metrics"))
	router.GET("/metrics", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/windows/:channel/stream", func(c *gin.Context) { c.Status(http.StatusBadRequest) })

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/metrics", nil))
	upgrade := httptest.NewRequest(http.MethodGet, "/windows/event_1/stream", nil)
	upgrade.Header.Set("Connection", "Upgrade")
	upgrade.Header.Set("Upgrade", "websocket")
	router.ServeHTTP(httptest.NewRecorder(), upgrade)

	assert.Zero(t, m.Snapshot().TotalRequests)
}
