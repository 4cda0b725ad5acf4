package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	api "github.com/GriffinCanCode/shellhost/internal/api/http"
	"github.com/GriffinCanCode/shellhost/internal/domain/window"
	"github.com/GriffinCanCode/shellhost/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/shellhost/internal/protocol"
	"github.com/GriffinCanCode/shellhost/internal/providers/terminal/terminaltest"
	"github.com/GriffinCanCode/shellhost/internal/shared/id"
	"github.com/GriffinCanCode/shellhost/internal/ws"
)

func newServer(t *testing.T) (*Client, *window.Registry, *terminaltest.Spawner) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	spawner := &terminaltest.Spawner{}
	metrics := monitoring.NewMetrics(prometheus.NewRegistry())
	registry := window.NewRegistry(id.NewAllocator(), ws.NewHub(ws.Options{}), window.Options{
		Spawner: spawner,
		Metrics: metrics,
	})
	router := gin.New()
	api.NewHandlers(registry, metrics, nil).Register(router)
	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		registry.CloseAll()
		srv.Close()
	})
	return New(Options{BaseURL: srv.URL + "/"}), registry, spawner
}

func TestWindowLifecycle(t *testing.T) {
	c, registry, spawner := newServer(t)
	ctx := context.Background()

	h, err := c.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "healthy", h.Status)
	assert.Equal(t, api.Version, h.Version)

	created, err := c.CreateWindow(ctx, api.CreateWindowRequest{Width: 640, Height: 480})
	require.NoError(t, err)
	assert.Equal(t, id.Channel(created.Ref), created.Channel)
	assert.Equal(t, window.SizeSpec{Width: 640, Height: 480}, created.Size)

	registry.Dispatch(created.Channel, protocol.Encode(protocol.Create{Ref: "1"}))
	require.Eventually(t, func() bool { return spawner.Live() == 1 }, 2*time.Second, 5*time.Millisecond)

	info, err := c.GetWindow(ctx, created.Channel)
	require.NoError(t, err)
	require.Len(t, info.Shells, 1)
	assert.Equal(t, id.RemoteRef("1"), info.Shells[0].RemoteRef)

	windows, err := c.ListWindows(ctx)
	require.NoError(t, err)
	require.Len(t, windows, 1)

	require.NoError(t, c.CloseWindow(ctx, created.Channel))
	windows, err = c.ListWindows(ctx)
	require.NoError(t, err)
	assert.Empty(t, windows)

	err = c.CloseWindow(ctx, created.Channel)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMoveShell(t *testing.T) {
	c, registry, spawner := newServer(t)
	ctx := context.Background()

	src, err := c.CreateWindow(ctx, api.CreateWindowRequest{})
	require.NoError(t, err)
	dst, err := c.CreateWindow(ctx, api.CreateWindowRequest{})
	require.NoError(t, err)
	registry.Dispatch(src.Channel, protocol.Encode(protocol.Create{Ref: "4"}))
	require.Eventually(t, func() bool { return spawner.Live() == 1 }, 2*time.Second, 5*time.Millisecond)

	moved, err := c.MoveShell(ctx, src.Channel, "4", dst.Channel)
	require.NoError(t, err)
	assert.Equal(t, dst.Channel, moved.To)

	info, err := c.GetWindow(ctx, dst.Channel)
	require.NoError(t, err)
	assert.Equal(t, 1, info.Pending)

	_, err = c.MoveShell(ctx, src.Channel, "4", dst.Channel)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = c.MoveShell(ctx, dst.Channel, "4", dst.Channel)
	assert.ErrorIs(t, err, ErrBadRequest)
}

func TestAPIErrorCarriesMessage(t *testing.T) {
	c, _, _ := newServer(t)

	_, err := c.CreateWindow(context.Background(), api.CreateWindowRequest{Profile: "nope"})
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Contains(t, apiErr.Message, "unknown shell profile")
	assert.ErrorIs(t, err, ErrBadRequest)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"healthy","windows":2}`))
	}))
	defer srv.Close()

	c := New(Options{BaseURL: srv.URL, RetryCount: 3, RetryWait: time.Millisecond, RetryMaxWait: 5 * time.Millisecond})
	h, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, h.Windows)
	assert.EqualValues(t, 3, calls.Load())
}

func TestDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"window not found"}`))
	}))
	defer srv.Close()

	c := New(Options{BaseURL: srv.URL, RetryCount: 3, RetryWait: time.Millisecond})
	_, err := c.GetWindow(context.Background(), "event_1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.EqualValues(t, 1, calls.Load())
}
