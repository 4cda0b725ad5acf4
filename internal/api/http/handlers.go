package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/shellhost/internal/domain/window"
	"github.com/GriffinCanCode/shellhost/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/shellhost/internal/providers/terminal"
	"github.com/GriffinCanCode/shellhost/internal/shared/id"
)

// Version is reported by the root and health endpoints.
const Version = "0.1.0"

// Handlers contains all HTTP handlers
type Handlers struct {
	registry  *window.Registry
	metrics   *monitoring.Metrics
	logger    *zap.Logger
	startedAt time.Time
}

// NewHandlers creates a new handler set
func NewHandlers(registry *window.Registry, metrics *monitoring.Metrics, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		registry:  registry,
		metrics:   metrics,
		logger:    logger.Named("api"),
		startedAt: time.Now(),
	}
}

// Register mounts the handlers on r.
func (h *Handlers) Register(r gin.IRouter) {
	r.GET("/", h.Root)
	r.GET("/health", h.Health)
	r.GET("/metrics/json", h.MetricsJSON)

	windows := r.Group("/windows")
	windows.POST("", h.CreateWindow)
	windows.GET("", h.ListWindows)
	windows.GET("/:channel", h.GetWindow)
	windows.DELETE("/:channel", h.CloseWindow)
	windows.POST("/:channel/shells/:ref/move", h.MoveShell)
}

// Root identifies the service
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "shellhost",
		"version": Version,
	})
}

// Health handles detailed health check
func (h *Handlers) Health(c *gin.Context) {
	windows := h.registry.List()
	shells := 0
	for _, w := range windows {
		shells += len(w.Shells)
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"version": Version,
		"uptime":  time.Since(h.startedAt).Round(time.Second).String(),
		"windows": len(windows),
		"shells":  shells,
	})
}

// MetricsJSON returns the metrics snapshot
func (h *Handlers) MetricsJSON(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"timestamp":           time.Now(),
		"uptime_seconds":      h.metrics.Uptime().Seconds(),
		"avg_request_seconds": h.metrics.AverageRequestDuration().Seconds(),
		"snapshot":            h.metrics.Snapshot(),
	})
}

// CreateWindow opens a window
func (h *Handlers) CreateWindow(c *gin.Context) {
	var req CreateWindowRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}
	}

	w, err := h.registry.CreateWindow(window.SizeSpec{Width: req.Width, Height: req.Height}, req.Profile)
	if err != nil {
		h.fail(c, err)
		return
	}

	info := w.Info()
	c.JSON(http.StatusCreated, CreateWindowResponse{
		Ref:     info.Ref,
		Channel: info.Channel,
		Size:    info.Size,
		Profile: info.Profile,
	})
}

// ListWindows lists every open window
func (h *Handlers) ListWindows(c *gin.Context) {
	windows := h.registry.List()
	c.JSON(http.StatusOK, ListWindowsResponse{Windows: windows, Count: len(windows)})
}

// GetWindow describes one window
func (h *Handlers) GetWindow(c *gin.Context) {
	channel, ok := channelParam(c)
	if !ok {
		return
	}
	w, found := h.registry.Get(channel)
	if !found {
		h.fail(c, window.ErrWindowNotFound)
		return
	}
	c.JSON(http.StatusOK, w.Info())
}

// CloseWindow closes a window and kills its shells
func (h *Handlers) CloseWindow(c *gin.Context) {
	channel, ok := channelParam(c)
	if !ok {
		return
	}
	if err := h.registry.CloseWindow(channel); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"channel": channel,
	})
}

// MoveShell hands a shell to another window
func (h *Handlers) MoveShell(c *gin.Context) {
	channel, ok := channelParam(c)
	if !ok {
		return
	}
	var req MoveShellRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	info, err := h.registry.Move(channel, id.RemoteRef(c.Param("ref")), req.To)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, MoveShellResponse{From: channel, To: req.To, Shell: info})
}

func channelParam(c *gin.Context) (string, bool) {
	channel := c.Param("channel")
	if !strings.HasPrefix(channel, id.ChannelPrefix) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid channel " + channel})
		return "", false
	}
	return channel, true
}

// fail maps domain errors onto status codes.
func (h *Handlers) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, window.ErrWindowNotFound), errors.Is(err, window.ErrShellNotFound):
		status = http.StatusNotFound
	case errors.Is(err, terminal.ErrUnknownProfile), errors.Is(err, window.ErrSameWindow):
		status = http.StatusBadRequest
	case errors.Is(err, window.ErrWindowClosed):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	_ = c.Error(err)
	c.JSON(status, ErrorResponse{Error: err.Error()})
}
