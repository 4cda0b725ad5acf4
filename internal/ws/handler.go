package ws

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/shellhost/internal/domain/window"
	"github.com/GriffinCanCode/shellhost/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/shellhost/internal/protocol"
	"github.com/GriffinCanCode/shellhost/internal/shared/id"
)

// HandlerOptions configures the stream endpoint.
type HandlerOptions struct {
	// CloseOnDisconnect closes the window when its display goes away.
	CloseOnDisconnect bool
	// ReadLimit bounds a single inbound frame in bytes.
	ReadLimit   int64
	Diagnostics protocol.DiagnosticSink
	Metrics     *monitoring.Metrics
	Logger      *zap.Logger
}

// Handler manages display connections
type Handler struct {
	registry *window.Registry
	hub      *Hub
	upgrader websocket.Upgrader
	opts     HandlerOptions
	logger   *zap.Logger
}

// NewHandler creates a new stream handler
func NewHandler(registry *window.Registry, hub *Hub, opts HandlerOptions) *Handler {
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = 1 << 20
	}
	if opts.Diagnostics == nil {
		opts.Diagnostics = protocol.NopSink
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Handler{
		registry: registry,
		hub:      hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true // Displays may run on any origin
			},
		},
		opts:   opts,
		logger: opts.Logger.Named("ws"),
	}
}

// HandleStream attaches a display to a window and pumps its events into the registry.
func (h *Handler) HandleStream(c *gin.Context) {
	channel := c.Param("channel")
	surface, ok := h.hub.Surface(channel)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "window not found", "channel": channel})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.String("channel", channel), zap.Error(err))
		return
	}
	defer conn.Close()

	connID := id.NewConnID()
	logger := h.logger.With(zap.String("channel", channel), zap.String("conn_id", connID.String()))

	if err := surface.Attach(conn, connID); err != nil {
		logger.Warn("Display rejected", zap.Error(err))
		code := websocket.CloseInternalServerErr
		if errors.Is(err, ErrAlreadyAttached) {
			code = websocket.ClosePolicyViolation
		}
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, err.Error()))
		return
	}

	h.opts.Metrics.IncWSConnections()
	defer h.opts.Metrics.DecWSConnections()

	// Shells left behind by an earlier display are offered to this one.
	var session uint64
	ctrl, ok := h.registry.Get(channel)
	if ok {
		session = ctrl.DisplayAttached()
	}

	conn.SetReadLimit(h.opts.ReadLimit)
	h.readLoop(conn, channel, logger)

	surface.Detach(conn)
	if h.opts.CloseOnDisconnect {
		if err := h.registry.CloseWindow(channel); err != nil && !errors.Is(err, window.ErrWindowNotFound) {
			logger.Warn("Failed to close window", zap.Error(err))
		}
		return
	}
	if ok {
		ctrl.DisplayLost(session)
	}
}

func (h *Handler) readLoop(conn *websocket.Conn, channel string, logger *zap.Logger) {
	for {
		msgType, frame, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Info("Display connection lost", zap.Error(err))
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		env, err := protocol.Unmarshal(frame)
		if err != nil {
			h.opts.Diagnostics.Report(protocol.Diagnostic{
				Kind:    protocol.ProtocolViolation,
				Channel: channel,
				Err:     err,
			})
			continue
		}
		h.registry.Dispatch(channel, env)
	}
}
