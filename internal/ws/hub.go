package ws

import (
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/shellhost/internal/domain/window"
)

// Hub creates and tracks the surfaces of open windows.
type Hub struct {
	opts   Options
	logger *zap.Logger

	mu       sync.RWMutex
	surfaces map[string]*Surface // Protected by mu
}

// NewHub creates an empty hub.
func NewHub(opts Options) *Hub {
	opts = opts.withDefaults()
	return &Hub{
		opts:     opts,
		logger:   opts.Logger.Named("ws"),
		surfaces: make(map[string]*Surface),
	}
}

// Create implements window.SurfaceFactory. The surface waits for a display
// to attach on channel.
func (h *Hub) Create(size window.SizeSpec, channel string) (window.Surface, error) {
	s := &Surface{
		channel: channel,
		size:    size,
		opts:    h.opts,
		logger:  h.logger.With(zap.String("channel", channel)),
		release: h.remove,
	}

	h.mu.Lock()
	h.surfaces[channel] = s
	h.mu.Unlock()

	h.logger.Debug("Surface opened", zap.String("channel", channel))
	return s, nil
}

// Surface returns the surface of channel.
func (h *Hub) Surface(channel string) (*Surface, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.surfaces[channel]
	return s, ok
}

// Count returns the number of open surfaces.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.surfaces)
}

func (h *Hub) remove(channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.surfaces, channel)
}
