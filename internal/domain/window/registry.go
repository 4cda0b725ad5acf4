package window

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/shellhost/internal/protocol"
	"github.com/GriffinCanCode/shellhost/internal/providers/terminal"
	"github.com/GriffinCanCode/shellhost/internal/shared/id"
)

// Registry keeps every open window and routes envelopes by channel.
type Registry struct {
	alloc   *id.Allocator
	factory SurfaceFactory
	opts    Options
	logger  *zap.Logger

	mu      sync.RWMutex
	windows map[string]*Controller // Protected by mu
	order   []*Controller          // Protected by mu; creation order
}

// NewRegistry creates a registry. Window and shell refs come from alloc.
func NewRegistry(alloc *id.Allocator, factory SurfaceFactory, opts Options) *Registry {
	opts = opts.withDefaults()
	return &Registry{
		alloc:   alloc,
		factory: factory,
		opts:    opts,
		logger:  opts.Logger.Named("registry"),
		windows: make(map[string]*Controller),
	}
}

// CreateWindow opens a window of the given size running the named profile.
// A zero size or empty profile name selects the defaults.
func (r *Registry) CreateWindow(size SizeSpec, profileName string) (*Controller, error) {
	profile, err := r.opts.Profiles.Lookup(profileName)
	if err != nil {
		return nil, err
	}
	if size.IsZero() {
		size = r.opts.DefaultSize
	}

	ref := r.alloc.Next()
	channel := id.Channel(ref)
	surface, err := r.factory.Create(size, channel)
	if err != nil {
		return nil, fmt.Errorf("open surface for %s: %w", channel, err)
	}

	c := newController(ref, size, profile, surface, r.alloc, r.opts, r.unregister)

	r.mu.Lock()
	r.windows[channel] = c
	r.order = append(r.order, c)
	count := len(r.order)
	r.mu.Unlock()

	r.opts.Metrics.IncWindowsTotal()
	r.opts.Metrics.SetWindowsActive(count)
	r.logger.Info("Window created",
		zap.String("channel", channel),
		zap.String("profile", profile.Name),
		zap.Int("width", size.Width),
		zap.Int("height", size.Height),
	)
	return c, nil
}

// Dispatch hands an envelope to the window listening on channel.
func (r *Registry) Dispatch(channel string, env protocol.Envelope) {
	c, ok := r.Get(channel)
	if !ok {
		r.opts.Diagnostics.Report(protocol.Diagnostic{
			Kind:    protocol.RoutingMiss,
			Channel: channel,
			Action:  env.Action,
			Err:     ErrWindowNotFound,
		})
		return
	}
	c.Handle(env)
}

// Get returns the open window on channel.
func (r *Registry) Get(channel string) (*Controller, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.windows[channel]
	return c, ok
}

// List returns every open window in creation order.
func (r *Registry) List() []WindowInfo {
	r.mu.RLock()
	windows := append([]*Controller(nil), r.order...)
	r.mu.RUnlock()

	infos := make([]WindowInfo, 0, len(windows))
	for _, c := range windows {
		infos = append(infos, c.Info())
	}
	return infos
}

// CloseWindow closes the window on channel.
func (r *Registry) CloseWindow(channel string) error {
	c, ok := r.Get(channel)
	if !ok {
		return fmt.Errorf("%w: %s", ErrWindowNotFound, channel)
	}
	c.Close()
	return nil
}

// CloseAll closes every window. Used at shutdown.
func (r *Registry) CloseAll() {
	r.mu.RLock()
	windows := append([]*Controller(nil), r.order...)
	r.mu.RUnlock()

	for _, c := range windows {
		c.Close()
	}
}

// Move hands the shell bound to remote in window from over to window to.
func (r *Registry) Move(from string, remote id.RemoteRef, to string) (terminal.ShellInfo, error) {
	if from == to {
		return terminal.ShellInfo{}, ErrSameWindow
	}
	src, ok := r.Get(from)
	if !ok {
		return terminal.ShellInfo{}, fmt.Errorf("%w: %s", ErrWindowNotFound, from)
	}
	dst, ok := r.Get(to)
	if !ok {
		return terminal.ShellInfo{}, fmt.Errorf("%w: %s", ErrWindowNotFound, to)
	}

	s, err := src.Detach(remote)
	if err != nil {
		return terminal.ShellInfo{}, err
	}
	if err := dst.Adopt(s); err != nil {
		s.Close()
		r.opts.Metrics.AddShellsActive(-1)
		return terminal.ShellInfo{}, fmt.Errorf("adopt into %s: %w", to, err)
	}

	r.opts.Metrics.IncShellMoves()
	r.logger.Info("Shell moved",
		zap.Stringer("shell", s.Ref()),
		zap.String("from", from),
		zap.String("to", to),
	)
	return s.Info(), nil
}

func (r *Registry) unregister(c *Controller) {
	r.mu.Lock()
	delete(r.windows, c.Channel())
	for i, candidate := range r.order {
		if candidate == c {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	count := len(r.order)
	r.mu.Unlock()

	r.opts.Metrics.SetWindowsActive(count)
}
