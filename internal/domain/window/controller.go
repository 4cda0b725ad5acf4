package window

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/shellhost/internal/protocol"
	"github.com/GriffinCanCode/shellhost/internal/providers/terminal"
	"github.com/GriffinCanCode/shellhost/internal/shared/id"
)

// Controller owns the shells of one window.
type Controller struct {
	ref       id.Ref
	channel   string
	size      SizeSpec
	profile   terminal.Profile
	surface   Surface
	alloc     *id.Allocator
	opts      Options
	logger    *zap.Logger
	createdAt time.Time
	onClose   func(*Controller)

	mu       sync.Mutex
	shells   []*terminal.Shell // Protected by mu; creation order
	byRemote map[id.RemoteRef]*terminal.Shell
	spawning map[id.RemoteRef]struct{}
	pending  []*terminal.Shell // Protected by mu; adopted, awaiting create
	display  uint64            // Protected by mu; current display session
	closed   bool              // Protected by mu
}

func newController(ref id.Ref, size SizeSpec, profile terminal.Profile, surface Surface, alloc *id.Allocator, opts Options, onClose func(*Controller)) *Controller {
	channel := id.Channel(ref)
	return &Controller{
		ref:       ref,
		channel:   channel,
		size:      size,
		profile:   profile,
		surface:   surface,
		alloc:     alloc,
		opts:      opts,
		logger:    opts.Logger.Named("window").With(zap.String("channel", channel)),
		createdAt: time.Now(),
		onClose:   onClose,
		byRemote:  make(map[id.RemoteRef]*terminal.Shell),
		spawning:  make(map[id.RemoteRef]struct{}),
	}
}

// Ref returns the window's reference.
func (c *Controller) Ref() id.Ref { return c.ref }

// Channel returns the window's event channel.
func (c *Controller) Channel() string { return c.channel }

// Closed reports whether the window has been closed.
func (c *Controller) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Shells returns the bound shells in creation order.
func (c *Controller) Shells() []terminal.ShellInfo {
	c.mu.Lock()
	shells := append([]*terminal.Shell(nil), c.shells...)
	c.mu.Unlock()

	infos := make([]terminal.ShellInfo, 0, len(shells))
	for _, s := range shells {
		infos = append(infos, s.Info())
	}
	return infos
}

// Info returns a snapshot of the window.
func (c *Controller) Info() WindowInfo {
	c.mu.Lock()
	pending := len(c.pending)
	c.mu.Unlock()

	return WindowInfo{
		Ref:       c.ref,
		Channel:   c.channel,
		Size:      c.size,
		Profile:   c.profile.Name,
		Shells:    c.Shells(),
		Pending:   pending,
		CreatedAt: c.createdAt,
	}
}

// Handle applies one envelope received on the window's channel. Failures are
// reported as diagnostics.
func (c *Controller) Handle(env protocol.Envelope) {
	c.opts.Metrics.RecordEvent("in", string(env.Action))

	ev, err := protocol.Decode(env)
	if err != nil {
		c.report(protocol.ProtocolViolation, env.Action, "", err)
		return
	}
	protocol.Dispatch(ev, inbound{c})
}

// Detach unregisters the shell bound to remote without stopping it and tells
// the display the shell is leaving.
func (c *Controller) Detach(remote id.RemoteRef) (*terminal.Shell, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrWindowClosed
	}
	s, ok := c.byRemote[remote]
	if !ok {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %s on %s", ErrShellNotFound, remote, c.channel)
	}
	c.unregisterLocked(s)
	c.mu.Unlock()

	// Output from here on is held for the next window.
	s.Unbind()
	s.SetHooks(terminal.Hooks{})
	c.emit(protocol.Losing{Ref: remote})

	c.logger.Info("Shell detached", zap.Stringer("shell", s.Ref()), zap.String("remote_ref", string(remote)))
	return s, nil
}

// Adopt queues a shell from another window and asks the display to create
// a slot for it. The next create binds it.
func (c *Controller) Adopt(s *terminal.Shell) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrWindowClosed
	}
	c.pending = append(c.pending, s)
	c.mu.Unlock()

	// Runs the exit hook at once if the process ended while detached.
	s.SetHooks(c.hooks())

	c.mu.Lock()
	waiting := c.isPendingLocked(s)
	c.mu.Unlock()
	if !waiting {
		c.logger.Info("Adopted shell had already exited", zap.Stringer("shell", s.Ref()))
		return nil
	}
	c.emit(protocol.Add{})
	c.logger.Info("Shell adopted", zap.Stringer("shell", s.Ref()))
	return nil
}

// DisplayAttached starts a new display session and returns its number.
// Shells still bound to an earlier display are offered to the new one.
func (c *Controller) DisplayAttached() uint64 {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0
	}
	c.display++
	session := c.display
	released := c.releaseLocked()
	c.mu.Unlock()

	c.offer(released)
	return session
}

// DisplayLost holds the output of the shells bound to display session until
// the next display claims them. Stale sessions are ignored.
func (c *Controller) DisplayLost(session uint64) {
	c.mu.Lock()
	if c.closed || session != c.display {
		c.mu.Unlock()
		return
	}
	released := c.releaseLocked()
	c.mu.Unlock()

	c.offer(released)
}

// Close kills every shell of the window, tells the display, closes the
// surface and leaves the registry. It is safe to call more than once.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	shells := make([]*terminal.Shell, 0, len(c.shells)+len(c.pending))
	shells = append(shells, c.shells...)
	shells = append(shells, c.pending...)
	c.shells = nil
	c.pending = nil
	c.byRemote = make(map[id.RemoteRef]*terminal.Shell)
	c.mu.Unlock()

	for _, s := range shells {
		s.Close()
	}
	c.opts.Metrics.AddShellsActive(-len(shells))

	c.emit(protocol.Close{})
	if err := c.surface.Close(); err != nil {
		c.logger.Warn("Failed to close surface", zap.Error(err))
	}
	if c.onClose != nil {
		c.onClose(c)
	}
	c.logger.Info("Window closed", zap.Int("shells", len(shells)))
}

func (c *Controller) create(remote id.RemoteRef) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.logger.Debug("Create on closed window ignored", zap.String("remote_ref", string(remote)))
		return
	}
	_, bound := c.byRemote[remote]
	_, inFlight := c.spawning[remote]
	if bound || inFlight {
		c.mu.Unlock()
		c.emit(protocol.CreateFail{Ref: remote})
		c.report(protocol.DuplicateRef, protocol.ActionCreate, remote, errors.New("remote ref already bound"))
		return
	}
	if len(c.pending) > 0 {
		s := c.pending[0]
		c.pending = c.pending[1:]
		c.registerLocked(remote, s)
		c.mu.Unlock()

		s.Rebind(c.binding(remote))
		c.logger.Debug("Adopted shell bound", zap.Stringer("shell", s.Ref()), zap.String("remote_ref", string(remote)))
		return
	}
	c.spawning[remote] = struct{}{}
	c.mu.Unlock()

	start := time.Now()
	s, err := terminal.Open(c.opts.Spawner, c.profile, c.alloc.Next(), c.binding(remote), c.hooks(), c.opts.Shell, c.logger)
	c.opts.Metrics.RecordSpawn(time.Since(start), err)

	c.mu.Lock()
	delete(c.spawning, remote)
	if err != nil {
		c.mu.Unlock()
		c.emit(protocol.CreateFail{Ref: remote})
		c.report(protocol.SpawnFault, protocol.ActionCreate, remote, err)
		return
	}
	if c.closed {
		c.mu.Unlock()
		s.Close()
		return
	}
	c.registerLocked(remote, s)
	c.mu.Unlock()

	c.opts.Metrics.AddShellsActive(1)
	c.logger.Info("Shell created", zap.Stringer("shell", s.Ref()), zap.String("remote_ref", string(remote)), zap.Int("pid", s.Pid()))
}

func (c *Controller) input(remote id.RemoteRef, text string) {
	c.mu.Lock()
	s, ok := c.byRemote[remote]
	c.mu.Unlock()

	if !ok {
		c.report(protocol.RoutingMiss, protocol.ActionInput, remote, ErrShellNotFound)
		return
	}
	s.Send(text)
}

func (c *Controller) discard(remote id.RemoteRef) {
	c.mu.Lock()
	s, ok := c.byRemote[remote]
	if ok {
		c.unregisterLocked(s)
	}
	c.mu.Unlock()

	if !ok {
		c.report(protocol.RoutingMiss, protocol.ActionDiscard, remote, ErrShellNotFound)
		return
	}
	s.Close()
	c.opts.Metrics.AddShellsActive(-1)
	c.logger.Info("Shell discarded", zap.Stringer("shell", s.Ref()), zap.String("remote_ref", string(remote)))
}

// shellExited removes a shell whose process ended on its own.
func (c *Controller) shellExited(s *terminal.Shell, code int) {
	remote := s.RemoteRef()

	c.mu.Lock()
	bound := c.byRemote[remote] == s
	if bound {
		c.unregisterLocked(s)
	}
	pending := c.removePendingLocked(s)
	c.mu.Unlock()

	if !bound && !pending {
		return
	}
	s.Close()
	c.opts.Metrics.AddShellsActive(-1)
	c.opts.Metrics.IncShellExits()
	if bound {
		c.emit(protocol.Exit{Ref: remote, Code: code})
	}
	c.logger.Info("Shell exited", zap.Stringer("shell", s.Ref()), zap.Int("code", code))
}

// releaseLocked moves every bound shell to the pending queue. Their output
// is held until a create binds them again.
func (c *Controller) releaseLocked() []*terminal.Shell {
	released := c.shells
	c.shells = nil
	c.byRemote = make(map[id.RemoteRef]*terminal.Shell)
	for _, s := range released {
		s.Unbind()
	}
	c.pending = append(c.pending, released...)
	return released
}

// offer asks the display for one slot per released shell.
func (c *Controller) offer(released []*terminal.Shell) {
	for range released {
		c.emit(protocol.Add{})
	}
	if len(released) > 0 {
		c.logger.Info("Shells offered to display", zap.Int("shells", len(released)))
	}
}

func (c *Controller) registerLocked(remote id.RemoteRef, s *terminal.Shell) {
	c.shells = append(c.shells, s)
	c.byRemote[remote] = s
}

func (c *Controller) unregisterLocked(s *terminal.Shell) {
	for remote, bound := range c.byRemote {
		if bound == s {
			delete(c.byRemote, remote)
		}
	}
	for i, candidate := range c.shells {
		if candidate == s {
			c.shells = append(c.shells[:i], c.shells[i+1:]...)
			break
		}
	}
}

func (c *Controller) isPendingLocked(s *terminal.Shell) bool {
	for _, candidate := range c.pending {
		if candidate == s {
			return true
		}
	}
	return false
}

func (c *Controller) removePendingLocked(s *terminal.Shell) bool {
	for i, candidate := range c.pending {
		if candidate == s {
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
			return true
		}
	}
	return false
}

func (c *Controller) binding(remote id.RemoteRef) terminal.Binding {
	return terminal.Binding{Emitter: emitter{c}, Channel: c.channel, RemoteRef: remote}
}

func (c *Controller) hooks() terminal.Hooks {
	return terminal.Hooks{
		OnFault: func(s *terminal.Shell, err error) {
			c.report(protocol.ProcessFault, "", s.RemoteRef(), err)
		},
		OnExit: c.shellExited,
	}
}

func (c *Controller) emit(ev protocol.Event) {
	if err := (emitter{c}).Send(c.channel, protocol.Encode(ev)); err != nil {
		c.logger.Warn("Failed to send event", zap.String("action", string(ev.Action())), zap.Error(err))
	}
}

func (c *Controller) report(kind protocol.DiagnosticKind, action protocol.Action, remote id.RemoteRef, err error) {
	c.opts.Diagnostics.Report(protocol.Diagnostic{
		Kind:    kind,
		Channel: c.channel,
		Action:  action,
		Ref:     remote,
		Err:     err,
	})
}

// emitter publishes shell output on the window's surface.
type emitter struct{ c *Controller }

func (e emitter) Send(channel string, env protocol.Envelope) error {
	e.c.opts.Metrics.RecordEvent("out", string(env.Action))
	return e.c.surface.Send(channel, env)
}

// inbound applies display events to the controller.
type inbound struct{ c *Controller }

func (in inbound) OnCreate(e protocol.Create)   { in.c.create(e.Ref) }
func (in inbound) OnInput(e protocol.Input)     { in.c.input(e.Ref, e.Data) }
func (in inbound) OnDiscard(e protocol.Discard) { in.c.discard(e.Ref) }

// Reserved actions carry no behaviour on this side.
func (in inbound) OnInit(e protocol.Init)   { in.reserved(e.Action()) }
func (in inbound) OnClose(e protocol.Close) { in.reserved(e.Action()) }
func (in inbound) OnMove(e protocol.Move)   { in.reserved(e.Action()) }

func (in inbound) OnCreateFail(e protocol.CreateFail) { in.wrongDirection(e.Action(), e.Ref) }
func (in inbound) OnData(e protocol.Data)             { in.wrongDirection(e.Action(), e.Ref) }
func (in inbound) OnAdd(e protocol.Add)               { in.wrongDirection(e.Action(), "") }
func (in inbound) OnLosing(e protocol.Losing)         { in.wrongDirection(e.Action(), e.Ref) }
func (in inbound) OnExit(e protocol.Exit)             { in.wrongDirection(e.Action(), e.Ref) }

func (in inbound) reserved(action protocol.Action) {
	in.c.logger.Debug("Reserved event ignored", zap.String("action", string(action)))
}

func (in inbound) wrongDirection(action protocol.Action, remote id.RemoteRef) {
	in.c.report(protocol.ProtocolViolation, action, remote, errors.New("not a display event"))
}
