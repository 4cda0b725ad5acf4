package remote

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/shellhost/internal/protocol"
	"github.com/GriffinCanCode/shellhost/internal/shared/id"
)

// ErrUnknownShell is returned when a reference names no proxy.
var ErrUnknownShell = errors.New("unknown shell")

// Sender publishes envelopes on the router's channel.
type Sender interface {
	Send(env protocol.Envelope) error
}

// Callbacks notify the presentation layer. They run without router locks
// held, so they may call back into the router.
type Callbacks struct {
	OnShellCreated   func(*Proxy)
	OnShellUpdated   func(*Proxy)
	OnShellDestroyed func(*Proxy)
	OnWindowClosed   func()
}

// Options tunes a router.
type Options struct {
	// BufferBytes bounds each proxy's output buffer; zero is unbounded.
	BufferBytes int
	// Session prefixes the refs this router mints. Refs left over from an
	// earlier display of the same window then never name this router's proxies.
	Session string
	// KeepChunks retains every output chunk for incremental rendering.
	KeepChunks  bool
	Diagnostics protocol.DiagnosticSink
	Logger      *zap.Logger
}

// Router mirrors one window's shells on the display side.
type Router struct {
	channel string
	sender  Sender
	alloc   *id.Allocator
	opts    Options
	logger  *zap.Logger

	mu        sync.Mutex
	proxies   []*Proxy  // Protected by mu; creation order
	callbacks Callbacks // Protected by mu
	closed    bool      // Protected by mu
}

// NewRouter creates a router for channel. Proxy references come from alloc.
func NewRouter(channel string, sender Sender, alloc *id.Allocator, opts Options) *Router {
	if opts.Diagnostics == nil {
		opts.Diagnostics = protocol.NopSink
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		channel: channel,
		sender:  sender,
		alloc:   alloc,
		opts:    opts,
		logger:  logger.Named("remote").With(zap.String("channel", channel)),
	}
}

// Channel returns the channel the router serves.
func (r *Router) Channel() string { return r.channel }

// SetCallbacks replaces the presentation callbacks.
func (r *Router) SetCallbacks(cb Callbacks) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks = cb
}

// Announce tells the controller the display is listening.
func (r *Router) Announce() error {
	return r.send(protocol.Init{})
}

// Create registers a new proxy and asks the controller for a shell bound to
// it. The proxy exists before the request leaves, so the answer always finds it.
func (r *Router) Create() (id.Ref, error) {
	p := newProxy(r.alloc.Next(), r.opts.BufferBytes, r.opts.KeepChunks)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return 0, fmt.Errorf("window %s is closed", r.channel)
	}
	r.proxies = append(r.proxies, p)
	r.mu.Unlock()

	if err := r.send(protocol.Create{Ref: r.wire(p.Ref())}); err != nil {
		r.remove(p.Ref())
		return 0, err
	}
	r.logger.Debug("Shell requested", zap.Stringer("ref", p.Ref()))
	return p.Ref(), nil
}

// Send forwards a line of input to the shell behind ref.
func (r *Router) Send(ref id.Ref, text string) error {
	if _, ok := r.Get(ref); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownShell, ref)
	}
	return r.send(protocol.Input{Ref: r.wire(ref), Data: text})
}

// Discard drops the proxy and tells the controller to close its shell.
func (r *Router) Discard(ref id.Ref) error {
	p := r.remove(ref)
	if p == nil {
		return fmt.Errorf("%w: %s", ErrUnknownShell, ref)
	}
	r.destroyed(p)
	return r.send(protocol.Discard{Ref: r.wire(ref)})
}

// Get returns the proxy for ref.
func (r *Router) Get(ref id.Ref) (*Proxy, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i := r.indexLocked(ref); i >= 0 {
		return r.proxies[i], true
	}
	return nil, false
}

// Proxies returns the proxies in creation order.
func (r *Router) Proxies() []*Proxy {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Proxy, len(r.proxies))
	copy(out, r.proxies)
	return out
}

// Closed reports whether the controller closed the window.
func (r *Router) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Handle applies one envelope received on the channel.
func (r *Router) Handle(env protocol.Envelope) {
	ev, err := protocol.Decode(env)
	if err != nil {
		r.report(protocol.ProtocolViolation, env.Action, "", err)
		return
	}
	protocol.Dispatch(ev, inbound{r})
}

// indexLocked returns the position of ref, or -1.
func (r *Router) indexLocked(ref id.Ref) int {
	for i, p := range r.proxies {
		if p.Ref() == ref {
			return i
		}
	}
	return -1
}

func (r *Router) remove(ref id.Ref) *Proxy {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexLocked(ref)
	if i < 0 {
		return nil
	}
	p := r.proxies[i]
	r.proxies = append(r.proxies[:i], r.proxies[i+1:]...)
	p.detach()
	return p
}

func (r *Router) wire(ref id.Ref) id.RemoteRef { return ref.RemoteIn(r.opts.Session) }

// lookup resolves a remote ref from an event to a proxy.
func (r *Router) lookup(action protocol.Action, remote id.RemoteRef) *Proxy {
	ref, err := id.ParseRefIn(r.opts.Session, remote)
	if err != nil {
		r.report(protocol.RoutingMiss, action, remote, err)
		return nil
	}
	p, ok := r.Get(ref)
	if !ok {
		r.report(protocol.RoutingMiss, action, remote, ErrUnknownShell)
		return nil
	}
	return p
}

// destroy removes the proxy an event names.
func (r *Router) destroy(action protocol.Action, remote id.RemoteRef) {
	ref, err := id.ParseRefIn(r.opts.Session, remote)
	if err != nil {
		r.report(protocol.RoutingMiss, action, remote, err)
		return
	}
	p := r.remove(ref)
	if p == nil {
		r.report(protocol.RoutingMiss, action, remote, ErrUnknownShell)
		return
	}
	r.logger.Debug("Shell removed", zap.String("action", string(action)), zap.Stringer("ref", ref))
	r.destroyed(p)
}

func (r *Router) send(ev protocol.Event) error {
	if err := r.sender.Send(protocol.Encode(ev)); err != nil {
		return fmt.Errorf("send %s on %s: %w", ev.Action(), r.channel, err)
	}
	return nil
}

func (r *Router) report(kind protocol.DiagnosticKind, action protocol.Action, ref id.RemoteRef, err error) {
	r.logger.Debug("Event absorbed",
		zap.String("kind", string(kind)),
		zap.String("action", string(action)),
		zap.String("ref", string(ref)),
		zap.Error(err),
	)
	r.opts.Diagnostics.Report(protocol.Diagnostic{
		Kind:    kind,
		Channel: r.channel,
		Action:  action,
		Ref:     ref,
		Err:     err,
	})
}

func (r *Router) cb() Callbacks {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.callbacks
}

func (r *Router) created(p *Proxy) {
	if fn := r.cb().OnShellCreated; fn != nil {
		fn(p)
	}
}

func (r *Router) updated(p *Proxy) {
	if fn := r.cb().OnShellUpdated; fn != nil {
		fn(p)
	}
}

func (r *Router) destroyed(p *Proxy) {
	if fn := r.cb().OnShellDestroyed; fn != nil {
		fn(p)
	}
}

// inbound applies controller events to the router.
type inbound struct{ r *Router }

func (in inbound) OnCreateFail(e protocol.CreateFail) {
	in.r.destroy(protocol.ActionCreateFail, e.Ref)
}

func (in inbound) OnInit(e protocol.Init) {
	if e.Ref == "" {
		in.r.report(protocol.ProtocolViolation, protocol.ActionInit, "", errors.New("init without ref"))
		return
	}
	p := in.r.lookup(protocol.ActionInit, e.Ref)
	if p == nil {
		return
	}
	p.confirm()
	in.r.created(p)
}

func (in inbound) OnAdd(protocol.Add) {
	if _, err := in.r.Create(); err != nil {
		in.r.logger.Warn("Failed to answer add", zap.Error(err))
	}
}

func (in inbound) OnData(e protocol.Data) {
	p := in.r.lookup(protocol.ActionData, e.Ref)
	if p == nil {
		return
	}
	if p.add(e.Data) {
		in.r.updated(p)
	}
}

func (in inbound) OnLosing(e protocol.Losing) {
	in.r.destroy(protocol.ActionLosing, e.Ref)
}

func (in inbound) OnExit(e protocol.Exit) {
	p := in.r.lookup(protocol.ActionExit, e.Ref)
	if p == nil {
		return
	}
	p.markExited(e.Code)
	in.r.updated(p)
}

// OnClose tears the whole window down: every proxy is destroyed.
func (in inbound) OnClose(protocol.Close) {
	r := in.r
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	proxies := r.proxies
	r.proxies = nil
	r.mu.Unlock()

	for _, p := range proxies {
		p.detach()
		r.destroyed(p)
	}
	r.logger.Debug("Window closed", zap.Int("shells", len(proxies)))
	if fn := r.cb().OnWindowClosed; fn != nil {
		fn()
	}
}

// Display-to-controller actions arriving here mean the peer is confused.
func (in inbound) OnCreate(e protocol.Create)   { in.wrongDirection(e.Action(), e.Ref) }
func (in inbound) OnInput(e protocol.Input)     { in.wrongDirection(e.Action(), e.Ref) }
func (in inbound) OnDiscard(e protocol.Discard) { in.wrongDirection(e.Action(), e.Ref) }
func (in inbound) OnMove(e protocol.Move)       { in.wrongDirection(e.Action(), "") }

func (in inbound) wrongDirection(action protocol.Action, ref id.RemoteRef) {
	in.r.report(protocol.ProtocolViolation, action, ref, errors.New("not a controller event"))
}
