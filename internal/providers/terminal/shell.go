package terminal

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/shellhost/internal/protocol"
	"github.com/GriffinCanCode/shellhost/internal/shared/id"
)

// Shell owns one spawned process and forwards its output to its binding.
type Shell struct {
	ref       id.Ref
	profile   Profile
	startedAt time.Time
	opts      Options
	logger    *zap.Logger

	mu        sync.Mutex
	binding   Binding // Protected by mu
	hooks     Hooks   // Protected by mu
	proc      Process // Protected by mu; nil once closed
	pid       int
	alive     bool     // Protected by mu
	closed    bool     // Protected by mu
	exited    bool     // Protected by mu
	exitCode  int      // Protected by mu
	held      [][]byte // Protected by mu; output read while unbound
	heldBytes int      // Protected by mu
	initTimer *time.Timer
	done      chan struct{}
}

// Open spawns the profile's process and binds its output.
func Open(spawner Spawner, profile Profile, ref id.Ref, b Binding, hooks Hooks, opts Options, logger *zap.Logger) (*Shell, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts = opts.withDefaults()

	proc, err := spawner.Spawn(profile)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrSpawn, profile.Command, err)
	}

	s := &Shell{
		ref:       ref,
		profile:   profile,
		startedAt: time.Now(),
		opts:      opts,
		logger:    logger.With(zap.Stringer("shell", ref), zap.String("remote_ref", string(b.RemoteRef))),
		binding:   b,
		hooks:     hooks,
		proc:      proc,
		pid:       proc.Pid(),
		done:      make(chan struct{}),
	}

	if opts.InitTimeout > 0 {
		s.initTimer = time.AfterFunc(opts.InitTimeout, s.announceSilent)
	}

	go s.readOutput(proc)

	s.logger.Debug("Shell started", zap.Int("pid", s.pid), zap.String("command", profile.Command))
	return s, nil
}

// Ref returns the shell's local reference.
func (s *Shell) Ref() id.Ref { return s.ref }

// Pid returns the process id the shell was started with.
func (s *Shell) Pid() int { return s.pid }

// Done is closed when the output reader has stopped.
func (s *Shell) Done() <-chan struct{} { return s.done }

// RemoteRef returns the remote ref the shell is currently bound to.
func (s *Shell) RemoteRef() id.RemoteRef {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.binding.RemoteRef
}

// Alive reports whether the shell has been announced on its channel.
func (s *Shell) Alive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alive
}

// Closed reports whether Close has been called.
func (s *Shell) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Info returns a snapshot of the shell.
func (s *Shell) Info() ShellInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ShellInfo{
		Ref:       s.ref,
		RemoteRef: s.binding.RemoteRef,
		Channel:   s.binding.Channel,
		Profile:   s.profile.Name,
		Pid:       s.pid,
		Alive:     s.alive,
		StartedAt: s.startedAt,
	}
}

// Send writes text followed by a newline to the process. Failures are
// reported to the fault hook.
func (s *Shell) Send(text string) {
	s.mu.Lock()
	proc := s.proc
	s.mu.Unlock()

	if proc == nil {
		s.fault(ErrClosed)
		return
	}
	if _, err := io.WriteString(proc.Input(), text+"\n"); err != nil {
		s.fault(fmt.Errorf("%w: %v", ErrWrite, err))
	}
}

// Rebind repoints the shell at a new window. Output read while the shell had no
// binding is delivered to the new one, after init if the shell is already alive.
func (s *Shell) Rebind(b Binding) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.binding = b
	var errs []error
	if s.alive && b.Emitter != nil {
		errs = append(errs, s.emitLocked(protocol.Init{Ref: b.RemoteRef}))
	}
	errs = append(errs, s.flushHeldLocked()...)
	s.mu.Unlock()

	s.logger.Debug("Shell rebound", zap.String("channel", b.Channel), zap.String("remote_ref", string(b.RemoteRef)))
	s.faults(errs)
}

// Unbind detaches the shell from its window without stopping the process.
func (s *Shell) Unbind() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.binding = Binding{}
}

// SetHooks replaces the shell's observers. If the process has already
// exited, the new exit hook runs at once.
func (s *Shell) SetHooks(h Hooks) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.hooks = h
	exited, code := s.exited, s.exitCode
	s.mu.Unlock()

	if exited && h.OnExit != nil {
		h.OnExit(s, code)
	}
}

// Close kills the process, detaches all observers and releases the binding.
// It is safe to call more than once.
func (s *Shell) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	proc := s.proc
	onFault := s.hooks.OnFault
	s.proc = nil
	s.hooks = Hooks{}
	s.binding = Binding{}
	s.held = nil
	if s.initTimer != nil {
		s.initTimer.Stop()
	}
	s.mu.Unlock()

	if err := proc.Kill(); err != nil && onFault != nil {
		onFault(s, fmt.Errorf("%w: %v", ErrKill, err))
	}
	if _, err := proc.Wait(); err != nil {
		s.logger.Debug("Shell wait after kill", zap.Error(err))
	}
	if err := proc.Close(); err != nil {
		s.logger.Debug("Shell close streams", zap.Error(err))
	}
	s.logger.Debug("Shell closed")
}

// readOutput forwards every chunk the process writes until its output closes.
func (s *Shell) readOutput(proc Process) {
	defer close(s.done)

	out := proc.Output()
	buf := make([]byte, s.opts.ReadBufferSize)
	for {
		n, err := out.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			s.faults(s.emitOutput(chunk))
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, syscall.EIO) {
				s.logger.Debug("Shell output closed", zap.Error(err))
			}
			break
		}
	}

	code, err := proc.Wait()
	if err != nil {
		s.logger.Debug("Shell wait", zap.Error(err))
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.exited = true
	s.exitCode = code
	onExit := s.hooks.OnExit
	s.mu.Unlock()

	s.logger.Debug("Shell exited", zap.Int("code", code))
	if onExit != nil {
		onExit(s, code)
	}
}

// emitOutput sends init on the first chunk, then the chunk itself.
func (s *Shell) emitOutput(chunk []byte) []error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	if s.binding.Emitter == nil {
		s.holdLocked(chunk)
		return nil
	}

	var errs []error
	if !s.alive {
		errs = append(errs, s.announceLocked())
	}
	errs = append(errs, s.emitLocked(protocol.Data{Ref: s.binding.RemoteRef, Data: chunk}))
	return errs
}

func (s *Shell) announceSilent() {
	s.mu.Lock()
	var err error
	if !s.closed && !s.alive && s.binding.Emitter != nil {
		s.logger.Debug("Shell announced after init timeout")
		err = s.announceLocked()
	}
	s.mu.Unlock()
	s.faults([]error{err})
}

func (s *Shell) announceLocked() error {
	s.alive = true
	if s.initTimer != nil {
		s.initTimer.Stop()
	}
	return s.emitLocked(protocol.Init{Ref: s.binding.RemoteRef})
}

func (s *Shell) emitLocked(ev protocol.Event) error {
	if err := s.binding.Emitter.Send(s.binding.Channel, protocol.Encode(ev)); err != nil {
		return fmt.Errorf("emit %s on %s: %w", ev.Action(), s.binding.Channel, err)
	}
	return nil
}

func (s *Shell) holdLocked(chunk []byte) {
	s.held = append(s.held, chunk)
	s.heldBytes += len(chunk)
	for s.heldBytes > s.opts.HoldLimit && len(s.held) > 1 {
		s.heldBytes -= len(s.held[0])
		s.held = s.held[1:]
	}
}

func (s *Shell) flushHeldLocked() []error {
	if s.binding.Emitter == nil || len(s.held) == 0 {
		return nil
	}
	var errs []error
	if !s.alive {
		errs = append(errs, s.announceLocked())
	}
	for _, chunk := range s.held {
		errs = append(errs, s.emitLocked(protocol.Data{Ref: s.binding.RemoteRef, Data: chunk}))
	}
	s.held = nil
	s.heldBytes = 0
	return errs
}

func (s *Shell) fault(err error) {
	s.faults([]error{err})
}

func (s *Shell) faults(errs []error) {
	err := errors.Join(errs...)
	if err == nil {
		return
	}
	s.mu.Lock()
	onFault := s.hooks.OnFault
	s.mu.Unlock()

	if onFault != nil {
		onFault(s, err)
		return
	}
	s.logger.Warn("Shell fault", zap.Error(err))
}
