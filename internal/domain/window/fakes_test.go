package window

import (
	"errors"
	"sync"

	"github.com/GriffinCanCode/shellhost/internal/protocol"
)

type recordingSurface struct {
	channel string
	size    SizeSpec

	mu     sync.Mutex
	events []protocol.Event
	closed bool
	err    error
}

func (s *recordingSurface) Send(channel string, env protocol.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if channel != s.channel {
		return errors.New("wrong channel " + channel)
	}
	ev, err := protocol.Decode(env)
	if err != nil {
		return err
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *recordingSurface) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *recordingSurface) sent() []protocol.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]protocol.Event(nil), s.events...)
}

func (s *recordingSurface) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fakeFactory struct {
	mu       sync.Mutex
	surfaces map[string]*recordingSurface
	err      error
}

func (f *fakeFactory) Create(size SizeSpec, channel string) (Surface, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.surfaces == nil {
		f.surfaces = make(map[string]*recordingSurface)
	}
	s := &recordingSurface{channel: channel, size: size}
	f.surfaces[channel] = s
	return s, nil
}

func (f *fakeFactory) surface(channel string) *recordingSurface {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.surfaces[channel]
}

type diagRecorder struct {
	mu    sync.Mutex
	diags []protocol.Diagnostic
}

func (d *diagRecorder) Report(diag protocol.Diagnostic) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.diags = append(d.diags, diag)
}

func (d *diagRecorder) kinds() []protocol.DiagnosticKind {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]protocol.DiagnosticKind, 0, len(d.diags))
	for _, diag := range d.diags {
		out = append(out, diag.Kind)
	}
	return out
}

func (d *diagRecorder) all() []protocol.Diagnostic {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]protocol.Diagnostic(nil), d.diags...)
}
