package terminal

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/GriffinCanCode/shellhost/internal/protocol"
)

type fakeProcess struct {
	outR *io.PipeReader
	outW *io.PipeWriter

	mu        sync.Mutex
	input     []string
	failInput bool

	exitOnce sync.Once
	exited   chan struct{}
	code     int
	killed   atomic.Bool
}

func newFakeProcess() *fakeProcess {
	r, w := io.Pipe()
	return &fakeProcess{outR: r, outW: w, exited: make(chan struct{})}
}

func (p *fakeProcess) Output() io.Reader { return p.outR }
func (p *fakeProcess) Input() io.Writer  { return fakeInput{p} }
func (p *fakeProcess) Pid() int          { return 4242 }

func (p *fakeProcess) Kill() error {
	p.killed.Store(true)
	p.exit(-1)
	return nil
}

func (p *fakeProcess) Wait() (int, error) {
	<-p.exited
	return p.code, nil
}

func (p *fakeProcess) Close() error { return p.outR.Close() }

func (p *fakeProcess) print(s string) {
	_, _ = p.outW.Write([]byte(s))
}

func (p *fakeProcess) exit(code int) {
	p.exitOnce.Do(func() {
		p.code = code
		_ = p.outW.Close()
		close(p.exited)
	})
}

func (p *fakeProcess) inputs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.input...)
}

type fakeInput struct{ p *fakeProcess }

func (w fakeInput) Write(b []byte) (int, error) {
	w.p.mu.Lock()
	defer w.p.mu.Unlock()
	if w.p.failInput {
		return 0, errors.New("broken pipe")
	}
	w.p.input = append(w.p.input, string(b))
	return len(b), nil
}

type fakeSpawner struct {
	mu    sync.Mutex
	procs []*fakeProcess
	err   error
}

func (s *fakeSpawner) Spawn(Profile) (Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	p := newFakeProcess()
	s.procs = append(s.procs, p)
	return p, nil
}

func (s *fakeSpawner) last() *fakeProcess {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.procs[len(s.procs)-1]
}

type sent struct {
	channel string
	event   protocol.Event
}

type recordingEmitter struct {
	mu   sync.Mutex
	sent []sent
	err  error
}

func (e *recordingEmitter) Send(channel string, env protocol.Envelope) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return e.err
	}
	ev, err := protocol.Decode(env)
	if err != nil {
		return err
	}
	e.sent = append(e.sent, sent{channel: channel, event: ev})
	return nil
}

func (e *recordingEmitter) events() []sent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]sent(nil), e.sent...)
}
