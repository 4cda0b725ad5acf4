// Package terminaltest provides in-memory shell processes for tests.
package terminaltest

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/GriffinCanCode/shellhost/internal/providers/terminal"
)

var nextPid atomic.Int64

// Process is a scripted shell process. Output written with Print is read by
// the shell; Input lines are recorded.
type Process struct {
	outR *io.PipeReader
	outW *io.PipeWriter
	pid  int

	mu        sync.Mutex
	input     []string
	failInput bool

	exitOnce sync.Once
	exited   chan struct{}
	code     int
	killed   atomic.Bool
}

// NewProcess creates a running fake process.
func NewProcess() *Process {
	r, w := io.Pipe()
	return &Process{
		outR:   r,
		outW:   w,
		pid:    int(nextPid.Add(1)) + 10000,
		exited: make(chan struct{}),
	}
}

func (p *Process) Output() io.Reader { return p.outR }
func (p *Process) Input() io.Writer  { return input{p} }
func (p *Process) Pid() int          { return p.pid }

// Kill terminates the process with code -1.
func (p *Process) Kill() error {
	p.killed.Store(true)
	p.Exit(-1)
	return nil
}

func (p *Process) Wait() (int, error) {
	<-p.exited
	return p.code, nil
}

func (p *Process) Close() error { return p.outR.Close() }

// Print writes s to the process output. It blocks until the shell reads it.
func (p *Process) Print(s string) {
	_, _ = p.outW.Write([]byte(s))
}

// Exit ends the process with code. Later calls are ignored.
func (p *Process) Exit(code int) {
	p.exitOnce.Do(func() {
		p.code = code
		_ = p.outW.Close()
		close(p.exited)
	})
}

// Exited reports whether the process has ended.
func (p *Process) Exited() bool {
	select {
	case <-p.exited:
		return true
	default:
		return false
	}
}

// Killed reports whether Kill was called.
func (p *Process) Killed() bool { return p.killed.Load() }

// FailInput makes every later input write fail.
func (p *Process) FailInput() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failInput = true
}

// Inputs returns everything written to the process, one entry per write.
func (p *Process) Inputs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.input...)
}

type input struct{ p *Process }

func (w input) Write(b []byte) (int, error) {
	w.p.mu.Lock()
	defer w.p.mu.Unlock()
	if w.p.failInput {
		return 0, errors.New("broken pipe")
	}
	w.p.input = append(w.p.input, string(b))
	return len(b), nil
}

// Spawner hands out fake processes and remembers them.
type Spawner struct {
	mu       sync.Mutex
	procs    []*Process
	profiles []terminal.Profile
	err      error
}

// Spawn implements terminal.Spawner.
func (s *Spawner) Spawn(profile terminal.Profile) (terminal.Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	p := NewProcess()
	s.procs = append(s.procs, p)
	s.profiles = append(s.profiles, profile)
	return p, nil
}

// Fail makes later spawns return err; nil restores success.
func (s *Spawner) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Processes returns every process spawned so far, in order.
func (s *Spawner) Processes() []*Process {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Process(nil), s.procs...)
}

// Profiles returns the profile each spawn was asked for.
func (s *Spawner) Profiles() []terminal.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]terminal.Profile(nil), s.profiles...)
}

// Last returns the most recent process, or nil.
func (s *Spawner) Last() *Process {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.procs) == 0 {
		return nil
	}
	return s.procs[len(s.procs)-1]
}

// Live counts processes that have not exited.
func (s *Spawner) Live() int {
	n := 0
	for _, p := range s.Processes() {
		if !p.Exited() {
			n++
		}
	}
	return n
}
