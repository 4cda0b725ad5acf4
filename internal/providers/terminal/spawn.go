package terminal

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/creack/pty"
)

// ExecSpawner starts real processes, on a pseudo-terminal when the profile asks
// for one and on plain pipes otherwise.
type ExecSpawner struct{}

// NewSpawner creates a spawner for real processes.
func NewSpawner() *ExecSpawner {
	return &ExecSpawner{}
}

// Spawn starts the profile's command.
func (ExecSpawner) Spawn(profile Profile) (Process, error) {
	profile = profile.WithDefaults()

	cmd := exec.Command(profile.Command, profile.Args...)
	cmd.Dir = profile.Dir
	cmd.Env = profile.Environ()

	if profile.PTY {
		return startPTY(cmd, profile)
	}
	return startPipes(cmd)
}

func startPTY(cmd *exec.Cmd, profile Profile) (Process, error) {
	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{
		Rows: uint16(profile.Rows),
		Cols: uint16(profile.Cols),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start PTY: %w", err)
	}
	return &execProcess{cmd: cmd, out: ptmx, in: ptmx, closers: []io.Closer{ptmx}}, nil
}

func startPipes(cmd *exec.Cmd) (Process, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("output pipe: %w", err)
	}
	cmd.Stdout = w
	cmd.Stderr = w

	stdin, err := cmd.StdinPipe()
	if err != nil {
		r.Close()
		w.Close()
		return nil, fmt.Errorf("input pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		r.Close()
		w.Close()
		return nil, err
	}
	// The child holds its own copy; closing ours lets Read see EOF on exit.
	w.Close()

	return &execProcess{cmd: cmd, out: r, in: stdin, closers: []io.Closer{stdin, r}}, nil
}

// execProcess is a Process backed by os/exec.
type execProcess struct {
	cmd     *exec.Cmd
	out     io.Reader
	in      io.Writer
	closers []io.Closer

	waitOnce sync.Once
	code     int
	waitErr  error

	closeOnce sync.Once
}

func (p *execProcess) Output() io.Reader { return p.out }
func (p *execProcess) Input() io.Writer  { return p.in }

func (p *execProcess) Pid() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

func (p *execProcess) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

func (p *execProcess) Wait() (int, error) {
	p.waitOnce.Do(func() {
		err := p.cmd.Wait()
		var exitErr *exec.ExitError
		if err != nil && !errors.As(err, &exitErr) {
			p.waitErr = err
		}
		if p.cmd.ProcessState != nil {
			p.code = p.cmd.ProcessState.ExitCode()
		} else {
			p.code = -1
		}
	})
	return p.code, p.waitErr
}

func (p *execProcess) Close() error {
	var errs []error
	p.closeOnce.Do(func() {
		for _, c := range p.closers {
			if err := c.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}
