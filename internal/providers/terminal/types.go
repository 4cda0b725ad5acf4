package terminal

import (
	"errors"
	"io"
	"time"

	"github.com/GriffinCanCode/shellhost/internal/protocol"
	"github.com/GriffinCanCode/shellhost/internal/shared/id"
)

var (
	// ErrSpawn wraps any failure to start a shell process.
	ErrSpawn = errors.New("spawn shell")
	// ErrWrite wraps a failure to write to a shell's input.
	ErrWrite = errors.New("write shell input")
	// ErrKill wraps a failure to terminate a shell.
	ErrKill = errors.New("kill shell")
	// ErrClosed is reported when input is sent to a closed shell.
	ErrClosed = errors.New("shell is closed")
)

// Process is a running shell process as seen by its owner.
type Process interface {
	// Output is the merged output stream. Read returns an error once the
	// process has exited or the process was closed.
	Output() io.Reader
	// Input is the process's input stream.
	Input() io.Writer
	Pid() int
	// Kill forcefully terminates the process.
	Kill() error
	// Wait blocks until the process exits and returns its exit code. It is
	// safe to call more than once.
	Wait() (int, error)
	// Close releases the streams.
	Close() error
}

// Spawner starts shell processes.
type Spawner interface {
	Spawn(profile Profile) (Process, error)
}

// Emitter publishes envelopes on a named channel.
type Emitter interface {
	Send(channel string, env protocol.Envelope) error
}

// Binding addresses a shell's output: where it goes and under which remote ref.
type Binding struct {
	Emitter   Emitter
	Channel   string
	RemoteRef id.RemoteRef
}

// Hooks observe process-level events. Both are called without any shell lock held.
type Hooks struct {
	// OnFault receives write, kill and emit failures. Non-fatal.
	OnFault func(s *Shell, err error)
	// OnExit fires once when the process exits on its own.
	OnExit func(s *Shell, code int)
}

// Options tunes a shell.
type Options struct {
	// InitTimeout announces a silent shell as alive after this long. Zero
	// means a shell is announced only when it first produces output.
	InitTimeout time.Duration
	// ReadBufferSize is the size of a single output read.
	ReadBufferSize int
	// HoldLimit bounds the output kept while the shell is between windows.
	HoldLimit int
}

func (o Options) withDefaults() Options {
	if o.ReadBufferSize <= 0 {
		o.ReadBufferSize = 4096
	}
	if o.HoldLimit <= 0 {
		o.HoldLimit = 1024 * 1024 // 1MB
	}
	return o
}

// ShellInfo is the public representation of a shell
type ShellInfo struct {
	Ref       id.Ref       `json:"ref"`
	RemoteRef id.RemoteRef `json:"remote_ref"`
	Channel   string       `json:"channel"`
	Profile   string       `json:"profile"`
	Pid       int          `json:"pid"`
	Alive     bool         `json:"alive"`
	StartedAt time.Time    `json:"started_at"`
}
