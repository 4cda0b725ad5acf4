package window

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/shellhost/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/shellhost/internal/protocol"
	"github.com/GriffinCanCode/shellhost/internal/providers/terminal"
	"github.com/GriffinCanCode/shellhost/internal/shared/id"
)

var (
	// ErrWindowNotFound is returned when no open window uses a channel.
	ErrWindowNotFound = errors.New("window not found")
	// ErrShellNotFound is returned when a window has no shell bound to a ref.
	ErrShellNotFound = errors.New("shell not found")
	// ErrWindowClosed is returned when an operation targets a closed window.
	ErrWindowClosed = errors.New("window is closed")
	// ErrSameWindow is returned when a shell is moved onto its own window.
	ErrSameWindow = errors.New("source and target window are the same")
)

// SizeSpec is the requested display size in pixels.
type SizeSpec struct {
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// IsZero reports whether no size was given.
func (s SizeSpec) IsZero() bool { return s.Width == 0 && s.Height == 0 }

// Surface is the display side of one window as seen by its controller.
type Surface interface {
	// Send delivers an envelope to the display. Envelopes sent on one
	// surface arrive in order.
	Send(channel string, env protocol.Envelope) error
	Close() error
}

// SurfaceFactory opens the display for a new window. The channel is the
// display's startup argument.
type SurfaceFactory interface {
	Create(size SizeSpec, channel string) (Surface, error)
}

// Options configures controllers.
type Options struct {
	Spawner     terminal.Spawner
	Profiles    *terminal.ProfileSet
	Shell       terminal.Options
	DefaultSize SizeSpec
	Diagnostics protocol.DiagnosticSink
	Metrics     *monitoring.Metrics
	Logger      *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.Spawner == nil {
		o.Spawner = terminal.NewSpawner()
	}
	if o.Profiles == nil {
		o.Profiles = terminal.DefaultProfiles(false)
	}
	if o.DefaultSize.IsZero() {
		o.DefaultSize = SizeSpec{Width: 800, Height: 600}
	}
	if o.Diagnostics == nil {
		o.Diagnostics = protocol.NopSink
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// WindowInfo is the public representation of a window
type WindowInfo struct {
	Ref       id.Ref               `json:"ref"`
	Channel   string               `json:"channel"`
	Size      SizeSpec             `json:"size"`
	Profile   string               `json:"profile"`
	Shells    []terminal.ShellInfo `json:"shells"`
	Pending   int                  `json:"pending"`
	CreatedAt time.Time            `json:"created_at"`
}
