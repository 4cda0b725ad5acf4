package window

import (
	"errors"
	"os/exec"
	"syscall"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/shellhost/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/shellhost/internal/protocol"
	"github.com/GriffinCanCode/shellhost/internal/providers/terminal"
	"github.com/GriffinCanCode/shellhost/internal/shared/id"
)

func TestWindowsGetDistinctChannels(t *testing.T) {
	h := newHarness(t, Options{})

	a, _ := h.open(t)
	b, _ := h.open(t)

	assert.NotEqual(t, a.Channel(), b.Channel())
	assert.Equal(t, id.Channel(a.Ref()), a.Channel())
	assert.Less(t, uint64(a.Ref()), uint64(b.Ref()))
}

func TestCreateWindowUsesDefaultSize(t *testing.T) {
	h := newHarness(t, Options{DefaultSize: SizeSpec{Width: 640, Height: 480}})

	c, surface := h.open(t)
	sized, err := h.reg.CreateWindow(SizeSpec{Width: 1024, Height: 768}, "")
	require.NoError(t, err)

	assert.Equal(t, SizeSpec{Width: 640, Height: 480}, surface.size)
	assert.Equal(t, SizeSpec{Width: 640, Height: 480}, c.Info().Size)
	assert.Equal(t, SizeSpec{Width: 1024, Height: 768}, h.factory.surface(sized.Channel()).size)
}

func TestCreateWindowSurfaceFailure(t *testing.T) {
	h := newHarness(t, Options{})
	h.factory.err = errors.New("display unavailable")

	_, err := h.reg.CreateWindow(SizeSpec{}, "")

	assert.Error(t, err)
	assert.Empty(t, h.reg.List())
}

func TestDispatchToUnknownChannel(t *testing.T) {
	h := newHarness(t, Options{})

	h.reg.Dispatch("event_404", protocol.Encode(protocol.Create{Ref: "r1"}))

	diags := h.diags.all()
	require.Len(t, diags, 1)
	assert.Equal(t, protocol.RoutingMiss, diags[0].Kind)
	assert.Equal(t, "event_404", diags[0].Channel)
	assert.Empty(t, h.spawner.Processes())
}

func TestListInCreationOrder(t *testing.T) {
	h := newHarness(t, Options{})
	a, _ := h.open(t)
	b, _ := h.open(t)
	h.send(b, protocol.Create{Ref: "r1"})

	infos := h.reg.List()

	require.Len(t, infos, 2)
	assert.Equal(t, a.Channel(), infos[0].Channel)
	assert.Equal(t, b.Channel(), infos[1].Channel)
	require.Len(t, infos[1].Shells, 1)
	assert.Equal(t, id.RemoteRef("r1"), infos[1].Shells[0].RemoteRef)
	assert.Equal(t, b.Channel(), infos[1].Shells[0].Channel)
}

func TestCloseWindow(t *testing.T) {
	h := newHarness(t, Options{})
	a, _ := h.open(t)
	b, _ := h.open(t)
	h.send(a, protocol.Create{Ref: "r1"})
	h.send(b, protocol.Create{Ref: "r1"})
	procs := h.spawner.Processes()

	require.NoError(t, h.reg.CloseWindow(a.Channel()))

	assert.True(t, procs[0].Exited())
	assert.False(t, procs[1].Exited(), "other windows keep their shells")
	assert.ErrorIs(t, h.reg.CloseWindow(a.Channel()), ErrWindowNotFound)
	assert.Len(t, h.reg.List(), 1)
}

func TestCloseAll(t *testing.T) {
	h := newHarness(t, Options{})
	for i := 0; i < 3; i++ {
		c, _ := h.open(t)
		h.send(c, protocol.Create{Ref: "r1"})
	}

	h.reg.CloseAll()

	assert.Zero(t, h.spawner.Live())
	assert.Empty(t, h.reg.List())
}

func TestMoveHandshake(t *testing.T) {
	h := newHarness(t, Options{})
	src, srcSurface := h.open(t)
	dst, dstSurface := h.open(t)
	h.send(src, protocol.Create{Ref: "a1"})
	proc := h.spawner.Last()
	proc.Print("before")
	waitEvents(t, srcSurface, 2)

	info, err := h.reg.Move(src.Channel(), "a1", dst.Channel())
	require.NoError(t, err)
	assert.Equal(t, proc.Pid(), info.Pid)

	assert.Equal(t, protocol.Losing{Ref: "a1"}, srcSurface.sent()[2])
	assert.Equal(t, []protocol.Event{protocol.Add{}}, dstSurface.sent())
	assert.Empty(t, src.Shells())
	assert.Equal(t, 1, dst.Info().Pending)

	// Output between windows is held for the target.
	proc.Print("between")

	h.send(dst, protocol.Create{Ref: "b7"})
	events := waitEvents(t, dstSurface, 3)
	assert.Equal(t, protocol.Init{Ref: "b7"}, events[1])
	assert.Equal(t, protocol.Data{Ref: "b7", Data: []byte("between")}, events[2])

	proc.Print("after")
	events = waitEvents(t, dstSurface, 4)
	assert.Equal(t, protocol.Data{Ref: "b7", Data: []byte("after")}, events[3])
	assert.Len(t, srcSurface.sent(), 3, "the source window hears nothing after losing")

	h.send(dst, protocol.Input{Ref: "b7", Data: "whoami"})
	assert.Equal(t, []string{"whoami\n"}, proc.Inputs())
	assert.Len(t, h.spawner.Processes(), 1, "adoption does not spawn")
	assert.Zero(t, dst.Info().Pending)
}

func TestMoveErrors(t *testing.T) {
	h := newHarness(t, Options{})
	src, _ := h.open(t)
	dst, _ := h.open(t)
	h.send(src, protocol.Create{Ref: "a1"})

	_, err := h.reg.Move(src.Channel(), "a1", src.Channel())
	assert.ErrorIs(t, err, ErrSameWindow)

	_, err = h.reg.Move("event_404", "a1", dst.Channel())
	assert.ErrorIs(t, err, ErrWindowNotFound)

	_, err = h.reg.Move(src.Channel(), "a1", "event_404")
	assert.ErrorIs(t, err, ErrWindowNotFound)

	_, err = h.reg.Move(src.Channel(), "zz", dst.Channel())
	assert.ErrorIs(t, err, ErrShellNotFound)

	assert.Len(t, src.Shells(), 1, "failed moves leave the shell in place")
}

func TestCloseKillsPendingAdoption(t *testing.T) {
	h := newHarness(t, Options{})
	src, _ := h.open(t)
	dst, _ := h.open(t)
	h.send(src, protocol.Create{Ref: "a1"})
	_, err := h.reg.Move(src.Channel(), "a1", dst.Channel())
	require.NoError(t, err)

	dst.Close()

	assert.Zero(t, h.spawner.Live())
}

func TestPendingShellExitIsDropped(t *testing.T) {
	h := newHarness(t, Options{})
	src, _ := h.open(t)
	dst, dstSurface := h.open(t)
	h.send(src, protocol.Create{Ref: "a1"})
	proc := h.spawner.Last()
	_, err := h.reg.Move(src.Channel(), "a1", dst.Channel())
	require.NoError(t, err)

	proc.Exit(0)

	require.Eventually(t, func() bool { return dst.Info().Pending == 0 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, []protocol.Event{protocol.Add{}}, dstSurface.sent())
}

func TestExitBetweenDetachAndAdopt(t *testing.T) {
	h := newHarness(t, Options{})
	src, _ := h.open(t)
	dst, dstSurface := h.open(t)
	h.send(src, protocol.Create{Ref: "a1"})
	proc := h.spawner.Last()

	s, err := src.Detach("a1")
	require.NoError(t, err)
	proc.Exit(7)
	select {
	case <-s.Done():
	case <-time.After(waitFor):
		t.Fatal("shell did not finish")
	}

	require.NoError(t, dst.Adopt(s))

	assert.Zero(t, dst.Info().Pending)
	assert.True(t, s.Closed())
	assert.Empty(t, dstSurface.sent(), "no slot is offered for a dead shell")
	assert.Zero(t, h.spawner.Live())
}

func TestRegistryMetrics(t *testing.T) {
	metrics := monitoring.NewMetrics(prometheus.NewRegistry())
	h := newHarness(t, Options{Metrics: metrics})
	a, _ := h.open(t)
	b, _ := h.open(t)
	h.send(a, protocol.Create{Ref: "r1"})
	h.send(a, protocol.Create{Ref: "r2"})
	h.spawner.Fail(errors.New("boom"))
	h.send(b, protocol.Create{Ref: "r1"})

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.WindowsActive))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.ShellsActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SpawnFailures))
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.Events.WithLabelValues("in", "create")))

	a.Close()

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.WindowsActive))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.ShellsActive))
}

func TestRealShellsAreReapedOnClose(t *testing.T) {
	if _, err := exec.LookPath("cat"); err != nil {
		t.Skip("cat not available")
	}
	profiles := &terminal.ProfileSet{
		Default:  "cat",
		Profiles: []terminal.Profile{terminal.Profile{Name: "cat", Command: "cat"}.WithDefaults()},
	}
	factory := &fakeFactory{}
	reg := NewRegistry(id.NewAllocator(), factory, Options{Profiles: profiles})
	c, err := reg.CreateWindow(SizeSpec{}, "")
	require.NoError(t, err)

	reg.Dispatch(c.Channel(), protocol.Encode(protocol.Create{Ref: "r1"}))
	reg.Dispatch(c.Channel(), protocol.Encode(protocol.Create{Ref: "r2"}))
	shells := c.Shells()
	require.Len(t, shells, 2)

	reg.Dispatch(c.Channel(), protocol.Encode(protocol.Input{Ref: "r1", Data: "ping"}))
	surface := factory.surface(c.Channel())
	events := waitEvents(t, surface, 2)
	assert.Equal(t, protocol.Init{Ref: "r1"}, events[0])

	c.Close()

	for _, s := range shells {
		err := syscall.Kill(s.Pid, 0)
		assert.ErrorIs(t, err, syscall.ESRCH, "pid %d still exists", s.Pid)
	}
}
