package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/shellhost/internal/domain/window"
	"github.com/GriffinCanCode/shellhost/internal/protocol"
	"github.com/GriffinCanCode/shellhost/internal/providers/terminal/terminaltest"
	"github.com/GriffinCanCode/shellhost/internal/remote"
	"github.com/GriffinCanCode/shellhost/internal/shared/id"
)

const waitFor = 2 * time.Second

type stack struct {
	server   *httptest.Server
	registry *window.Registry
	hub      *Hub
	spawner  *terminaltest.Spawner
}

func newStack(t *testing.T, handlerOpts HandlerOptions) *stack {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st := &stack{
		hub:     NewHub(Options{QueueLimit: 16}),
		spawner: &terminaltest.Spawner{},
	}
	st.registry = window.NewRegistry(id.NewAllocator(), st.hub, window.Options{Spawner: st.spawner})
	handler := NewHandler(st.registry, st.hub, handlerOpts)

	router := gin.New()
	router.GET("/windows/:channel/stream", handler.HandleStream)
	st.server = httptest.NewServer(router)
	t.Cleanup(func() {
		st.registry.CloseAll()
		st.server.Close()
	})
	return st
}

// display is a connected remote router.
type display struct {
	client *Client
	router *remote.Router
	done   chan error
}

func (st *stack) attach(t *testing.T, channel string) *display {
	t.Helper()
	return st.attachAs(t, channel, "")
}

// attachAs connects a display whose refs carry session.
func (st *stack) attachAs(t *testing.T, channel, session string) *display {
	t.Helper()
	client, err := Dial(context.Background(), st.server.URL, channel, ClientOptions{})
	require.NoError(t, err)

	d := &display{
		client: client,
		router: remote.NewRouter(channel, client, id.NewAllocator(), remote.Options{Session: session}),
		done:   make(chan error, 1),
	}
	go func() { d.done <- client.Run(context.Background(), d.router.Handle) }()
	t.Cleanup(func() { _ = client.Close() })
	return d
}

func TestStreamURL(t *testing.T) {
	u, err := StreamURL("http://localhost:8080/", "event_3")
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8080/windows/event_3/stream", u)

	u, err = StreamURL("https://host/api", "event_3")
	require.NoError(t, err)
	assert.Equal(t, "wss://host/api/windows/event_3/stream", u)

	_, err = StreamURL("ftp://host", "event_3")
	assert.Error(t, err)
}

func TestEndToEndShellOutput(t *testing.T) {
	st := newStack(t, HandlerOptions{})
	w, err := st.registry.CreateWindow(window.SizeSpec{}, "")
	require.NoError(t, err)
	d := st.attach(t, w.Channel())

	ref, err := d.router.Create()
	require.NoError(t, err)
	require.Eventually(t, func() bool { return st.spawner.Last() != nil }, waitFor, 5*time.Millisecond)

	st.spawner.Last().Print("hello")

	require.Eventually(t, func() bool {
		p, ok := d.router.Get(ref)
		return ok && p.Confirmed() && p.Buffer() == "hello"
	}, waitFor, 5*time.Millisecond)

	require.NoError(t, d.router.Send(ref, "echo hi"))
	require.Eventually(t, func() bool {
		return len(st.spawner.Last().Inputs()) == 1
	}, waitFor, 5*time.Millisecond)
	assert.Equal(t, "echo hi\n", st.spawner.Last().Inputs()[0])
}

func TestTwoShellsAreIndependent(t *testing.T) {
	st := newStack(t, HandlerOptions{})
	w, err := st.registry.CreateWindow(window.SizeSpec{}, "")
	require.NoError(t, err)
	d := st.attach(t, w.Channel())

	r1, err := d.router.Create()
	require.NoError(t, err)
	r2, err := d.router.Create()
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(st.spawner.Processes()) == 2 }, waitFor, 5*time.Millisecond)
	procs := st.spawner.Processes()
	procs[1].Print("second")

	require.NoError(t, d.router.Discard(r1))

	require.Eventually(t, func() bool { return procs[0].Killed() }, waitFor, 5*time.Millisecond)
	assert.False(t, procs[1].Exited())
	require.Eventually(t, func() bool {
		p, ok := d.router.Get(r2)
		return ok && p.Buffer() == "second"
	}, waitFor, 5*time.Millisecond)
}

func TestEnvelopesQueueUntilAttach(t *testing.T) {
	st := newStack(t, HandlerOptions{})
	w, err := st.registry.CreateWindow(window.SizeSpec{}, "")
	require.NoError(t, err)
	other, err := st.registry.CreateWindow(window.SizeSpec{}, "")
	require.NoError(t, err)

	// A shell moved into an unattached window announces itself with add.
	st.registry.Dispatch(other.Channel(), protocol.Encode(protocol.Create{Ref: "x1"}))
	_, err = st.registry.Move(other.Channel(), "x1", w.Channel())
	require.NoError(t, err)

	surface, ok := st.hub.Surface(w.Channel())
	require.True(t, ok)
	assert.Equal(t, 1, surface.Queued())
	assert.False(t, surface.Attached())

	d := st.attach(t, w.Channel())

	// The queued add makes the display create a slot bound to the moved shell.
	require.Eventually(t, func() bool { return len(d.router.Proxies()) == 1 }, waitFor, 5*time.Millisecond)
	require.Eventually(t, func() bool { return len(w.Shells()) == 1 }, waitFor, 5*time.Millisecond)
	assert.Len(t, st.spawner.Processes(), 1)
	assert.Zero(t, surface.Queued())
}

func TestReattachedDisplayClaimsRunningShell(t *testing.T) {
	st := newStack(t, HandlerOptions{})
	w, err := st.registry.CreateWindow(window.SizeSpec{}, "")
	require.NoError(t, err)
	surface, _ := st.hub.Surface(w.Channel())

	first := st.attachAs(t, w.Channel(), "conn_A")
	ref, err := first.router.Create()
	require.NoError(t, err)
	require.Eventually(t, func() bool { return st.spawner.Last() != nil }, waitFor, 5*time.Millisecond)
	proc := st.spawner.Last()
	proc.Print("before")
	require.Eventually(t, func() bool {
		p, ok := first.router.Get(ref)
		return ok && p.Buffer() == "before"
	}, waitFor, 5*time.Millisecond)

	require.NoError(t, first.client.Close())
	require.Eventually(t, func() bool { return w.Info().Pending == 1 }, waitFor, 5*time.Millisecond)
	assert.False(t, surface.Attached())
	proc.Print("while away")

	second := st.attachAs(t, w.Channel(), "conn_B")

	// The queued add gives the new display a slot for the running shell.
	require.Eventually(t, func() bool {
		proxies := second.router.Proxies()
		return len(proxies) == 1 && proxies[0].Confirmed() && proxies[0].Buffer() == "while away"
	}, waitFor, 5*time.Millisecond)
	claimed := second.router.Proxies()[0].Ref()
	require.Eventually(t, func() bool { return len(w.Shells()) == 1 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, id.RemoteRef("conn_B.1"), w.Shells()[0].RemoteRef)
	assert.Len(t, st.spawner.Processes(), 1, "reattaching does not spawn")

	// A fresh shell from the new display stays apart from the claimed one.
	own, err := second.router.Create()
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(st.spawner.Processes()) == 2 }, waitFor, 5*time.Millisecond)
	st.spawner.Last().Print("new")
	require.Eventually(t, func() bool {
		p, ok := second.router.Get(own)
		return ok && p.Buffer() == "new"
	}, waitFor, 5*time.Millisecond)
	p, ok := second.router.Get(claimed)
	require.True(t, ok)
	assert.Equal(t, "while away", p.Buffer())

	require.NoError(t, second.router.Send(claimed, "pwd"))
	require.Eventually(t, func() bool { return len(proc.Inputs()) == 1 }, waitFor, 5*time.Millisecond)
}

func TestDuplicateCreateReachesDisplayAsCreateFail(t *testing.T) {
	st := newStack(t, HandlerOptions{})
	w, err := st.registry.CreateWindow(window.SizeSpec{}, "")
	require.NoError(t, err)
	d := st.attach(t, w.Channel())

	ref, err := d.router.Create()
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(w.Shells()) == 1 }, waitFor, 5*time.Millisecond)

	// Another writer on the channel reuses the display's ref.
	st.registry.Dispatch(w.Channel(), protocol.Encode(protocol.Create{Ref: ref.Remote()}))

	require.Eventually(t, func() bool {
		_, ok := d.router.Get(ref)
		return !ok
	}, waitFor, 5*time.Millisecond)
	assert.Len(t, st.spawner.Processes(), 1)
}

// connPair upgrades one connection on a bare server and returns both ends.
func connPair(t *testing.T) (server, client *websocket.Conn) {
	t.Helper()
	conns := make(chan *websocket.Conn, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns <- c
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	select {
	case server = <-conns:
	case <-time.After(waitFor):
		t.Fatal("server side never upgraded")
	}
	t.Cleanup(func() { _ = server.Close() })
	return server, client
}

func readEvent(t *testing.T, conn *websocket.Conn) protocol.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(waitFor)))
	_, frame, err := conn.ReadMessage()
	require.NoError(t, err)
	env, err := protocol.Unmarshal(frame)
	require.NoError(t, err)
	ev, err := protocol.Decode(env)
	require.NoError(t, err)
	return ev
}

func TestFailedWriteIsKeptForNextDisplay(t *testing.T) {
	hub := NewHub(Options{})
	created, err := hub.Create(window.SizeSpec{}, "event_1")
	require.NoError(t, err)
	s := created.(*Surface)

	broken, _ := connPair(t)
	require.NoError(t, s.Attach(broken, "conn_1"))
	require.NoError(t, broken.Close())

	lost := protocol.Data{Ref: "1", Data: []byte("mid-stream")}
	assert.Error(t, s.Send("event_1", protocol.Encode(lost)))
	assert.False(t, s.Attached())
	assert.Equal(t, 1, s.Queued())
	require.NoError(t, s.Send("event_1", protocol.Encode(protocol.Exit{Ref: "1", Code: 2})))

	next, client := connPair(t)
	require.NoError(t, s.Attach(next, "conn_2"))

	assert.Equal(t, lost, readEvent(t, client))
	assert.Equal(t, protocol.Exit{Ref: "1", Code: 2}, readEvent(t, client))
	assert.Zero(t, s.Queued())
}

func TestQueueLimit(t *testing.T) {
	hub := NewHub(Options{QueueLimit: 1})
	s, err := hub.Create(window.SizeSpec{}, "event_1")
	require.NoError(t, err)

	require.NoError(t, s.Send("event_1", protocol.Encode(protocol.Add{})))
	assert.ErrorIs(t, s.Send("event_1", protocol.Encode(protocol.Add{})), ErrQueueFull)
	assert.Error(t, s.Send("event_2", protocol.Encode(protocol.Add{})))

	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Send("event_1", protocol.Encode(protocol.Add{})), ErrSurfaceClosed)
	_, ok := hub.Surface("event_1")
	assert.False(t, ok)
}

func TestUnknownWindowIsRejected(t *testing.T) {
	st := newStack(t, HandlerOptions{})

	_, err := Dial(context.Background(), st.server.URL, "event_404", ClientOptions{})

	assert.ErrorContains(t, err, "404")
}

func TestSecondDisplayIsRejected(t *testing.T) {
	st := newStack(t, HandlerOptions{})
	w, err := st.registry.CreateWindow(window.SizeSpec{}, "")
	require.NoError(t, err)
	st.attach(t, w.Channel())
	surface, _ := st.hub.Surface(w.Channel())
	require.Eventually(t, surface.Attached, waitFor, 5*time.Millisecond)

	second, err := Dial(context.Background(), st.server.URL, w.Channel(), ClientOptions{})
	require.NoError(t, err)
	defer second.Close()

	err = second.Run(context.Background(), func(protocol.Envelope) {})
	assert.Error(t, err)
}

func TestWindowCloseReachesDisplay(t *testing.T) {
	st := newStack(t, HandlerOptions{})
	w, err := st.registry.CreateWindow(window.SizeSpec{}, "")
	require.NoError(t, err)
	d := st.attach(t, w.Channel())

	closed := make(chan struct{})
	d.router.SetCallbacks(remote.Callbacks{OnWindowClosed: func() { close(closed) }})
	ref, err := d.router.Create()
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(w.Shells()) == 1 }, waitFor, 5*time.Millisecond)

	require.NoError(t, st.registry.CloseWindow(w.Channel()))

	select {
	case <-closed:
	case <-time.After(waitFor):
		t.Fatal("display never saw close")
	}
	_, ok := d.router.Get(ref)
	assert.False(t, ok)
	assert.Zero(t, st.spawner.Live())
	select {
	case err := <-d.done:
		assert.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("display stream did not end")
	}
}

func TestCloseOnDisconnect(t *testing.T) {
	st := newStack(t, HandlerOptions{CloseOnDisconnect: true})
	w, err := st.registry.CreateWindow(window.SizeSpec{}, "")
	require.NoError(t, err)
	d := st.attach(t, w.Channel())
	_, err = d.router.Create()
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(w.Shells()) == 1 }, waitFor, 5*time.Millisecond)

	require.NoError(t, d.client.Close())

	require.Eventually(t, w.Closed, waitFor, 5*time.Millisecond)
	assert.Zero(t, st.spawner.Live())
}

func TestStreamRejectsNonGet(t *testing.T) {
	st := newStack(t, HandlerOptions{})

	resp, err := http.Post(st.server.URL+"/windows/event_1/stream", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
