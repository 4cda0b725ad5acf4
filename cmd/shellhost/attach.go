package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/shellhost/internal/api/client"
	api "github.com/GriffinCanCode/shellhost/internal/api/http"
	"github.com/GriffinCanCode/shellhost/internal/infrastructure/logging"
	"github.com/GriffinCanCode/shellhost/internal/remote"
	"github.com/GriffinCanCode/shellhost/internal/shared/id"
	"github.com/GriffinCanCode/shellhost/internal/ws"
)

func newAttachCmd(g *globals) *cobra.Command {
	var (
		channel     string
		profile     string
		width       int
		height      int
		closeOnExit bool
	)

	cmd := &cobra.Command{
		Use:   "attach",
		Short: "Attach this terminal to a window as its display",
		Long: `attach opens a window (or joins --window) and starts one shell in it.
Lines typed on stdin go to the active shell. Lines starting with ':' are
commands:

  :new          start another shell and make it active
  :use <ref>    switch the active shell
  :list         list shells
  :discard      close the active shell
  :quit         detach`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := g.cfg
			logCfg := cfg.Logging
			logCfg.Output = logging.Stderr
			logger, err := logging.New(logCfg, "attach")
			if err != nil {
				return err
			}
			defer logger.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			c := client.New(client.Options{BaseURL: cfg.Remote.ServerURL, RetryCount: 2, Logger: logger.Logger})
			if channel == "" {
				created, err := c.CreateWindow(ctx, api.CreateWindowRequest{Width: width, Height: height, Profile: profile})
				if err != nil {
					return fmt.Errorf("create window: %w", err)
				}
				channel = created.Channel
				if closeOnExit {
					defer func() { _ = c.CloseWindow(context.Background(), channel) }()
				}
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "[attached to %s]\n", channel)

			conn, err := ws.Dial(ctx, cfg.Remote.ServerURL, channel, ws.ClientOptions{Logger: logger.Logger})
			if err != nil {
				return err
			}
			defer conn.Close()

			router := remote.NewRouter(channel, conn, id.NewAllocator(), remote.Options{
				BufferBytes: cfg.Remote.BufferBytes,
				Session:     id.NewConnID().String(),
				KeepChunks:  cfg.Remote.KeepChunks,
				Logger:      logger.Logger,
			})
			con := newConsole(router, cmd.OutOrStdout())

			runErr := make(chan error, 1)
			go func() { runErr <- conn.Run(ctx, router.Handle) }()

			if err := router.Announce(); err != nil {
				return err
			}
			if _, err := router.Create(); err != nil {
				return err
			}

			inputDone := make(chan error, 1)
			go func() { inputDone <- con.readInput(cmd.InOrStdin()) }()

			select {
			case err := <-runErr:
				return err
			case err := <-inputDone:
				return err
			case <-con.closed:
				return nil
			case <-ctx.Done():
				logger.Debug("Interrupted", zap.Error(ctx.Err()))
				return nil
			}
		},
	}

	cmd.Flags().StringVarP(&channel, "window", "w", "", "Join an existing window channel instead of opening one")
	cmd.Flags().StringVar(&profile, "profile", "", "Shell profile for a new window")
	cmd.Flags().IntVar(&width, "width", 0, "Width of a new window")
	cmd.Flags().IntVar(&height, "height", 0, "Height of a new window")
	cmd.Flags().BoolVar(&closeOnExit, "close", true, "Close the window opened by attach on exit")
	return cmd
}

// errQuit ends the input loop on :quit.
var errQuit = errors.New("quit")

// console renders a router's shells on a terminal. Only the active shell's
// output is printed.
type console struct {
	router *remote.Router
	out    io.Writer
	closed chan struct{}

	mu      sync.Mutex
	active  id.Ref
	printed map[id.Ref]int64
	exited  map[id.Ref]bool
	once    sync.Once
}

func newConsole(router *remote.Router, out io.Writer) *console {
	c := &console{
		router:  router,
		out:     out,
		closed:  make(chan struct{}),
		printed: make(map[id.Ref]int64),
		exited:  make(map[id.Ref]bool),
	}
	router.SetCallbacks(remote.Callbacks{
		OnShellCreated:   c.created,
		OnShellUpdated:   c.updated,
		OnShellDestroyed: c.destroyed,
		OnWindowClosed:   c.windowClosed,
	})
	return c
}

func (c *console) created(p *remote.Proxy) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active.IsZero() {
		c.active = p.Ref()
	}
	fmt.Fprintf(c.out, "[shell %s ready]\n", p.Ref())
	c.flushLocked(p)
}

func (c *console) updated(p *remote.Proxy) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flushLocked(p)
	if done, code := p.Exited(); done && !c.exited[p.Ref()] {
		c.exited[p.Ref()] = true
		fmt.Fprintf(c.out, "\n[shell %s exited with code %d]\n", p.Ref(), code)
	}
}

func (c *console) destroyed(p *remote.Proxy) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.printed, p.Ref())
	delete(c.exited, p.Ref())
	if c.active == p.Ref() {
		c.active = 0
	}
	fmt.Fprintf(c.out, "[shell %s gone]\n", p.Ref())
}

func (c *console) windowClosed() {
	c.once.Do(func() {
		fmt.Fprintln(c.out, "[window closed]")
		close(c.closed)
	})
}

// flushLocked prints the part of p's output not yet shown. Bytes already
// dropped by a bounded buffer are skipped.
func (c *console) flushLocked(p *remote.Proxy) {
	if p.Ref() != c.active {
		return
	}
	b := p.Bytes()
	total := p.Dropped() + int64(len(b))
	n := total - c.printed[p.Ref()]
	if n <= 0 {
		return
	}
	if n > int64(len(b)) {
		n = int64(len(b))
	}
	_, _ = c.out.Write(b[int64(len(b))-n:])
	c.printed[p.Ref()] = total
}

func (c *console) activeRef() id.Ref {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// use switches the active shell and replays what it has buffered.
func (c *console) use(ref id.Ref) error {
	p, ok := c.router.Get(ref)
	if !ok {
		return fmt.Errorf("%w: %s", remote.ErrUnknownShell, ref)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = ref
	c.printed[ref] = 0
	c.flushLocked(p)
	return nil
}

// readInput forwards lines to the active shell until in is exhausted or
// :quit is read.
func (c *console) readInput(in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		err := c.exec(scanner.Text())
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			fmt.Fprintf(c.out, "[%v]\n", err)
		}
	}
	return scanner.Err()
}

func (c *console) exec(line string) error {
	if !strings.HasPrefix(line, ":") {
		ref := c.activeRef()
		if ref.IsZero() {
			return errors.New("no active shell, use :new")
		}
		return c.router.Send(ref, line)
	}

	fields := strings.Fields(line[1:])
	if len(fields) == 0 {
		return c.router.Send(c.activeRef(), line)
	}
	switch fields[0] {
	case "new":
		ref, err := c.router.Create()
		if err != nil {
			return err
		}
		c.mu.Lock()
		c.active = ref
		c.mu.Unlock()
		return nil
	case "use":
		if len(fields) != 2 {
			return errors.New("usage: :use <ref>")
		}
		n, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return fmt.Errorf("bad ref %q", fields[1])
		}
		return c.use(id.Ref(n))
	case "list":
		active := c.activeRef()
		for _, p := range c.router.Proxies() {
			mark := " "
			if p.Ref() == active {
				mark = "*"
			}
			state := "starting"
			if done, code := p.Exited(); done {
				state = "exited " + strconv.Itoa(code)
			} else if p.Confirmed() {
				state = "running"
			}
			fmt.Fprintf(c.out, "%s %s %s\n", mark, p.Ref(), state)
		}
		return nil
	case "discard":
		ref := c.activeRef()
		if ref.IsZero() {
			return errors.New("no active shell")
		}
		return c.router.Discard(ref)
	case "quit":
		return errQuit
	}
	return fmt.Errorf("unknown command %q", fields[0])
}
