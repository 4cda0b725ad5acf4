package ws

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/shellhost/internal/protocol"
)

// ClientOptions configures a display connection.
type ClientOptions struct {
	WriteTimeout time.Duration
	Diagnostics  protocol.DiagnosticSink
	Logger       *zap.Logger
}

// Client is a display's connection to one window.
type Client struct {
	channel string
	conn    *websocket.Conn
	opts    ClientOptions
	logger  *zap.Logger

	writeMu sync.Mutex
}

// StreamURL returns the stream endpoint of channel on the server at base.
func StreamURL(base, channel string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported server scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/windows/" + url.PathEscape(channel) + "/stream"
	return u.String(), nil
}

// Dial connects to the stream of channel on the server at base.
func Dial(ctx context.Context, base, channel string, opts ClientOptions) (*Client, error) {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if opts.Diagnostics == nil {
		opts.Diagnostics = protocol.NopSink
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	target, err := StreamURL(base, channel)
	if err != nil {
		return nil, err
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %s: %w", target, resp.Status, err)
		}
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}

	return &Client{
		channel: channel,
		conn:    conn,
		opts:    opts,
		logger:  opts.Logger.Named("display").With(zap.String("channel", channel)),
	}, nil
}

// Channel returns the window's channel.
func (c *Client) Channel() string { return c.channel }

// Send writes one envelope. It implements remote.Sender.
func (c *Client) Send(env protocol.Envelope) error {
	frame, err := protocol.Marshal(env)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

// Run delivers inbound envelopes to fn in arrival order until the server
// closes the stream or ctx is done. A normal close returns nil.
func (c *Client) Run(ctx context.Context, fn func(protocol.Envelope)) error {
	stop := context.AfterFunc(ctx, func() { _ = c.conn.Close() })
	defer stop()

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read %s: %w", c.channel, err)
		}

		env, err := protocol.Unmarshal(frame)
		if err != nil {
			c.opts.Diagnostics.Report(protocol.Diagnostic{
				Kind:    protocol.ProtocolViolation,
				Channel: c.channel,
				Err:     err,
			})
			continue
		}
		fn(env)
	}
}

// Close says goodbye to the server and drops the connection.
func (c *Client) Close() error {
	c.writeMu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "display closed")
	err := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.opts.WriteTimeout))
	c.writeMu.Unlock()

	if cerr := c.conn.Close(); err == nil || errors.Is(err, websocket.ErrCloseSent) {
		err = cerr
	}
	return err
}
