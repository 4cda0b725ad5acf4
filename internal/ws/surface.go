package ws

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/shellhost/internal/domain/window"
	"github.com/GriffinCanCode/shellhost/internal/protocol"
	"github.com/GriffinCanCode/shellhost/internal/shared/id"
)

var (
	// ErrSurfaceClosed is returned when sending on a closed surface.
	ErrSurfaceClosed = errors.New("surface is closed")
	// ErrAlreadyAttached is returned when a second display attaches to a window.
	ErrAlreadyAttached = errors.New("display already attached")
	// ErrQueueFull is returned when an unattached surface cannot queue more envelopes.
	ErrQueueFull = errors.New("surface queue is full")
)

// Options configures surfaces.
type Options struct {
	// QueueLimit bounds the envelopes held before a display attaches; zero is unbounded.
	QueueLimit   int
	WriteTimeout time.Duration
	Logger       *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// Surface is the WebSocket side of one window.
type Surface struct {
	channel string
	size    window.SizeSpec
	opts    Options
	logger  *zap.Logger
	release func(channel string)

	// mu serializes writes; gorilla allows one concurrent writer.
	mu     sync.Mutex
	conn   *websocket.Conn
	connID id.ConnID
	queue  [][]byte
	closed bool
}

// Channel returns the window's channel.
func (s *Surface) Channel() string { return s.channel }

// Size returns the size the window was opened with.
func (s *Surface) Size() window.SizeSpec { return s.size }

// Attached reports whether a display is connected.
func (s *Surface) Attached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// Queued returns the number of envelopes waiting for a display.
func (s *Surface) Queued() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Send writes env to the display, or queues it until one attaches. A frame
// whose write fails is kept for the next display.
func (s *Surface) Send(channel string, env protocol.Envelope) error {
	if channel != s.channel {
		return fmt.Errorf("surface %s cannot send on %s", s.channel, channel)
	}
	frame, err := protocol.Marshal(env)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSurfaceClosed
	}
	if s.conn == nil {
		if s.opts.QueueLimit > 0 && len(s.queue) >= s.opts.QueueLimit {
			return fmt.Errorf("%w: %d envelopes on %s", ErrQueueFull, len(s.queue), s.channel)
		}
		s.queue = append(s.queue, frame)
		return nil
	}
	if err := s.writeLocked(frame); err != nil {
		// The frame heads the queue so the next display sees no gap.
		s.queue = append([][]byte{frame}, s.queue...)
		connID := s.connID
		s.dropConnLocked()
		s.logger.Warn("Display write failed", zap.String("conn_id", connID.String()), zap.Error(err))
		return fmt.Errorf("write to %s: %w", connID, err)
	}
	return nil
}

// Attach connects a display and flushes the queue to it in order.
func (s *Surface) Attach(conn *websocket.Conn, connID id.ConnID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSurfaceClosed
	}
	if s.conn != nil {
		return fmt.Errorf("%w: %s", ErrAlreadyAttached, s.connID)
	}
	for i, frame := range s.queue {
		if err := s.writeTo(conn, frame); err != nil {
			s.queue = s.queue[i:]
			return fmt.Errorf("flush to %s: %w", connID, err)
		}
	}
	flushed := len(s.queue)
	s.queue = nil
	s.conn = conn
	s.connID = connID

	s.logger.Info("Display attached", zap.String("conn_id", connID.String()), zap.Int("flushed", flushed))
	return nil
}

// Detach forgets conn if it is the attached display. Later envelopes queue.
func (s *Surface) Detach(conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == conn {
		s.logger.Info("Display detached", zap.String("conn_id", s.connID.String()))
		s.conn = nil
		s.connID = ""
	}
}

// Close sends a close frame to the display and drops the connection.
func (s *Surface) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.queue = nil
	var err error
	if s.conn != nil {
		deadline := time.Now().Add(s.opts.WriteTimeout)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "window closed")
		err = s.conn.WriteControl(websocket.CloseMessage, msg, deadline)
		s.dropConnLocked()
	}
	s.mu.Unlock()

	s.release(s.channel)
	if errors.Is(err, websocket.ErrCloseSent) {
		return nil
	}
	return err
}

func (s *Surface) writeLocked(frame []byte) error {
	return s.writeTo(s.conn, frame)
}

func (s *Surface) writeTo(conn *websocket.Conn, frame []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, frame)
}

func (s *Surface) dropConnLocked() {
	if s.conn == nil {
		return
	}
	_ = s.conn.Close()
	s.conn = nil
	s.connID = ""
}
