package ws

import (
	"chat-relay/errors"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
)

const (
	writeWait = 5 * time.Second
	// inboundBuffer bounds how far the reader runs ahead of the session.
	inboundBuffer = 16
)

// Conn adapts a websocket connection to the relay's transport contract.
// Outbound frames go through a bounded buffer drained by a single writer
// goroutine, so a slow peer never blocks the fanout. Inbound frames are read
// by their own goroutine, so a peer hanging up is noticed even while the
// session is busy with a command.
type Conn struct {
	conn         *websocket.Conn
	log          *slog.Logger
	in           chan []byte
	out          chan []byte
	closing      chan struct{}
	done         chan struct{}
	readDone     chan struct{}
	gone         chan struct{}
	goneOnce     sync.Once
	closeOnce    sync.Once
	closeCode    int
	closeReason  string
	readTimeout  time.Duration
	pingInterval time.Duration
}

// NewConn starts the reader and writer goroutines. The caller must Close the
// Conn before its websocket handler returns.
// With pingInterval > 0 the writer pings the peer and every pong pushes the
// read deadline back by readTimeout, so a quiet but live peer stays connected.
func NewConn(log *slog.Logger, conn *websocket.Conn, bufferSize int, readTimeout, pingInterval time.Duration) *Conn {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	c := &Conn{
		conn:         conn,
		log:          log,
		in:           make(chan []byte, inboundBuffer),
		out:          make(chan []byte, bufferSize),
		closing:      make(chan struct{}),
		done:         make(chan struct{}),
		readDone:     make(chan struct{}),
		gone:         make(chan struct{}),
		readTimeout:  readTimeout,
		pingInterval: pingInterval,
	}
	conn.SetPongHandler(func(string) error {
		return c.extendReadDeadline()
	})
	go c.readLoop()
	go c.writeLoop()
	return c
}

func (c *Conn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// Done is closed once the peer is gone or the Conn is closed.
func (c *Conn) Done() <-chan struct{} {
	return c.gone
}

// Send queues payload without blocking.
func (c *Conn) Send(_ context.Context, payload []byte) error {
	select {
	case <-c.closing:
		return errors.ErrConnectionClosed
	case <-c.gone:
		return errors.ErrConnectionClosed
	default:
	}
	select {
	case c.out <- payload:
		return nil
	default:
		return errors.ErrSlowConsumer
	}
}

// Receive blocks until the next frame arrives, the peer goes away or ctx is
// canceled.
func (c *Conn) Receive(ctx context.Context) ([]byte, error) {
	select {
	case data := <-c.in:
		return data, nil
	case <-c.gone:
		return nil, errors.ErrConnectionClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close flushes what is already queued, sends a close frame carrying code
// and reason, then releases the socket and waits for the reader to let go of
// it. Later calls only wait for the first.
func (c *Conn) Close(code int, reason string) error {
	c.closeOnce.Do(func() {
		c.closeCode, c.closeReason = code, reason
		close(c.closing)
	})
	<-c.done
	<-c.readDone
	return nil
}

func (c *Conn) markGone() {
	c.goneOnce.Do(func() { close(c.gone) })
}

func (c *Conn) extendReadDeadline() error {
	if c.readTimeout <= 0 {
		return nil
	}
	return c.conn.SetReadDeadline(time.Now().Add(c.readTimeout))
}

func (c *Conn) readLoop() {
	defer close(c.readDone)
	defer c.markGone()

	for {
		if err := c.extendReadDeadline(); err != nil {
			return
		}
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debug("Unexpected close", "error", err)
			}
			return
		}
		select {
		case c.in <- data:
		case <-c.closing:
			return
		}
	}
}

func (c *Conn) writeLoop() {
	defer close(c.done)
	defer c.markGone()
	defer func() { _ = c.conn.Close() }()

	var ping <-chan time.Time
	if c.pingInterval > 0 {
		ticker := time.NewTicker(c.pingInterval)
		defer ticker.Stop()
		ping = ticker.C
	}

	for {
		select {
		case payload := <-c.out:
			if err := c.write(payload); err != nil {
				c.log.Debug("Write failed", "error", err)
				return
			}
		case <-ping:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.log.Debug("Ping failed", "error", err)
				return
			}
		case <-c.closing:
			c.flush()
			message := websocket.FormatCloseMessage(c.closeCode, c.closeReason)
			if err := c.conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(writeWait)); err != nil {
				c.log.Debug("Close frame not sent", "error", err)
			}
			return
		}
	}
}

func (c *Conn) flush() {
	for {
		select {
		case payload := <-c.out:
			if err := c.write(payload); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Conn) write(payload []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}
