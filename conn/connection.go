// Package conn implements one TCP endpoint to a Gearman server: socket
// lifecycle, non-blocking-style I/O via short read/write deadlines, and the
// byte buffers the wire codec frames. See spec.md section 4.2.
package conn

import (
	"bytes"
	"net"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"

	"github.com/chrisyee/gearman-go/wire"
)

// DefaultDialTimeout bounds how long Connect waits for the TCP handshake.
const DefaultDialTimeout = 5 * time.Second

// readChunk is the scratch buffer size for a single ReadAvailable call.
const readChunk = 16 * 1024

// FrameHandler receives decoded frames for one connection. Command handler
// implementations in package handler satisfy this.
type FrameHandler interface {
	HandleFrame(cmd wire.CommandType, fields [][]byte) error
	HandleAdmin(resp wire.AdminResponse) error
}

// Connection is one socket to a Gearman server. It is owned exclusively by
// a connection manager; nothing else should mutate its buffers.
type Connection struct {
	Host string
	Port string

	mu        sync.Mutex
	netConn   net.Conn
	connected bool
	admin     bool
	outBuf    bytes.Buffer
	decoder   *wire.Decoder

	handler FrameHandler
	log     hclog.Logger
}

// New builds an unconnected Connection. admin marks it as one that speaks
// the text admin protocol (spec.md section 4.1).
func New(host, port string, admin bool, log hclog.Logger) *Connection {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &Connection{
		Host:    host,
		Port:    port,
		admin:   admin,
		decoder: wire.NewDecoder(admin),
		log:     log.Named("conn").With("addr", net.JoinHostPort(host, port)),
	}
}

// SetHandler attaches the per-connection protocol state machine. Must be
// called before the connection is handed to a poller.
func (c *Connection) SetHandler(h FrameHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
}

// Handler returns the attached FrameHandler, or nil if none was set.
func (c *Connection) Handler() FrameHandler {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handler
}

// Addr returns "host:port" for dialing and logging.
func (c *Connection) Addr() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// Connect opens the TCP socket. Safe to call again once Connected is false.
func (c *Connection) Connect(timeout time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return nil
	}
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}

	nc, err := net.DialTimeout("tcp", c.Addr(), timeout)
	if err != nil {
		return errors.Wrapf(err, "conn: dial %s", c.Addr())
	}

	c.netConn = nc
	c.connected = true
	c.outBuf.Reset()
	c.decoder = wire.NewDecoder(c.admin)
	c.log.Debug("connected")
	return nil
}

// Close tears down the socket. Idempotent.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLocked()
}

func (c *Connection) closeLocked() error {
	if !c.connected {
		return nil
	}
	c.connected = false
	err := c.netConn.Close()
	c.netConn = nil
	c.log.Debug("closed")
	return err
}

// Connected reports whether the connection believes its socket is live:
// true from a successful Connect until Close. A failed ReadAvailable or
// WriteAvailable does not clear it by itself; the caller closes the
// connection on such an error.
func (c *Connection) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Send appends bytes to the outbound buffer. Never blocks; the poller
// drains it on the next writable wake.
func (c *Connection) Send(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outBuf.Write(data)
}

// Writable reports whether there is buffered outbound data.
func (c *Connection) Writable() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outBuf.Len() > 0
}

// ExpectAdminResponse forwards to the connection's decoder. Used by the
// admin command handler before sending a text command.
func (c *Connection) ExpectAdminResponse(term wire.AdminTerminator) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.decoder.ExpectAdminResponse(term)
}

// ReadAvailable attempts one read from the socket bounded by deadline. It
// returns the number of bytes read (0 with a nil error means "nothing
// ready within deadline", not EOF) and feeds whatever it got to the
// decoder. A real EOF or non-timeout error is returned so the caller can
// mark the connection dead.
func (c *Connection) ReadAvailable(deadline time.Duration) (int, error) {
	c.mu.Lock()
	nc := c.netConn
	connected := c.connected
	c.mu.Unlock()

	if !connected || nc == nil {
		return 0, errors.New("conn: read on disconnected connection")
	}

	if err := nc.SetReadDeadline(time.Now().Add(deadline)); err != nil {
		return 0, errors.Wrap(err, "conn: set read deadline")
	}

	buf := make([]byte, readChunk)
	n, err := nc.Read(buf)
	if n > 0 {
		c.mu.Lock()
		c.decoder.Feed(buf[:n])
		c.mu.Unlock()
	}

	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return n, nil
		}
		return n, err
	}
	return n, nil
}

// WriteAvailable drains as much of the outbound buffer as the socket will
// accept within a short deadline.
func (c *Connection) WriteAvailable() error {
	c.mu.Lock()
	nc := c.netConn
	connected := c.connected
	pending := c.outBuf.Bytes()
	c.mu.Unlock()

	if !connected || nc == nil {
		return errors.New("conn: write on disconnected connection")
	}
	if len(pending) == 0 {
		return nil
	}

	if err := nc.SetWriteDeadline(time.Now().Add(2 * time.Second)); err != nil {
		return errors.Wrap(err, "conn: set write deadline")
	}

	n, err := nc.Write(pending)
	c.mu.Lock()
	if n > 0 {
		remaining := make([]byte, c.outBuf.Len()-n)
		copy(remaining, c.outBuf.Bytes()[n:])
		c.outBuf.Reset()
		c.outBuf.Write(remaining)
	}
	c.mu.Unlock()

	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil
		}
		return errors.Wrap(err, "conn: write")
	}
	return nil
}

// NextEvent pulls the next fully buffered decoded unit off this
// connection's decoder, or ok=false if more bytes are needed.
func (c *Connection) NextEvent() (wire.Event, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.decoder.Next()
}
