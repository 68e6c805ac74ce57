package transport

import (
	"bufio"
	"net"
	"sync"
	"time"

	"dispatch-server/internal/protocol"
)

const defaultBufferSize = 32 * 1024

type ConnOptions struct {
	ReadBufferSize  int
	WriteBufferSize int
	MaxFrameSize    int
	// ReadTimeout bounds the wait for the next frame; zero waits forever.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

func (o ConnOptions) withDefaults() ConnOptions {
	if o.ReadBufferSize <= 0 {
		o.ReadBufferSize = defaultBufferSize
	}
	if o.WriteBufferSize <= 0 {
		o.WriteBufferSize = defaultBufferSize
	}
	if o.MaxFrameSize <= 0 {
		o.MaxFrameSize = DefaultMaxFrameSize
	}
	return o
}

// BufferedConn speaks length-prefixed frames over a stream connection.
type BufferedConn struct {
	conn    net.Conn
	opts    ConnOptions
	reader  *bufio.Reader
	writer  *bufio.Writer
	writeMu sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

func NewBufferedConn(conn net.Conn) *BufferedConn {
	return NewBufferedConnWithOptions(conn, ConnOptions{})
}

func NewBufferedConnWithOptions(conn net.Conn, opts ConnOptions) *BufferedConn {
	opts = opts.withDefaults()
	return &BufferedConn{
		conn:   conn,
		opts:   opts,
		reader: bufio.NewReaderSize(conn, opts.ReadBufferSize),
		writer: bufio.NewWriterSize(conn, opts.WriteBufferSize),
	}
}

func (c *BufferedConn) ReadMessage() (*protocol.Message, error) {
	if c.opts.ReadTimeout > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
	}
	return readFrame(c.reader, c.opts.MaxFrameSize)
}

func (c *BufferedConn) WriteMessage(msg *protocol.Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.opts.WriteTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	}
	if err := writeFrame(c.writer, msg); err != nil {
		return err
	}
	return wrapError(c.writer.Flush())
}

func (c *BufferedConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Close is safe to call more than once.
func (c *BufferedConn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
