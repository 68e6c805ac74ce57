package transport

import (
	"net"
	"sync"

	"dispatch-server/internal/protocol"
	"github.com/gorilla/websocket"
)

// WSConn carries one message per websocket frame. Text frames are protojson,
// binary frames are proto; replies use the format of the last call read
// unless useJSON forces JSON.
type WSConn struct {
	conn    *websocket.Conn
	useJSON bool

	mu       sync.Mutex
	lastJSON bool
}

func NewWSConn(conn *websocket.Conn, useJSON bool) *WSConn {
	return &WSConn{
		conn:    conn,
		useJSON: useJSON,
	}
}

func (c *WSConn) ReadMessage() (*protocol.Message, error) {
	messageType, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, wrapError(err)
	}
	switch messageType {
	case websocket.TextMessage:
		c.setLastJSON(true)
		return protocol.UnmarshalJSON(data)
	default:
		c.setLastJSON(false)
		return protocol.Unmarshal(data)
	}
}

func (c *WSConn) WriteMessage(msg *protocol.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.useJSON || c.lastJSON {
		data, err := protocol.MarshalJSON(msg)
		if err != nil {
			return err
		}
		return wrapError(c.conn.WriteMessage(websocket.TextMessage, data))
	}
	data, err := protocol.Marshal(msg)
	if err != nil {
		return err
	}
	return wrapError(c.conn.WriteMessage(websocket.BinaryMessage, data))
}

func (c *WSConn) setLastJSON(v bool) {
	c.mu.Lock()
	c.lastJSON = v
	c.mu.Unlock()
}

func (c *WSConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

func (c *WSConn) Close() error {
	return c.conn.Close()
}
