package transport

import (
	"net"

	"dispatch-server/internal/protocol"
)

// Conn is the connection abstraction the serve loop reads calls from and
// writes replies to.
type Conn interface {
	ReadMessage() (*protocol.Message, error)
	WriteMessage(*protocol.Message) error
	Close() error
	RemoteAddr() net.Addr
}
