// Package servicetest calls a service in-process, without a transport.
package servicetest

import (
	"context"

	"dispatch-server/internal/protocol"
	"dispatch-server/internal/service"
	"go.uber.org/zap"
)

const localAddr = "127.0.0.1"

// Client dispatches calls straight to an APIProvider as if they came from
// a local connection.
type Client struct {
	d *service.Dispatcher
}

func NewClient(p service.APIProvider, logger *zap.Logger) *Client {
	conn := service.NewContext(context.Background())
	conn.Set(service.KeyClientAddr, localAddr)
	conn.Set(service.KeyMeta, protocol.Meta{})
	return &Client{d: service.NewDispatcher(p, conn, logger)}
}

// Conn exposes the connection context so tests can set meta or log_extra.
func (c *Client) Conn() *service.Context {
	return c.d.Conn()
}

func (c *Client) Call(name string, args ...any) (*service.Result, error) {
	return c.d.Call(context.Background(), name, args, nil)
}

func (c *Client) CallKw(name string, args []any, kwargs protocol.Kwargs) (*service.Result, error) {
	return c.d.Call(context.Background(), name, args, kwargs)
}
