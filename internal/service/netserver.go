package service

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"dispatch-server/internal/transport"
	"go.uber.org/zap"
)

const defaultDrainTimeout = 5 * time.Second

// NetServer accepts TCP connections and serves each on its own goroutine.
type NetServer struct {
	// DrainTimeout bounds how long Serve waits for connection goroutines
	// after shutdown. Zero means 5s.
	DrainTimeout time.Duration

	svc         *Server
	connOptions transport.ConnOptions
	logger      *zap.Logger

	wg   sync.WaitGroup
	open atomic.Int64
}

func NewNetServer(svc *Server, connOptions transport.ConnOptions) *NetServer {
	return &NetServer{
		svc:         svc,
		connOptions: connOptions,
		logger:      svc.Logger(),
	}
}

func (n *NetServer) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	n.logger.Info("listening", zap.String("network", "tcp"), zap.String("addr", ln.Addr().String()))
	return n.Serve(ctx, ln)
}

// Serve accepts on ln until ctx is done. Open connections are closed on
// cancellation and Serve waits up to DrainTimeout for their goroutines
// before returning.
func (n *NetServer) Serve(ctx context.Context, ln net.Listener) error {
	defer ln.Close()
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				n.drain()
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				n.drain()
				return err
			}
			n.logger.Warn("accept failed", zap.Error(err))
			time.Sleep(10 * time.Millisecond)
			continue
		}
		n.wg.Add(1)
		go n.handleConn(ctx, conn)
	}
}

// drain waits for connection goroutines. Handlers are not interrupted, so
// one that ignores its context is reported and left running.
func (n *NetServer) drain() {
	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()

	timeout := n.DrainTimeout
	if timeout <= 0 {
		timeout = defaultDrainTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		n.logger.Warn("connections still open after shutdown",
			zap.Int64("open", n.open.Load()),
			zap.Duration("waited", timeout),
		)
	}
}

func (n *NetServer) handleConn(ctx context.Context, raw net.Conn) {
	n.open.Add(1)
	defer n.wg.Done()
	defer n.open.Add(-1)
	stop := context.AfterFunc(ctx, func() { _ = raw.Close() })
	defer stop()

	addr := raw.RemoteAddr().String()
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("connection panic",
				zap.String("addr", addr),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			_ = raw.Close()
		}
	}()

	conn := transport.NewBufferedConnWithOptions(raw, n.connOptions)
	env := ConnContext(ctx, raw.RemoteAddr())
	if err := n.svc.Serve(ctx, conn, env); err != nil {
		n.logger.Error("connection closed on error",
			zap.String("addr", addr),
			zap.Error(err),
		)
	}
}
