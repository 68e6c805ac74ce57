// internal/service/server.go
package service

import (
	"context"
	"errors"
	"net"
	"strconv"

	"dispatch-server/internal/protocol"
	"dispatch-server/internal/transport"
	"go.uber.org/zap"
)

// Server serves connections against one APIProvider.
type Server struct {
	provider  APIProvider
	processor Processor
	logger    *zap.Logger
}

func NewServer(p APIProvider, opts ...Option) *Server {
	o := buildOptions(opts)
	processor := o.processor
	if processor == nil {
		processor = FrameProcessor{}
	}
	return &Server{
		provider:  p,
		processor: processor,
		logger:    o.logger,
	}
}

func (s *Server) Logger() *zap.Logger {
	return s.logger
}

// Serve processes frames from conn until it fails or ctx is done, then
// closes conn. Peer disconnects, transport and protocol failures and
// ErrCloseConnection end the connection with a nil error; anything else
// is returned.
func (s *Server) Serve(ctx context.Context, conn transport.Conn, env *Context) error {
	defer conn.Close()

	if env == nil {
		env = ConnContext(ctx, conn.RemoteAddr())
	}
	d := NewDispatcher(s.provider, env, s.logger)
	for {
		if ctx.Err() != nil {
			return nil
		}
		if err := s.processor.Process(ctx, conn, d); err != nil {
			return s.closeReason(env, err)
		}
	}
}

func (s *Server) closeReason(env *Context, err error) error {
	var (
		terr *transport.Error
		perr *protocol.Error
	)
	switch {
	case errors.As(err, &terr):
		if terr.Kind != transport.KindEndOfFile {
			s.logger.Error(err.Error(), zap.Error(err))
		}
		return nil
	case errors.As(err, &perr):
		s.logger.Sugar().Warnf("[%s:%s] protocol error: %s", env.ClientAddr(), env.ClientPort(), err)
		return nil
	case errors.Is(err, ErrCloseConnection):
		return nil
	}
	return err
}

// ConnContext builds the connection context for a peer at addr.
func ConnContext(ctx context.Context, addr net.Addr) *Context {
	env := NewContext(ctx)
	if addr == nil {
		return env
	}
	host, port, err := net.SplitHostPort(addr.String())
	if err != nil {
		env.Set(KeyClientAddr, addr.String())
		return env
	}
	env.Set(KeyClientAddr, host)
	if n, err := strconv.Atoi(port); err == nil {
		env.Set(KeyClientPort, n)
	} else {
		env.Set(KeyClientPort, port)
	}
	return env
}
