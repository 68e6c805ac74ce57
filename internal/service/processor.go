package service

import (
	"context"
	"errors"

	"dispatch-server/internal/protocol"
	"dispatch-server/internal/transport"
)

// Processor handles exactly one frame read from conn. Any returned error
// ends the connection; the Server decides how it is reported.
type Processor interface {
	Process(ctx context.Context, conn transport.Conn, d *Dispatcher) error
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, conn transport.Conn, d *Dispatcher) error

func (f ProcessorFunc) Process(ctx context.Context, conn transport.Conn, d *Dispatcher) error {
	return f(ctx, conn, d)
}

// FrameProcessor reads a call, dispatches it and writes the reply. Faults
// go back to the caller as exception messages; oneway calls get no reply.
type FrameProcessor struct{}

func (FrameProcessor) Process(ctx context.Context, conn transport.Conn, d *Dispatcher) error {
	msg, err := conn.ReadMessage()
	if err != nil {
		return err
	}
	switch msg.Type {
	case protocol.TypeCall, protocol.TypeOneway:
	default:
		return conn.WriteMessage(protocol.NewException(msg,
			protocol.Faultf(protocol.FaultInvalidMessageType, "unexpected message type %s", msg.Type)))
	}

	res, err := d.Call(ctx, msg.Method, msg.Args, msg.Kwargs)
	if errors.Is(err, ErrCloseConnection) {
		return err
	}
	if msg.Type == protocol.TypeOneway {
		return nil
	}
	if err != nil {
		return conn.WriteMessage(protocol.NewException(msg, protocol.WrapFault(protocol.FaultInternalError, err)))
	}

	value, err := protocol.Normalize(res.Value())
	if err != nil {
		return conn.WriteMessage(protocol.NewException(msg,
			protocol.Faultf(protocol.FaultMissingResult, "%s: cannot encode result: %v", msg.Method, err)))
	}
	return conn.WriteMessage(protocol.NewReply(msg, value))
}
