// internal/service/dispatcher.go
package service

import (
	"context"
	"errors"
	"time"

	"dispatch-server/internal/common/logging"
	"dispatch-server/internal/hook"
	"dispatch-server/internal/protocol"
	"github.com/google/uuid"
	"github.com/mohae/deepcopy"
	"go.uber.org/zap"
)

// Result wraps a successful handler return value.
type Result struct {
	value any
}

func (r *Result) Value() any {
	return r.value
}

// Dispatcher resolves and runs calls for one connection. Calls are
// sequential; a Dispatcher must not be shared between goroutines.
type Dispatcher struct {
	provider APIProvider
	conn     *Context
	call     *Context
	logger   *zap.Logger
}

func NewDispatcher(p APIProvider, conn *Context, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if conn == nil {
		conn = NewContext(nil)
	}
	call := NewContext(conn.Context)
	call.Set(KeyEnv, conn)
	return &Dispatcher{
		provider: p,
		conn:     conn,
		call:     call,
		logger:   logger,
	}
}

// Conn returns the connection context.
func (d *Dispatcher) Conn() *Context {
	return d.conn
}

// Call runs the API registered under name. An unknown name, a failing
// before_api_call hook and a failing handler all come back as a
// *protocol.Fault; ErrCloseConnection is returned as is.
func (d *Dispatcher) Call(ctx context.Context, name string, args []any, kwargs protocol.Kwargs) (*Result, error) {
	api, ok := d.provider.Lookup(name)
	if !ok {
		return nil, protocol.Faultf(protocol.FaultUnknownMethod, "API '%s' undefined", name)
	}
	conf := api.Conf.withDefaults(d.provider.Timeouts())

	if ctx == nil {
		ctx = d.conn.Context
	}
	var cancel context.CancelFunc = func() {}
	if conf.HardTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, conf.HardTimeout)
	}

	c := d.call
	defer func() {
		cancel()
		c.ClearExcept(KeyEnv)
		c.Context = d.conn.Context
	}()
	d.populate(c, ctx, api.Name, args, kwargs, conf)

	hooks := d.provider.Hooks()
	var (
		result any
		err    error
	)
	if hooks != nil {
		err = invokeHooks(hooks, EventBeforeAPICall, c)
	}
	if err == nil {
		result, err = api.Call(c, args, kwargs)
	}

	c.Set(KeyEndAt, time.Now())
	c.Set(KeyExc, err)

	if hooks != nil {
		if herr := invokeHooks(hooks, EventAPICalled, c); herr != nil {
			d.logger.Warn("api_called hook failed",
				zap.String("api", api.Name),
				zap.String("trace_id", c.stringValue(KeyTraceID)),
				zap.Error(herr),
			)
		}
	}

	if err != nil {
		return nil, toFault(err)
	}
	return &Result{value: result}, nil
}

func (d *Dispatcher) populate(c *Context, ctx context.Context, name string, args []any, kwargs protocol.Kwargs, conf APIConfig) {
	c.Context = ctx
	if v, ok := d.conn.Lookup(KeyClientAddr); ok {
		c.Set(KeyClientAddr, v)
	}
	if v, ok := d.conn.Lookup(KeyClientPort); ok {
		c.Set(KeyClientPort, v)
	}
	c.Set(KeyArgs, args)
	c.Set(KeyKwargs, kwargs)
	c.Set(KeyAPIName, name)
	c.Set(KeyStartAt, time.Now())
	c.Set(KeyConf, conf)
	if meta, ok := d.conn.Lookup(KeyMeta); ok && meta != nil {
		c.Set(KeyMeta, deepcopy.Copy(meta))
	} else {
		c.Set(KeyMeta, protocol.Meta{})
	}
	c.Set(KeyTraceID, uuid.NewString())
	c.Set(KeyLogger, logging.NewMetaAdapter(d.logger, c))
	c.Set(KeyExc, nil)
}

// invokeHooks fires event with c. A panicking subscriber is returned as a
// *PanicError.
func invokeHooks(hooks *hook.Registry, event string, c *Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	_, err = hooks.Invoke(event, c)
	return err
}

func toFault(err error) error {
	if errors.Is(err, ErrCloseConnection) {
		return err
	}
	if IsTimeout(err) {
		return protocol.WrapFault(protocol.FaultTimeout, err)
	}
	return protocol.WrapFault(protocol.FaultInternalError, err)
}
