package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"testing"
	"time"

	"dispatch-server/internal/hook"
	"dispatch-server/internal/protocol"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newTestDispatcher(t *testing.T, h *ServiceHandler) (*Dispatcher, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	conn := NewContext(context.Background())
	conn.Set(KeyClientAddr, "127.0.0.1")
	conn.Set(KeyClientPort, 5000)
	return NewDispatcher(h, conn, zap.New(core)), logs
}

func TestDispatcherUndefinedAPI(t *testing.T) {
	h := NewServiceHandler("svc")
	h.MustRegister("ping", ping)
	var fired int
	_ = h.Use(BeforeAPICall(func(*Context) error { fired++; return nil }))
	_ = h.Use(APICalled(func(*Context) error { fired++; return nil }))
	d, logs := newTestDispatcher(t, h)

	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)
	properties.Property("unregistered names fault with a fixed message", prop.ForAll(
		func(name string) bool {
			if name == "ping" {
				return true
			}
			res, err := d.Call(context.Background(), name, nil, nil)
			var f *protocol.Fault
			return res == nil &&
				errors.As(err, &f) &&
				f.Code == protocol.FaultUnknownMethod &&
				err.Error() == fmt.Sprintf("API '%s' undefined", name)
		},
		gen.AnyString(),
	))
	properties.TestingRun(t)

	assert.Equal(t, 0, fired)
	assert.Equal(t, 0, logs.FilterLevelExact(zapcore.ErrorLevel).Len())
}

func TestDispatcherPassesArgsUnchanged(t *testing.T) {
	h := NewServiceHandler("svc")
	var gotArgs []any
	var gotKwargs protocol.Kwargs
	h.MustRegister("collect", func(a []any, b map[string]any, kw protocol.Kwargs) string {
		gotArgs = []any{a, b}
		gotKwargs = kw
		return "ok"
	})
	d, _ := newTestDispatcher(t, h)

	args := []any{[]any{int64(1), "x"}, map[string]any{"k": true}}
	kwargs := protocol.Kwargs{{Name: "name", Value: "sarah"}, {Name: "age", Value: int64(3)}}
	res, err := d.Call(context.Background(), "collect", args, kwargs)
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Value())
	assert.Equal(t, args, gotArgs)
	assert.Equal(t, kwargs, gotKwargs)
}

func TestDispatcherWithCtx(t *testing.T) {
	h := NewServiceHandler("svc")
	var seen *Context
	var seenArgs []any
	h.MustRegister("whoami", func(c *Context, a string, b int) string {
		seen = c
		seenArgs = c.Args()
		_, hasDeadline := c.Deadline()
		return fmt.Sprintf("%s:%s:%d:%t", c.APIName(), a, b, hasDeadline)
	}, WithCtx())
	d, _ := newTestDispatcher(t, h)

	res, err := d.Call(context.Background(), "whoami", []any{"x", int64(2)}, nil)
	require.NoError(t, err)
	assert.Equal(t, "whoami:x:2:true", res.Value())
	require.NotNil(t, seen)
	assert.Same(t, d.Conn(), seen.Env())
	assert.Equal(t, []any{"x", int64(2)}, seenArgs)
}

func TestDispatcherBeforeHookSeesCallKeys(t *testing.T) {
	h := NewServiceHandler("svc", WithTimeouts(time.Second, 5*time.Second))
	h.MustRegister("ping", ping)

	var keys []string
	var conf APIConfig
	var hadEndAt bool
	_ = h.Use(BeforeAPICall(func(c *Context) error {
		keys = c.Keys()
		conf = c.Conf()
		hadEndAt = c.Has(KeyEndAt)
		return nil
	}))
	d, _ := newTestDispatcher(t, h)

	_, err := d.Call(context.Background(), "ping", nil, nil)
	require.NoError(t, err)
	for _, k := range []string{KeyArgs, KeyKwargs, KeyAPIName, KeyStartAt, KeyConf, KeyMeta, KeyLogger, KeyExc, KeyEnv} {
		assert.Contains(t, keys, k)
	}
	assert.False(t, hadEndAt)
	assert.Equal(t, APIConfig{SoftTimeout: time.Second, HardTimeout: 5 * time.Second}, conf)
}

func TestDispatcherAPICalledOnce(t *testing.T) {
	boom := errors.New("boom")
	h := NewServiceHandler("svc")
	h.MustRegister("ok", ping)
	h.MustRegister("fail", func() error { return boom })

	var calls int
	var exc error
	var ended bool
	_ = h.Use(APICalled(func(c *Context) error {
		calls++
		exc = c.Exc()
		ended = !c.EndAt().IsZero() && !c.EndAt().Before(c.StartAt())
		return nil
	}))
	d, _ := newTestDispatcher(t, h)

	_, err := d.Call(context.Background(), "ok", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.NoError(t, exc)
	assert.True(t, ended)

	_, err = d.Call(context.Background(), "fail", nil, nil)
	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.Same(t, boom, exc)
	assert.True(t, ended)

	var f *protocol.Fault
	require.ErrorAs(t, err, &f)
	assert.Equal(t, protocol.FaultInternalError, f.Code)
	assert.Equal(t, "boom", f.Message)
	assert.ErrorIs(t, err, boom)
}

func TestDispatcherBeforeHookAborts(t *testing.T) {
	denied := protocol.NewFault(protocol.FaultRateLimited, "slow down")
	h := NewServiceHandler("svc")
	var ran bool
	h.MustRegister("ping", func() string { ran = true; return "pong" })
	_ = h.Use(BeforeAPICall(func(*Context) error { return denied }))
	var exc error
	_ = h.Use(APICalled(func(c *Context) error { exc = c.Exc(); return nil }))
	d, _ := newTestDispatcher(t, h)

	_, err := d.Call(context.Background(), "ping", nil, nil)
	assert.Same(t, denied, err)
	assert.Same(t, denied, exc)
	assert.False(t, ran)
}

func TestDispatcherResetsCallContext(t *testing.T) {
	h := NewServiceHandler("svc")
	h.MustRegister("ping", ping)
	h.MustRegister("fail", func() error { return errors.New("x") })
	d, _ := newTestDispatcher(t, h)

	_, _ = d.Call(context.Background(), "ping", nil, nil)
	assert.Equal(t, []string{KeyEnv}, d.call.Keys())
	_, _ = d.Call(context.Background(), "fail", nil, nil)
	assert.Equal(t, []string{KeyEnv}, d.call.Keys())
	assert.Same(t, d.Conn(), d.call.Env())
}

func TestDispatcherCopiesMeta(t *testing.T) {
	h := NewServiceHandler("svc")
	var traceIDs []string
	h.MustRegister("rename", func(c *Context) string {
		traceIDs = append(traceIDs, c.GetOr(KeyTraceID, "").(string))
		c.Meta()["client_name"] = "changed"
		return c.Meta()["client_name"]
	}, WithCtx())
	d, _ := newTestDispatcher(t, h)
	d.Conn().Set(KeyMeta, protocol.Meta{"client_name": "app"})

	res, err := d.Call(context.Background(), "rename", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "changed", res.Value())
	assert.Equal(t, protocol.Meta{"client_name": "app"}, d.Conn().Meta())

	_, _ = d.Call(context.Background(), "rename", nil, nil)
	require.Len(t, traceIDs, 2)
	assert.NotEmpty(t, traceIDs[0])
	assert.NotEqual(t, traceIDs[0], traceIDs[1])
}

func TestDispatcherEmptyMeta(t *testing.T) {
	h := NewServiceHandler("svc")
	h.MustRegister("meta", func(c *Context) protocol.Meta { return c.Meta() }, WithCtx())
	d, _ := newTestDispatcher(t, h)

	res, err := d.Call(context.Background(), "meta", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, protocol.Meta{}, res.Value())
}

func TestDispatcherTimeoutFault(t *testing.T) {
	h := NewServiceHandler("svc")
	h.MustRegister("slow", func(c *Context) error {
		<-c.Done()
		return c.Err()
	}, WithCtx(), HardTimeout(10*time.Millisecond))
	h.MustRegister("signal", func() error { return &TimeoutError{Timeout: time.Second} })
	d, logs := newTestDispatcher(t, h)

	_, err := d.Call(context.Background(), "slow", nil, nil)
	var f *protocol.Fault
	require.ErrorAs(t, err, &f)
	assert.Equal(t, protocol.FaultTimeout, f.Code)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	_, err = d.Call(context.Background(), "signal", nil, nil)
	require.ErrorAs(t, err, &f)
	assert.Equal(t, protocol.FaultTimeout, f.Code)

	entries := logs.FilterLevelExact(zapcore.ErrorLevel).All()
	require.Len(t, entries, 2)
	assert.Contains(t, entries[0].Message, "Timeout! slow() ")
	assert.Contains(t, entries[1].Message, "Timeout! signal() ")
}

func TestDispatcherCloseConnectionPassesThrough(t *testing.T) {
	h := NewServiceHandler("svc")
	h.MustRegister("bye", func() error { return fmt.Errorf("kick: %w", ErrCloseConnection) })
	d, _ := newTestDispatcher(t, h)

	_, err := d.Call(context.Background(), "bye", nil, nil)
	assert.ErrorIs(t, err, ErrCloseConnection)
	var f *protocol.Fault
	assert.False(t, errors.As(err, &f))
}

func TestDispatcherAPICalledErrorIgnored(t *testing.T) {
	h := NewServiceHandler("svc")
	h.MustRegister("ping", ping)
	_ = h.Use(APICalled(func(*Context) error { return errors.New("hook broke") }))
	d, logs := newTestDispatcher(t, h)

	res, err := d.Call(context.Background(), "ping", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "pong", res.Value())

	entries := logs.FilterMessage("api_called hook failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
}

func TestDispatcherBeforeHookPanic(t *testing.T) {
	h := NewServiceHandler("svc")
	var ran bool
	h.MustRegister("ping", func() string { ran = true; return "pong" })
	_ = h.Use(BeforeAPICall(func(*Context) error { panic("hook boom") }))
	var calls int
	var exc error
	_ = h.Use(APICalled(func(c *Context) error { calls++; exc = c.Exc(); return nil }))
	d, _ := newTestDispatcher(t, h)

	res, err := d.Call(context.Background(), "ping", nil, nil)
	assert.Nil(t, res)
	var f *protocol.Fault
	require.ErrorAs(t, err, &f)
	assert.Equal(t, protocol.FaultInternalError, f.Code)
	assert.Equal(t, "panic: hook boom", f.Message)

	var pe *PanicError
	require.ErrorAs(t, exc, &pe)
	assert.Equal(t, "hook boom", pe.Value)
	assert.Equal(t, 1, calls)
	assert.False(t, ran)
	assert.Equal(t, []string{KeyEnv}, d.call.Keys())
}

func TestDispatcherAPICalledPanicIgnored(t *testing.T) {
	h := NewServiceHandler("svc")
	h.MustRegister("ping", ping)
	_ = h.Use(APICalled(func(*Context) error { panic("late boom") }))
	d, logs := newTestDispatcher(t, h)

	res, err := d.Call(context.Background(), "ping", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "pong", res.Value())

	entries := logs.FilterMessage("api_called hook failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "panic: late boom", entries[0].ContextMap()["error"])
}

type stubProvider struct {
	apis  map[string]*API
	hooks *hook.Registry
}

func (p stubProvider) Lookup(name string) (*API, bool) {
	api, ok := p.apis[name]
	return api, ok
}

func (p stubProvider) Hooks() *hook.Registry { return p.hooks }

func (p stubProvider) Timeouts() (time.Duration, time.Duration) {
	return 250 * time.Millisecond, 2 * time.Second
}

func TestDispatcherMergesProviderDefaults(t *testing.T) {
	var conf APIConfig
	api, err := NewAPI("conf", func(c *Context) APIConfig {
		conf = c.Conf()
		return conf
	}, HardTimeout(time.Second), WithCtx())
	require.NoError(t, err)
	p := stubProvider{apis: map[string]*API{"conf": api}, hooks: hook.NewRegistry()}
	d := NewDispatcher(p, nil, nil)

	_, err = d.Call(context.Background(), "conf", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, APIConfig{SoftTimeout: 250 * time.Millisecond, HardTimeout: time.Second, WithCtx: true}, conf)
	assert.Equal(t, APIConfig{HardTimeout: time.Second, WithCtx: true}, api.Conf)
}

func TestDispatcherLogsCall(t *testing.T) {
	h := NewServiceHandler("svc")
	h.MustRegister("greet", func(name string, kw protocol.Kwargs) string { return "hi " + name })
	d, logs := newTestDispatcher(t, h)
	d.Conn().Set(KeyMeta, protocol.Meta{"client_name": "tester", "client_version": "2.0"})

	_, err := d.Call(context.Background(), "greet", []any{"bob"}, protocol.Kwargs{{Name: "loud", Value: true}})
	require.NoError(t, err)

	entries := logs.FilterLevelExact(zapcore.InfoLevel).All()
	require.Len(t, entries, 1)
	assert.Regexp(t, regexp.MustCompile(`^\[tester/2\.0 127\.0\.0\.1\] greet\('bob',loud=True\) \d+\.\dms$`), entries[0].Message)
}
